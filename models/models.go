package models

import (
	"time"
)

// Candle represents a single closed OHLCV candle.
type Candle struct {
	OpenTime    time.Time `json:"open_time"`
	Open        float64   `json:"open"`
	High        float64   `json:"high"`
	Low         float64   `json:"low"`
	Close       float64   `json:"close"`
	Volume      float64   `json:"volume"`
	CloseTime   time.Time `json:"close_time"`
	QuoteVolume float64   `json:"quote_volume"`
}

// SRLabel marks a confirmed support or resistance test.
type SRLabel string

const (
	SRNone       SRLabel = ""
	SRSupport    SRLabel = "support"
	SRResistance SRLabel = "resistance"
)

// SignalSnapshot is the classification of one symbol's price against one
// indicator, computed from freshly fetched candles. Never cached across runs.
type SignalSnapshot struct {
	Price             float64 `json:"price"`
	IndicatorValue    float64 `json:"indicator_value"`
	AboveIndicator    bool    `json:"above_indicator"`
	BelowIndicator    bool    `json:"below_indicator"`
	AtIndicator       bool    `json:"at_indicator"`
	DiffPercent       float64 `json:"diff_percent"`
	SupportResistance SRLabel `json:"support_resistance,omitempty"`

	// Cluster fields are populated only for trend-cluster members.
	IsCluster    bool    `json:"is_cluster,omitempty"`
	ClusterMin   float64 `json:"cluster_min,omitempty"`
	ClusterMax   float64 `json:"cluster_max,omitempty"`
	ClusterMid   float64 `json:"cluster_mid,omitempty"`
	AboveCluster bool    `json:"above_cluster,omitempty"`
	BelowCluster bool    `json:"below_cluster,omitempty"`
	AtCluster    bool    `json:"at_cluster,omitempty"`
}

// SymbolSignal holds everything computed for one symbol in one evaluation pass.
type SymbolSignal struct {
	Symbol    string                           `json:"symbol"`
	Price     float64                          `json:"price"`
	Snapshots map[IndicatorSpec]SignalSnapshot `json:"snapshots"`
}

// Snapshot returns the snapshot for the given spec, reporting whether it exists.
func (s SymbolSignal) Snapshot(spec IndicatorSpec) (SignalSnapshot, bool) {
	snap, ok := s.Snapshots[spec]
	return snap, ok
}

// Value returns the computed indicator value for the given spec.
func (s SymbolSignal) Value(spec IndicatorSpec) (float64, bool) {
	snap, ok := s.Snapshots[spec]
	if !ok {
		return 0, false
	}
	return snap.IndicatorValue, true
}
