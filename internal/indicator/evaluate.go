package indicator

import (
	"errors"
	"fmt"
	"math"

	"github.com/Alias1177/Screener/models"
)

// ErrInsufficientData is returned when fewer closed candles are supplied than
// the indicator's warm-up requires.
var ErrInsufficientData = errors.New("insufficient data")

// AtThreshold returns the relative tolerance for the "price at indicator"
// test. Higher timeframes move in wider bands, so the tolerance scales up.
func AtThreshold(tf models.Timeframe) float64 {
	switch tf {
	case models.Timeframe15m:
		return 0.0005
	case models.Timeframe1h:
		return 0.001
	case models.Timeframe2h:
		return 0.0015
	case models.Timeframe4h:
		return 0.002
	case models.Timeframe12h:
		return 0.003
	case models.Timeframe1d:
		return 0.005
	case models.Timeframe3d:
		return 0.007
	case models.Timeframe1w:
		return 0.01
	}
	return 0.002
}

// RequiredCandles is how many closed candles a caller must fetch before
// evaluating the spec. EMA needs 2.5x its period to converge from the seed
// value; a simple MA needs exactly its period.
func RequiredCandles(spec models.IndicatorSpec) int {
	if spec.Kind == models.KindEMA {
		return int(math.Ceil(float64(spec.Period) * 2.5))
	}
	return spec.Period
}

// Evaluate computes the indicator value series for the given closes. The last
// element of closes must be the most recently closed candle; callers are
// responsible for excluding any still-forming one. The output has length
// len(closes)-period+1 and is aligned to the input tail.
func Evaluate(closes []float64, spec models.IndicatorSpec) ([]float64, error) {
	period := spec.Period
	if period <= 0 {
		return nil, fmt.Errorf("bad period %d", period)
	}
	if len(closes) < period {
		return nil, fmt.Errorf("%w: need %d closes for %s, got %d",
			ErrInsufficientData, period, spec, len(closes))
	}
	switch spec.Kind {
	case models.KindMA:
		return simpleMA(closes, period), nil
	case models.KindEMA:
		return expMA(closes, period), nil
	}
	return nil, fmt.Errorf("unknown indicator kind %q", spec.Kind)
}

func simpleMA(closes []float64, period int) []float64 {
	out := make([]float64, 0, len(closes)-period+1)
	sum := 0.0
	for i, c := range closes {
		sum += c
		if i >= period {
			sum -= closes[i-period]
		}
		if i >= period-1 {
			out = append(out, sum/float64(period))
		}
	}
	return out
}

// expMA seeds the EMA with a simple average of the first period closes, the
// same convention the exchanges use for chart overlays.
func expMA(closes []float64, period int) []float64 {
	out := make([]float64, 0, len(closes)-period+1)
	seed := 0.0
	for _, c := range closes[:period] {
		seed += c
	}
	ema := seed / float64(period)
	out = append(out, ema)

	k := 2.0 / (float64(period) + 1.0)
	for _, c := range closes[period:] {
		ema = (c-ema)*k + ema
		out = append(out, ema)
	}
	return out
}

// BuildSnapshot evaluates one spec against the closes and classifies the last
// closed price relative to it. The support/resistance label is only computed
// when the current reading is already "at" the indicator.
func BuildSnapshot(closes []float64, spec models.IndicatorSpec) (models.SignalSnapshot, error) {
	series, err := Evaluate(closes, spec)
	if err != nil {
		return models.SignalSnapshot{}, err
	}
	price := closes[len(closes)-1]
	value := series[len(series)-1]
	if value == 0 {
		return models.SignalSnapshot{}, fmt.Errorf("zero indicator value for %s", spec)
	}
	threshold := AtThreshold(spec.Timeframe)
	diff := (price - value) / value

	snap := models.SignalSnapshot{
		Price:          price,
		IndicatorValue: value,
		AboveIndicator: price > value,
		BelowIndicator: price < value,
		AtIndicator:    math.Abs(diff) <= threshold,
		DiffPercent:    diff * 100,
	}
	if snap.AtIndicator {
		snap.SupportResistance = ClassifySR(tail(closes, 4), tail(series, 4), threshold)
	}
	return snap, nil
}

// BuildClusterSnapshot evaluates the EMA 13/25/32 trend cluster on one
// timeframe and classifies price against the cluster band.
func BuildClusterSnapshot(closes []float64, tf models.Timeframe) (models.SignalSnapshot, error) {
	series := make([][]float64, 0, len(models.ClusterPeriods))
	for _, p := range models.ClusterPeriods {
		spec := models.IndicatorSpec{Timeframe: tf, Kind: models.KindEMA, Period: p}
		s, err := Evaluate(closes, spec)
		if err != nil {
			return models.SignalSnapshot{}, err
		}
		series = append(series, s)
	}

	price := closes[len(closes)-1]
	lo, hi := clusterBand(series, 0)
	mid := (lo + hi) / 2
	threshold := AtThreshold(tf)

	snap := models.SignalSnapshot{
		Price:          price,
		IndicatorValue: mid,
		DiffPercent:    (price - mid) / mid * 100,
		IsCluster:      true,
		ClusterMin:     lo,
		ClusterMax:     hi,
		ClusterMid:     mid,
		AboveCluster:   price > hi*(1+threshold),
		BelowCluster:   price < lo*(1-threshold),
	}
	snap.AtCluster = !snap.AboveCluster && !snap.BelowCluster
	snap.AboveIndicator = snap.AboveCluster
	snap.BelowIndicator = snap.BelowCluster
	snap.AtIndicator = snap.AtCluster

	if snap.AtCluster {
		snap.SupportResistance = classifyClusterSR(closes, series, threshold)
	}
	return snap, nil
}

// clusterBand returns the min and max of the three EMA series at the given
// offset from the tail (0 = last closed candle).
func clusterBand(series [][]float64, back int) (lo, hi float64) {
	for i, s := range series {
		v := s[len(s)-1-back]
		if i == 0 || v < lo {
			lo = v
		}
		if i == 0 || v > hi {
			hi = v
		}
	}
	return lo, hi
}

func tail(s []float64, n int) []float64 {
	if len(s) < n {
		return s
	}
	return s[len(s)-n:]
}
