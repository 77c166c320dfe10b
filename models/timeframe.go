package models

import "time"

// Timeframe is one of the fixed candle intervals the screener understands.
type Timeframe string

const (
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
	Timeframe2h  Timeframe = "2h"
	Timeframe4h  Timeframe = "4h"
	Timeframe12h Timeframe = "12h"
	Timeframe1d  Timeframe = "1d"
	Timeframe3d  Timeframe = "3d"
	Timeframe1w  Timeframe = "1w"
)

// Timeframes lists all supported intervals, shortest first.
var Timeframes = []Timeframe{
	Timeframe15m, Timeframe1h, Timeframe2h, Timeframe4h,
	Timeframe12h, Timeframe1d, Timeframe3d, Timeframe1w,
}

// TimeframeAliases maps word aliases accepted in query text to their codes.
var TimeframeAliases = map[string]Timeframe{
	"hourly": Timeframe1h,
	"daily":  Timeframe1d,
	"weekly": Timeframe1w,
}

// DefaultTimeframe is used when query text mentions no interval at all.
const DefaultTimeframe = Timeframe1d

// Valid reports whether t is one of the supported intervals.
func (t Timeframe) Valid() bool {
	for _, tf := range Timeframes {
		if t == tf {
			return true
		}
	}
	return false
}

// Duration returns the candle length of the timeframe.
func (t Timeframe) Duration() time.Duration {
	switch t {
	case Timeframe15m:
		return 15 * time.Minute
	case Timeframe1h:
		return time.Hour
	case Timeframe2h:
		return 2 * time.Hour
	case Timeframe4h:
		return 4 * time.Hour
	case Timeframe12h:
		return 12 * time.Hour
	case Timeframe1d:
		return 24 * time.Hour
	case Timeframe3d:
		return 72 * time.Hour
	case Timeframe1w:
		return 7 * 24 * time.Hour
	}
	return 0
}
