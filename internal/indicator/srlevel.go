package indicator

import "github.com/Alias1177/Screener/models"

// ClassifySR labels a current "at indicator" reading as a support or
// resistance test by looking at the 3 candles immediately preceding it.
// Support means price cleanly approached the indicator from above on all
// three; resistance means a clean approach from below. A mixed history is
// whipsaw, not a real test, and yields no label.
//
// prices and values must be tail-aligned; at least 4 points of each are
// needed, otherwise no label is returned.
func ClassifySR(prices, values []float64, threshold float64) models.SRLabel {
	if len(prices) < 4 || len(values) < 4 {
		return models.SRNone
	}
	fromAbove, fromBelow := true, true
	for back := 1; back <= 3; back++ {
		p := prices[len(prices)-1-back]
		v := values[len(values)-1-back]
		if v == 0 {
			return models.SRNone
		}
		d := (p - v) / v
		if d <= threshold {
			fromAbove = false
		}
		if d >= -threshold {
			fromBelow = false
		}
	}
	switch {
	case fromAbove:
		return models.SRSupport
	case fromBelow:
		return models.SRResistance
	}
	return models.SRNone
}

// classifyClusterSR applies the same 3-candle test to a trend cluster, using
// the cluster top for the approach-from-above case and the cluster bottom for
// the approach-from-below case.
func classifyClusterSR(closes []float64, series [][]float64, threshold float64) models.SRLabel {
	if len(closes) < 4 {
		return models.SRNone
	}
	for _, s := range series {
		if len(s) < 4 {
			return models.SRNone
		}
	}
	fromAbove, fromBelow := true, true
	for back := 1; back <= 3; back++ {
		p := closes[len(closes)-1-back]
		lo, hi := clusterBand(series, back)
		if lo == 0 || hi == 0 {
			return models.SRNone
		}
		if (p-hi)/hi <= threshold {
			fromAbove = false
		}
		if (p-lo)/lo >= -threshold {
			fromBelow = false
		}
	}
	switch {
	case fromAbove:
		return models.SRSupport
	case fromBelow:
		return models.SRResistance
	}
	return models.SRNone
}
