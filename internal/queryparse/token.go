package queryparse

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Alias1177/Screener/models"
)

// mentionPattern matches one indicator token: an optional timeframe code or
// word alias, the MA/EMA kind and a period, with or without spacing
// ("4hEMA200", "1d MA100", "daily ema 200").
var mentionPattern = regexp.MustCompile(
	`(?i)(15m|1h|2h|4h|12h|1d|3d|1w|daily|hourly|weekly)?\s*(ema|ma)\s*(\d{1,3})`)

// timeframePattern finds any timeframe code or alias for the document-wide
// default. Deliberately loose: the grammar is trading shorthand, not prose.
var timeframePattern = regexp.MustCompile(
	`(?i)(15m|1h|2h|4h|12h|1d|3d|1w|daily|hourly|weekly)`)

var pricePattern = regexp.MustCompile(`(?i)\bprice\b`)

// mention is one extracted indicator token with its position in the text.
type mention struct {
	spec  models.IndicatorSpec
	hasTF bool
	start int
	end   int
}

func normalizeTimeframe(raw string) (models.Timeframe, bool) {
	if raw == "" {
		return "", false
	}
	low := strings.ToLower(raw)
	if tf, ok := models.TimeframeAliases[low]; ok {
		return tf, true
	}
	tf := models.Timeframe(low)
	return tf, tf.Valid()
}

// extractMentions returns every valid indicator mention in order of
// appearance. Mentions with a period outside the valid enum for their kind
// are silently discarded; the caller validates completeness at the end.
func extractMentions(text string) []mention {
	var out []mention
	for _, m := range mentionPattern.FindAllStringSubmatchIndex(text, -1) {
		var tfRaw, kindRaw, periodRaw string
		if m[2] >= 0 {
			tfRaw = text[m[2]:m[3]]
		}
		kindRaw = text[m[4]:m[5]]
		periodRaw = text[m[6]:m[7]]

		period, err := strconv.Atoi(periodRaw)
		if err != nil {
			continue
		}
		spec := models.IndicatorSpec{
			Kind:   models.IndicatorKind(strings.ToUpper(kindRaw)),
			Period: period,
		}
		tf, hasTF := normalizeTimeframe(tfRaw)
		if hasTF {
			spec.Timeframe = tf
		}
		if !validPeriod(spec.Kind, period) {
			continue
		}
		out = append(out, mention{spec: spec, hasTF: hasTF, start: m[0], end: m[1]})
	}
	return out
}

func validPeriod(kind models.IndicatorKind, period int) bool {
	var periods []int
	switch kind {
	case models.KindMA:
		periods = models.MAPeriods
	case models.KindEMA:
		periods = models.EMAPeriods
	}
	for _, p := range periods {
		if period == p {
			return true
		}
	}
	return false
}

// scanTimeframe returns the document-wide default timeframe: the first valid
// code or alias anywhere in the text, else 1d.
func scanTimeframe(text string) models.Timeframe {
	if m := timeframePattern.FindString(text); m != "" {
		if tf, ok := normalizeTimeframe(m); ok {
			return tf
		}
	}
	return models.DefaultTimeframe
}
