// Package queryparse turns free-form trading shorthand into a structured
// Query. Parsing is total: malformed input yields a best-effort partial Query
// and Validate reports what is missing, nothing ever panics.
package queryparse

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Alias1177/Screener/models"
)

var (
	orWord        = regexp.MustCompile(`(?i)\bor\b`)
	andWord       = regexp.MustCompile(`(?i)\band\b`)
	trendWord     = regexp.MustCompile(`(?i)\btrend\b`)
	screenWord    = regexp.MustCompile(`(?i)\b(coins?|show|find|list)\b`)
	posCompWord   = regexp.MustCompile(`(?i)\b(above|below|over|under)\b`)
	belowWord     = regexp.MustCompile(`(?i)\b(below|under)\b`)
	aboveWord     = regexp.MustCompile(`(?i)\b(above|over)\b`)
	supportWord   = regexp.MustCompile(`(?i)\b(as\s+)?support\b`)
	resistWord    = regexp.MustCompile(`(?i)\b(as\s+)?resistance\b`)
	ascendingWord = regexp.MustCompile(`(?i)\bascending\b`)
	descendWord   = regexp.MustCompile(`(?i)\bdescending\b`)
)

// Parse interprets query text. Positional relationships are detected first;
// if one is found the independent-conditions path is skipped entirely, so a
// Query is always one shape or the other, never both.
func Parse(text string) models.Query {
	defaultTF := scanTimeframe(text)
	mentions := resolveMentions(extractMentions(text), defaultTF)

	if pos := detectPositional(text, mentions); pos != nil {
		return models.Query{Combinator: models.CombinatorAnd, Positional: pos}
	}
	return parseConditions(text, defaultTF)
}

// FirstSpec extracts the first valid indicator mention from text, applying
// the document-wide default timeframe. Used by the alert command surface,
// which wants a single indicator rather than a whole query.
func FirstSpec(text string) (models.IndicatorSpec, bool) {
	mentions := resolveMentions(extractMentions(text), scanTimeframe(text))
	if len(mentions) == 0 {
		return models.IndicatorSpec{}, false
	}
	return mentions[0].spec, true
}

// QueryTimeframe returns the first timeframe mentioned in text, or the
// default. Trend alerts carry a timeframe but no indicator mention.
func QueryTimeframe(text string) models.Timeframe {
	return scanTimeframe(text)
}

// Validate reports everything that makes the query unusable.
func Validate(q models.Query) []string {
	var problems []string
	if q.Positional == nil && len(q.Conditions) == 0 {
		problems = append(problems, "no indicator conditions recognized; mention a timeframe and MA/EMA period, e.g. \"4h EMA200\"")
	}
	if p := q.Positional; p != nil && p.Kind == models.PositionalOrder && len(p.Indicators) < 2 {
		problems = append(problems, "an ordering needs at least two indicators")
	}
	// Cluster members always travel in triples sharing one timeframe.
	perTF := make(map[models.Timeframe]int)
	for _, c := range q.Conditions {
		if c.ClusterMember {
			perTF[c.ClusterTimeframe]++
		}
	}
	for tf, n := range perTF {
		if n != len(models.ClusterPeriods) {
			problems = append(problems, fmt.Sprintf("incomplete %s trend cluster", tf))
		}
	}
	return problems
}

func resolveMentions(mentions []mention, defaultTF models.Timeframe) []mention {
	out := make([]mention, len(mentions))
	for i, m := range mentions {
		if !m.hasTF {
			m.spec.Timeframe = defaultTF
		}
		out[i] = m
	}
	return out
}

// detectPositional checks, in priority order, for the between, ordering and
// comparison shapes. Returns nil when the text is an ordinary condition list.
func detectPositional(text string, mentions []mention) *models.PositionalRelationship {
	lower := strings.ToLower(text)

	if strings.Contains(lower, "between") {
		// An explicit "price" makes it a price test no matter how many
		// indicators the text goes on to mention.
		switch {
		case pricePattern.MatchString(text) && len(mentions) >= 2:
			return &models.PositionalRelationship{
				Kind:  models.PositionalPriceBetween,
				Lower: mentions[0].spec,
				Upper: mentions[1].spec,
			}
		case len(mentions) >= 3:
			return &models.PositionalRelationship{
				Kind:   models.PositionalBetween,
				Target: mentions[0].spec,
				Lower:  mentions[1].spec,
				Upper:  mentions[2].spec,
			}
		case len(mentions) == 2:
			return &models.PositionalRelationship{
				Kind:  models.PositionalPriceBetween,
				Lower: mentions[0].spec,
				Upper: mentions[1].spec,
			}
		}
		return nil
	}

	hasOrderToken := strings.ContainsAny(text, "<>") ||
		ascendingWord.MatchString(text) || descendWord.MatchString(text)
	if hasOrderToken && len(mentions) >= 2 {
		return orderRelationship(text, mentions)
	}

	if len(mentions) >= 2 && !screenWord.MatchString(text) && posCompWord.MatchString(text) {
		op := models.CompAbove
		if belowWord.MatchString(text) {
			op = models.CompBelow
		}
		return &models.PositionalRelationship{
			Kind:      models.PositionalComparison,
			Target:    mentions[0].spec,
			Reference: mentions[1].spec,
			Op:        op,
		}
	}
	return nil
}

func orderRelationship(text string, mentions []mention) *models.PositionalRelationship {
	// "<" or "ascending" wins over ">"/"descending" when both appear.
	direction := models.OrderDescending
	if strings.Contains(text, "<") || ascendingWord.MatchString(text) {
		direction = models.OrderAscending
	} else if !strings.Contains(text, ">") && !descendWord.MatchString(text) {
		direction = models.OrderAscending
	}

	rel := &models.PositionalRelationship{
		Kind:      models.PositionalOrder,
		Direction: direction,
	}
	for _, m := range mentions {
		rel.Indicators = append(rel.Indicators, m.spec)
	}

	if loc := pricePattern.FindStringIndex(text); loc != nil {
		rel.IncludePrice = true
		// With an explicit <,> chain, price's slot is how many indicators
		// precede it in the chain text. Word-style orderings ("ascending")
		// leave the slot unspecified and any interior gap is accepted.
		if strings.ContainsAny(text, "<>") {
			slot := 0
			for _, m := range mentions {
				if m.start < loc[0] {
					slot++
				}
			}
			rel.PricePosition = &slot
		}
	}
	return rel
}

func parseConditions(text string, defaultTF models.Timeframe) models.Query {
	q := models.Query{Combinator: models.CombinatorAnd}

	srFilter := models.SRNone
	switch {
	case supportWord.MatchString(text):
		srFilter = models.SRSupport
	case resistWord.MatchString(text):
		srFilter = models.SRResistance
	}

	split := andWord
	if orWord.MatchString(text) {
		q.Combinator = models.CombinatorOr
		split = orWord
	}

	for _, part := range split.Split(text, -1) {
		cmp := partComparison(part, srFilter)
		for _, m := range resolveMentions(extractMentions(part), defaultTF) {
			q.Conditions = append(q.Conditions, models.IndicatorCondition{
				Spec:       m.spec,
				Comparison: cmp,
				SRFilter:   srFilter,
			})
		}
	}

	if trendWord.MatchString(text) {
		tf := defaultTF
		cmp := partComparison(text, srFilter)
		for _, p := range models.ClusterPeriods {
			q.Conditions = append(q.Conditions, models.IndicatorCondition{
				Spec:             models.IndicatorSpec{Timeframe: tf, Kind: models.KindEMA, Period: p},
				Comparison:       cmp,
				SRFilter:         srFilter,
				ClusterMember:    true,
				ClusterTimeframe: tf,
			})
		}
	}
	return q
}

// partComparison picks the comparison for one AND/OR part. Defaults to above;
// a below/under word flips it; ">" flips back; "<" always means below no
// matter what else the part says. A support/resistance keyword forces "at"
// unless an explicit direction word overrode it.
func partComparison(part string, srFilter models.SRLabel) models.Comparison {
	cmp := models.CompAbove
	explicit := false
	if aboveWord.MatchString(part) {
		cmp = models.CompAbove
		explicit = true
	}
	if belowWord.MatchString(part) {
		cmp = models.CompBelow
		explicit = true
	}
	if strings.Contains(part, ">") {
		cmp = models.CompAbove
		explicit = true
	}
	if strings.Contains(part, "<") {
		cmp = models.CompBelow
		explicit = true
	}
	if srFilter != models.SRNone && !explicit {
		cmp = models.CompAt
	}
	return cmp
}
