// Package match decides whether one symbol's computed signals satisfy a
// parsed query. It is pure: missing data means no match, never an error.
package match

import (
	"github.com/Alias1177/Screener/models"
)

// Matches applies the query to one symbol's signals.
func Matches(sig models.SymbolSignal, q models.Query) bool {
	if q.Positional != nil {
		return matchPositional(sig, *q.Positional)
	}
	if len(q.Conditions) == 0 {
		return false
	}
	for _, c := range q.Conditions {
		ok := matchCondition(sig, c)
		if q.Combinator == models.CombinatorOr {
			if ok {
				return true
			}
		} else if !ok {
			return false
		}
	}
	return q.Combinator != models.CombinatorOr
}

func matchCondition(sig models.SymbolSignal, c models.IndicatorCondition) bool {
	snap, ok := sig.Snapshot(c.Spec)
	if !ok {
		return false
	}
	above, below, at := snap.AboveIndicator, snap.BelowIndicator, snap.AtIndicator
	if c.ClusterMember {
		above, below, at = snap.AboveCluster, snap.BelowCluster, snap.AtCluster
	}
	switch c.Comparison {
	case models.CompAbove:
		if !above {
			return false
		}
	case models.CompBelow:
		if !below {
			return false
		}
	case models.CompAt:
		if !at {
			return false
		}
	default:
		return false
	}
	if c.SRFilter != models.SRNone && snap.SupportResistance != c.SRFilter {
		return false
	}
	return true
}

func matchPositional(sig models.SymbolSignal, p models.PositionalRelationship) bool {
	switch p.Kind {
	case models.PositionalComparison:
		target, ok1 := sig.Value(p.Target)
		ref, ok2 := sig.Value(p.Reference)
		if !ok1 || !ok2 {
			return false
		}
		if p.Op == models.CompBelow {
			return target < ref
		}
		return target > ref

	case models.PositionalBetween:
		target, ok := sig.Value(p.Target)
		if !ok {
			return false
		}
		return withinBounds(sig, p, target)

	case models.PositionalPriceBetween:
		return withinBounds(sig, p, sig.Price)

	case models.PositionalOrder:
		return matchOrder(sig, p)
	}
	return false
}

// withinBounds checks the inclusive [min, max] interval of the two bound
// indicators; the query's lower/upper labelling does not have to agree with
// the live values.
func withinBounds(sig models.SymbolSignal, p models.PositionalRelationship, v float64) bool {
	lower, ok1 := sig.Value(p.Lower)
	upper, ok2 := sig.Value(p.Upper)
	if !ok1 || !ok2 {
		return false
	}
	if lower > upper {
		lower, upper = upper, lower
	}
	return v >= lower && v <= upper
}

func matchOrder(sig models.SymbolSignal, p models.PositionalRelationship) bool {
	values := make([]float64, 0, len(p.Indicators))
	for _, spec := range p.Indicators {
		v, ok := sig.Value(spec)
		if !ok {
			return false
		}
		values = append(values, v)
	}
	if len(values) < 2 {
		return false
	}

	// Strict monotonicity in listed order; equality never satisfies.
	for i := 0; i+1 < len(values); i++ {
		if p.Direction == models.OrderDescending {
			if values[i] <= values[i+1] {
				return false
			}
		} else if values[i] >= values[i+1] {
			return false
		}
	}

	if !p.IncludePrice {
		return true
	}
	return priceInSlot(sig.Price, values, p.Direction, p.PricePosition)
}

// priceInSlot verifies price occupies its slot in the ordered chain. Slot 0
// and slot len(values) are the extremes and use strict inequality against the
// nearest value; an interior slot requires price strictly between its two
// flanking values. A nil slot accepts any interior gap.
func priceInSlot(price float64, values []float64, dir models.OrderDirection, slot *int) bool {
	inGap := func(i int) bool {
		if dir == models.OrderDescending {
			return values[i-1] > price && price > values[i]
		}
		return values[i-1] < price && price < values[i]
	}

	if slot == nil {
		for i := 1; i < len(values); i++ {
			if inGap(i) {
				return true
			}
		}
		return false
	}

	s := *slot
	switch {
	case s <= 0:
		if dir == models.OrderDescending {
			return price > values[0]
		}
		return price < values[0]
	case s >= len(values):
		if dir == models.OrderDescending {
			return price < values[len(values)-1]
		}
		return price > values[len(values)-1]
	default:
		return inGap(s)
	}
}
