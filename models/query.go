package models

import "fmt"

// IndicatorKind distinguishes simple from exponential moving averages.
type IndicatorKind string

const (
	KindMA  IndicatorKind = "MA"
	KindEMA IndicatorKind = "EMA"
)

// Valid periods per indicator kind. Mentions outside these sets are discarded
// by the parser rather than rejected.
var (
	MAPeriods  = []int{100, 300}
	EMAPeriods = []int{13, 25, 32, 200}
)

// ClusterPeriods are the EMA periods that make up a trend cluster.
var ClusterPeriods = []int{13, 25, 32}

// IndicatorSpec identifies one moving average on one timeframe.
// It is an immutable value type; validity is enum membership.
type IndicatorSpec struct {
	Timeframe Timeframe     `json:"timeframe"`
	Kind      IndicatorKind `json:"kind"`
	Period    int           `json:"period"`
}

// Valid reports whether the spec's timeframe, kind and period are all in range.
func (s IndicatorSpec) Valid() bool {
	if !s.Timeframe.Valid() {
		return false
	}
	var periods []int
	switch s.Kind {
	case KindMA:
		periods = MAPeriods
	case KindEMA:
		periods = EMAPeriods
	default:
		return false
	}
	for _, p := range periods {
		if s.Period == p {
			return true
		}
	}
	return false
}

func (s IndicatorSpec) String() string {
	return fmt.Sprintf("%s %s%d", s.Timeframe, s.Kind, s.Period)
}

// Comparison is the relation between price and an indicator.
type Comparison string

const (
	CompAbove Comparison = "above"
	CompBelow Comparison = "below"
	CompAt    Comparison = "at"
)

// IndicatorCondition is one price-vs-indicator requirement in a query.
// Cluster members always come in groups of exactly three EMA conditions
// (periods 13/25/32) sharing ClusterTimeframe.
type IndicatorCondition struct {
	Spec             IndicatorSpec `json:"spec"`
	Comparison       Comparison    `json:"comparison"`
	SRFilter         SRLabel       `json:"sr_filter,omitempty"`
	ClusterMember    bool          `json:"cluster_member,omitempty"`
	ClusterTimeframe Timeframe     `json:"cluster_timeframe,omitempty"`
}

// Combinator joins independent conditions.
type Combinator string

const (
	CombinatorAnd Combinator = "AND"
	CombinatorOr  Combinator = "OR"
)

// PositionalKind tags the variants of PositionalRelationship.
type PositionalKind string

const (
	PositionalComparison   PositionalKind = "comparison"
	PositionalBetween      PositionalKind = "between"
	PositionalPriceBetween PositionalKind = "price_between"
	PositionalOrder        PositionalKind = "order"
)

// OrderDirection is the required monotonicity of an Order relationship.
type OrderDirection string

const (
	OrderAscending  OrderDirection = "ascending"
	OrderDescending OrderDirection = "descending"
)

// PositionalRelationship asks how indicators (and optionally price) sit
// relative to one another rather than each against price independently.
// Constructed once per query, immutable afterwards. Only the fields of the
// tagged variant are meaningful.
type PositionalRelationship struct {
	Kind PositionalKind `json:"kind"`

	// Comparison variant: target op reference.
	Target    IndicatorSpec `json:"target,omitempty"`
	Reference IndicatorSpec `json:"reference,omitempty"`
	Op        Comparison    `json:"op,omitempty"`

	// Between / PriceBetween variants. Between also uses Target.
	Lower IndicatorSpec `json:"lower,omitempty"`
	Upper IndicatorSpec `json:"upper,omitempty"`

	// Order variant.
	Indicators    []IndicatorSpec `json:"indicators,omitempty"`
	Direction     OrderDirection  `json:"direction,omitempty"`
	IncludePrice  bool            `json:"include_price,omitempty"`
	PricePosition *int            `json:"price_position,omitempty"`
}

// Query is the structured form of a free-text screener request. A query is
// either a list of independent conditions or purely a positional relationship;
// the parser never emits both.
type Query struct {
	Conditions []IndicatorCondition    `json:"conditions,omitempty"`
	Combinator Combinator              `json:"combinator"`
	Positional *PositionalRelationship `json:"positional,omitempty"`
}

// Specs returns every IndicatorSpec the query needs a value for.
func (q Query) Specs() []IndicatorSpec {
	seen := make(map[IndicatorSpec]bool)
	var specs []IndicatorSpec
	add := func(s IndicatorSpec) {
		if !seen[s] {
			seen[s] = true
			specs = append(specs, s)
		}
	}
	for _, c := range q.Conditions {
		add(c.Spec)
	}
	if p := q.Positional; p != nil {
		switch p.Kind {
		case PositionalComparison:
			add(p.Target)
			add(p.Reference)
		case PositionalBetween:
			add(p.Target)
			add(p.Lower)
			add(p.Upper)
		case PositionalPriceBetween:
			add(p.Lower)
			add(p.Upper)
		case PositionalOrder:
			for _, s := range p.Indicators {
				add(s)
			}
		}
	}
	return specs
}
