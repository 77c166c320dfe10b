package queryparse

import (
	"testing"

	"github.com/Alias1177/Screener/models"
)

func TestParseSingleCondition(t *testing.T) {
	q := Parse("4hEMA200 volume>5M")
	if q.Positional != nil {
		t.Fatalf("expected independent conditions, got positional %+v", q.Positional)
	}
	if len(q.Conditions) != 1 {
		t.Fatalf("conditions = %d, want 1 (%+v)", len(q.Conditions), q.Conditions)
	}
	c := q.Conditions[0]
	want := models.IndicatorSpec{Timeframe: models.Timeframe4h, Kind: models.KindEMA, Period: 200}
	if c.Spec != want {
		t.Errorf("spec = %v, want %v", c.Spec, want)
	}
	if c.Comparison != models.CompAbove {
		t.Errorf("comparison = %q, want above", c.Comparison)
	}
	if q.Combinator != models.CombinatorAnd {
		t.Errorf("combinator = %q, want AND", q.Combinator)
	}
}

func TestParseOrderChain(t *testing.T) {
	q := Parse("1d MA100 < EMA200 < MA300")
	p := q.Positional
	if p == nil || p.Kind != models.PositionalOrder {
		t.Fatalf("expected order relationship, got %+v", q)
	}
	if len(p.Indicators) != 3 {
		t.Fatalf("indicators = %d, want 3", len(p.Indicators))
	}
	if p.Direction != models.OrderAscending {
		t.Errorf("direction = %q, want ascending", p.Direction)
	}
	if p.IncludePrice {
		t.Error("price should not be part of the chain")
	}
	if len(q.Conditions) != 0 {
		t.Error("positional query must not carry independent conditions")
	}
	// All three inherit the document-wide 1d timeframe.
	for _, s := range p.Indicators {
		if s.Timeframe != models.Timeframe1d {
			t.Errorf("indicator %v should inherit 1d", s)
		}
	}
}

func TestParseOrderWithPrice(t *testing.T) {
	q := Parse("price < 4h ema13 < 4h ema25")
	p := q.Positional
	if p == nil || p.Kind != models.PositionalOrder {
		t.Fatalf("expected order relationship, got %+v", q)
	}
	if !p.IncludePrice {
		t.Fatal("price should be included in the chain")
	}
	if p.PricePosition == nil || *p.PricePosition != 0 {
		t.Fatalf("price position = %v, want 0", p.PricePosition)
	}
}

func TestParseOrderTieBreak(t *testing.T) {
	// "<" wins over ">" when both appear.
	q := Parse("4h ema13 < ema25 > ema32")
	if q.Positional == nil || q.Positional.Direction != models.OrderAscending {
		t.Fatalf("expected ascending order, got %+v", q.Positional)
	}

	q = Parse("descending 1d ema13 ema25 ema32")
	if q.Positional == nil || q.Positional.Direction != models.OrderDescending {
		t.Fatalf("expected descending order, got %+v", q.Positional)
	}
}

func TestParsePriceBetween(t *testing.T) {
	q := Parse("price between 4h MA100 and 1d EMA200")
	p := q.Positional
	if p == nil || p.Kind != models.PositionalPriceBetween {
		t.Fatalf("expected price-between relationship, got %+v", q)
	}
	wantLower := models.IndicatorSpec{Timeframe: models.Timeframe4h, Kind: models.KindMA, Period: 100}
	wantUpper := models.IndicatorSpec{Timeframe: models.Timeframe1d, Kind: models.KindEMA, Period: 200}
	if p.Lower != wantLower || p.Upper != wantUpper {
		t.Errorf("bounds = %v / %v, want %v / %v", p.Lower, p.Upper, wantLower, wantUpper)
	}
}

func TestParsePriceBetweenWinsOverThreeMentions(t *testing.T) {
	// An explicit "price" keeps this a price test even though three
	// indicators are mentioned; the first never becomes the target.
	q := Parse("price between 4h MA100 and 1d EMA200 and 1d MA300")
	p := q.Positional
	if p == nil || p.Kind != models.PositionalPriceBetween {
		t.Fatalf("expected price-between relationship, got %+v", q)
	}
	wantLower := models.IndicatorSpec{Timeframe: models.Timeframe4h, Kind: models.KindMA, Period: 100}
	wantUpper := models.IndicatorSpec{Timeframe: models.Timeframe1d, Kind: models.KindEMA, Period: 200}
	if p.Lower != wantLower || p.Upper != wantUpper {
		t.Errorf("bounds = %v / %v, want %v / %v", p.Lower, p.Upper, wantLower, wantUpper)
	}
}

func TestParseBetweenThreeIndicators(t *testing.T) {
	q := Parse("1d EMA200 between MA100 and MA300")
	p := q.Positional
	if p == nil || p.Kind != models.PositionalBetween {
		t.Fatalf("expected between relationship, got %+v", q)
	}
	if p.Target.Period != 200 || p.Lower.Period != 100 || p.Upper.Period != 300 {
		t.Errorf("unexpected target/bounds: %+v", p)
	}
}

func TestParseComparisonRelationship(t *testing.T) {
	q := Parse("4h ema200 above 1d ma100")
	p := q.Positional
	if p == nil || p.Kind != models.PositionalComparison {
		t.Fatalf("expected comparison relationship, got %+v", q)
	}
	if p.Op != models.CompAbove {
		t.Errorf("op = %q, want above", p.Op)
	}
	if p.Target.Period != 200 || p.Reference.Period != 100 {
		t.Errorf("unexpected target/reference: %+v", p)
	}
}

func TestScreenKeywordSuppressesComparison(t *testing.T) {
	// A screening phrase with two mentions stays on the conditions path.
	q := Parse("show coins above 4h ema200 and below 1d ma100")
	if q.Positional != nil {
		t.Fatalf("expected conditions, got positional %+v", q.Positional)
	}
	if len(q.Conditions) != 2 {
		t.Fatalf("conditions = %d, want 2", len(q.Conditions))
	}
	if q.Conditions[0].Comparison != models.CompAbove {
		t.Errorf("first comparison = %q, want above", q.Conditions[0].Comparison)
	}
	if q.Conditions[1].Comparison != models.CompBelow {
		t.Errorf("second comparison = %q, want below", q.Conditions[1].Comparison)
	}
}

func TestParseOrCombinator(t *testing.T) {
	q := Parse("coins below 4h ema13 or below 4h ema25")
	if q.Combinator != models.CombinatorOr {
		t.Fatalf("combinator = %q, want OR", q.Combinator)
	}
	if len(q.Conditions) != 2 {
		t.Fatalf("conditions = %d, want 2", len(q.Conditions))
	}
}

func TestParseTrendCluster(t *testing.T) {
	q := Parse("coins above 4h trend")
	if len(q.Conditions) != 3 {
		t.Fatalf("conditions = %d, want the 3 cluster members", len(q.Conditions))
	}
	for i, c := range q.Conditions {
		if !c.ClusterMember || c.ClusterTimeframe != models.Timeframe4h {
			t.Errorf("condition %d should be a 4h cluster member: %+v", i, c)
		}
		if c.Spec.Kind != models.KindEMA || c.Spec.Period != models.ClusterPeriods[i] {
			t.Errorf("condition %d spec = %v, want EMA%d", i, c.Spec, models.ClusterPeriods[i])
		}
		if c.Comparison != models.CompAbove {
			t.Errorf("condition %d comparison = %q, want above", i, c.Comparison)
		}
	}
	if problems := Validate(q); len(problems) != 0 {
		t.Errorf("cluster query should validate, got %v", problems)
	}
}

func TestParseSupportFilter(t *testing.T) {
	q := Parse("coins at 1d ema200 as support")
	if len(q.Conditions) != 1 {
		t.Fatalf("conditions = %d, want 1", len(q.Conditions))
	}
	c := q.Conditions[0]
	if c.SRFilter != models.SRSupport {
		t.Errorf("sr filter = %q, want support", c.SRFilter)
	}
	if c.Comparison != models.CompAt {
		t.Errorf("comparison = %q, want at (forced by support keyword)", c.Comparison)
	}
}

func TestInvalidPeriodDiscarded(t *testing.T) {
	q := Parse("coins above 4h ema50 and above 4h ema200")
	if len(q.Conditions) != 1 {
		t.Fatalf("conditions = %d, want 1 (ema50 is not a valid period)", len(q.Conditions))
	}
	if q.Conditions[0].Spec.Period != 200 {
		t.Errorf("surviving period = %d, want 200", q.Conditions[0].Spec.Period)
	}
}

func TestDefaultTimeframe(t *testing.T) {
	q := Parse("coins above ema200")
	if len(q.Conditions) != 1 {
		t.Fatalf("conditions = %d, want 1", len(q.Conditions))
	}
	if q.Conditions[0].Spec.Timeframe != models.Timeframe1d {
		t.Errorf("timeframe = %q, want 1d default", q.Conditions[0].Spec.Timeframe)
	}

	q = Parse("weekly ma100 and ma300")
	for _, c := range q.Conditions {
		if c.Spec.Timeframe != models.Timeframe1w {
			t.Errorf("timeframe = %q, want 1w from the weekly alias", c.Spec.Timeframe)
		}
	}
}

func TestLessThanOverridesWords(t *testing.T) {
	// "<" always implies below for its part, even next to an "above" word.
	q := Parse("coins above 4h ema200 < something")
	if len(q.Conditions) != 1 {
		t.Fatalf("conditions = %d, want 1", len(q.Conditions))
	}
	if q.Conditions[0].Comparison != models.CompBelow {
		t.Errorf("comparison = %q, want below (\"<\" override)", q.Conditions[0].Comparison)
	}
}

func TestValidateEmptyQuery(t *testing.T) {
	q := Parse("what is the meaning of life")
	problems := Validate(q)
	if len(problems) == 0 {
		t.Fatal("nonsense text should fail validation")
	}
}
