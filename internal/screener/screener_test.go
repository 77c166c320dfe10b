package screener

import (
	"context"
	"errors"
	"testing"

	"github.com/Alias1177/Screener/models"
)

// fakeCandles serves a fixed flat series per symbol and can fail selectively.
type fakeCandles struct {
	fail   map[string]bool
	closes map[string]float64 // last close per symbol, earlier candles flat at 100
}

func (f *fakeCandles) GetClosedCandles(ctx context.Context, symbol string, tf models.Timeframe, count int) ([]models.Candle, error) {
	if f.fail[symbol] {
		return nil, errors.New("upstream unavailable")
	}
	out := make([]models.Candle, count)
	for i := range out {
		out[i].Close = 100
	}
	if last, ok := f.closes[symbol]; ok {
		out[count-1].Close = last
	}
	return out, nil
}

type fakeSymbols struct{ list []string }

func (f *fakeSymbols) GetRankedSymbols(ctx context.Context, limit int) ([]string, error) {
	return f.list, nil
}

func TestRunMatchesAboveCondition(t *testing.T) {
	candles := &fakeCandles{
		closes: map[string]float64{"BTCUSDT": 150, "ETHUSDT": 50},
	}
	symbols := &fakeSymbols{list: []string{"BTCUSDT", "ETHUSDT"}}
	s := New(candles, symbols, 10)

	res, problems, err := s.Run(context.Background(), "coins above 1d ema200")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(problems) != 0 {
		t.Fatalf("unexpected validation problems: %v", problems)
	}
	if len(res.Matched) != 1 || res.Matched[0] != "BTCUSDT" {
		t.Fatalf("matched = %v, want [BTCUSDT]", res.Matched)
	}
	if _, ok := res.Signals["ETHUSDT"]; !ok {
		t.Error("non-matching symbols still get per-symbol detail")
	}
}

func TestRunValidationFailure(t *testing.T) {
	s := New(&fakeCandles{}, &fakeSymbols{list: []string{"BTCUSDT"}}, 10)
	res, problems, err := s.Run(context.Background(), "hello there")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res != nil {
		t.Error("unusable query should produce no result")
	}
	if len(problems) == 0 {
		t.Error("unusable query should report validation problems")
	}
}

func TestBuildSignalsSkipsFailingSymbol(t *testing.T) {
	candles := &fakeCandles{
		fail:   map[string]bool{"DOWNUSDT": true},
		closes: map[string]float64{"BTCUSDT": 150},
	}
	s := New(candles, &fakeSymbols{}, 10)
	q := models.Query{
		Combinator: models.CombinatorAnd,
		Conditions: []models.IndicatorCondition{{
			Spec:       models.IndicatorSpec{Timeframe: models.Timeframe1d, Kind: models.KindEMA, Period: 13},
			Comparison: models.CompAbove,
		}},
	}

	signals := s.BuildSignals(context.Background(), []string{"DOWNUSDT", "BTCUSDT"}, q)
	if len(signals) != 1 {
		t.Fatalf("signals = %d, want 1 (failing symbol dropped, batch intact)", len(signals))
	}
	if signals[0].Symbol != "BTCUSDT" {
		t.Errorf("surviving symbol = %q, want BTCUSDT", signals[0].Symbol)
	}
}

func TestBuildSignalsClusterQuery(t *testing.T) {
	candles := &fakeCandles{closes: map[string]float64{"BTCUSDT": 150}}
	s := New(candles, &fakeSymbols{}, 10)

	var conds []models.IndicatorCondition
	for _, p := range models.ClusterPeriods {
		conds = append(conds, models.IndicatorCondition{
			Spec:             models.IndicatorSpec{Timeframe: models.Timeframe4h, Kind: models.KindEMA, Period: p},
			Comparison:       models.CompAbove,
			ClusterMember:    true,
			ClusterTimeframe: models.Timeframe4h,
		})
	}
	q := models.Query{Combinator: models.CombinatorAnd, Conditions: conds}

	signals := s.BuildSignals(context.Background(), []string{"BTCUSDT"}, q)
	if len(signals) != 1 {
		t.Fatalf("signals = %d, want 1", len(signals))
	}
	for _, c := range conds {
		snap, ok := signals[0].Snapshot(c.Spec)
		if !ok {
			t.Fatalf("missing cluster snapshot for %v", c.Spec)
		}
		if !snap.IsCluster {
			t.Errorf("snapshot for %v should be the cluster classification", c.Spec)
		}
		if !snap.AboveCluster {
			t.Errorf("price 150 over a flat 100 band should be above the cluster")
		}
	}

	res := RunQuery(q, signals)
	if len(res.Matched) != 1 {
		t.Errorf("matched = %v, want [BTCUSDT]", res.Matched)
	}
}
