// Package screener runs parsed queries across the symbol universe. Per-symbol
// work is independent and fans out concurrently; a symbol that fails to
// produce any snapshot is dropped from the results, never aborting the batch.
package screener

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/Screener/internal/indicator"
	"github.com/Alias1177/Screener/internal/match"
	"github.com/Alias1177/Screener/internal/queryparse"
	"github.com/Alias1177/Screener/models"
)

// srHistory is the extra closed candles fetched beyond the warm-up so the
// support/resistance classifier has its 3 preceding readings.
const srHistory = 3

// Service evaluates free-text queries against the ranked symbol universe.
type Service struct {
	candles      models.CandleProvider
	symbols      models.SymbolProvider
	symbolLimit  int
	concurrency  int
	fetchTimeout time.Duration
	logger       zerolog.Logger
}

// New creates a screener over the given collaborators. symbolLimit caps how
// many ranked symbols a query scans.
func New(candles models.CandleProvider, symbols models.SymbolProvider, symbolLimit int) *Service {
	return &Service{
		candles:      candles,
		symbols:      symbols,
		symbolLimit:  symbolLimit,
		concurrency:  10,
		fetchTimeout: 20 * time.Second,
		logger:       log.With().Str("component", "screener").Logger(),
	}
}

// Result is the outcome of one query run.
type Result struct {
	Query   models.Query                   `json:"query"`
	Matched []string                       `json:"matched"`
	Signals map[string]models.SymbolSignal `json:"signals"`
}

// Run parses, validates and executes a query. Validation problems are
// returned to the caller as strings, not errors; only universe failures are
// errors.
func (s *Service) Run(ctx context.Context, text string) (*Result, []string, error) {
	q := queryparse.Parse(text)
	if problems := queryparse.Validate(q); len(problems) > 0 {
		return nil, problems, nil
	}

	symbols, err := s.symbols.GetRankedSymbols(ctx, s.symbolLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching symbol universe: %w", err)
	}

	signals := s.BuildSignals(ctx, symbols, q)
	return RunQuery(q, signals), nil, nil
}

// RunQuery applies an already-parsed query to precomputed signals. Pure; the
// presentation layer shapes the result.
func RunQuery(q models.Query, signals []models.SymbolSignal) *Result {
	res := &Result{Query: q, Signals: make(map[string]models.SymbolSignal, len(signals))}
	for _, sig := range signals {
		res.Signals[sig.Symbol] = sig
		if match.Matches(sig, q) {
			res.Matched = append(res.Matched, sig.Symbol)
		}
	}
	return res
}

// BuildSignals computes a SymbolSignal for every symbol concurrently,
// preserving the ranked order. Symbols whose every spec fails are omitted.
func (s *Service) BuildSignals(ctx context.Context, symbols []string, q models.Query) []models.SymbolSignal {
	specs := q.Specs()
	clusterTFs := clusterTimeframes(q)

	results := make([]*models.SymbolSignal, len(symbols))
	var wg sync.WaitGroup
	sem := make(chan struct{}, s.concurrency)

	for i, symbol := range symbols {
		wg.Add(1)
		go func(i int, symbol string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
			defer cancel()

			sig := s.buildSymbolSignal(fetchCtx, symbol, specs, clusterTFs)
			if sig != nil {
				results[i] = sig
			}
		}(i, symbol)
	}
	wg.Wait()

	out := make([]models.SymbolSignal, 0, len(symbols))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

// buildSymbolSignal fetches candles once per timeframe and evaluates every
// spec. Individual spec failures are logged and skipped; nil is returned only
// when nothing at all could be computed.
func (s *Service) buildSymbolSignal(ctx context.Context, symbol string, specs []models.IndicatorSpec, clusterTFs map[models.Timeframe]bool) *models.SymbolSignal {
	counts := make(map[models.Timeframe]int)
	for _, spec := range specs {
		need := indicator.RequiredCandles(spec) + srHistory
		if need > counts[spec.Timeframe] {
			counts[spec.Timeframe] = need
		}
	}

	closesByTF := make(map[models.Timeframe][]float64, len(counts))
	for tf, count := range counts {
		candles, err := s.candles.GetClosedCandles(ctx, symbol, tf, count)
		if err != nil {
			s.logger.Debug().Err(err).Str("symbol", symbol).Str("timeframe", string(tf)).Msg("candle fetch failed")
			continue
		}
		closes := make([]float64, len(candles))
		for i, c := range candles {
			closes[i] = c.Close
		}
		closesByTF[tf] = closes
	}
	if len(closesByTF) == 0 {
		return nil
	}

	sig := &models.SymbolSignal{
		Symbol:    symbol,
		Snapshots: make(map[models.IndicatorSpec]models.SignalSnapshot, len(specs)),
	}
	for _, spec := range specs {
		closes, ok := closesByTF[spec.Timeframe]
		if !ok {
			continue
		}
		snap, err := indicator.BuildSnapshot(closes, spec)
		if err != nil {
			s.logger.Debug().Err(err).Str("symbol", symbol).Str("spec", spec.String()).Msg("snapshot skipped")
			continue
		}
		sig.Snapshots[spec] = snap
	}

	// Cluster timeframes get one band classification shared by the three
	// member specs.
	for tf := range clusterTFs {
		closes, ok := closesByTF[tf]
		if !ok {
			continue
		}
		snap, err := indicator.BuildClusterSnapshot(closes, tf)
		if err != nil {
			s.logger.Debug().Err(err).Str("symbol", symbol).Str("timeframe", string(tf)).Msg("cluster snapshot skipped")
			continue
		}
		for _, p := range models.ClusterPeriods {
			member := models.IndicatorSpec{Timeframe: tf, Kind: models.KindEMA, Period: p}
			sig.Snapshots[member] = snap
		}
	}

	if len(sig.Snapshots) == 0 {
		return nil
	}
	sig.Price = freshestPrice(closesByTF)
	return sig
}

func clusterTimeframes(q models.Query) map[models.Timeframe]bool {
	tfs := make(map[models.Timeframe]bool)
	for _, c := range q.Conditions {
		if c.ClusterMember {
			tfs[c.ClusterTimeframe] = true
		}
	}
	return tfs
}

// freshestPrice takes the last close of the shortest fetched timeframe.
func freshestPrice(closesByTF map[models.Timeframe][]float64) float64 {
	var best models.Timeframe
	for tf := range closesByTF {
		if best == "" || tf.Duration() < best.Duration() {
			best = tf
		}
	}
	closes := closesByTF[best]
	if len(closes) == 0 {
		return 0
	}
	return closes[len(closes)-1]
}
