// Package alerts holds the standing alert set and re-evaluates it on a
// candle-aligned schedule. The engine exclusively owns the state and schedule
// fields of every alert; callers only supply definitions.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/Screener/internal/indicator"
	"github.com/Alias1177/Screener/models"
)

const (
	// notifyCap bounds how many qualifying symbols one any-coin alert may
	// report per cycle; the bot API is slow and fan-out must stay bounded.
	notifyCap = 5

	// anySymbolLimit is how deep into the ranked universe any-coin alerts look.
	anySymbolLimit = 100

	cycleTimeout = 4 * time.Minute
)

// srHistory mirrors the screener: extra candles so the S/R classifier has
// its preceding readings.
const srHistory = 3

// Engine evaluates alerts on its own clock. Cycles serialize on runMu, so a
// cycle never overlaps the next even across a schedule restart or an explicit
// RunCycle call. mu guards the alert map, the structs in it and the settings;
// cycles evaluate copies and merge state back under mu.
type Engine struct {
	store    models.ConfigStore
	candles  models.CandleProvider
	universe models.SymbolProvider
	notifier models.Notifier
	chatID   int64
	logger   zerolog.Logger
	now      func() time.Time

	runMu sync.Mutex

	mu       sync.Mutex
	alerts   map[string]*models.Alert
	settings models.EngineSettings
	running  bool
	stopCh   chan struct{}
}

// New creates the engine and loads persisted state. An unreadable store is
// not fatal: the engine starts with defaults and logs the problem.
func New(store models.ConfigStore, candles models.CandleProvider, universe models.SymbolProvider, notifier models.Notifier, chatID int64) *Engine {
	e := &Engine{
		store:    store,
		candles:  candles,
		universe: universe,
		notifier: notifier,
		chatID:   chatID,
		logger:   log.With().Str("component", "alert_engine").Logger(),
		now:      time.Now,
		alerts:   make(map[string]*models.Alert),
		settings: models.DefaultSettings(),
	}

	alerts, err := store.LoadAlerts()
	if err != nil {
		e.logger.Error().Err(err).Msg("alert store unreadable, starting empty")
	}
	for i := range alerts {
		a := alerts[i]
		e.alerts[a.ID] = &a
	}

	settings, err := store.LoadSettings()
	if err != nil {
		e.logger.Error().Err(err).Msg("settings unreadable, using defaults")
	} else {
		e.settings = settings
	}
	return e
}

// Start arms the alignment timer and begins the evaluation loop.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}
	e.running = true
	e.stopCh = make(chan struct{})
	go e.loop(e.stopCh)
}

// Stop cancels both the pending one-shot timer and the repeating one. No
// evaluation dangles after it returns to the caller's select.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	e.running = false
	close(e.stopCh)
}

func (e *Engine) loop(stopCh chan struct{}) {
	timer := time.NewTimer(nextRunDelay(e.now()))
	defer timer.Stop()
	select {
	case <-stopCh:
		return
	case <-timer.C:
	}
	e.RunCycle()

	ticker := time.NewTicker(e.interval())
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			e.RunCycle()
		}
	}
}

func (e *Engine) interval() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	minutes := e.settings.CheckIntervalMinutes
	if minutes <= 0 {
		minutes = 5
	}
	return time.Duration(minutes) * time.Minute
}

// Create validates and persists a new alert definition. Structural problems
// are returned synchronously as a reason list.
func (e *Engine) Create(a models.Alert) (models.Alert, error) {
	if problems := a.Validate(); len(problems) > 0 {
		return models.Alert{}, errors.New(strings.Join(problems, "; "))
	}
	now := e.now()
	a.ID = fmt.Sprintf("a%d", now.UnixNano())
	a.Enabled = true
	a.CreatedAt = now
	a.LastState = models.StateUnknown

	e.mu.Lock()
	e.alerts[a.ID] = &a
	e.mu.Unlock()

	e.persist(&a)
	return a, nil
}

// List returns the alerts ordered by creation time.
func (e *Engine) List() []models.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.Alert, 0, len(e.alerts))
	for _, a := range e.alerts {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// SetEnabled flips an alert on or off.
func (e *Engine) SetEnabled(id string, enabled bool) error {
	e.mu.Lock()
	a, ok := e.alerts[id]
	if ok {
		a.Enabled = enabled
	}
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("no alert %q", id)
	}
	e.persist(a)
	return nil
}

// Delete removes an alert entirely.
func (e *Engine) Delete(id string) error {
	e.mu.Lock()
	_, ok := e.alerts[id]
	delete(e.alerts, id)
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("no alert %q", id)
	}
	if err := e.store.DeleteAlert(id); err != nil {
		e.logger.Error().Err(err).Str("alert", id).Msg("delete not persisted")
	}
	return nil
}

// Settings returns the current engine settings.
func (e *Engine) Settings() models.EngineSettings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings
}

// UpdateSettings persists new settings and realigns the schedule.
func (e *Engine) UpdateSettings(s models.EngineSettings) error {
	if s.CheckIntervalMinutes <= 0 {
		return errors.New("check interval must be positive")
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return fmt.Errorf("unknown timezone %q", s.Timezone)
	}
	e.mu.Lock()
	e.settings = s
	wasRunning := e.running
	e.mu.Unlock()

	if err := e.store.SaveSettings(s); err != nil {
		e.logger.Error().Err(err).Msg("settings not persisted")
	}
	if wasRunning {
		e.Stop()
		e.Start()
	}
	return nil
}

// RunCycle evaluates every enabled alert once. It is driven by the internal
// loop; exported so the presentation layer can force an immediate pass.
// Concurrent callers queue behind runMu rather than overlapping.
func (e *Engine) RunCycle() {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), cycleTimeout)
	defer cancel()

	now := e.now()
	quiet := e.inQuietHours(now)

	for _, a := range e.snapshotAlerts() {
		if !a.Enabled {
			continue
		}
		if a.Coin == models.AnyCoin {
			e.checkAnyCoin(ctx, &a, now, quiet)
		} else {
			e.checkCoin(ctx, &a, now, quiet)
		}
		e.commit(a)
	}
}

// snapshotAlerts returns copies of the alerts in a stable order. The cycle's
// slow evaluation never touches the live structs; commit merges the outcome
// back under the lock.
func (e *Engine) snapshotAlerts() []models.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.Alert, 0, len(e.alerts))
	for _, a := range e.alerts {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// commit merges the state fields an evaluation produced back into the live
// alert and persists the result. Enabled only merges in the disabling
// direction, so a once-alert's self-disable lands while a concurrent user
// pause or resume is never clobbered. An alert deleted mid-cycle is dropped.
func (e *Engine) commit(a models.Alert) {
	e.mu.Lock()
	live, ok := e.alerts[a.ID]
	if ok {
		live.LastState = a.LastState
		live.LastStateChangedAt = a.LastStateChangedAt
		live.LastCheckedAt = a.LastCheckedAt
		live.LastTriggered = a.LastTriggered
		if !a.Enabled {
			live.Enabled = false
		}
		a = *live
	}
	e.mu.Unlock()
	if ok {
		e.persist(&a)
	}
}

func (e *Engine) inQuietHours(now time.Time) bool {
	e.mu.Lock()
	s := e.settings
	e.mu.Unlock()
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		loc = time.UTC
	}
	return inQuietWindow(now, s.QuietHoursStart, s.QuietHoursEnd, loc)
}

// checkCoin runs the state machine for a single-symbol alert. State always
// advances, even during quiet hours; only the send is suppressed so no
// spurious transition appears when quiet hours end.
func (e *Engine) checkCoin(ctx context.Context, a *models.Alert, now time.Time, quiet bool) {
	snap, err := e.snapshotFor(ctx, a, a.Coin)
	if err != nil {
		e.logger.Warn().Err(err).Str("alert", a.ID).Str("coin", a.Coin).Msg("evaluation skipped")
		a.LastCheckedAt = now
		return
	}

	state := deriveState(snap)
	fire := e.decideTrigger(a, state, snap)

	if state != a.LastState {
		a.LastStateChangedAt = now
	}
	a.LastState = state
	a.LastCheckedAt = now

	if !fire {
		return
	}
	a.LastTriggered = now
	if a.Frequency == models.FrequencyOnce {
		a.Enabled = false
	}
	if quiet {
		e.logger.Info().Str("alert", a.ID).Msg("trigger inside quiet hours, notification suppressed")
		return
	}
	e.send(ctx, formatTrigger(a, a.Coin, snap))
}

// checkAnyCoin reports every qualifying symbol each cycle. State is tracked
// globally, not per symbol, so there is no per-symbol hysteresis; only
// LastCheckedAt advances. Known limitation of any-coin alerts.
func (e *Engine) checkAnyCoin(ctx context.Context, a *models.Alert, now time.Time, quiet bool) {
	a.LastCheckedAt = now

	symbols, err := e.universe.GetRankedSymbols(ctx, anySymbolLimit)
	if err != nil {
		e.logger.Warn().Err(err).Str("alert", a.ID).Msg("universe unavailable, cycle skipped")
		return
	}

	type hit struct {
		symbol string
		snap   models.SignalSnapshot
	}
	hits := make([]*hit, len(symbols))
	var wg sync.WaitGroup
	sem := make(chan struct{}, 10)
	for i, symbol := range symbols {
		wg.Add(1)
		go func(i int, symbol string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			snap, err := e.snapshotFor(ctx, a, symbol)
			if err != nil {
				return
			}
			if e.satisfied(a, deriveState(snap), snap) {
				hits[i] = &hit{symbol: symbol, snap: snap}
			}
		}(i, symbol)
	}
	wg.Wait()

	var lines []string
	for _, h := range hits {
		if h == nil {
			continue
		}
		lines = append(lines, formatTrigger(a, h.symbol, h.snap))
		if len(lines) == notifyCap {
			break
		}
	}
	if len(lines) == 0 {
		return
	}
	a.LastTriggered = now
	if a.Frequency == models.FrequencyOnce {
		a.Enabled = false
	}
	if quiet {
		e.logger.Info().Str("alert", a.ID).Msg("trigger inside quiet hours, notification suppressed")
		return
	}
	e.send(ctx, strings.Join(lines, "\n"))
}

// snapshotFor fetches candles and classifies price for the alert's indicator
// or trend cluster.
func (e *Engine) snapshotFor(ctx context.Context, a *models.Alert, symbol string) (models.SignalSnapshot, error) {
	tf := a.Spec.Timeframe
	var count int
	if a.UseTrend {
		longest := models.IndicatorSpec{Timeframe: tf, Kind: models.KindEMA, Period: models.ClusterPeriods[len(models.ClusterPeriods)-1]}
		count = indicator.RequiredCandles(longest) + srHistory
	} else {
		count = indicator.RequiredCandles(a.Spec) + srHistory
	}

	candles, err := e.candles.GetClosedCandles(ctx, symbol, tf, count)
	if err != nil {
		return models.SignalSnapshot{}, err
	}
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	if a.UseTrend {
		return indicator.BuildClusterSnapshot(closes, tf)
	}
	return indicator.BuildSnapshot(closes, a.Spec)
}

// deriveState classifies a snapshot into the alert state machine's states.
// "at" wins over above/below inside the tolerance band.
func deriveState(snap models.SignalSnapshot) models.AlertState {
	switch {
	case snap.AtIndicator:
		return models.StateAt
	case snap.AboveIndicator:
		return models.StateAbove
	case snap.BelowIndicator:
		return models.StateBelow
	}
	return models.StateAway
}

func (e *Engine) satisfied(a *models.Alert, state models.AlertState, snap models.SignalSnapshot) bool {
	if state != models.AlertState(a.Condition) {
		return false
	}
	if a.SRFilter != models.SRNone && snap.SupportResistance != a.SRFilter {
		return false
	}
	return true
}

// decideTrigger is the anti-spam core. Once-alerts fire whenever satisfied
// (they disable right after). Repeat-alerts fire on the very first evaluation
// if satisfied, then only on a state change into a satisfying state: a coin
// sitting above for hours must not re-fire every cycle.
func (e *Engine) decideTrigger(a *models.Alert, state models.AlertState, snap models.SignalSnapshot) bool {
	ok := e.satisfied(a, state, snap)
	if a.Frequency == models.FrequencyOnce {
		return ok
	}
	if a.LastState == models.StateUnknown {
		return ok
	}
	return state != a.LastState && ok
}

func (e *Engine) persist(a *models.Alert) {
	if err := e.store.SaveAlert(*a); err != nil {
		e.logger.Error().Err(err).Str("alert", a.ID).Msg("alert not persisted")
	}
}

func (e *Engine) send(ctx context.Context, text string) {
	if err := e.notifier.Send(ctx, e.chatID, text); err != nil {
		e.logger.Error().Err(err).Msg("notification failed")
	}
}

func formatTrigger(a *models.Alert, symbol string, snap models.SignalSnapshot) string {
	what := a.Spec.String()
	if a.UseTrend {
		what = fmt.Sprintf("%s trend cluster", a.Spec.Timeframe)
	}
	line := fmt.Sprintf("🔔 %s %s %s (price %.6g, %+.2f%%)",
		symbol, a.Condition, what, snap.Price, snap.DiffPercent)
	if snap.SupportResistance != models.SRNone {
		line += fmt.Sprintf(" acting as %s", snap.SupportResistance)
	}
	return line
}
