package alerts

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Alias1177/Screener/models"
)

type memStore struct {
	mu       sync.Mutex
	alerts   map[string]models.Alert
	settings *models.EngineSettings
}

func newMemStore() *memStore {
	return &memStore{alerts: make(map[string]models.Alert)}
}

func (s *memStore) LoadAlerts() ([]models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		out = append(out, a)
	}
	return out, nil
}

func (s *memStore) SaveAlert(a models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts[a.ID] = a
	return nil
}

func (s *memStore) DeleteAlert(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.alerts, id)
	return nil
}

func (s *memStore) LoadSettings() (models.EngineSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settings == nil {
		return models.DefaultSettings(), nil
	}
	return *s.settings, nil
}

func (s *memStore) SaveSettings(set models.EngineSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = &set
	return nil
}

// stubCandles serves a flat series at 100 whose last close is adjustable
// between cycles. A non-zero delay makes each fetch slow enough that
// overlapping cycles would interleave.
type stubCandles struct {
	mu    sync.Mutex
	last  map[string]float64
	delay time.Duration
}

func (c *stubCandles) setPrice(symbol string, price float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		c.last = make(map[string]float64)
	}
	c.last[symbol] = price
}

func (c *stubCandles) GetClosedCandles(ctx context.Context, symbol string, tf models.Timeframe, count int) ([]models.Candle, error) {
	c.mu.Lock()
	delay := c.delay
	c.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Candle, count)
	for i := range out {
		out[i].Close = 100
	}
	if last, ok := c.last[symbol]; ok {
		out[count-1].Close = last
	}
	return out, nil
}

type stubUniverse struct{ list []string }

func (u *stubUniverse) GetRankedSymbols(ctx context.Context, limit int) ([]string, error) {
	if limit < len(u.list) {
		return u.list[:limit], nil
	}
	return u.list, nil
}

type recordNotifier struct {
	mu   sync.Mutex
	sent []string
}

func (n *recordNotifier) Send(ctx context.Context, chatID int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, text)
	return nil
}

func (n *recordNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func testEngine(t *testing.T) (*Engine, *stubCandles, *recordNotifier, *memStore) {
	t.Helper()
	store := newMemStore()
	candles := &stubCandles{}
	notifier := &recordNotifier{}
	e := New(store, candles, &stubUniverse{}, notifier, 42)
	e.now = func() time.Time { return time.Date(2025, 6, 1, 12, 1, 0, 0, time.UTC) }
	return e, candles, notifier, store
}

func ema13Alert(coin string, freq models.AlertFrequency) models.Alert {
	return models.Alert{
		Coin:      coin,
		Condition: models.CompAbove,
		Spec:      models.IndicatorSpec{Timeframe: models.Timeframe1d, Kind: models.KindEMA, Period: 13},
		Frequency: freq,
	}
}

func TestRepeatAlertIsEdgeTriggered(t *testing.T) {
	e, candles, notifier, _ := testEngine(t)
	candles.setPrice("BTCUSDT", 150)

	a, err := e.Create(ema13Alert("BTCUSDT", models.FrequencyRepeat))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Condition true at init: first cycle fires.
	e.RunCycle()
	if notifier.count() != 1 {
		t.Fatalf("first cycle should fire, got %d sends", notifier.count())
	}

	// Same state for N cycles: no re-fire.
	e.RunCycle()
	e.RunCycle()
	if notifier.count() != 1 {
		t.Fatalf("steady state must not re-fire, got %d sends", notifier.count())
	}

	// Transition away: state advances, condition unsatisfied, no fire.
	candles.setPrice("BTCUSDT", 50)
	e.RunCycle()
	if notifier.count() != 1 {
		t.Fatalf("transition to below must not fire an above alert, got %d sends", notifier.count())
	}

	// Transition back above: fires again.
	candles.setPrice("BTCUSDT", 150)
	e.RunCycle()
	if notifier.count() != 2 {
		t.Fatalf("transition back above should fire, got %d sends", notifier.count())
	}

	got := findAlert(t, e, a.ID)
	if got.LastState != models.StateAbove {
		t.Errorf("last state = %q, want above", got.LastState)
	}
	if got.LastTriggered.IsZero() {
		t.Error("last triggered should be set")
	}
}

func TestOnceAlertSelfDisables(t *testing.T) {
	e, candles, notifier, store := testEngine(t)
	candles.setPrice("BTCUSDT", 150)

	a, err := e.Create(ema13Alert("BTCUSDT", models.FrequencyOnce))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	e.RunCycle()
	if notifier.count() != 1 {
		t.Fatalf("once alert should fire, got %d sends", notifier.count())
	}
	got := findAlert(t, e, a.ID)
	if got.Enabled {
		t.Fatal("once alert must self-disable after its first trigger")
	}

	// Disabled alerts are skipped entirely on later cycles.
	e.RunCycle()
	e.RunCycle()
	if notifier.count() != 1 {
		t.Fatalf("disabled alert must never fire again, got %d sends", notifier.count())
	}

	persisted, _ := store.LoadAlerts()
	if len(persisted) != 1 || persisted[0].Enabled {
		t.Error("self-disable must be persisted")
	}
}

func TestQuietHoursSuppressSendOnly(t *testing.T) {
	e, candles, notifier, _ := testEngine(t)
	candles.setPrice("BTCUSDT", 150)

	if err := e.UpdateSettings(models.EngineSettings{
		CheckIntervalMinutes: 5,
		Timezone:             "UTC",
		QuietHoursStart:      "11:00",
		QuietHoursEnd:        "13:00", // the injected now (12:01) is inside
	}); err != nil {
		t.Fatalf("update settings: %v", err)
	}

	a, err := e.Create(ema13Alert("BTCUSDT", models.FrequencyRepeat))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	e.RunCycle()
	if notifier.count() != 0 {
		t.Fatalf("quiet hours must suppress the send, got %d", notifier.count())
	}
	got := findAlert(t, e, a.ID)
	if got.LastState != models.StateAbove {
		t.Error("state must still advance during quiet hours")
	}
	if got.LastTriggered.IsZero() {
		t.Error("the trigger itself still happens during quiet hours")
	}

	// After quiet hours the unchanged state must not invent a transition.
	e.now = func() time.Time { return time.Date(2025, 6, 1, 14, 1, 0, 0, time.UTC) }
	e.RunCycle()
	if notifier.count() != 0 {
		t.Fatalf("no spurious fire after quiet hours end, got %d", notifier.count())
	}
}

func TestAnyCoinAlertReportsPerCycle(t *testing.T) {
	store := newMemStore()
	candles := &stubCandles{}
	notifier := &recordNotifier{}
	universe := &stubUniverse{list: []string{"AUSDT", "BUSDT", "CUSDT"}}
	e := New(store, candles, universe, notifier, 42)
	e.now = func() time.Time { return time.Date(2025, 6, 1, 12, 1, 0, 0, time.UTC) }

	candles.setPrice("AUSDT", 150)
	candles.setPrice("BUSDT", 50)
	candles.setPrice("CUSDT", 160)

	if _, err := e.Create(ema13Alert(models.AnyCoin, models.FrequencyRepeat)); err != nil {
		t.Fatalf("create: %v", err)
	}

	e.RunCycle()
	if notifier.count() != 1 {
		t.Fatalf("qualifying symbols should be reported in one message, got %d", notifier.count())
	}

	// No per-symbol hysteresis: the next cycle reports again.
	e.RunCycle()
	if notifier.count() != 2 {
		t.Fatalf("any-coin alerts report every cycle, got %d sends", notifier.count())
	}
}

// Cycles evaluate copies and merge back under the lock, so the command
// surface may read and toggle alerts while a cycle is in flight. Run with the
// race detector.
func TestCycleAndCommandsRunConcurrently(t *testing.T) {
	e, candles, _, _ := testEngine(t)
	candles.setPrice("BTCUSDT", 150)

	a, err := e.Create(ema13Alert("BTCUSDT", models.FrequencyRepeat))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 5; i++ {
			e.RunCycle()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			e.List()
			if err := e.SetEnabled(a.ID, i%2 == 0); err != nil {
				t.Errorf("set enabled: %v", err)
				return
			}
		}
	}()
	wg.Wait()

	if err := e.SetEnabled(a.ID, true); err != nil {
		t.Fatalf("set enabled: %v", err)
	}
	got := findAlert(t, e, a.ID)
	if !got.Enabled {
		t.Error("alert should end re-enabled")
	}
}

// Two simultaneous RunCycle calls must serialize: if they interleaved, both
// would observe the initial unknown state and the repeat alert would fire
// twice for one transition.
func TestConcurrentCyclesDoNotOverlap(t *testing.T) {
	e, candles, notifier, _ := testEngine(t)
	candles.setPrice("BTCUSDT", 150)
	candles.mu.Lock()
	candles.delay = 20 * time.Millisecond
	candles.mu.Unlock()

	if _, err := e.Create(ema13Alert("BTCUSDT", models.FrequencyRepeat)); err != nil {
		t.Fatalf("create: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.RunCycle()
		}()
	}
	wg.Wait()

	if notifier.count() != 1 {
		t.Fatalf("one transition must fire exactly once, got %d sends", notifier.count())
	}
}

func TestCreateRejectsBadDefinition(t *testing.T) {
	e, _, _, _ := testEngine(t)
	_, err := e.Create(models.Alert{Coin: "BTCUSDT"})
	if err == nil {
		t.Fatal("malformed definition must be rejected with reasons")
	}
}

func TestQuietWindowMembership(t *testing.T) {
	tests := []struct {
		clock      string
		start, end string
		want       bool
	}{
		{"23:30", "23:00", "07:00", true},  // overnight wrap, inside
		{"08:00", "23:00", "07:00", false}, // overnight wrap, outside
		{"12:00", "10:00", "14:00", true},  // same-day, inside
		{"06:00", "10:00", "14:00", false}, // same-day, outside
		{"12:00", "", "", false},           // disabled
	}
	for _, tt := range tests {
		var h, m int
		if _, err := parseClockForTest(tt.clock, &h, &m); err != nil {
			t.Fatalf("bad test clock %q", tt.clock)
		}
		now := time.Date(2025, 6, 1, h, m, 0, 0, time.UTC)
		got := inQuietWindow(now, tt.start, tt.end, time.UTC)
		if got != tt.want {
			t.Errorf("inQuietWindow(%s, %s-%s) = %v, want %v", tt.clock, tt.start, tt.end, got, tt.want)
		}
	}
}

func parseClockForTest(s string, h, m *int) (int, error) {
	v, err := parseClock(s)
	if err != nil {
		return 0, err
	}
	*h, *m = v/60, v%60
	return v, nil
}

func TestNextRunDelay(t *testing.T) {
	tests := []struct {
		now  time.Time
		want time.Duration
	}{
		{time.Date(2025, 6, 1, 10, 3, 30, 0, time.UTC), 150 * time.Second}, // next mark 10:06
		{time.Date(2025, 6, 1, 10, 0, 30, 0, time.UTC), 30 * time.Second},  // next mark 10:01
		{time.Date(2025, 6, 1, 10, 1, 0, 0, time.UTC), 5 * time.Minute},    // exactly on a mark
	}
	for _, tt := range tests {
		if got := nextRunDelay(tt.now); got != tt.want {
			t.Errorf("nextRunDelay(%s) = %s, want %s", tt.now.Format("15:04:05"), got, tt.want)
		}
	}
}

func findAlert(t *testing.T, e *Engine, id string) models.Alert {
	t.Helper()
	for _, a := range e.List() {
		if a.ID == id {
			return a
		}
	}
	t.Fatalf("alert %q not found", id)
	return models.Alert{}
}
