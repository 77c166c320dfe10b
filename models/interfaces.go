package models

import "context"

// CandleProvider fetches closed candles for a symbol. Implementations must
// never return a still-forming candle; the last element is the most recently
// closed one.
type CandleProvider interface {
	GetClosedCandles(ctx context.Context, symbol string, timeframe Timeframe, count int) ([]Candle, error)
}

// SymbolProvider returns the tradeable symbol universe ranked by trailing
// quote volume. Implementations may serve from a short-TTL cache.
type SymbolProvider interface {
	GetRankedSymbols(ctx context.Context, limit int) ([]string, error)
}

// ConfigStore persists alerts and engine settings. Load-on-start,
// save-on-every-mutation.
type ConfigStore interface {
	LoadAlerts() ([]Alert, error)
	SaveAlert(a Alert) error
	DeleteAlert(id string) error
	LoadSettings() (EngineSettings, error)
	SaveSettings(s EngineSettings) error
}

// Notifier delivers a formatted message to a chat destination. Errors are
// logged by callers, never fatal.
type Notifier interface {
	Send(ctx context.Context, chatID int64, text string) error
}
