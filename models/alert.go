package models

import "time"

// AlertFrequency controls whether an alert fires once or on every transition.
type AlertFrequency string

const (
	FrequencyOnce   AlertFrequency = "once"
	FrequencyRepeat AlertFrequency = "repeat"
)

// AlertState is the last observed relation between price and the alert's
// indicator. "away" means none of above/below/at held.
type AlertState string

const (
	StateUnknown AlertState = ""
	StateAbove   AlertState = "above"
	StateBelow   AlertState = "below"
	StateAt      AlertState = "at"
	StateAway    AlertState = "away"
)

// AnyCoin selects every symbol in the ranked universe instead of one.
const AnyCoin = "any"

// Alert is a standing condition re-evaluated on the engine's schedule.
// Definition fields (Coin..Frequency, Enabled) are set by the user; the
// state and schedule fields below them are mutated only by the engine.
type Alert struct {
	ID        string         `json:"id"`
	Coin      string         `json:"coin"` // symbol or AnyCoin
	Condition Comparison     `json:"condition"`
	Spec      IndicatorSpec  `json:"spec"`
	UseTrend  bool           `json:"use_trend,omitempty"` // trend cluster instead of a single MA/EMA
	SRFilter  SRLabel        `json:"sr_filter,omitempty"`
	Frequency AlertFrequency `json:"frequency"`
	Enabled   bool           `json:"enabled"`
	CreatedAt time.Time      `json:"created_at"`

	LastState          AlertState `json:"last_state,omitempty"`
	LastStateChangedAt time.Time  `json:"last_state_changed_at,omitempty"`
	LastCheckedAt      time.Time  `json:"last_checked_at,omitempty"`
	LastTriggered      time.Time  `json:"last_triggered,omitempty"`
}

// Validate returns human-readable reasons the definition is unusable.
func (a Alert) Validate() []string {
	var problems []string
	if a.Coin == "" {
		problems = append(problems, "no coin selected")
	}
	switch a.Condition {
	case CompAbove, CompBelow, CompAt:
	default:
		problems = append(problems, "condition must be above, below or at")
	}
	if a.UseTrend {
		if !a.Spec.Timeframe.Valid() {
			problems = append(problems, "trend alert needs a valid timeframe")
		}
	} else if !a.Spec.Valid() {
		problems = append(problems, "unknown indicator "+a.Spec.String())
	}
	switch a.Frequency {
	case FrequencyOnce, FrequencyRepeat:
	default:
		problems = append(problems, "frequency must be once or repeat")
	}
	return problems
}

// EngineSettings are the alert engine's persisted knobs.
type EngineSettings struct {
	CheckIntervalMinutes int    `json:"check_interval_minutes"`
	Timezone             string `json:"timezone"`
	QuietHoursStart      string `json:"quiet_hours_start,omitempty"` // "HH:MM", empty disables
	QuietHoursEnd        string `json:"quiet_hours_end,omitempty"`
}

// DefaultSettings is what the engine falls back to when the store is empty
// or unreadable.
func DefaultSettings() EngineSettings {
	return EngineSettings{
		CheckIntervalMinutes: 5,
		Timezone:             "UTC",
	}
}
