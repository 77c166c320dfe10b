package alerts

import (
	"fmt"
	"time"
)

// checkOffset is how long after a 5-minute candle boundary a cycle runs.
// Exchange candles close on 5-minute boundaries; waiting one minute
// guarantees the "last closed candle" is settled data.
const checkOffset = time.Minute

// boundary is the candle close interval the schedule aligns to.
const boundary = 5 * time.Minute

// nextRunDelay returns how long to wait until the next :01/:06/:11/... mark.
func nextRunDelay(now time.Time) time.Duration {
	next := now.Truncate(boundary).Add(checkOffset)
	for !next.After(now) {
		next = next.Add(boundary)
	}
	return next.Sub(now)
}

// parseClock parses a "HH:MM" string into minutes of day.
func parseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("bad clock time %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("bad clock time %q", s)
	}
	return h*60 + m, nil
}

// inQuietWindow reports whether now falls inside the quiet-hours window.
// A window wrapping midnight (start > end) covers start..24:00 plus
// 00:00..end. Empty bounds disable the window.
func inQuietWindow(now time.Time, startStr, endStr string, loc *time.Location) bool {
	if startStr == "" || endStr == "" {
		return false
	}
	start, err := parseClock(startStr)
	if err != nil {
		return false
	}
	end, err := parseClock(endStr)
	if err != nil {
		return false
	}
	local := now.In(loc)
	m := local.Hour()*60 + local.Minute()
	if start > end {
		return m >= start || m < end
	}
	return m >= start && m < end
}
