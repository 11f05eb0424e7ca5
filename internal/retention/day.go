// Package retention turns habit definitions and repetition events into
// per-habit, per-UTC-day completion statuses.
package retention

import (
	"fmt"
	"time"
)

// secondsThreshold separates epoch seconds from epoch milliseconds.
// Values below it are seconds (it is year 5138 in seconds and 1973 in ms).
const secondsThreshold = 100_000_000_000

const dayMs = int64(24 * time.Hour / time.Millisecond)

// NormalizeTimestamp converts an epoch value in seconds or milliseconds to milliseconds.
func NormalizeTimestamp(raw int64) int64 {
	if raw < secondsThreshold {
		return raw * 1000
	}
	return raw
}

// DayKey formats the UTC calendar date of epochMs as YYYY-MM-DD.
// Every bucket in this package is keyed through it.
func DayKey(epochMs int64) string {
	y, m, d := time.UnixMilli(epochMs).UTC().Date()
	return fmt.Sprintf("%04d-%02d-%02d", y, int(m), d)
}

// DayStart returns UTC midnight of the day containing epochMs.
func DayStart(epochMs int64) int64 {
	start := epochMs - epochMs%dayMs
	if epochMs < 0 && epochMs%dayMs != 0 {
		start -= dayMs
	}
	return start
}

// ParseDayKey returns UTC midnight (ms) of a YYYY-MM-DD key.
func ParseDayKey(key string) (int64, error) {
	t, err := time.ParseInLocation(time.DateOnly, key, time.UTC)
	if err != nil {
		return 0, fmt.Errorf("retention: parse day %q: %w", key, err)
	}
	return t.UnixMilli(), nil
}

// Days lists the day keys of every UTC day touching the half-open range [fromMs, toMs).
func Days(fromMs, toMs int64) []string {
	var out []string
	for d := DayStart(fromMs); d < toMs; d += dayMs {
		out = append(out, DayKey(d))
	}
	return out
}
