package domain

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// TimestampLayout is the capture timestamp format, YYYYMMDD_HHMMSS.
const TimestampLayout = "20060102_150405"

// clock is a package-level time source so tests can freeze time via SetClock.
var clock = clockwork.NewRealClock()

// SetClock swaps the capture time source. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// Now returns the current capture time from the package clock.
func Now() time.Time {
	return clock.Now()
}

// FormatTimestamp renders t in local wall-clock time as YYYYMMDD_HHMMSS.
func FormatTimestamp(t time.Time) string {
	return t.Local().Format(TimestampLayout)
}
