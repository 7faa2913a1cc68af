// Package backoff provides exponential backoff calculation.
package backoff

import "time"

// Default bounds used when Delay is called with non-positive limits.
const (
	DefaultInitial = 100 * time.Millisecond
	DefaultMax     = 5 * time.Second
)

// Delay returns the wait before retry attempt n (1-based): initial for
// attempt 1, doubling per attempt, capped at max. Non-positive bounds fall
// back to the defaults.
func Delay(attempt int, initial, max time.Duration) time.Duration {
	if initial <= 0 {
		initial = DefaultInitial
	}
	if max <= 0 {
		max = DefaultMax
	}
	if attempt < 1 {
		return initial
	}

	d := initial
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
