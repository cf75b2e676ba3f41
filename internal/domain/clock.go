package domain

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// clock is the package-level time source, swapped by SetClock in tests.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source used to pick default runs. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// Now returns the current time of the package clock.
func Now() time.Time {
	return clock.Now()
}
