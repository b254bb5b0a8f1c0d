package clock

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock is the interface we use for time operations.
// In production, use New(). In tests, a clockwork.FakeClock.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) clockwork.Timer
	NewTicker(d time.Duration) clockwork.Ticker
}

// New returns the real wall clock.
func New() Clock {
	return clockwork.NewRealClock()
}

// OrDefault returns c, or the real clock when c is nil.
func OrDefault(c Clock) Clock {
	if c == nil {
		return New()
	}
	return c
}

// StopAndDrain safely stops a timer and drains its channel so a stale fire
// is never observed after Stop.
func StopAndDrain(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
