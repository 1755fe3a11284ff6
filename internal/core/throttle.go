package core

import (
	"time"

	"golang.org/x/time/rate"
)

// throttle lets an event through only when more than interval has passed
// since the last one it let through. The clock starts at construction, so an
// event inside the first interval is held back.
type throttle struct {
	limiter  *rate.Limiter
	interval time.Duration
	last     time.Time
}

func newThrottle(interval time.Duration, start time.Time) *throttle {
	l := rate.NewLimiter(rate.Every(interval), 1)
	l.AllowN(start, 1)
	return &throttle{limiter: l, interval: interval, last: start}
}

// allow reports whether an event at now may be emitted, and if so resets the clock.
// The limiter alone would admit an event at exactly interval.
func (t *throttle) allow(now time.Time) bool {
	if now.Sub(t.last) <= t.interval {
		return false
	}
	if !t.limiter.AllowN(now, 1) {
		return false
	}
	t.last = now
	return true
}
