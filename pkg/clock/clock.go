// Package clock abstracts the wall-clock sampling done by the wheel
// and bucket packages so tests can run on simulated time.
package clock

import "time"

// Clock supplies the current time. Implementations must be cheap:
// Now sits on the approve/tick hot paths.
type Clock interface {
	Now() time.Time
}

// Wall reads the real system clock.
type Wall struct{}

func (Wall) Now() time.Time { return time.Now() }

// Manual is a settable clock for deterministic tests. It is not safe
// for concurrent use, matching the single-threaded model of the
// components it feeds.
type Manual struct {
	now time.Time
}

// NewManual returns a Manual clock starting at t.
func NewManual(t time.Time) *Manual {
	return &Manual{now: t}
}

func (m *Manual) Now() time.Time { return m.now }

// Set moves the clock to t.
func (m *Manual) Set(t time.Time) { m.now = t }

// Advance moves the clock forward by d and returns the new time.
func (m *Manual) Advance(d time.Duration) time.Time {
	m.now = m.now.Add(d)
	return m.now
}
