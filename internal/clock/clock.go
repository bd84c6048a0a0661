// Package clock supplies the time source the marketplace stamps listings and
// audit records with and evaluates listing expiry against.
package clock

import (
	"sync"
	"time"
)

// Clock returns the instant a marketplace operation takes effect. Every
// operation reads it once, so one purchase carries a single timestamp.
type Clock interface {
	Now() time.Time
}

// System is the wall clock in UTC.
type System struct{}

func (System) Now() time.Time {
	return time.Now().UTC()
}

// Manual only moves when told to. Expiry tests and replays use it.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start.UTC()}
}

func (c *Manual) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d. Negative durations are ignored so
// listing timestamps never run backwards.
func (c *Manual) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
