package memchain

import (
	"sync"
	"time"
)

// Clock provides block times. Chains that relay to each other should share one so that their
// headers stay within each other's clock drift.
type Clock interface {
	// Advance moves the clock forward by d and returns the new time.
	Advance(d time.Duration) time.Time
	Now() time.Time
}

// ManualClock only moves when advanced. Tests use it for deterministic block times.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// SystemClock follows the wall clock.
type SystemClock struct{}

func (SystemClock) Advance(time.Duration) time.Time { return time.Now().UTC() }

func (SystemClock) Now() time.Time { return time.Now().UTC() }
