// Package manual provides a hand-driven clock for tests.
package manual

import (
	"sync"
	"time"
)

// Clock implements scraper.Clock with an explicitly advanced time.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// New creates a Clock frozen at the given instant.
func New(now time.Time) *Clock {
	return &Clock{now: now}
}

// Now returns the current manual time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set pins the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
