package testutil

import (
	"sync"
	"time"
)

// FakeClock advances only when a poller waits on it, so polling loops run
// without real delays.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock starts at a fixed instant
func NewFakeClock() *FakeClock {
	return &FakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After advances the clock by d and fires immediately
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

// Elapsed returns how far the clock moved since it was created
func (c *FakeClock) Elapsed() time.Duration {
	return c.Now().Sub(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
}
