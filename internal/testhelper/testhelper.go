// Package testhelper contains test helpers that are run against every
// sessionstore.DB implementation.
package testhelper

import (
	"sync"
	"time"
)

// Clock is a controllable time source for session expiry tests.
type Clock struct {
	mutex sync.Mutex
	now   time.Time
}

// NewClock returns a clock set to a fixed starting time.
func NewClock() *Clock {
	return &Clock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

// Now returns the current simulated time.
func (c *Clock) Now() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.now
}

// Advance moves the simulated time forward.
func (c *Clock) Advance(d time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.now = c.now.Add(d)
}
