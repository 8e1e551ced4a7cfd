package testutil

import (
	"sync"
	"time"
)

// FixedTime is the wall-clock origin of every deterministic test run.
var FixedTime = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// DeterministicClock is a wall clock for tests that advances by a fixed
// step on every call, starting at FixedTime.
//
// This enables the same test scenario to run multiple times with
// identical timestamps, so golden traces compare byte for byte.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu    sync.Mutex
	next  time.Time
	start time.Time
	step  time.Duration
}

// NewDeterministicClock creates a clock whose first Now returns
// FixedTime and each later call one second more.
func NewDeterministicClock() *DeterministicClock {
	return NewDeterministicClockAt(FixedTime, time.Second)
}

// NewDeterministicClockAt creates a clock starting at start and
// advancing by step.
func NewDeterministicClockAt(start time.Time, step time.Duration) *DeterministicClock {
	return &DeterministicClock{next: start, start: start, step: step}
}

// Now returns the current time and advances the clock.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.next
	c.next = c.next.Add(c.step)
	return t
}

// Reset rewinds the clock to its start.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next = c.start
}
