// Package testutil provides deterministic substitutes for ambient inputs
// in tests.
package testutil

import (
	"sync"
	"time"
)

// StepClock yields deterministic, strictly increasing wall-clock readings.
// Each Now call returns the current reading and advances it by a fixed
// step, so timestamps and durations in test output are reproducible.
//
// Thread-safe: all methods take an internal mutex.
type StepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewStepClock creates a clock starting at start, advancing by step per
// reading. A zero step defaults to one second.
func NewStepClock(start time.Time, step time.Duration) *StepClock {
	if step == 0 {
		step = time.Second
	}
	return &StepClock{now: start, step: step}
}

// Now returns the current reading and advances the clock.
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// Reset rewinds the clock to start so a scenario can be replayed with
// identical timestamps.
func (c *StepClock) Reset(start time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = start
}
