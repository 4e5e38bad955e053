package testutil

import (
	"sync"

	"github.com/roach88/ratelimits/internal/ir"
)

// DeterministicClock hands out activation timestamps for tests.
//
// Each call to Next advances by a fixed step, so the same scenario always
// stamps its configs with the same values.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu    sync.Mutex
	start ir.Timestamp
	step  ir.Timestamp
	now   ir.Timestamp
}

// NewDeterministicClock creates a clock whose first Next returns start+step.
// A zero step is treated as 1.
func NewDeterministicClock(start, step ir.Timestamp) *DeterministicClock {
	if step == 0 {
		step = 1
	}
	return &DeterministicClock{start: start, step: step, now: start}
}

// Next advances the clock and returns the new time.
func (c *DeterministicClock) Next() ir.Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += c.step
	return c.now
}

// Current returns the current time without advancing.
func (c *DeterministicClock) Current() ir.Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Reset rewinds the clock to its start.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.start
}
