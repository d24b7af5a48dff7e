package testutil

import (
	"sync"
	"time"
)

// DefaultStart is the instant a FixedClock starts at when none is given.
var DefaultStart = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// FixedClock is a deterministic wall clock for tests.
//
// Every call to Now returns the current instant and then advances it by the
// step, so consecutive records get distinct, strictly increasing timestamps
// and queue entries keep a stable order in golden output.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FixedClock struct {
	mu    sync.Mutex
	start time.Time
	now   time.Time
	step  time.Duration
}

// NewFixedClock creates a clock at start that advances by step per call.
// A zero start uses DefaultStart; a zero step freezes the clock.
func NewFixedClock(start time.Time, step time.Duration) *FixedClock {
	if start.IsZero() {
		start = DefaultStart
	}
	return &FixedClock{start: start, now: start, step: step}
}

// Now returns the current instant and advances the clock by one step.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// Peek returns the current instant without advancing.
func (c *FixedClock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Reset returns the clock to its start instant.
//
// Used for test reuse: the same scenario run twice sees identical timestamps.
func (c *FixedClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.start
}
