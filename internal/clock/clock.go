// Package clock provides the monotonic enqueue clock used to stamp queue
// items. Wall clock adjustments never make a later item look older.
package clock

import (
	"sync"
	"time"
)

// Monotonic выдаёт строго возрастающие отметки времени.
type Monotonic struct {
	now  func() time.Time
	last time.Time
	mu   sync.Mutex
}

// New creates a clock backed by time.Now.
func New() *Monotonic {
	return &Monotonic{now: time.Now}
}

// NewWithSource creates a clock backed by an arbitrary time source.
// Используется в тестах.
func NewWithSource(now func() time.Time) *Monotonic {
	return &Monotonic{now: now}
}

// Tick returns max(now, last+1ns) and remembers it.
func (c *Monotonic) Tick() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC().Round(0)
	if !t.After(c.last) {
		t = c.last.Add(time.Nanosecond)
	}
	c.last = t
	return t
}

// Observe advances the clock past a previously issued timestamp, for example
// one read back from disk after a restart.
func (c *Monotonic) Observe(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t.After(c.last) {
		c.last = t.UTC().Round(0)
	}
}

// Last returns the most recent timestamp without advancing.
func (c *Monotonic) Last() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.last
}
