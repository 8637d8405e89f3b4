package testutil

import "sync"

// HandleClock hands out fact handle ids for tests. Unlike engine.Counter it
// can be rewound, so a scenario replayed on the same clock assigns the
// same ids.
type HandleClock struct {
	mu   sync.Mutex
	last int64
}

// NewHandleClock creates a clock whose first id is 1.
func NewHandleClock() *HandleClock {
	return &HandleClock{}
}

// Next returns the next handle id.
func (c *HandleClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last++
	return c.last
}

// Last returns the most recent id, or 0 before the first call to Next.
func (c *HandleClock) Last() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Rewind resets the clock so the next id is 1 again.
func (c *HandleClock) Rewind() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = 0
}
