package engine

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDSource hands out fact handle ids. Ids must be unique within a
// session; sessions sharing a source get globally unique ids.
type IDSource interface {
	Next() int64
}

// Counter is the default IDSource: it numbers handles 1, 2, 3, ...
// The zero value is ready to use and safe for concurrent use, so one
// Counter can number the handles of several sessions.
type Counter struct {
	last atomic.Int64
}

// Next returns the next id.
func (c *Counter) Next() int64 {
	return c.last.Add(1)
}

// Last returns the most recent id handed out, or 0.
func (c *Counter) Last() int64 {
	return c.last.Load()
}

// SessionIDGenerator generates session ids for log correlation.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type SessionIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 session ids.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined session ids for testing.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order.
//
//	gen := NewFixedGenerator("s-1", "s-2")
//	gen.Generate() // "s-1"
//	gen.Generate() // "s-2"
//	gen.Generate() // panic: all ids exhausted
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next predetermined id. Panics when exhausted, to
// catch tests that create more sessions than they expect.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
