package rule

import (
	"fmt"
	"sync/atomic"

	"github.com/roach88/salience/internal/ir"
)

// Fact is one inserted object: a type name and its field values.
// A Fact is never modified after it is attached to a handle; updates
// attach a new Fact.
type Fact struct {
	Type   string
	Fields ir.IRObject
}

// FactHandle identifies a fact inside one session.
type FactHandle struct {
	id        int64
	fact      atomic.Pointer[Fact]
	retracted atomic.Bool
}

// NewFactHandle wraps fact under id. The fact's fields are cloned.
func NewFactHandle(id int64, fact Fact) *FactHandle {
	h := &FactHandle{id: id}
	h.fact.Store(&Fact{Type: fact.Type, Fields: fact.Fields.Clone()})
	return h
}

// ID returns the session-local handle id.
func (h *FactHandle) ID() int64 {
	return h.id
}

// Fact returns the current fact, or nil once retracted.
func (h *FactHandle) Fact() *Fact {
	if h.retracted.Load() {
		return nil
	}
	return h.fact.Load()
}

// Replace swaps in a new version of the fact. Fields are cloned.
func (h *FactHandle) Replace(fact Fact) {
	h.fact.Store(&Fact{Type: fact.Type, Fields: fact.Fields.Clone()})
}

// Retract marks the handle retracted. Later extractions fail.
func (h *FactHandle) Retract() {
	h.retracted.Store(true)
}

// Retracted reports whether Retract was called.
func (h *FactHandle) Retracted() bool {
	return h.retracted.Load()
}

func (h *FactHandle) String() string {
	f := h.fact.Load()
	if f == nil {
		return fmt.Sprintf("[fact %d]", h.id)
	}
	return fmt.Sprintf("[fact %d:%s]", h.id, f.Type)
}
