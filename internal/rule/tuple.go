package rule

// Tuple is an immutable chain of matched fact handles. Index 0 is the
// first pattern of the rule; Append builds a longer tuple sharing the
// prefix.
type Tuple struct {
	handle *FactHandle
	parent *Tuple
	index  int
}

// NewTuple starts a tuple with its first handle.
func NewTuple(h *FactHandle) *Tuple {
	return &Tuple{handle: h}
}

// TupleOf builds a tuple from handles in pattern order.
func TupleOf(handles ...*FactHandle) *Tuple {
	var t *Tuple
	for _, h := range handles {
		t = t.Append(h)
	}
	return t
}

// Append returns a new tuple extending t with h. t is unchanged.
// Append on a nil tuple starts a new one.
func (t *Tuple) Append(h *FactHandle) *Tuple {
	if t == nil {
		return NewTuple(h)
	}
	return &Tuple{handle: h, parent: t, index: t.index + 1}
}

// Len returns the number of handles in the tuple.
func (t *Tuple) Len() int {
	if t == nil {
		return 0
	}
	return t.index + 1
}

// Get returns the handle at offset, or nil when offset is outside the
// tuple.
func (t *Tuple) Get(offset int) *FactHandle {
	if t == nil || offset < 0 || offset > t.index {
		return nil
	}
	for t.index != offset {
		t = t.parent
	}
	return t.handle
}

// Handles returns the handles in pattern order.
func (t *Tuple) Handles() []*FactHandle {
	out := make([]*FactHandle, t.Len())
	for cur := t; cur != nil; cur = cur.parent {
		out[cur.index] = cur.handle
	}
	return out
}
