package testutil

// FixedSessionID is the session id NewFixedSessionIDs falls back to.
const FixedSessionID = "test-session-default"

// FixedSessionIDs hands every session the same id so logs and golden
// snapshots stay stable. It is stateless and safe for concurrent use.
type FixedSessionIDs struct {
	id string
}

// NewFixedSessionIDs creates a generator returning id, or FixedSessionID
// when id is empty.
func NewFixedSessionIDs(id string) *FixedSessionIDs {
	if id == "" {
		id = FixedSessionID
	}
	return &FixedSessionIDs{id: id}
}

// Generate implements engine.SessionIDGenerator.
func (g *FixedSessionIDs) Generate() string {
	return g.id
}
