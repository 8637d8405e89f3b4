package engine

import (
	"fmt"
	"strings"

	"github.com/roach88/salience/internal/kbase"
	"github.com/roach88/salience/internal/rule"
)

// Activation is a rule bound to the facts that matched its patterns.
// It keeps the *kbase.Rule it was created for, so a later rebuild of the
// package does not change which declarations the activation reads.
type Activation struct {
	rule    *kbase.Rule
	tuple   *rule.Tuple
	session string
}

// Rule returns the activated rule.
func (a *Activation) Rule() *kbase.Rule { return a.rule }

// Tuple returns the matched facts.
func (a *Activation) Tuple() *rule.Tuple { return a.tuple }

// SessionID returns the id of the session that created the activation.
func (a *Activation) SessionID() string { return a.session }

func (a *Activation) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s[", a.rule.ID())
	for i, h := range a.tuple.Handles() {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%d", h.ID())
	}
	sb.WriteByte(']')
	return sb.String()
}
