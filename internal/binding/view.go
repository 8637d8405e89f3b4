// Package binding adapts an activation's tuple to the Bindings interface
// salience expressions read from.
package binding

import (
	"fmt"

	"github.com/roach88/salience/internal/ir"
	"github.com/roach88/salience/internal/rule"
)

// View exposes exactly the declarations in scope for one rule over one
// tuple. A View is created per evaluation and never shared.
type View struct {
	tuple *rule.Tuple
	decls []*rule.Declaration
}

// New creates a view over tuple for decls.
func New(tuple *rule.Tuple, decls []*rule.Declaration) *View {
	return &View{tuple: tuple, decls: decls}
}

// Get extracts the value of the named declaration from the tuple.
func (v *View) Get(name string) (ir.IRValue, error) {
	for _, d := range v.decls {
		if d.Name() == name {
			return d.Value(v.tuple)
		}
	}
	return nil, fmt.Errorf("%q is not declared in this rule", name)
}

// Tuple returns the viewed tuple.
func (v *View) Tuple() *rule.Tuple {
	return v.tuple
}
