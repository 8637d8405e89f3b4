package salience

import (
	"fmt"
	"strings"

	"github.com/roach88/salience/internal/ir"
	"github.com/roach88/salience/internal/rule"
	"github.com/roach88/salience/internal/scope"
)

// Resolver maps a variable name to the declaration a rule makes visible
// for it. *scope.Scope implements Resolver.
type Resolver interface {
	Resolve(name string) (*rule.Declaration, error)
}

// Bindings exposes the values of the declarations in scope for one
// activation.
type Bindings interface {
	Get(name string) (ir.IRValue, error)
}

// MapBindings is a Bindings backed by a map, for tools and tests.
type MapBindings map[string]ir.IRValue

// Get implements Bindings.
func (m MapBindings) Get(name string) (ir.IRValue, error) {
	v, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("no binding for %q", name)
	}
	return v, nil
}

// Expression is a compiled salience expression. It is immutable and safe
// for concurrent use.
type Expression struct {
	source string
	root   node
	// decls holds the required declarations sorted by name; a
	// declaration's index is its slot.
	decls []*rule.Declaration
	kind  rule.Kind
}

// Compile compiles source against a list of available declarations.
func Compile(source string, decls []*rule.Declaration) (*Expression, error) {
	return compile(source, declList(decls))
}

// CompileIn compiles source resolving variables through r.
func CompileIn(source string, r Resolver) (*Expression, error) {
	return compile(source, r)
}

type declList []*rule.Declaration

func (l declList) Resolve(name string) (*rule.Declaration, error) {
	for _, d := range l {
		if d.Name() == name {
			return d, nil
		}
	}
	return nil, &scope.UnresolvedVariableError{Name: name, Reason: scope.ReasonUndeclared}
}

// Evaluate computes the salience for one activation. Each required
// declaration is read from b exactly once.
func (e *Expression) Evaluate(b Bindings) (Value, error) {
	frame := make([]ir.IRValue, len(e.decls))
	for i, d := range e.decls {
		v, err := b.Get(d.Name())
		if err != nil {
			return Value{}, &RuntimeError{
				Code:        ErrCodeExtraction,
				Message:     "cannot read binding",
				Declaration: d.Name(),
				Err:         err,
			}
		}
		frame[i] = v
	}

	out, err := e.root.eval(frame)
	if err != nil {
		return Value{}, err
	}
	switch out.kind {
	case rule.KindInt:
		return IntValue(out.i), nil
	case rule.KindFloat:
		return FloatValue(out.f), nil
	case rule.KindBool:
		if out.b {
			return IntValue(1), nil
		}
		return IntValue(0), nil
	}
	return Value{}, &RuntimeError{
		Code:    ErrCodeTypeMismatch,
		Message: fmt.Sprintf("salience evaluated to %s", out.kind),
	}
}

// Source returns the expression text as written.
func (e *Expression) Source() string {
	return e.source
}

// Declarations returns the declarations the expression reads, sorted by
// name.
func (e *Expression) Declarations() []*rule.Declaration {
	out := make([]*rule.Declaration, len(e.decls))
	copy(out, e.decls)
	return out
}

// ResultKind is the static kind of the result: int, float, bool or any.
func (e *Expression) ResultKind() rule.Kind {
	return e.kind
}

// String renders the lowered expression fully parenthesized.
func (e *Expression) String() string {
	var b strings.Builder
	e.root.format(&b)
	return b.String()
}

// Identifiers returns the variable names referenced by source in order of
// first use.
func Identifiers(source string) ([]string, error) {
	tree, err := parse(source)
	if err != nil {
		return nil, err
	}
	var names []string
	seen := make(map[string]bool)
	walkIdents(tree, func(id *ident) {
		if !seen[id.name] {
			seen[id.name] = true
			names = append(names, id.name)
		}
	})
	return names, nil
}
