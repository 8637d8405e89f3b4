package salience

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/roach88/salience/internal/rule"
	"github.com/roach88/salience/internal/scope"
)

// checker lowers a parsed expression to nodes, computing static types.
type checker struct {
	src   string
	slots map[string]int
	decls []*rule.Declaration
}

func (c *checker) typeError(at int, format string, args ...any) error {
	return &BuildError{
		Code:    ErrCodeType,
		Message: fmt.Sprintf(format, args...),
		Source:  c.src,
		Offset:  at,
	}
}

// compile parses src, resolves every variable through r, and lowers the
// result into an Expression.
func compile(src string, r Resolver) (*Expression, error) {
	tree, err := parse(src)
	if err != nil {
		return nil, err
	}

	// Resolve in source order so the first unbound name is reported.
	resolved := make(map[string]*rule.Declaration)
	var resolveErr error
	walkIdents(tree, func(id *ident) {
		if resolveErr != nil {
			return
		}
		if _, ok := resolved[id.name]; ok {
			return
		}
		d, err := r.Resolve(id.name)
		if err == nil && d == nil {
			err = &scope.UnresolvedVariableError{Name: id.name, Reason: scope.ReasonUndeclared}
		}
		if err != nil {
			resolveErr = &BuildError{
				Code:    ErrCodeUnboundVariable,
				Message: fmt.Sprintf("variable %q is not bound", id.name),
				Source:  src,
				Offset:  id.at,
				Err:     err,
			}
			return
		}
		resolved[id.name] = d
	})
	if resolveErr != nil {
		return nil, resolveErr
	}

	// Slots follow name order so identical inputs lay out identically.
	names := make([]string, 0, len(resolved))
	for name := range resolved {
		names = append(names, name)
	}
	sort.Strings(names)
	c := &checker{
		src:   src,
		slots: make(map[string]int, len(names)),
		decls: make([]*rule.Declaration, len(names)),
	}
	for i, name := range names {
		c.slots[name] = i
		c.decls[i] = resolved[name]
	}

	root, ft, err := c.lower(tree)
	if err != nil {
		return nil, err
	}
	switch ft.Kind {
	case rule.KindInt, rule.KindFloat, rule.KindBool, rule.KindAny:
	default:
		return nil, c.typeError(tree.pos(), "salience must be numeric, got %s", ft)
	}

	return &Expression{
		source: src,
		root:   root,
		decls:  c.decls,
		kind:   ft.Kind,
	}, nil
}

func (c *checker) lower(e expr) (node, rule.FieldType, error) {
	switch n := e.(type) {
	case *numberLit:
		return c.number(n)

	case *stringLit:
		return &constNode{v: operand{kind: rule.KindString, s: n.value}}, rule.FieldType{Kind: rule.KindString}, nil

	case *ident:
		slot := c.slots[n.name]
		ft := c.decls[slot].ValueType()
		return &slotNode{slot: slot, name: n.name, want: ft.Kind}, ft, nil

	case *selector:
		return c.selector(n)

	case *unaryExpr:
		x, ft, err := c.lower(n.x)
		if err != nil {
			return nil, rule.FieldType{}, err
		}
		if !arithmetic(ft.Kind) {
			return nil, rule.FieldType{}, c.typeError(n.at, "operator - does not apply to %s", ft)
		}
		kind := ft.Kind
		if kind == rule.KindBool {
			kind = rule.KindInt
		}
		return &negNode{x: x}, rule.FieldType{Kind: kind}, nil

	case *binaryExpr:
		return c.binary(n)
	}
	return nil, rule.FieldType{}, c.typeError(e.pos(), "unsupported expression %T", e)
}

func (c *checker) number(n *numberLit) (node, rule.FieldType, error) {
	if n.isFloat {
		f, err := strconv.ParseFloat(n.text, 64)
		if err != nil {
			return nil, rule.FieldType{}, c.literalError(n, err)
		}
		return &constNode{v: operand{kind: rule.KindFloat, f: f}}, rule.FieldType{Kind: rule.KindFloat}, nil
	}
	i, err := strconv.ParseInt(n.text, 10, 64)
	if err != nil {
		return nil, rule.FieldType{}, c.literalError(n, err)
	}
	return &constNode{v: operand{kind: rule.KindInt, i: i}}, rule.FieldType{Kind: rule.KindInt}, nil
}

func (c *checker) literalError(n *numberLit, err error) error {
	msg := fmt.Sprintf("invalid number %q", n.text)
	if errors.Is(err, strconv.ErrRange) {
		msg = fmt.Sprintf("number %q out of range", n.text)
	}
	return &BuildError{Code: ErrCodeSyntax, Message: msg, Source: c.src, Offset: n.at, Err: err}
}

func (c *checker) selector(n *selector) (node, rule.FieldType, error) {
	x, ft, err := c.lower(n.x)
	if err != nil {
		return nil, rule.FieldType{}, err
	}
	path := selectorPath(n)

	switch ft.Kind {
	case rule.KindObject:
		if ft.Type == nil {
			return &fieldNode{x: x, field: n.field, path: path, want: rule.KindAny}, rule.FieldType{Kind: rule.KindAny}, nil
		}
		field, ok := ft.Type.Field(n.field)
		if !ok {
			return nil, rule.FieldType{}, c.typeError(n.at, "type %s has no field %q", ft.Type.Name(), n.field)
		}
		return &fieldNode{x: x, field: n.field, path: path, want: field.Kind}, field, nil

	case rule.KindAny:
		return &fieldNode{x: x, field: n.field, path: path, want: rule.KindAny}, rule.FieldType{Kind: rule.KindAny}, nil
	}
	return nil, rule.FieldType{}, c.typeError(n.at, "cannot read field %q of %s value", n.field, ft)
}

func (c *checker) binary(n *binaryExpr) (node, rule.FieldType, error) {
	x, xt, err := c.lower(n.x)
	if err != nil {
		return nil, rule.FieldType{}, err
	}
	y, yt, err := c.lower(n.y)
	if err != nil {
		return nil, rule.FieldType{}, err
	}

	if n.op.isComparison() {
		if !canCompare(n.op, xt.Kind, yt.Kind) {
			return nil, rule.FieldType{}, c.typeError(n.at, "cannot compare %s %s %s", xt, n.op, yt)
		}
		return &compareNode{op: n.op, x: x, y: y}, rule.FieldType{Kind: rule.KindBool}, nil
	}

	if !arithmetic(xt.Kind) {
		return nil, rule.FieldType{}, c.typeError(n.x.pos(), "operator %s does not apply to %s", n.op, xt)
	}
	if !arithmetic(yt.Kind) {
		return nil, rule.FieldType{}, c.typeError(n.y.pos(), "operator %s does not apply to %s", n.op, yt)
	}
	var kind rule.Kind
	switch {
	case xt.Kind == rule.KindFloat || yt.Kind == rule.KindFloat:
		kind = rule.KindFloat
	case xt.Kind == rule.KindAny || yt.Kind == rule.KindAny:
		kind = rule.KindAny
	default:
		kind = rule.KindInt
	}
	return &arithNode{op: n.op, x: x, y: y}, rule.FieldType{Kind: kind}, nil
}

// arithmetic reports whether k may be an arithmetic operand. Bools count
// as 0 and 1; any is checked when evaluated.
func arithmetic(k rule.Kind) bool {
	switch k {
	case rule.KindInt, rule.KindFloat, rule.KindBool, rule.KindAny:
		return true
	}
	return false
}

// canCompare reports whether op may compare kinds a and b. Numbers compare
// with numbers and strings with strings; bools only support equality.
func canCompare(op tokenKind, a, b rule.Kind) bool {
	if a == rule.KindObject || b == rule.KindObject {
		return false
	}
	if a == rule.KindAny || b == rule.KindAny {
		return true
	}
	switch {
	case a.IsNumeric() && b.IsNumeric():
		return true
	case a == rule.KindString && b == rule.KindString:
		return true
	case a == rule.KindBool && b == rule.KindBool:
		return op == tokEq || op == tokNeq
	}
	return false
}

func selectorPath(n *selector) string {
	switch x := n.x.(type) {
	case *ident:
		return x.name + "." + n.field
	case *selector:
		return selectorPath(x) + "." + n.field
	}
	return n.field
}
