package salience

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/salience/internal/ir"
	"github.com/roach88/salience/internal/rule"
)

// operand is an intermediate value. Only the field matching kind is set.
type operand struct {
	kind rule.Kind
	i    int64
	f    float64
	b    bool
	s    string
	obj  ir.IRObject
}

func (o operand) float() float64 {
	if o.kind == rule.KindFloat {
		return o.f
	}
	return float64(o.i)
}

// numeric promotes bools to 0/1 and reports whether o takes part in
// arithmetic.
func (o operand) numeric() (operand, bool) {
	switch o.kind {
	case rule.KindInt, rule.KindFloat:
		return o, true
	case rule.KindBool:
		if o.b {
			return operand{kind: rule.KindInt, i: 1}, true
		}
		return operand{kind: rule.KindInt}, true
	}
	return o, false
}

// fromIR converts a fact value into an operand. Nulls, arrays and unknown
// shapes have no operand form.
func fromIR(v ir.IRValue) (operand, bool) {
	switch val := v.(type) {
	case ir.IRInt:
		return operand{kind: rule.KindInt, i: int64(val)}, true
	case ir.IRFloat:
		return operand{kind: rule.KindFloat, f: float64(val)}, true
	case ir.IRBool:
		return operand{kind: rule.KindBool, b: bool(val)}, true
	case ir.IRString:
		return operand{kind: rule.KindString, s: string(val)}, true
	case ir.IRObject:
		return operand{kind: rule.KindObject, obj: val}, true
	}
	return operand{}, false
}

// conform checks a runtime value against the static kind it was compiled
// against. Declared float fields also accept ints and are widened.
func conform(o operand, want rule.Kind) (operand, bool) {
	if want == rule.KindAny || o.kind == want {
		return o, true
	}
	if want == rule.KindFloat && o.kind == rule.KindInt {
		return operand{kind: rule.KindFloat, f: float64(o.i)}, true
	}
	return o, false
}

// node is one step of a lowered expression. Nodes are immutable; eval
// keeps its state on the caller's stack.
type node interface {
	eval(frame []ir.IRValue) (operand, error)
	format(b *strings.Builder)
}

type constNode struct {
	v operand
}

func (n *constNode) eval([]ir.IRValue) (operand, error) {
	return n.v, nil
}

func (n *constNode) format(b *strings.Builder) {
	switch n.v.kind {
	case rule.KindInt:
		b.WriteString(strconv.FormatInt(n.v.i, 10))
	case rule.KindFloat:
		b.WriteString(strconv.FormatFloat(n.v.f, 'g', -1, 64))
	case rule.KindString:
		b.WriteString(strconv.Quote(n.v.s))
	}
}

// slotNode reads a required declaration's value from the frame.
type slotNode struct {
	slot int
	name string
	want rule.Kind
}

func (n *slotNode) eval(frame []ir.IRValue) (operand, error) {
	v := frame[n.slot]
	o, ok := fromIR(v)
	if ok {
		o, ok = conform(o, n.want)
	}
	if !ok {
		return operand{}, &RuntimeError{
			Code:        ErrCodeExtraction,
			Message:     fmt.Sprintf("expected %s value, got %s", n.want, ir.KindName(v)),
			Declaration: n.name,
		}
	}
	return o, nil
}

func (n *slotNode) format(b *strings.Builder) {
	b.WriteString(n.name)
}

// fieldNode reads a field of an object operand.
type fieldNode struct {
	x     node
	field string
	path  string
	want  rule.Kind
}

func (n *fieldNode) eval(frame []ir.IRValue) (operand, error) {
	x, err := n.x.eval(frame)
	if err != nil {
		return operand{}, err
	}
	if x.kind != rule.KindObject {
		return operand{}, &RuntimeError{
			Code:    ErrCodeTypeMismatch,
			Message: fmt.Sprintf("cannot read field %q of %s value", n.field, x.kind),
		}
	}
	v, ok := x.obj[n.field]
	if !ok {
		return operand{}, &RuntimeError{
			Code:    ErrCodeExtraction,
			Message: fmt.Sprintf("field %s is missing", n.path),
			Err:     rule.ErrFieldMissing,
		}
	}
	o, ok := fromIR(v)
	if ok {
		o, ok = conform(o, n.want)
	}
	if !ok {
		return operand{}, &RuntimeError{
			Code:    ErrCodeExtraction,
			Message: fmt.Sprintf("field %s: expected %s, got %s", n.path, n.want, ir.KindName(v)),
			Err:     rule.ErrFieldKind,
		}
	}
	return o, nil
}

func (n *fieldNode) format(b *strings.Builder) {
	n.x.format(b)
	b.WriteByte('.')
	b.WriteString(n.field)
}

type negNode struct {
	x node
}

func (n *negNode) eval(frame []ir.IRValue) (operand, error) {
	x, err := n.x.eval(frame)
	if err != nil {
		return operand{}, err
	}
	x, ok := x.numeric()
	if !ok {
		return operand{}, mismatch("-", x.kind)
	}
	if x.kind == rule.KindFloat {
		return operand{kind: rule.KindFloat, f: -x.f}, nil
	}
	return operand{kind: rule.KindInt, i: -x.i}, nil
}

func (n *negNode) format(b *strings.Builder) {
	b.WriteByte('-')
	n.x.format(b)
}

type arithNode struct {
	op   tokenKind
	x, y node
}

func (n *arithNode) eval(frame []ir.IRValue) (operand, error) {
	x, err := n.x.eval(frame)
	if err != nil {
		return operand{}, err
	}
	y, err := n.y.eval(frame)
	if err != nil {
		return operand{}, err
	}
	x, okx := x.numeric()
	y, oky := y.numeric()
	if !okx {
		return operand{}, mismatch(n.op.String(), x.kind)
	}
	if !oky {
		return operand{}, mismatch(n.op.String(), y.kind)
	}

	if x.kind == rule.KindFloat || y.kind == rule.KindFloat {
		a, c := x.float(), y.float()
		var r float64
		switch n.op {
		case tokPlus:
			r = a + c
		case tokMinus:
			r = a - c
		case tokStar:
			r = a * c
		case tokSlash:
			r = a / c
		}
		return operand{kind: rule.KindFloat, f: r}, nil
	}

	var r int64
	switch n.op {
	case tokPlus:
		r = x.i + y.i
	case tokMinus:
		r = x.i - y.i
	case tokStar:
		r = x.i * y.i
	case tokSlash:
		if y.i == 0 {
			return operand{}, &RuntimeError{
				Code:    ErrCodeDivisionByZero,
				Message: "integer division by zero",
			}
		}
		// Go's integer division truncates toward zero.
		r = x.i / y.i
	}
	return operand{kind: rule.KindInt, i: r}, nil
}

func (n *arithNode) format(b *strings.Builder) {
	b.WriteByte('(')
	n.x.format(b)
	b.WriteByte(' ')
	b.WriteString(n.op.String())
	b.WriteByte(' ')
	n.y.format(b)
	b.WriteByte(')')
}

type compareNode struct {
	op   tokenKind
	x, y node
}

func (n *compareNode) eval(frame []ir.IRValue) (operand, error) {
	x, err := n.x.eval(frame)
	if err != nil {
		return operand{}, err
	}
	y, err := n.y.eval(frame)
	if err != nil {
		return operand{}, err
	}

	var r bool
	switch {
	case x.kind.IsNumeric() && y.kind.IsNumeric():
		if x.kind == rule.KindInt && y.kind == rule.KindInt {
			r = ordered(n.op, x.i, y.i)
		} else {
			r = ordered(n.op, x.float(), y.float())
		}
	case x.kind == rule.KindString && y.kind == rule.KindString:
		r = ordered(n.op, x.s, y.s)
	case x.kind == rule.KindBool && y.kind == rule.KindBool && (n.op == tokEq || n.op == tokNeq):
		r = (x.b == y.b) == (n.op == tokEq)
	default:
		return operand{}, &RuntimeError{
			Code:    ErrCodeTypeMismatch,
			Message: fmt.Sprintf("cannot compare %s %s %s", x.kind, n.op, y.kind),
		}
	}
	return operand{kind: rule.KindBool, b: r}, nil
}

func (n *compareNode) format(b *strings.Builder) {
	b.WriteByte('(')
	n.x.format(b)
	b.WriteByte(' ')
	b.WriteString(n.op.String())
	b.WriteByte(' ')
	n.y.format(b)
	b.WriteByte(')')
}

// ordered applies a comparison operator with Go's semantics, so a NaN
// operand makes every comparison false except !=.
func ordered[T int64 | float64 | string](op tokenKind, a, b T) bool {
	switch op {
	case tokEq:
		return a == b
	case tokNeq:
		return a != b
	case tokLt:
		return a < b
	case tokLe:
		return a <= b
	case tokGt:
		return a > b
	case tokGe:
		return a >= b
	}
	return false
}

func mismatch(op string, k rule.Kind) error {
	return &RuntimeError{
		Code:    ErrCodeTypeMismatch,
		Message: fmt.Sprintf("operator %s does not apply to %s", op, k),
	}
}
