package compiler

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/salience/internal/ir"
)

// CompilePackage parses a CUE value into a PackageDescr.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the package struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`pkg: "pkg1": { type: ..., rule: ... }`)
//	descr, err := CompilePackage(v.LookupPath(cue.ParsePath(`pkg."pkg1"`)))
func CompilePackage(v cue.Value) (*ir.PackageDescr, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	descr := &ir.PackageDescr{Name: lastLabel(v)}
	if descr.Name == "" {
		return nil, &CompileError{Field: "pkg", Message: "package name is required", Pos: v.Pos()}
	}

	typesVal := v.LookupPath(cue.ParsePath("type"))
	if typesVal.Exists() {
		iter, err := typesVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			td, err := CompileType(iter.Value())
			if err != nil {
				return nil, err
			}
			descr.Types = append(descr.Types, td)
		}
	}

	rulesVal := v.LookupPath(cue.ParsePath("rule"))
	if rulesVal.Exists() {
		iter, err := rulesVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			rd, err := CompileRule(iter.Value())
			if err != nil {
				return nil, err
			}
			descr.Rules = append(descr.Rules, rd)
		}
	}

	return descr, nil
}

// CompileType parses one type declaration. Field kinds are either strings
// ("int", "Person") or CUE types (int, string, float, bool, _).
func CompileType(v cue.Value) (ir.TypeDescr, error) {
	td := ir.TypeDescr{Name: lastLabel(v)}

	iter, err := v.Fields()
	if err != nil {
		return td, formatCUEError(err)
	}
	for iter.Next() {
		kind, err := fieldKind(iter.Value())
		if err != nil {
			return td, err
		}
		td.Fields = append(td.Fields, ir.FieldDescr{Name: unquote(iter.Label()), Kind: kind})
	}
	sort.Slice(td.Fields, func(i, j int) bool { return td.Fields[i].Name < td.Fields[j].Name })
	return td, nil
}

// fieldKind converts a field's CUE value to a field kind string.
func fieldKind(v cue.Value) (string, error) {
	if s, err := v.String(); err == nil {
		return s, nil
	}
	switch v.IncompleteKind() {
	case cue.StringKind:
		return ir.FieldKindString, nil
	case cue.IntKind:
		return ir.FieldKindInt, nil
	case cue.FloatKind, cue.NumberKind:
		return ir.FieldKindFloat, nil
	case cue.BoolKind:
		return ir.FieldKindBool, nil
	case cue.TopKind:
		return ir.FieldKindAny, nil
	}
	return "", &CompileError{
		Field:   "type",
		Message: fmt.Sprintf("unsupported field kind: %v", v.IncompleteKind()),
		Pos:     v.Pos(),
	}
}

// CompileRule parses one rule. The salience may be a string expression or
// a number literal; a rule without salience gets the default priority.
func CompileRule(v cue.Value) (ir.RuleDescr, error) {
	rd := ir.RuleDescr{Name: lastLabel(v), Dialect: ir.DefaultDialect}

	if d := v.LookupPath(cue.ParsePath("dialect")); d.Exists() {
		s, err := d.String()
		if err != nil {
			return rd, formatCUEError(err)
		}
		rd.Dialect = s
	}

	if s := v.LookupPath(cue.ParsePath("salience")); s.Exists() {
		src, err := salienceSource(s)
		if err != nil {
			return rd, err
		}
		rd.Salience = src
	}

	whenVal := v.LookupPath(cue.ParsePath("when"))
	if !whenVal.Exists() {
		return rd, &CompileError{
			Field:   "when",
			Message: fmt.Sprintf("rule %q has no when clause", rd.Name),
			Pos:     v.Pos(),
		}
	}
	when, err := parseElements(whenVal)
	if err != nil {
		return rd, err
	}
	rd.When = when
	return rd, nil
}

func salienceSource(v cue.Value) (string, error) {
	switch v.IncompleteKind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return "", formatCUEError(err)
		}
		if strings.TrimSpace(s) == "" {
			return "", &CompileError{Field: "salience", Message: "salience is empty", Pos: v.Pos()}
		}
		return s, nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return "", formatCUEError(err)
		}
		return strconv.FormatInt(n, 10), nil
	case cue.FloatKind, cue.NumberKind:
		f, err := v.Float64()
		if err != nil {
			return "", formatCUEError(err)
		}
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	}
	return "", &CompileError{
		Field:   "salience",
		Message: fmt.Sprintf("salience must be a string or number, got %v", v.IncompleteKind()),
		Pos:     v.Pos(),
	}
}

// parseElements parses a list of condition elements.
func parseElements(v cue.Value) ([]ir.ElementDescr, error) {
	iter, err := v.List()
	if err != nil {
		return nil, &CompileError{Field: "when", Message: "expected a list of condition elements", Pos: v.Pos()}
	}
	var out []ir.ElementDescr
	for iter.Next() {
		e, err := parseElement(iter.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// parseElement parses {pattern: {...}} or a group {and|or|not|exists: [...]}.
func parseElement(v cue.Value) (ir.ElementDescr, error) {
	iter, err := v.Fields()
	if err != nil {
		return ir.ElementDescr{}, formatCUEError(err)
	}
	var kinds []string
	var body cue.Value
	for iter.Next() {
		kinds = append(kinds, unquote(iter.Label()))
		body = iter.Value()
	}
	if len(kinds) != 1 {
		return ir.ElementDescr{}, &CompileError{
			Field:   "when",
			Message: fmt.Sprintf("condition element must have exactly one of pattern, and, or, not, exists; got %v", kinds),
			Pos:     v.Pos(),
		}
	}

	kind := kinds[0]
	switch kind {
	case ir.ElementPattern:
		p, err := parsePattern(body)
		if err != nil {
			return ir.ElementDescr{}, err
		}
		return ir.ElementDescr{Kind: kind, Pattern: p}, nil

	case ir.ElementAnd, ir.ElementOr, ir.ElementNot, ir.ElementExists:
		children, err := parseElements(body)
		if err != nil {
			return ir.ElementDescr{}, err
		}
		return ir.ElementDescr{Kind: kind, Children: children}, nil
	}
	return ir.ElementDescr{}, &CompileError{
		Field:   "when",
		Message: fmt.Sprintf("unknown condition element %q", kind),
		Pos:     body.Pos(),
	}
}

func parsePattern(v cue.Value) (*ir.PatternDescr, error) {
	p := &ir.PatternDescr{}

	typeVal := v.LookupPath(cue.ParsePath("type"))
	if !typeVal.Exists() {
		return nil, &CompileError{Field: "when.pattern", Message: "pattern type is required", Pos: v.Pos()}
	}
	typ, err := typeVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	p.Type = typ

	if b := v.LookupPath(cue.ParsePath("bind")); b.Exists() {
		bind, err := b.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		p.Bind = bind
	}

	if f := v.LookupPath(cue.ParsePath("fields")); f.Exists() {
		iter, err := f.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		p.Fields = make(map[string]string)
		for iter.Next() {
			field, err := iter.Value().String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			p.Fields[unquote(iter.Label())] = field
		}
	}
	return p, nil
}

// lastLabel returns the unquoted final selector of v's path.
func lastLabel(v cue.Value) string {
	labels := v.Path().Selectors()
	if len(labels) == 0 {
		return ""
	}
	return unquote(labels[len(labels)-1].String())
}

// unquote strips the quotes CUE keeps on labels that are not identifiers,
// e.g. "rule 1".
func unquote(label string) string {
	if s, err := strconv.Unquote(label); err == nil {
		return s
	}
	return label
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// First error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
