package compiler

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/roach88/salience/internal/ir"
	"github.com/roach88/salience/internal/salience"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnsupportedIRType = "E100" // unsupported IR type for validation

	// Package and type errors (E101-E109)
	ErrPackageNameEmpty = "E101" // package name is required
	ErrInvalidFieldKind = "E102" // unknown field kind
	ErrDuplicateName    = "E103" // duplicate type, field or rule name
	ErrInvalidName      = "E104" // type, field or variable name is not an identifier

	// Rule errors (E110-E119)
	ErrMissingWhen            = "E110" // rule has no condition elements
	ErrInvalidElement         = "E111" // unknown element kind or malformed element
	ErrUnknownPatternType     = "E112" // pattern references an undeclared type
	ErrUnknownPatternField    = "E113" // field binding references an undeclared field
	ErrUndefinedBoundVariable = "E114" // salience uses a variable no pattern binds
	ErrSalienceSyntax         = "E115" // salience does not parse
	ErrUnknownDialect         = "E116" // dialect other than the default
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate validates compiled IR against schema rules.
// Returns all errors found (does not fail-fast).
func Validate(v any) []ValidationError {
	switch d := v.(type) {
	case *ir.PackageDescr:
		return ValidatePackage(d)
	case ir.PackageDescr:
		return ValidatePackage(&d)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported IR type: %T", v),
			Code:    ErrUnsupportedIRType,
		}}
	}
}

// identPattern matches names usable as types, fields and variables.
var identPattern = regexp.MustCompile(`^[\p{L}_$][\p{L}\p{N}_$]*$`)

// ValidatePackage checks a package descriptor without building it. Scope
// visibility and salience typing are left to the builder, which reports
// them per rule.
func ValidatePackage(p *ir.PackageDescr) []ValidationError {
	var errs []ValidationError

	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, ValidationError{
			Field:   "name",
			Message: "package name is required",
			Code:    ErrPackageNameEmpty,
		})
	}

	types := make(map[string]map[string]bool, len(p.Types))
	for i, t := range p.Types {
		field := fmt.Sprintf("types[%d]", i)
		if !identPattern.MatchString(t.Name) {
			errs = append(errs, ValidationError{
				Field:   field + ".name",
				Message: fmt.Sprintf("invalid type name %q", t.Name),
				Code:    ErrInvalidName,
			})
		}
		if _, dup := types[t.Name]; dup {
			errs = append(errs, ValidationError{
				Field:   field + ".name",
				Message: fmt.Sprintf("duplicate type name: %q", t.Name),
				Code:    ErrDuplicateName,
			})
		}
		fields := make(map[string]bool, len(t.Fields))
		for j, f := range t.Fields {
			if fields[f.Name] {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("%s.fields[%d]", field, j),
					Message: fmt.Sprintf("duplicate field name: %q", f.Name),
					Code:    ErrDuplicateName,
				})
			}
			fields[f.Name] = true
		}
		types[t.Name] = fields
	}

	for i, t := range p.Types {
		for j, f := range t.Fields {
			if ir.ScalarFieldKinds[f.Kind] {
				continue
			}
			if _, ok := types[f.Kind]; !ok {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("types[%d].fields[%d].kind", i, j),
					Message: fmt.Sprintf("invalid kind %q for field %q", f.Kind, f.Name),
					Code:    ErrInvalidFieldKind,
				})
			}
		}
	}

	ruleNames := make(map[string]bool, len(p.Rules))
	for i, r := range p.Rules {
		field := fmt.Sprintf("rules[%d]", i)
		if ruleNames[r.Name] {
			errs = append(errs, ValidationError{
				Field:   field + ".name",
				Message: fmt.Sprintf("duplicate rule name: %q", r.Name),
				Code:    ErrDuplicateName,
			})
		}
		ruleNames[r.Name] = true
		errs = append(errs, validateRule(field, r, types)...)
	}

	return errs
}

func validateRule(field string, r ir.RuleDescr, types map[string]map[string]bool) []ValidationError {
	var errs []ValidationError

	if r.Dialect != "" && r.Dialect != ir.DefaultDialect {
		errs = append(errs, ValidationError{
			Field:   field + ".dialect",
			Message: fmt.Sprintf("dialect %q is not supported", r.Dialect),
			Code:    ErrUnknownDialect,
		})
	}

	if len(r.When) == 0 {
		errs = append(errs, ValidationError{
			Field:   field + ".when",
			Message: fmt.Sprintf("rule %q has no condition elements", r.Name),
			Code:    ErrMissingWhen,
		})
	}

	bound := make(map[string]bool)
	for i, e := range r.When {
		errs = append(errs, validateElement(fmt.Sprintf("%s.when[%d]", field, i), e, types, bound)...)
	}

	if !r.HasSalience() {
		return errs
	}
	names, err := salience.Identifiers(r.Salience)
	if err != nil {
		return append(errs, ValidationError{
			Field:   field + ".salience",
			Message: err.Error(),
			Code:    ErrSalienceSyntax,
		})
	}
	var missing []string
	for _, n := range names {
		if !bound[n] {
			missing = append(missing, n)
		}
	}
	sort.Strings(missing)
	for _, n := range missing {
		errs = append(errs, ValidationError{
			Field:   field + ".salience",
			Message: fmt.Sprintf("undefined variable %q in salience %q", n, r.Salience),
			Code:    ErrUndefinedBoundVariable,
		})
	}
	return errs
}

// validateElement checks one element and records every name it binds,
// visible or not, in bound.
func validateElement(field string, e ir.ElementDescr, types map[string]map[string]bool, bound map[string]bool) []ValidationError {
	var errs []ValidationError

	if !ir.ValidElementKinds[e.Kind] {
		return []ValidationError{{
			Field:   field + ".kind",
			Message: fmt.Sprintf("unknown condition element %q", e.Kind),
			Code:    ErrInvalidElement,
		}}
	}

	if e.Kind != ir.ElementPattern {
		if len(e.Children) == 0 {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("%s group has no elements", e.Kind),
				Code:    ErrInvalidElement,
			})
		}
		for i, c := range e.Children {
			errs = append(errs, validateElement(fmt.Sprintf("%s.%s[%d]", field, e.Kind, i), c, types, bound)...)
		}
		return errs
	}

	p := e.Pattern
	if p == nil {
		return []ValidationError{{
			Field:   field + ".pattern",
			Message: "pattern element without pattern",
			Code:    ErrInvalidElement,
		}}
	}
	fields, ok := types[p.Type]
	if !ok {
		errs = append(errs, ValidationError{
			Field:   field + ".pattern.type",
			Message: fmt.Sprintf("unknown type %q", p.Type),
			Code:    ErrUnknownPatternType,
		})
	}
	if p.Bind != "" {
		if !identPattern.MatchString(p.Bind) {
			errs = append(errs, ValidationError{
				Field:   field + ".pattern.bind",
				Message: fmt.Sprintf("invalid variable name %q", p.Bind),
				Code:    ErrInvalidName,
			})
		}
		bound[p.Bind] = true
	}

	aliases := make([]string, 0, len(p.Fields))
	for alias := range p.Fields {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	for _, alias := range aliases {
		if !identPattern.MatchString(alias) {
			errs = append(errs, ValidationError{
				Field:   field + ".pattern.fields." + alias,
				Message: fmt.Sprintf("invalid variable name %q", alias),
				Code:    ErrInvalidName,
			})
		}
		if ok && !fields[p.Fields[alias]] {
			errs = append(errs, ValidationError{
				Field:   field + ".pattern.fields." + alias,
				Message: fmt.Sprintf("type %s has no field %q", p.Type, p.Fields[alias]),
				Code:    ErrUnknownPatternField,
			})
		}
		bound[alias] = true
	}
	return errs
}
