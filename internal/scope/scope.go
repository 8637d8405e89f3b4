package scope

import (
	"fmt"
	"sort"

	"github.com/roach88/salience/internal/ir"
	"github.com/roach88/salience/internal/rule"
)

// Scope is the resolved variable scope of one rule.
type Scope struct {
	patterns []*rule.Pattern
	visible  map[string]*rule.Declaration
	hidden   map[string]UnresolvedReason
	width    int
}

// Build lays out elements (an implicit and) against the package's types.
func Build(elements []ir.ElementDescr, types map[string]*rule.ObjectType) (*Scope, error) {
	b := &builder{
		types:  types,
		hidden: make(map[string]UnresolvedReason),
	}
	exports, width, err := b.and(elements, 0, false)
	if err != nil {
		return nil, err
	}
	for name := range exports {
		delete(b.hidden, name)
	}
	return &Scope{
		patterns: b.patterns,
		visible:  exports,
		hidden:   b.hidden,
		width:    width,
	}, nil
}

// Resolve returns the declaration bound to name.
func (s *Scope) Resolve(name string) (*rule.Declaration, error) {
	if d, ok := s.visible[name]; ok {
		return d, nil
	}
	reason, ok := s.hidden[name]
	if !ok {
		reason = ReasonUndeclared
	}
	return nil, &UnresolvedVariableError{Name: name, Reason: reason}
}

// Declarations returns the visible declarations sorted by name.
func (s *Scope) Declarations() []*rule.Declaration {
	out := make([]*rule.Declaration, 0, len(s.visible))
	for _, d := range s.visible {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Patterns returns every pattern in layout order, including those inside
// not/exists groups.
func (s *Scope) Patterns() []*rule.Pattern {
	out := make([]*rule.Pattern, len(s.patterns))
	copy(out, s.patterns)
	return out
}

// Width returns the number of tuple slots an activation of the rule fills.
func (s *Scope) Width() int {
	return s.width
}

type builder struct {
	types    map[string]*rule.ObjectType
	patterns []*rule.Pattern
	hidden   map[string]UnresolvedReason
}

// and lays out elems sequentially from offset. When negated, patterns get
// no tuple slot and nothing is exported.
func (b *builder) and(elems []ir.ElementDescr, offset int, negated bool) (map[string]*rule.Declaration, int, error) {
	exports := make(map[string]*rule.Declaration)
	width := 0
	for _, e := range elems {
		ex, w, err := b.element(e, offset+width, negated)
		if err != nil {
			return nil, 0, err
		}
		for name, d := range ex {
			if _, dup := exports[name]; dup {
				return nil, 0, &DuplicateDeclarationError{Name: name}
			}
			exports[name] = d
		}
		width += w
	}
	return exports, width, nil
}

func (b *builder) element(e ir.ElementDescr, offset int, negated bool) (map[string]*rule.Declaration, int, error) {
	switch e.Kind {
	case ir.ElementPattern:
		return b.pattern(e.Pattern, offset, negated)

	case ir.ElementAnd:
		return b.and(e.Children, offset, negated)

	case ir.ElementOr:
		return b.or(e.Children, offset, negated)

	case ir.ElementNot, ir.ElementExists:
		inner, _, err := b.and(e.Children, offset, true)
		if err != nil {
			return nil, 0, err
		}
		for name := range inner {
			b.hide(name, ReasonNegated)
		}
		return nil, 0, nil

	default:
		return nil, 0, fmt.Errorf("unknown condition element %q", e.Kind)
	}
}

func (b *builder) or(branches []ir.ElementDescr, offset int, negated bool) (map[string]*rule.Declaration, int, error) {
	if len(branches) == 0 {
		return nil, 0, nil
	}
	all := make([]map[string]*rule.Declaration, len(branches))
	width := 0
	for i, br := range branches {
		ex, w, err := b.element(br, offset, negated)
		if err != nil {
			return nil, 0, err
		}
		all[i] = ex
		if w > width {
			width = w
		}
	}

	exports := make(map[string]*rule.Declaration)
	for _, ex := range all {
		for name := range ex {
			if _, seen := exports[name]; seen {
				continue
			}
			if d, reason := boundInEvery(name, all); reason == "" {
				exports[name] = d
			} else {
				b.hide(name, reason)
			}
		}
	}
	return exports, width, nil
}

// boundInEvery returns the first branch's declaration of name when every
// branch binds name to an equivalent declaration. Otherwise it returns
// why the name stays hidden.
func boundInEvery(name string, branches []map[string]*rule.Declaration) (*rule.Declaration, UnresolvedReason) {
	first, ok := branches[0][name]
	if !ok {
		return nil, ReasonPartialOr
	}
	reason := UnresolvedReason("")
	for _, br := range branches[1:] {
		d, ok := br[name]
		switch {
		case !ok || d.Offset() != first.Offset():
			return nil, ReasonPartialOr
		case !d.Equivalent(first):
			reason = ReasonMixedOr
		}
	}
	if reason != "" {
		return nil, reason
	}
	return first, ""
}

func (b *builder) pattern(p *ir.PatternDescr, offset int, negated bool) (map[string]*rule.Declaration, int, error) {
	if p == nil {
		return nil, 0, fmt.Errorf("pattern element without pattern")
	}
	typ, ok := b.types[p.Type]
	if !ok {
		return nil, 0, &UnknownTypeError{Type: p.Type}
	}

	width := 1
	if negated {
		offset, width = -1, 0
	}
	pat := rule.NewPattern(offset, typ)
	b.patterns = append(b.patterns, pat)

	exports := make(map[string]*rule.Declaration)
	if p.Bind != "" {
		exports[p.Bind] = rule.NewDeclaration(p.Bind, rule.NewPatternExtractor(typ), pat)
	}

	aliases := make([]string, 0, len(p.Fields))
	for alias := range p.Fields {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	for _, alias := range aliases {
		if _, dup := exports[alias]; dup {
			return nil, 0, &DuplicateDeclarationError{Name: alias}
		}
		ex, err := rule.NewFieldExtractor(typ, p.Fields[alias])
		if err != nil {
			return nil, 0, err
		}
		exports[alias] = rule.NewDeclaration(alias, ex, pat)
	}
	return exports, width, nil
}

func (b *builder) hide(name string, reason UnresolvedReason) {
	if _, ok := b.hidden[name]; !ok {
		b.hidden[name] = reason
	}
}
