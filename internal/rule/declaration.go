package rule

import (
	"fmt"

	"github.com/roach88/salience/internal/ir"
)

// Pattern matches one fact of a given type at a fixed tuple offset.
// Offset is -1 for patterns inside not/exists groups, which contribute no
// handle to the tuple.
type Pattern struct {
	offset int
	typ    *ObjectType
}

// NewPattern creates a pattern over typ bound at offset.
func NewPattern(offset int, typ *ObjectType) *Pattern {
	return &Pattern{offset: offset, typ: typ}
}

// Offset returns the tuple offset of the pattern.
func (p *Pattern) Offset() int { return p.offset }

// Type returns the pattern's object type.
func (p *Pattern) Type() *ObjectType { return p.typ }

// Extractor reads a declaration's value out of a fact handle.
type Extractor interface {
	Extract(h *FactHandle) (ir.IRValue, error)
	// ValueType is the static type of the extracted value.
	ValueType() FieldType
}

// PatternExtractor yields the whole fact object.
type PatternExtractor struct {
	typ *ObjectType
}

// NewPatternExtractor creates an extractor for facts of typ.
func NewPatternExtractor(typ *ObjectType) *PatternExtractor {
	return &PatternExtractor{typ: typ}
}

// Extract returns the fact's fields.
func (e *PatternExtractor) Extract(h *FactHandle) (ir.IRValue, error) {
	f, err := currentFact(h, e.typ)
	if err != nil {
		return nil, err
	}
	return f.Fields, nil
}

// ValueType implements Extractor.
func (e *PatternExtractor) ValueType() FieldType {
	return FieldType{Kind: KindObject, Type: e.typ}
}

// FieldExtractor yields one field of the fact.
type FieldExtractor struct {
	typ   *ObjectType
	field string
	ft    FieldType
}

// NewFieldExtractor creates an extractor for typ.field. The field must be
// declared on typ.
func NewFieldExtractor(typ *ObjectType, field string) (*FieldExtractor, error) {
	ft, ok := typ.Field(field)
	if !ok {
		return nil, fmt.Errorf("type %s has no field %q", typ.Name(), field)
	}
	return &FieldExtractor{typ: typ, field: field, ft: ft}, nil
}

// Extract returns the field value, checking it against the declared kind.
func (e *FieldExtractor) Extract(h *FactHandle) (ir.IRValue, error) {
	f, err := currentFact(h, e.typ)
	if err != nil {
		return nil, err
	}
	v, ok := f.Fields[e.field]
	if !ok {
		return nil, fmt.Errorf("%s.%s: %w", e.typ.Name(), e.field, ErrFieldMissing)
	}
	if !e.ft.Kind.Accepts(v) {
		return nil, fmt.Errorf("%s.%s: %w: expected %s, got %s",
			e.typ.Name(), e.field, ErrFieldKind, e.ft, ir.KindName(v))
	}
	return v, nil
}

// ValueType implements Extractor.
func (e *FieldExtractor) ValueType() FieldType {
	return e.ft
}

// Field returns the extracted field name.
func (e *FieldExtractor) Field() string {
	return e.field
}

func currentFact(h *FactHandle, typ *ObjectType) (*Fact, error) {
	if h == nil {
		return nil, ErrNoFact
	}
	f := h.Fact()
	if f == nil {
		return nil, fmt.Errorf("%s: %w", h, ErrRetracted)
	}
	if f.Type != typ.Name() {
		return nil, fmt.Errorf("%s: %w: expected %s", h, ErrTypeChanged, typ.Name())
	}
	return f, nil
}

// Declaration binds a variable name to a way of extracting its value from
// the tuple position of its pattern.
type Declaration struct {
	name      string
	extractor Extractor
	pattern   *Pattern
}

// NewDeclaration creates a declaration. Declarations are immutable.
func NewDeclaration(name string, extractor Extractor, pattern *Pattern) *Declaration {
	return &Declaration{name: name, extractor: extractor, pattern: pattern}
}

// Name returns the variable name.
func (d *Declaration) Name() string { return d.name }

// Extractor returns the value extractor.
func (d *Declaration) Extractor() Extractor { return d.extractor }

// Pattern returns the pattern the variable is bound in.
func (d *Declaration) Pattern() *Pattern { return d.pattern }

// Offset returns the tuple offset of the declaration's pattern.
func (d *Declaration) Offset() int { return d.pattern.offset }

// ValueType returns the static type of the bound value.
func (d *Declaration) ValueType() FieldType { return d.extractor.ValueType() }

// Value extracts the declaration's value from t.
func (d *Declaration) Value(t *Tuple) (ir.IRValue, error) {
	if d.pattern.offset < 0 {
		return nil, fmt.Errorf("%s: %w", d.name, ErrNoFact)
	}
	v, err := d.extractor.Extract(t.Get(d.pattern.offset))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.name, err)
	}
	return v, nil
}

// Equivalent reports whether d and o extract the same value from any
// tuple: same offset, same fact type and same extraction.
func (d *Declaration) Equivalent(o *Declaration) bool {
	if d.Offset() != o.Offset() || d.pattern.typ != o.pattern.typ {
		return false
	}
	if d.ValueType() != o.ValueType() {
		return false
	}
	switch x := d.extractor.(type) {
	case *PatternExtractor:
		_, ok := o.extractor.(*PatternExtractor)
		return ok
	case *FieldExtractor:
		y, ok := o.extractor.(*FieldExtractor)
		return ok && x.field == y.field
	}
	return false
}

func (d *Declaration) String() string {
	return fmt.Sprintf("%s@%d:%s", d.name, d.pattern.offset, d.ValueType())
}
