package rule

import (
	"fmt"
	"sort"

	"github.com/roach88/salience/internal/ir"
)

// Kind is the static kind of a fact field.
type Kind int

const (
	// KindAny is dynamically typed; checks happen when the value is read.
	KindAny Kind = iota
	KindInt
	KindFloat
	KindBool
	KindString
	// KindObject is a nested fact object described by FieldType.Type.
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindAny:
		return "any"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// IsNumeric reports whether values of kind k take part in arithmetic.
func (k Kind) IsNumeric() bool {
	return k == KindInt || k == KindFloat
}

// Accepts reports whether v is a legal runtime value for kind k.
// Ints are accepted where floats are declared.
func (k Kind) Accepts(v ir.IRValue) bool {
	switch k {
	case KindAny:
		return v != nil
	case KindInt:
		_, ok := v.(ir.IRInt)
		return ok
	case KindFloat:
		switch v.(type) {
		case ir.IRFloat, ir.IRInt:
			return true
		}
		return false
	case KindBool:
		_, ok := v.(ir.IRBool)
		return ok
	case KindString:
		_, ok := v.(ir.IRString)
		return ok
	case KindObject:
		_, ok := v.(ir.IRObject)
		return ok
	}
	return false
}

// FieldType is the static type of a field or declaration.
type FieldType struct {
	Kind Kind
	// Type is set when Kind is KindObject.
	Type *ObjectType
}

func (ft FieldType) String() string {
	if ft.Kind == KindObject && ft.Type != nil {
		return ft.Type.Name()
	}
	return ft.Kind.String()
}

// ObjectType is a named fact schema.
type ObjectType struct {
	name   string
	fields map[string]FieldType
}

// NewObjectType creates an empty object type. Fields are added with
// Define while the package is being built and never afterwards.
func NewObjectType(name string) *ObjectType {
	return &ObjectType{name: name, fields: make(map[string]FieldType)}
}

// Define adds or replaces a field. Build-time only.
func (t *ObjectType) Define(field string, ft FieldType) {
	t.fields[field] = ft
}

// Name returns the type name.
func (t *ObjectType) Name() string {
	return t.name
}

// Field looks up a field's static type.
func (t *ObjectType) Field(name string) (FieldType, bool) {
	ft, ok := t.fields[name]
	return ft, ok
}

// FieldNames returns field names sorted.
func (t *ObjectType) FieldNames() []string {
	names := make([]string, 0, len(t.fields))
	for n := range t.fields {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Validate checks that fields conforms to the type: declared fields must
// hold values of the declared kind and undeclared fields are rejected.
// Missing fields are allowed; reading them later fails extraction.
func (t *ObjectType) Validate(fields ir.IRObject) error {
	for _, name := range fields.SortedKeys() {
		ft, ok := t.fields[name]
		if !ok {
			return fmt.Errorf("type %s has no field %q", t.name, name)
		}
		v := fields[name]
		if _, isNull := v.(ir.IRNull); isNull {
			continue
		}
		if !ft.Kind.Accepts(v) {
			return fmt.Errorf("field %s.%s: expected %s, got %s", t.name, name, ft, ir.KindName(v))
		}
		if ft.Kind == KindObject && ft.Type != nil {
			if err := ft.Type.Validate(v.(ir.IRObject)); err != nil {
				return fmt.Errorf("field %s.%s: %w", t.name, name, err)
			}
		}
	}
	return nil
}
