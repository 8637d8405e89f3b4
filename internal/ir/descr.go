package ir

// DefaultDialect is the only salience dialect this module compiles.
const DefaultDialect = "expr"

// Condition element kinds.
const (
	ElementPattern = "pattern"
	ElementAnd     = "and"
	ElementOr      = "or"
	ElementNot     = "not"
	ElementExists  = "exists"
)

// ValidElementKinds lists the condition element kinds a rule may use.
var ValidElementKinds = map[string]bool{
	ElementPattern: true,
	ElementAnd:     true,
	ElementOr:      true,
	ElementNot:     true,
	ElementExists:  true,
}

// Field kinds usable in a type declaration. Any other kind must name a
// type declared in the same package.
const (
	FieldKindAny    = "any"
	FieldKindInt    = "int"
	FieldKindFloat  = "float"
	FieldKindBool   = "bool"
	FieldKindString = "string"
)

// ScalarFieldKinds lists the built-in field kinds.
var ScalarFieldKinds = map[string]bool{
	FieldKindAny:    true,
	FieldKindInt:    true,
	FieldKindFloat:  true,
	FieldKindBool:   true,
	FieldKindString: true,
}

// PackageDescr is the compiled, language-neutral description of a rule
// package, as produced from CUE sources.
type PackageDescr struct {
	Name  string      `json:"name"`
	Types []TypeDescr `json:"types"`
	Rules []RuleDescr `json:"rules"`
}

// TypeDescr declares a fact type and its fields, sorted by field name.
type TypeDescr struct {
	Name   string       `json:"name"`
	Fields []FieldDescr `json:"fields"`
}

// FieldDescr declares one field of a fact type.
type FieldDescr struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// RuleDescr describes one rule. Rules keep declaration order.
type RuleDescr struct {
	Name     string         `json:"name"`
	Dialect  string         `json:"dialect"`
	Salience string         `json:"salience,omitempty"`
	When     []ElementDescr `json:"when"`
}

// HasSalience reports whether the rule declares a salience attribute.
func (r RuleDescr) HasSalience() bool {
	return r.Salience != ""
}

// ElementDescr is one node of a rule's condition tree. Pattern is set for
// ElementPattern, Children for the group kinds.
type ElementDescr struct {
	Kind     string         `json:"kind"`
	Pattern  *PatternDescr  `json:"pattern,omitempty"`
	Children []ElementDescr `json:"children,omitempty"`
}

// PatternDescr matches one fact of Type. Bind names the whole fact; Fields
// binds additional variables to individual fields (variable -> field).
type PatternDescr struct {
	Bind   string            `json:"bind,omitempty"`
	Type   string            `json:"type"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Rule returns the rule descriptor with the given name.
func (p *PackageDescr) Rule(name string) (RuleDescr, bool) {
	for _, r := range p.Rules {
		if r.Name == name {
			return r, true
		}
	}
	return RuleDescr{}, false
}
