package kbase

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/roach88/salience/internal/ir"
	"github.com/roach88/salience/internal/registry"
	"github.com/roach88/salience/internal/rule"
	"github.com/roach88/salience/internal/salience"
	"github.com/roach88/salience/internal/scope"
)

// DefaultSalience is the priority of a rule that declares no salience.
var DefaultSalience = salience.IntValue(0)

// Rule is a built rule. It is immutable once its package publishes it.
type Rule struct {
	id       string
	pkg      string
	name     string
	dialect  string
	source   string
	hash     string
	scope    *scope.Scope
	salience *salience.Expression
}

// RuleID returns the registry key of rule name in package pkg.
func RuleID(pkg, name string) string {
	return pkg + "/" + name
}

// ID returns the rule's stable identity, "package/name".
func (r *Rule) ID() string { return r.id }

// Name returns the rule name.
func (r *Rule) Name() string { return r.name }

// Package returns the owning package name.
func (r *Rule) Package() string { return r.pkg }

// Dialect returns the salience dialect.
func (r *Rule) Dialect() string { return r.dialect }

// SalienceSource returns the salience text, or "" when the rule has none.
func (r *Rule) SalienceSource() string { return r.source }

// HasSalience reports whether the rule declares a salience.
func (r *Rule) HasSalience() bool { return r.salience != nil }

// Expression returns the compiled salience, or nil.
func (r *Rule) Expression() *salience.Expression { return r.salience }

// Hash returns the content hash of the rule's descriptor.
func (r *Rule) Hash() string { return r.hash }

// Declarations returns the declarations visible to the rule's salience.
func (r *Rule) Declarations() []*rule.Declaration { return r.scope.Declarations() }

// Patterns returns the rule's patterns in layout order.
func (r *Rule) Patterns() []*rule.Pattern { return r.scope.Patterns() }

// Width returns the number of facts an activation of the rule binds.
func (r *Rule) Width() int { return r.scope.Width() }

// Resolve looks up a visible declaration by name.
func (r *Rule) Resolve(name string) (*rule.Declaration, error) { return r.scope.Resolve(name) }

// ruleSet is one published generation of a package.
type ruleSet struct {
	hash   string
	types  map[string]*rule.ObjectType
	order  []*Rule
	byName map[string]*Rule
	byID   map[string]*Rule
}

var emptyRuleSet = &ruleSet{
	types:  map[string]*rule.ObjectType{},
	byName: map[string]*Rule{},
	byID:   map[string]*Rule{},
}

// Package is a named set of rules and the registry of their compiled
// salience artifacts. Reads are safe from any goroutine.
type Package struct {
	name    string
	runtime *registry.DialectRuntimeRegistry

	buildMu sync.Mutex
	rules   atomic.Pointer[ruleSet]
}

// NewPackage creates an empty package with a registry for the default
// dialect.
func NewPackage(name string) *Package {
	return newPackage(name, []string{ir.DefaultDialect})
}

func newPackage(name string, dialects []string) *Package {
	p := &Package{name: name, runtime: registry.New(dialects...)}
	p.rules.Store(emptyRuleSet)
	return p
}

// Name returns the package name.
func (p *Package) Name() string { return p.name }

// Runtime returns the package's artifact registry.
func (p *Package) Runtime() *registry.DialectRuntimeRegistry { return p.runtime }

// Hash returns the content hash of the descriptor last built, or "".
func (p *Package) Hash() string { return p.rules.Load().hash }

// Rule returns the rule with the given name.
func (p *Package) Rule(name string) (*Rule, bool) {
	r, ok := p.rules.Load().byName[name]
	return r, ok
}

// Rules returns the rules in declaration order.
func (p *Package) Rules() []*Rule {
	rs := p.rules.Load().order
	out := make([]*Rule, len(rs))
	copy(out, rs)
	return out
}

// Type returns the object type with the given name.
func (p *Package) Type(name string) (*rule.ObjectType, bool) {
	t, ok := p.rules.Load().types[name]
	return t, ok
}

// TypeNames returns the declared type names, sorted.
func (p *Package) TypeNames() []string {
	types := p.rules.Load().types
	names := make([]string, 0, len(types))
	for n := range types {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Salience returns the artifact currently published for ruleID. Rules
// without a salience have no artifact.
func (p *Package) Salience(ruleID string) (*salience.Expression, bool) {
	r, ok := p.rules.Load().byID[ruleID]
	if !ok {
		return nil, false
	}
	data, ok := p.runtime.Dialect(r.dialect)
	if !ok {
		return nil, false
	}
	return data.Lookup(ruleID)
}

func (p *Package) String() string {
	return fmt.Sprintf("package %s (%d rules)", p.name, len(p.rules.Load().order))
}
