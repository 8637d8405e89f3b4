// Package registry holds the compiled salience artifacts of a package,
// keyed by dialect and rule id.
//
// Lookups never lock: each RuntimeData publishes an immutable map through
// an atomic pointer and writers install a modified copy. A caller that
// already holds an *salience.Expression keeps evaluating it after the
// entry is replaced.
package registry

import (
	"fmt"
	"maps"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/roach88/salience/internal/salience"
)

// DialectRuntimeRegistry maps a dialect name to its RuntimeData. The set
// of dialects is fixed at construction.
type DialectRuntimeRegistry struct {
	dialects map[string]*RuntimeData
}

// New creates a registry with one RuntimeData per dialect.
func New(dialects ...string) *DialectRuntimeRegistry {
	r := &DialectRuntimeRegistry{dialects: make(map[string]*RuntimeData, len(dialects))}
	for _, d := range dialects {
		if _, ok := r.dialects[d]; !ok {
			r.dialects[d] = newRuntimeData(d)
		}
	}
	return r
}

// Dialect returns the runtime data for name.
func (r *DialectRuntimeRegistry) Dialect(name string) (*RuntimeData, bool) {
	d, ok := r.dialects[name]
	return d, ok
}

// MustDialect is like Dialect but panics for an unregistered dialect.
func (r *DialectRuntimeRegistry) MustDialect(name string) *RuntimeData {
	d, ok := r.dialects[name]
	if !ok {
		panic(fmt.Sprintf("registry: dialect %q not registered", name))
	}
	return d
}

// Dialects returns the registered dialect names, sorted.
func (r *DialectRuntimeRegistry) Dialects() []string {
	names := make([]string, 0, len(r.dialects))
	for n := range r.dialects {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type entries = map[string]*salience.Expression

// RuntimeData is the rule id to artifact table of one dialect.
type RuntimeData struct {
	dialect string

	mu      sync.Mutex // serializes writers
	current atomic.Pointer[entries]
}

func newRuntimeData(dialect string) *RuntimeData {
	d := &RuntimeData{dialect: dialect}
	empty := make(entries)
	d.current.Store(&empty)
	return d
}

// Dialect returns the dialect this table belongs to.
func (d *RuntimeData) Dialect() string {
	return d.dialect
}

// Lookup returns the artifact published for ruleID.
func (d *RuntimeData) Lookup(ruleID string) (*salience.Expression, bool) {
	e, ok := (*d.current.Load())[ruleID]
	return e, ok
}

// Publish installs expr for ruleID, replacing any previous artifact.
func (d *RuntimeData) Publish(ruleID string, expr *salience.Expression) {
	if expr == nil {
		panic("registry: publish of nil expression for " + ruleID)
	}
	d.update(func(m entries) {
		m[ruleID] = expr
	})
}

// Remove drops the artifact for ruleID, if any.
func (d *RuntimeData) Remove(ruleID string) {
	d.update(func(m entries) {
		delete(m, ruleID)
	})
}

// Prune drops every rule id not in keep and returns the removed ids,
// sorted.
func (d *RuntimeData) Prune(keep map[string]bool) []string {
	var removed []string
	d.update(func(m entries) {
		for id := range m {
			if !keep[id] {
				delete(m, id)
				removed = append(removed, id)
			}
		}
	})
	sort.Strings(removed)
	return removed
}

// Replace swaps the whole table for a copy of next.
func (d *RuntimeData) Replace(next map[string]*salience.Expression) {
	m := make(entries, len(next))
	for id, e := range next {
		if e != nil {
			m[id] = e
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.current.Store(&m)
}

// RuleIDs returns the published rule ids, sorted.
func (d *RuntimeData) RuleIDs() []string {
	m := *d.current.Load()
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of published artifacts.
func (d *RuntimeData) Len() int {
	return len(*d.current.Load())
}

func (d *RuntimeData) update(fn func(m entries)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	next := maps.Clone(*d.current.Load())
	fn(next)
	d.current.Store(&next)
}
