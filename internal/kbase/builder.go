package kbase

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/roach88/salience/internal/ir"
	"github.com/roach88/salience/internal/rule"
	"github.com/roach88/salience/internal/salience"
	"github.com/roach88/salience/internal/scope"
)

// DialectCompiler compiles one salience source against a rule's scope.
type DialectCompiler func(source string, r salience.Resolver) (*salience.Expression, error)

// Builder builds packages. A Builder is safe for concurrent use; builds
// of the same package are serialized.
type Builder struct {
	compilers map[string]DialectCompiler
	logger    *slog.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithDialect registers a compiler for an additional dialect name.
func WithDialect(name string, c DialectCompiler) BuilderOption {
	return func(b *Builder) {
		b.compilers[name] = c
	}
}

// WithLogger sets the logger build progress is reported to.
func WithLogger(l *slog.Logger) BuilderOption {
	return func(b *Builder) {
		b.logger = l
	}
}

// NewBuilder creates a builder that compiles the default dialect.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		compilers: map[string]DialectCompiler{ir.DefaultDialect: salience.CompileIn},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Dialects returns the dialects the builder compiles, sorted.
func (b *Builder) Dialects() []string {
	names := make([]string, 0, len(b.compilers))
	for n := range b.compilers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NewPackage creates an empty package whose registry has a table for
// every dialect the builder compiles.
func (b *Builder) NewPackage(name string) *Package {
	return newPackage(name, b.Dialects())
}

// BuildReport summarizes one Build call.
type BuildReport struct {
	Package string
	Hash    string
	// Built lists the rules that made it into the package, in declaration
	// order.
	Built    []string
	Failures []*RuleBuildError
	// Pruned lists registry entries dropped because their rule is gone.
	Pruned []string
}

// OK reports whether every rule built.
func (r *BuildReport) OK() bool {
	return len(r.Failures) == 0
}

// Failure returns the failure recorded for the named rule.
func (r *BuildReport) Failure(name string) (*RuleBuildError, bool) {
	for _, f := range r.Failures {
		if f.Rule == name {
			return f, true
		}
	}
	return nil, false
}

// Err joins all rule failures, or returns nil.
func (r *BuildReport) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// Build builds descr into pkg. Rule failures are collected in the report
// and do not fail the build; the returned error is reserved for problems
// that affect the whole package, in which case pkg is left unchanged.
func (b *Builder) Build(pkg *Package, descr *ir.PackageDescr) (*BuildReport, error) {
	if descr == nil {
		return nil, &PackageError{Package: pkg.name, Message: "nil package descriptor"}
	}
	if descr.Name != pkg.name {
		return nil, &PackageError{
			Package: pkg.name,
			Message: fmt.Sprintf("descriptor is for package %q", descr.Name),
		}
	}

	pkg.buildMu.Lock()
	defer pkg.buildMu.Unlock()

	hash, err := ir.PackageHash(descr)
	if err != nil {
		return nil, &PackageError{Package: pkg.name, Message: "cannot hash descriptor", Err: err}
	}
	types, err := BuildTypes(descr.Types)
	if err != nil {
		return nil, &PackageError{Package: pkg.name, Message: "invalid types", Err: err}
	}

	report := &BuildReport{Package: pkg.name, Hash: hash}
	next := &ruleSet{
		hash:   hash,
		types:  types,
		byName: make(map[string]*Rule, len(descr.Rules)),
		byID:   make(map[string]*Rule, len(descr.Rules)),
	}

	for _, rd := range descr.Rules {
		r, err := b.buildRule(pkg, rd, types, next)
		if err != nil {
			report.Failures = append(report.Failures, err)
			b.logger.Warn("rule build failed",
				"package", pkg.name,
				"rule", rd.Name,
				"code", err.Code,
				"error", err.Err,
			)
			continue
		}
		next.order = append(next.order, r)
		next.byName[r.name] = r
		next.byID[r.id] = r
		report.Built = append(report.Built, r.name)
	}

	// Publish artifacts before swapping the rule set so every visible rule
	// has its artifact; prune only after the swap.
	keep := make(map[string]map[string]bool)
	for _, d := range pkg.runtime.Dialects() {
		keep[d] = make(map[string]bool)
	}
	for _, r := range next.order {
		if r.salience == nil {
			continue
		}
		pkg.runtime.MustDialect(r.dialect).Publish(r.id, r.salience)
		keep[r.dialect][r.id] = true
	}
	pkg.rules.Store(next)
	for _, d := range pkg.runtime.Dialects() {
		report.Pruned = append(report.Pruned, pkg.runtime.MustDialect(d).Prune(keep[d])...)
	}

	b.logger.Info("package built",
		"package", pkg.name,
		"hash", hash,
		"rules", len(report.Built),
		"failed", len(report.Failures),
	)
	return report, nil
}

func (b *Builder) buildRule(pkg *Package, rd ir.RuleDescr, types map[string]*rule.ObjectType, next *ruleSet) (*Rule, *RuleBuildError) {
	if _, dup := next.byName[rd.Name]; dup {
		return nil, &RuleBuildError{
			Package: pkg.name,
			Rule:    rd.Name,
			Code:    ErrCodeDuplicateRule,
			Err:     fmt.Errorf("rule %q already defined", rd.Name),
		}
	}

	dialect := rd.Dialect
	if dialect == "" {
		dialect = ir.DefaultDialect
	}
	compileFn, ok := b.compilers[dialect]
	if !ok {
		return nil, &RuleBuildError{
			Package: pkg.name,
			Rule:    rd.Name,
			Code:    ErrCodeUnsupportedDialect,
			Err:     fmt.Errorf("no compiler for dialect %q", dialect),
		}
	}
	if _, ok := pkg.runtime.Dialect(dialect); !ok {
		return nil, &RuleBuildError{
			Package: pkg.name,
			Rule:    rd.Name,
			Code:    ErrCodeUnsupportedDialect,
			Err:     fmt.Errorf("package has no runtime for dialect %q", dialect),
		}
	}

	sc, err := scope.Build(rd.When, types)
	if err != nil {
		return nil, newRuleBuildError(pkg.name, rd.Name, err)
	}

	hash, err := ir.RuleHash(pkg.name, rd)
	if err != nil {
		return nil, newRuleBuildError(pkg.name, rd.Name, err)
	}

	r := &Rule{
		id:      RuleID(pkg.name, rd.Name),
		pkg:     pkg.name,
		name:    rd.Name,
		dialect: dialect,
		source:  rd.Salience,
		hash:    hash,
		scope:   sc,
	}
	if rd.HasSalience() {
		expr, err := compileFn(rd.Salience, sc)
		if err != nil {
			return nil, newRuleBuildError(pkg.name, rd.Name, err)
		}
		r.salience = expr
		b.logger.Debug("salience compiled",
			"package", pkg.name,
			"rule", rd.Name,
			"expression", expr.String(),
		)
	}
	return r, nil
}

// BuildTypes creates the object types of a package. Field kinds are the
// built-in scalar kinds or the name of another type in the same list.
func BuildTypes(descrs []ir.TypeDescr) (map[string]*rule.ObjectType, error) {
	types := make(map[string]*rule.ObjectType, len(descrs))
	for _, td := range descrs {
		if td.Name == "" {
			return nil, fmt.Errorf("type with empty name")
		}
		if _, dup := types[td.Name]; dup {
			return nil, fmt.Errorf("type %q declared twice", td.Name)
		}
		types[td.Name] = rule.NewObjectType(td.Name)
	}
	for _, td := range descrs {
		t := types[td.Name]
		for _, fd := range td.Fields {
			if _, dup := t.Field(fd.Name); dup {
				return nil, fmt.Errorf("type %s: field %q declared twice", td.Name, fd.Name)
			}
			ft, err := fieldType(fd.Kind, types)
			if err != nil {
				return nil, fmt.Errorf("type %s: field %q: %w", td.Name, fd.Name, err)
			}
			t.Define(fd.Name, ft)
		}
	}
	return types, nil
}

func fieldType(kind string, types map[string]*rule.ObjectType) (rule.FieldType, error) {
	switch kind {
	case ir.FieldKindAny:
		return rule.FieldType{Kind: rule.KindAny}, nil
	case ir.FieldKindInt:
		return rule.FieldType{Kind: rule.KindInt}, nil
	case ir.FieldKindFloat:
		return rule.FieldType{Kind: rule.KindFloat}, nil
	case ir.FieldKindBool:
		return rule.FieldType{Kind: rule.KindBool}, nil
	case ir.FieldKindString:
		return rule.FieldType{Kind: rule.KindString}, nil
	}
	if t, ok := types[kind]; ok {
		return rule.FieldType{Kind: rule.KindObject, Type: t}, nil
	}
	return rule.FieldType{}, fmt.Errorf("unknown field kind %q", kind)
}
