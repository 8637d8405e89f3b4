package kbase

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/salience/internal/ir"
	"github.com/roach88/salience/internal/rule"
	"github.com/roach88/salience/internal/salience"
	"github.com/roach88/salience/internal/scope"
	"github.com/roach88/salience/internal/testutil"
)

func quietBuilder(opts ...BuilderOption) *Builder {
	opts = append([]BuilderOption{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return NewBuilder(opts...)
}

func evalAge(t *testing.T, e *salience.Expression, age int64) salience.Value {
	t.Helper()
	v, err := e.Evaluate(salience.MapBindings{"p": ir.IRObject{"age": ir.IRInt(age)}})
	require.NoError(t, err)
	return v
}

func TestBuild_PersonPackage(t *testing.T) {
	b := quietBuilder()
	pkg := b.NewPackage("pkg1")

	report, err := b.Build(pkg, testutil.PersonPackage())
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.NoError(t, report.Err())
	assert.Equal(t, []string{"rule 1", "big order", "plain"}, report.Built)
	assert.Equal(t, ir.MustPackageHash(testutil.PersonPackage()), pkg.Hash())
	assert.Equal(t, []string{"Order", "Person"}, pkg.TypeNames())

	r, ok := pkg.Rule("rule 1")
	require.True(t, ok)
	assert.Equal(t, "pkg1/rule 1", r.ID())
	assert.Equal(t, "pkg1", r.Package())
	assert.Equal(t, ir.DefaultDialect, r.Dialect())
	assert.True(t, r.HasSalience())
	assert.Equal(t, 1, r.Width())
	assert.NotEmpty(t, r.Hash())

	e, ok := pkg.Salience(r.ID())
	require.True(t, ok)
	assert.Same(t, r.Expression(), e)
	assert.Equal(t, int64(25), evalAge(t, e, 31).Int64())

	plain, ok := pkg.Rule("plain")
	require.True(t, ok)
	assert.False(t, plain.HasSalience())
	_, ok = pkg.Salience(plain.ID())
	assert.False(t, ok)

	data, ok := pkg.Runtime().Dialect(ir.DefaultDialect)
	require.True(t, ok)
	assert.Equal(t, []string{"pkg1/big order", "pkg1/rule 1"}, data.RuleIDs())
}

func TestBuild_FailureIsolation(t *testing.T) {
	descr := testutil.PersonPackage()
	descr.Rules = append(descr.Rules,
		ir.RuleDescr{Name: "syntax", Salience: "p.age +", When: []ir.ElementDescr{testutil.Pattern("p", "Person")}},
		ir.RuleDescr{Name: "unbound", Salience: "q.age", When: []ir.ElementDescr{testutil.Pattern("p", "Person")}},
		ir.RuleDescr{Name: "typed", Salience: "p.name", When: []ir.ElementDescr{testutil.Pattern("p", "Person")}},
		ir.RuleDescr{Name: "unknown type", Salience: "1", When: []ir.ElementDescr{testutil.Pattern("x", "Nope")}},
		ir.RuleDescr{Name: "mvel", Dialect: "mvel", Salience: "1", When: []ir.ElementDescr{testutil.Pattern("p", "Person")}},
		ir.RuleDescr{Name: "rule 1", Salience: "2", When: []ir.ElementDescr{testutil.Pattern("p", "Person")}},
	)

	b := quietBuilder()
	pkg := b.NewPackage("pkg1")
	report, err := b.Build(pkg, descr)
	require.NoError(t, err)
	assert.False(t, report.OK())
	assert.Equal(t, []string{"rule 1", "big order", "plain"}, report.Built)

	codes := map[string]RuleBuildErrorCode{}
	for _, f := range report.Failures {
		codes[f.Rule] = f.Code
	}
	assert.Equal(t, map[string]RuleBuildErrorCode{
		"syntax":       "SYNTAX_ERROR",
		"unbound":      "UNBOUND_VARIABLE",
		"typed":        "TYPE_ERROR",
		"unknown type": ErrCodeInvalidCondition,
		"mvel":         ErrCodeUnsupportedDialect,
		"rule 1":       ErrCodeDuplicateRule,
	}, codes)

	f, ok := report.Failure("unbound")
	require.True(t, ok)
	assert.True(t, salience.IsUnboundVariableError(f))
	var ue *scope.UnresolvedVariableError
	assert.True(t, errors.As(report.Err(), &ue))

	// The healthy rules are unaffected.
	e, ok := pkg.Salience("pkg1/rule 1")
	require.True(t, ok)
	assert.Equal(t, int64(25), evalAge(t, e, 31).Int64())
	_, ok = pkg.Rule("syntax")
	assert.False(t, ok)
}

func TestBuild_RebuildPrunesAndKeepsHeldArtifacts(t *testing.T) {
	b := quietBuilder()
	pkg := b.NewPackage("pkg1")
	_, err := b.Build(pkg, testutil.PersonPackage())
	require.NoError(t, err)

	held, ok := pkg.Salience("pkg1/rule 1")
	require.True(t, ok)

	next := testutil.PersonPackage()
	next.Rules = []ir.RuleDescr{{
		Name:     "rule 1",
		Salience: "p.age * 10",
		When:     []ir.ElementDescr{testutil.Pattern("p", "Person")},
	}}
	report, err := b.Build(pkg, next)
	require.NoError(t, err)
	assert.Equal(t, []string{"pkg1/big order"}, report.Pruned)

	// A reference obtained before the rebuild keeps its semantics.
	assert.Equal(t, int64(25), evalAge(t, held, 31).Int64())

	fresh, ok := pkg.Salience("pkg1/rule 1")
	require.True(t, ok)
	assert.Equal(t, int64(310), evalAge(t, fresh, 31).Int64())
	_, ok = pkg.Rule("big order")
	assert.False(t, ok)
	assert.Len(t, pkg.Rules(), 1)
}

func TestBuild_FailedRebuildOfRuleRemovesIt(t *testing.T) {
	b := quietBuilder()
	pkg := b.NewPackage("pkg1")
	_, err := b.Build(pkg, testutil.PersonPackage())
	require.NoError(t, err)

	broken := testutil.PersonPackage()
	broken.Rules[0].Salience = "p.age / "
	report, err := b.Build(pkg, broken)
	require.NoError(t, err)
	assert.Contains(t, report.Pruned, "pkg1/rule 1")

	_, ok := pkg.Salience("pkg1/rule 1")
	assert.False(t, ok)
	_, ok = pkg.Salience("pkg1/big order")
	assert.True(t, ok)
}

func TestBuild_PackageErrors(t *testing.T) {
	b := quietBuilder()
	pkg := b.NewPackage("pkg1")

	_, err := b.Build(pkg, nil)
	assert.Error(t, err)

	other := testutil.PersonPackage()
	other.Name = "pkg2"
	_, err = b.Build(pkg, other)
	var pe *PackageError
	require.True(t, errors.As(err, &pe))

	badTypes := testutil.PersonPackage()
	badTypes.Types[0].Fields[0].Kind = "Customer"
	_, err = b.Build(pkg, badTypes)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown field kind")

	// Nothing was published by the failed builds.
	assert.Empty(t, pkg.Rules())
	assert.Equal(t, "", pkg.Hash())
}

func TestBuild_ExtraDialect(t *testing.T) {
	constant := func(source string, r salience.Resolver) (*salience.Expression, error) {
		return salience.CompileIn("42", r)
	}
	b := quietBuilder(WithDialect("const", constant))
	assert.Equal(t, []string{"const", ir.DefaultDialect}, b.Dialects())

	descr := &ir.PackageDescr{
		Name:  "pkg1",
		Types: testutil.PersonTypes(),
		Rules: []ir.RuleDescr{{
			Name:     "answer",
			Dialect:  "const",
			Salience: "anything",
			When:     []ir.ElementDescr{testutil.Pattern("p", "Person")},
		}},
	}
	pkg := b.NewPackage("pkg1")
	report, err := b.Build(pkg, descr)
	require.NoError(t, err)
	require.True(t, report.OK())

	e, ok := pkg.Salience("pkg1/answer")
	require.True(t, ok)
	assert.Equal(t, int64(42), evalAge(t, e, 0).Int64())

	// A package created without the dialect cannot host the rule.
	report, err = b.Build(NewPackage("pkg1"), descr)
	require.NoError(t, err)
	f, ok := report.Failure("answer")
	require.True(t, ok)
	assert.Equal(t, ErrCodeUnsupportedDialect, f.Code)
}

func TestBuildTypes(t *testing.T) {
	types, err := BuildTypes(testutil.PersonTypes())
	require.NoError(t, err)

	owner, ok := types["Order"].Field("owner")
	require.True(t, ok)
	assert.Equal(t, rule.KindObject, owner.Kind)
	assert.Same(t, types["Person"], owner.Type)

	_, err = BuildTypes([]ir.TypeDescr{{Name: "A"}, {Name: "A"}})
	assert.Error(t, err)
	_, err = BuildTypes([]ir.TypeDescr{{Name: "A", Fields: []ir.FieldDescr{{Name: "x", Kind: "int"}, {Name: "x", Kind: "int"}}}})
	assert.Error(t, err)
}
