package engine

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/roach88/salience/internal/ir"
	"github.com/roach88/salience/internal/kbase"
	"github.com/roach88/salience/internal/rule"
	"github.com/roach88/salience/internal/salience"
	"github.com/roach88/salience/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func buildPackage(t *testing.T, descr *ir.PackageDescr) (*kbase.Builder, *kbase.Package) {
	t.Helper()
	b := kbase.NewBuilder(kbase.WithLogger(quietLogger()))
	pkg := b.NewPackage(descr.Name)
	report, err := b.Build(pkg, descr)
	require.NoError(t, err)
	require.NoError(t, report.Err())
	return b, pkg
}

func buildPersonPackage(t *testing.T) *kbase.Package {
	t.Helper()
	_, pkg := buildPackage(t, testutil.PersonPackage())
	return pkg
}

func newTestSession(pkg *kbase.Package) *Session {
	return NewSession(pkg,
		WithSessionIDGenerator(testutil.NewFixedSessionIDs("")),
		WithClock(testutil.NewHandleClock()),
		WithLogger(quietLogger()))
}

func person(age int64) ir.IRObject {
	return ir.IRObject{"name": ir.IRString("ann"), "age": ir.IRInt(age)}
}

func TestSession_SalienceIsDeterministic(t *testing.T) {
	s := newTestSession(buildPersonPackage(t))

	h, err := s.Insert("Person", person(31))
	require.NoError(t, err)
	act, err := s.NewActivation("rule 1", h)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		v, err := s.Salience(act)
		require.NoError(t, err)
		assert.True(t, v.IsInt())
		assert.Equal(t, int64(25), v.Int64())
	}
	assert.Equal(t, "pkg1/rule 1[1]", act.String())
	assert.Equal(t, testutil.FixedSessionID, act.SessionID())
}

func TestSession_MultiPatternRule(t *testing.T) {
	s := newTestSession(buildPersonPackage(t))

	p, err := s.Insert("Person", person(40))
	require.NoError(t, err)
	o, err := s.Insert("Order", ir.IRObject{"total": ir.IRFloat(10.5), "owner": person(40)})
	require.NoError(t, err)

	act, err := s.NewActivation("big order", p, o)
	require.NoError(t, err)

	v, err := s.Salience(act)
	require.NoError(t, err)
	assert.False(t, v.IsInt())
	assert.Equal(t, 61.0, v.Float64())
}

func TestSession_RuleWithoutSalienceGetsDefault(t *testing.T) {
	s := newTestSession(buildPersonPackage(t))

	h, err := s.Insert("Person", person(31))
	require.NoError(t, err)
	act, err := s.NewActivation("plain", h)
	require.NoError(t, err)

	v, err := s.Salience(act)
	require.NoError(t, err)
	assert.Equal(t, kbase.DefaultSalience, v)
}

func TestSession_UpdateIsSeenByNextEvaluation(t *testing.T) {
	s := newTestSession(buildPersonPackage(t))

	h, err := s.Insert("Person", person(31))
	require.NoError(t, err)
	act, err := s.NewActivation("rule 1", h)
	require.NoError(t, err)

	require.NoError(t, s.Update(h, person(41)))
	v, err := s.Salience(act)
	require.NoError(t, err)
	assert.Equal(t, int64(30), v.Int64())
}

func TestSession_RetractedFactFailsExtraction(t *testing.T) {
	s := newTestSession(buildPersonPackage(t))

	h, err := s.Insert("Person", person(31))
	require.NoError(t, err)
	act, err := s.NewActivation("rule 1", h)
	require.NoError(t, err)
	require.NoError(t, s.Retract(h))

	_, err = s.Salience(act)
	require.Error(t, err)
	assert.True(t, salience.IsExtractionError(err))
	assert.True(t, errors.Is(err, rule.ErrRetracted))

	err = s.Retract(h)
	assert.True(t, IsSessionError(err, ErrCodeRetracted))
	_, err = s.NewActivation("rule 1", h)
	assert.True(t, IsSessionError(err, ErrCodeRetracted))
	assert.Empty(t, s.Facts())
}

func TestSession_MissingFieldIsExtractionError(t *testing.T) {
	s := newTestSession(buildPersonPackage(t))

	h, err := s.Insert("Person", ir.IRObject{"name": ir.IRString("no age")})
	require.NoError(t, err)
	act, err := s.NewActivation("rule 1", h)
	require.NoError(t, err)

	_, err = s.Salience(act)
	assert.True(t, salience.IsExtractionError(err))
}

func TestSession_InsertValidation(t *testing.T) {
	s := newTestSession(buildPersonPackage(t))

	_, err := s.Insert("Car", ir.IRObject{})
	assert.True(t, IsSessionError(err, ErrCodeUnknownType))

	_, err = s.Insert("Person", ir.IRObject{"age": ir.IRString("old")})
	assert.True(t, IsSessionError(err, ErrCodeInvalidFact))

	_, err = s.Insert("Person", ir.IRObject{"height": ir.IRInt(180)})
	assert.True(t, IsSessionError(err, ErrCodeInvalidFact))

	h, err := s.Insert("Person", person(20))
	require.NoError(t, err)
	err = s.Update(h, ir.IRObject{"vip": ir.IRInt(1)})
	assert.True(t, IsSessionError(err, ErrCodeInvalidFact))

	code, ok := SessionErrorCodeOf(err)
	assert.True(t, ok)
	assert.Equal(t, ErrCodeInvalidFact, code)
	assert.Contains(t, err.Error(), "session="+testutil.FixedSessionID)
}

func TestSession_InsertCopiesFields(t *testing.T) {
	s := newTestSession(buildPersonPackage(t))

	fields := person(31)
	h, err := s.Insert("Person", fields)
	require.NoError(t, err)
	fields["age"] = ir.IRInt(99)

	assert.Equal(t, ir.IRInt(31), h.Fact().Fields["age"])
}

func TestSession_NewActivationErrors(t *testing.T) {
	pkg := buildPersonPackage(t)
	s := newTestSession(pkg)

	p, err := s.Insert("Person", person(31))
	require.NoError(t, err)
	o, err := s.Insert("Order", ir.IRObject{"total": ir.IRFloat(1)})
	require.NoError(t, err)

	_, err = s.NewActivation("missing", p)
	assert.True(t, IsSessionError(err, ErrCodeUnknownRule))

	_, err = s.NewActivation("rule 1", p, o)
	assert.True(t, IsSessionError(err, ErrCodeArity))

	_, err = s.NewActivation("rule 1", o)
	assert.True(t, IsSessionError(err, ErrCodePatternType))

	_, err = s.NewActivation("big order", o, p)
	assert.True(t, IsSessionError(err, ErrCodePatternType))

	_, err = s.NewActivation("rule 1", nil)
	assert.True(t, IsSessionError(err, ErrCodeUnknownHandle))

	other := NewSession(pkg, WithSessionIDGenerator(NewFixedGenerator("other")), WithLogger(quietLogger()))
	foreign, err := other.Insert("Person", person(50))
	require.NoError(t, err)
	_, err = s.NewActivation("rule 1", foreign)
	assert.True(t, IsSessionError(err, ErrCodeUnknownHandle))
}

func TestSession_FactsOrderedByHandleID(t *testing.T) {
	s := newTestSession(buildPersonPackage(t))

	var handles []*rule.FactHandle
	for _, age := range []int64{5, 6, 7} {
		h, err := s.Insert("Person", person(age))
		require.NoError(t, err)
		handles = append(handles, h)
	}
	require.NoError(t, s.Retract(handles[1]))

	facts := s.Facts()
	require.Len(t, facts, 2)
	assert.Equal(t, int64(1), facts[0].ID())
	assert.Equal(t, int64(3), facts[1].ID())
}

func TestSession_RebuildIsSeenByExistingActivation(t *testing.T) {
	b, pkg := buildPackage(t, testutil.PersonPackage())
	s := newTestSession(pkg)

	h, err := s.Insert("Person", person(31))
	require.NoError(t, err)
	act, err := s.NewActivation("rule 1", h)
	require.NoError(t, err)

	next := testutil.PersonPackage()
	next.Rules[0].Salience = "p.age * 10"
	_, err = b.Build(pkg, next)
	require.NoError(t, err)

	v, err := s.Salience(act)
	require.NoError(t, err)
	assert.Equal(t, int64(310), v.Int64())

	// The rule loses its salience; the old activation has nothing to run.
	next.Rules[0].Salience = ""
	_, err = b.Build(pkg, next)
	require.NoError(t, err)

	_, err = s.Salience(act)
	assert.True(t, IsSessionError(err, ErrCodeMissingArtifact))

	fresh, err := s.NewActivation("rule 1", h)
	require.NoError(t, err)
	v, err = s.Salience(fresh)
	require.NoError(t, err)
	assert.Equal(t, kbase.DefaultSalience, v)
}
