package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name))
	require.NoError(t, err)
	return s
}

func TestRun_Priorities(t *testing.T) {
	result, err := Run(loadTestScenario(t, "priorities.yaml"))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	assert.Equal(t, "orders", result.Build.Package)
	assert.Len(t, result.Build.Hash, 64)
	assert.Equal(t, []string{"rule 1", "big order", "ratio", "plain"}, result.Build.Built)
	assert.Equal(t, []BuildFailure{
		{Rule: "broken", Code: "SYNTAX_ERROR"},
		{Rule: "not bound", Code: "UNBOUND_VARIABLE"},
	}, result.Build.Failures)

	evals := result.Evaluations("ann-1")
	require.Len(t, evals, 2)
	assert.Equal(t, "25", evals[0].Salience)
	assert.Equal(t, "60", evals[1].Salience)

	bob := result.Evaluations("bob-1")
	require.Len(t, bob, 2)
	assert.Equal(t, "EXTRACTION_ERROR", bob[1].Error)
}

func TestRun_RuntimeErrors(t *testing.T) {
	result, err := Run(loadTestScenario(t, "runtime_errors.yaml"))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	zero := result.Evaluations("zero-float")
	require.Len(t, zero, 1)
	assert.Equal(t, "+Inf", zero[0].Salience)
	assert.Equal(t, "float", zero[0].Kind)
}

func runInline(t *testing.T, steps string, extra string) *Result {
	t.Helper()
	src := `
name: inline
description: inline scenario
source: |
  pkg: p: {
    type: T: {n: int, x: float}
    rule: r: {
      salience: "t.n * 2"
      when: [{pattern: {bind: "t", type: "T"}}]
    }
    rule: half: {
      salience: "t.x / 2"
      when: [{pattern: {bind: "t", type: "T"}}]
    }
  }
` + extra + "steps:\n" + steps
	s, err := ParseScenario([]byte(src))
	require.NoError(t, err)
	result, err := Run(s)
	require.NoError(t, err)
	return result
}

func TestRun_ReportsWrongSalience(t *testing.T) {
	result := runInline(t, `
  - insert: {fact: a, type: T, fields: {n: 3}}
  - activate: {rule: r, facts: [a], expect: 7}
`, "")
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected salience 7 (int), got 6 (int)")
}

func TestRun_IntAndFloatExpectationsAreDistinct(t *testing.T) {
	result := runInline(t, `
  - insert: {fact: a, type: T, fields: {n: 3, x: 12}}
  - activate: {name: int-as-float, rule: r, facts: [a], expect: 6.0}
  - activate: {name: float-as-int, rule: half, facts: [a], expect: 6}
  - activate: {name: float, rule: half, facts: [a], expect: 6.0}
`, "")
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "int-as-float")
	assert.Contains(t, result.Errors[1], "float-as-int")
}

func TestRun_ReportsUnexpectedErrors(t *testing.T) {
	result := runInline(t, `
  - insert: {fact: a, type: T, fields: {x: 1.5}}
  - activate: {name: missing-n, rule: r, facts: [a]}
  - activate: {name: wrong-code, rule: r, facts: [a], expect_error: DIVISION_BY_ZERO}
  - activate: {name: no-error, rule: half, facts: [a], expect_error: DIVISION_BY_ZERO}
`, "")
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], "unexpected error")
	assert.Contains(t, result.Errors[1], "expected error DIVISION_BY_ZERO, got EXTRACTION_ERROR")
	assert.Contains(t, result.Errors[2], "expected error DIVISION_BY_ZERO, got 0.75")
}

func TestRun_SessionErrorsAreTraced(t *testing.T) {
	result := runInline(t, `
  - insert: {fact: a, type: T, fields: {n: "three"}}
  - insert: {fact: b, type: T, fields: {n: 1}}
  - retract: b
  - update: {fact: b, fields: {n: 2}}
`, "")
	assert.False(t, result.Pass)
	require.Len(t, result.Trace, 4)
	assert.Equal(t, "INVALID_FACT", result.Trace[0].Error)
	assert.Empty(t, result.Trace[2].Error)
	assert.Equal(t, "RETRACTED", result.Trace[3].Error)
	assert.Len(t, result.Errors, 2)
}

func TestRun_UnexpectedAndMissingBuildErrors(t *testing.T) {
	result := runInline(t, `
  - insert: {fact: a, type: T, fields: {n: 1}}
`, "build_errors:\n  - {rule: r, code: SYNTAX_ERROR}\n")
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], `rule "r": expected build error SYNTAX_ERROR, but it built`)
}

func TestRun_AssertionFailures(t *testing.T) {
	result := runInline(t, `
  - insert: {fact: a, type: T, fields: {n: 1, x: 10}}
  - activate: {name: low, rule: r, facts: [a]}
  - activate: {name: high, rule: half, facts: [a]}
`, "assertions:\n  - {type: order, activations: [low, high]}\n  - {type: equal, activations: [low, high]}\n  - {type: error_count, count: 1}\n")
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.True(t, strings.HasPrefix(result.Errors[0], "Assertion failed: order"))
	assert.Contains(t, result.Errors[0], "low (2) ranks below high (5)")
	assert.Contains(t, result.Errors[1], "Assertion failed: equal")
	assert.Contains(t, result.Errors[2], "1 failed evaluations")
}

func TestRun_LoadFailures(t *testing.T) {
	s := &Scenario{
		Name:        "bad",
		Description: "d",
		Source:      "pkg: {",
		Steps:       []Step{{Retract: "a"}},
	}
	_, err := Run(s)
	require.Error(t, err)

	s.Source = "pkg: a: {}\npkg: b: {}\n"
	_, err = Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "set use")

	s.Use = "c"
	_, err = Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no package "c"`)
}
