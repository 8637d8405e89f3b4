package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/salience/internal/ir"
)

// TraceSnapshot captures the build outcome and trace of a scenario.
// It is serialized as canonical JSON for deterministic comparison. The
// package hash is left out so golden files survive descriptor format
// changes that do not affect evaluation.
type TraceSnapshot struct {
	ScenarioName string
	SessionID    string
	Build        BuildSummary
	Trace        []TraceEvent
}

// toCanonicalMap converts the snapshot to a map[string]any, which is
// what ir.MarshalCanonical accepts.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		m := map[string]any{
			"step": int64(ev.Step),
			"type": ev.Type,
		}
		setString(m, "fact", ev.Fact)
		setString(m, "name", ev.Name)
		setString(m, "rule", ev.Rule)
		setString(m, "salience", ev.Salience)
		setString(m, "kind", ev.Kind)
		setString(m, "error", ev.Error)
		if ev.Handle != 0 {
			m["handle"] = ev.Handle
		}
		if len(ev.Handles) > 0 {
			handles := make([]any, len(ev.Handles))
			for j, h := range ev.Handles {
				handles[j] = h
			}
			m["handles"] = handles
		}
		traceList[i] = m
	}

	built := make([]any, len(s.Build.Built))
	for i, name := range s.Build.Built {
		built[i] = name
	}
	failures := make([]any, len(s.Build.Failures))
	for i, f := range s.Build.Failures {
		failures[i] = map[string]any{"rule": f.Rule, "code": f.Code}
	}

	result := map[string]any{
		"scenario_name": s.ScenarioName,
		"build": map[string]any{
			"package":  s.Build.Package,
			"built":    built,
			"failures": failures,
		},
		"trace": traceList,
	}
	setString(result, "session_id", s.SessionID)
	return result
}

func setString(m map[string]any, key, val string) {
	if val != "" {
		m[key] = val
	}
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails. Test failure (via goldie)
// occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, scenario.SessionID, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, name, sessionID string, result *Result) error {
	t.Helper()

	data, err := Snapshot(name, sessionID, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}

// Snapshot returns the canonical golden bytes for a scenario result.
func Snapshot(name, sessionID string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{
		ScenarioName: name,
		SessionID:    sessionID,
		Build:        result.Build,
		Trace:        result.Trace,
	}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}
