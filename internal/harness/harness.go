package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/salience/internal/compiler"
	"github.com/roach88/salience/internal/engine"
	"github.com/roach88/salience/internal/ir"
	"github.com/roach88/salience/internal/kbase"
	"github.com/roach88/salience/internal/rule"
	"github.com/roach88/salience/internal/salience"
	"github.com/roach88/salience/internal/store"
	"github.com/roach88/salience/internal/testutil"
)

// Harness executes one scenario's steps against a session.
type Harness struct {
	session     *engine.Session
	facts       map[string]*rule.FactHandle
	activations map[string]*engine.Activation

	// values holds the latest salience of each activation by name.
	values map[string]salience.Value
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Deterministic helpers ensure reproducible results.
//
// Execution flow:
// 1. Load the CUE sources and select the package
// 2. Build it, save it and its rule builds, and check build_errors
// 3. Execute steps on a fresh session
// 4. Evaluate assertions
//
// A returned error means the scenario could not run; failed expectations
// are reported in the Result.
func Run(scenario *Scenario) (*Result, error) {
	descr, err := loadPackage(scenario)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	builder := kbase.NewBuilder(kbase.WithLogger(logger))
	pkg := builder.NewPackage(descr.Name)
	report, err := builder.Build(pkg, descr)
	if err != nil {
		return nil, fmt.Errorf("failed to build package: %w", err)
	}

	result := NewResult()
	if err := recordBuild(ctx, st, descr, report, result); err != nil {
		return nil, err
	}
	checkBuildErrors(scenario.BuildErrors, result)

	h := &Harness{
		session: engine.NewSession(pkg,
			engine.WithSessionIDGenerator(testutil.NewFixedSessionIDs(scenario.SessionID)),
			engine.WithClock(testutil.NewHandleClock()),
			engine.WithLogger(logger)),
		facts:       make(map[string]*rule.FactHandle),
		activations: make(map[string]*engine.Activation),
		values:      make(map[string]salience.Value),
	}

	for i, step := range scenario.Steps {
		if err := h.executeStep(i, step, result); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	for _, msg := range EvaluateAssertions(result, h.values, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func loadPackage(s *Scenario) (*ir.PackageDescr, error) {
	var (
		loaded *compiler.LoadResult
		errs   []error
	)
	if s.Package != "" {
		loaded, errs = compiler.LoadPackages(s.Package, compiler.LoadModeCollectAll)
	} else {
		loaded, errs = compiler.LoadString(s.Source)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("failed to load package: %w", errors.Join(errs...))
	}

	if s.Use != "" {
		descr, ok := loaded.Package(s.Use)
		if !ok {
			return nil, fmt.Errorf("sources define no package %q", s.Use)
		}
		return descr, nil
	}
	if len(loaded.Packages) != 1 {
		return nil, fmt.Errorf("sources define %d packages; set use", len(loaded.Packages))
	}
	return loaded.Packages[0], nil
}

// recordBuild saves the build and reads the outcome back, so the summary
// reflects what a later run would load.
func recordBuild(ctx context.Context, st *store.Store, descr *ir.PackageDescr, report *kbase.BuildReport, result *Result) error {
	rec, err := st.SavePackage(ctx, descr, report)
	if err != nil {
		return fmt.Errorf("failed to save package: %w", err)
	}
	builds, err := st.RuleBuilds(ctx, rec.Name, rec.Hash)
	if err != nil {
		return fmt.Errorf("failed to read rule builds: %w", err)
	}

	result.Build = BuildSummary{Package: rec.Name, Hash: rec.Hash, Built: []string{}}
	for _, b := range builds {
		if b.Built() {
			result.Build.Built = append(result.Build.Built, b.Rule)
			continue
		}
		result.Build.Failures = append(result.Build.Failures, BuildFailure{Rule: b.Rule, Code: b.Code})
	}
	return nil
}

func checkBuildErrors(expected []BuildErrorExpect, result *Result) {
	want := make(map[string]string, len(expected))
	for _, be := range expected {
		want[be.Rule] = be.Code
	}
	for _, f := range result.Build.Failures {
		code, ok := want[f.Rule]
		switch {
		case !ok:
			result.AddError(fmt.Sprintf("rule %q failed to build: %s", f.Rule, f.Code))
		case code != f.Code:
			result.AddError(fmt.Sprintf("rule %q: expected build error %s, got %s", f.Rule, code, f.Code))
		}
		delete(want, f.Rule)
	}
	for _, be := range expected {
		if _, missing := want[be.Rule]; missing {
			result.AddError(fmt.Sprintf("rule %q: expected build error %s, but it built", be.Rule, be.Code))
		}
	}
}

func (h *Harness) executeStep(i int, step Step, result *Result) error {
	switch {
	case step.Insert != nil:
		return h.insert(i, step.Insert, result)
	case step.Update != nil:
		return h.update(i, step.Update, result)
	case step.Retract != "":
		return h.retract(i, step.Retract, result)
	case step.Activate != nil:
		h.activate(i, step.Activate, result)
	default:
		h.evaluate(i, step.Evaluate, result)
	}
	return nil
}

func (h *Harness) insert(i int, s *InsertStep, result *Result) error {
	fields, err := convertFields(s.Fields)
	if err != nil {
		return err
	}
	ev := TraceEvent{Step: i, Type: EventInsert, Fact: s.Fact}
	fh, err := h.session.Insert(s.Type, fields)
	if err != nil {
		ev.Error = errorCode(err)
		result.AddError(fmt.Sprintf("insert %s: %v", s.Fact, err))
	} else {
		h.facts[s.Fact] = fh
		ev.Handle = fh.ID()
	}
	result.Trace = append(result.Trace, ev)
	return nil
}

func (h *Harness) update(i int, s *UpdateStep, result *Result) error {
	fields, err := convertFields(s.Fields)
	if err != nil {
		return err
	}
	ev := TraceEvent{Step: i, Type: EventUpdate, Fact: s.Fact}
	if fh, ok := h.facts[s.Fact]; ok {
		ev.Handle = fh.ID()
		if err := h.session.Update(fh, fields); err != nil {
			ev.Error = errorCode(err)
			result.AddError(fmt.Sprintf("update %s: %v", s.Fact, err))
		}
	} else {
		ev.Error = string(engine.ErrCodeUnknownHandle)
		result.AddError(fmt.Sprintf("update %s: fact was never inserted", s.Fact))
	}
	result.Trace = append(result.Trace, ev)
	return nil
}

func (h *Harness) retract(i int, fact string, result *Result) error {
	ev := TraceEvent{Step: i, Type: EventRetract, Fact: fact}
	if fh, ok := h.facts[fact]; ok {
		ev.Handle = fh.ID()
		if err := h.session.Retract(fh); err != nil {
			ev.Error = errorCode(err)
			result.AddError(fmt.Sprintf("retract %s: %v", fact, err))
		}
	} else {
		ev.Error = string(engine.ErrCodeUnknownHandle)
		result.AddError(fmt.Sprintf("retract %s: fact was never inserted", fact))
	}
	result.Trace = append(result.Trace, ev)
	return nil
}

// activate binds the labeled facts to a rule and evaluates it. A failed
// activation is traced and checked like a failed evaluation.
func (h *Harness) activate(i int, s *ActivateStep, result *Result) {
	ev := TraceEvent{Step: i, Type: EventActivate, Name: s.Label(), Rule: s.Rule}

	handles := make([]*rule.FactHandle, 0, len(s.Facts))
	for _, f := range s.Facts {
		fh := h.facts[f]
		handles = append(handles, fh)
		if fh != nil {
			ev.Handles = append(ev.Handles, fh.ID())
		}
	}

	var v salience.Value
	act, err := h.session.NewActivation(s.Rule, handles...)
	if err == nil {
		h.activations[ev.Name] = act
		v, err = h.session.Salience(act)
	}
	h.record(&ev, v, err, s.Expectation, result)
}

// evaluate runs an existing activation again.
func (h *Harness) evaluate(i int, s *EvaluateStep, result *Result) {
	ev := TraceEvent{Step: i, Type: EventEvaluate, Name: s.Activation}

	act, ok := h.activations[s.Activation]
	if !ok {
		ev.Error = "NO_ACTIVATION"
		result.Trace = append(result.Trace, ev)
		result.AddError(fmt.Sprintf("evaluate %s: activation was not created", s.Activation))
		return
	}
	ev.Rule = act.Rule().Name()
	for _, fh := range act.Tuple().Handles() {
		ev.Handles = append(ev.Handles, fh.ID())
	}

	v, err := h.session.Salience(act)
	h.record(&ev, v, err, s.Expectation, result)
}

// record traces an evaluation and checks it against want. The latest
// successful value of each activation feeds the assertions.
func (h *Harness) record(ev *TraceEvent, v salience.Value, err error, want Expectation, result *Result) {
	if err != nil {
		ev.Error = errorCode(err)
		delete(h.values, ev.Name)
	} else {
		ev.Salience = v.String()
		ev.Kind = valueKind(v)
		h.values[ev.Name] = v
	}
	result.Trace = append(result.Trace, *ev)

	if msg := checkExpectation(want, v, err); msg != "" {
		result.AddError(fmt.Sprintf("%s %s (step %d): %s", ev.Type, ev.Name, ev.Step, msg))
	}
}

func checkExpectation(s Expectation, v salience.Value, err error) string {
	switch {
	case s.ExpectError != "":
		if err == nil {
			return fmt.Sprintf("expected error %s, got %s", s.ExpectError, v)
		}
		if code := errorCode(err); code != s.ExpectError {
			return fmt.Sprintf("expected error %s, got %s (%v)", s.ExpectError, code, err)
		}
	case err != nil:
		return fmt.Sprintf("unexpected error: %v", err)
	case s.Expect != nil:
		want, convErr := expectedValue(s.Expect)
		if convErr != nil {
			return convErr.Error()
		}
		if want.IsInt() != v.IsInt() || want.Compare(v) != 0 {
			return fmt.Sprintf("expected salience %s (%s), got %s (%s)", want, valueKind(want), v, valueKind(v))
		}
	}
	return ""
}

func expectedValue(raw any) (salience.Value, error) {
	iv, err := ir.FromGo(raw)
	if err != nil {
		return salience.Value{}, fmt.Errorf("invalid expect: %w", err)
	}
	switch n := iv.(type) {
	case ir.IRInt:
		return salience.IntValue(int64(n)), nil
	case ir.IRFloat:
		return salience.FloatValue(float64(n)), nil
	}
	return salience.Value{}, fmt.Errorf("invalid expect: %v is not a number", raw)
}

func valueKind(v salience.Value) string {
	if v.IsInt() {
		return "int"
	}
	return "float"
}

// errorCode returns the code of a salience or session error.
func errorCode(err error) string {
	if code := salience.ErrorCode(err); code != "" {
		return code
	}
	if code, ok := engine.SessionErrorCodeOf(err); ok {
		return string(code)
	}
	return "ERROR"
}

func convertFields(m map[string]any) (ir.IRObject, error) {
	if m == nil {
		return ir.IRObject{}, nil
	}
	obj, err := ir.ObjectFromGo(m)
	if err != nil {
		return nil, fmt.Errorf("convert fields: %w", err)
	}
	return obj, nil
}
