package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/salience/internal/salience"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nActivations:\n")
		for _, ev := range e.Trace {
			if ev.Type != EventActivate && ev.Type != EventEvaluate {
				continue
			}
			outcome := ev.Salience
			if ev.Error != "" {
				outcome = ev.Error
			}
			fmt.Fprintf(&buf, "  [%d] %s %s %v = %s\n", ev.Step, ev.Name, ev.Rule, ev.Handles, outcome)
		}
	}

	return buf.String()
}

// EvaluateAssertions checks every assertion and returns the failure
// messages. values holds the latest salience of each activation.
func EvaluateAssertions(result *Result, values map[string]salience.Value, assertions []Assertion) []string {
	var errs []string
	for _, a := range assertions {
		var err error
		switch a.Type {
		case AssertOrder:
			err = assertOrder(result.Trace, values, a)
		case AssertEqual:
			err = assertEqual(result.Trace, values, a)
		case AssertErrorCount:
			err = assertErrorCount(result.Trace, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

// lookup returns the values of the named activations or the first name
// without a value.
func lookup(values map[string]salience.Value, names []string) ([]salience.Value, string) {
	out := make([]salience.Value, len(names))
	for i, name := range names {
		v, ok := values[name]
		if !ok {
			return nil, name
		}
		out[i] = v
	}
	return out, ""
}

// assertOrder checks that the activations would fire in the listed
// order: each salience is at least the next one.
func assertOrder(trace []TraceEvent, values map[string]salience.Value, a Assertion) error {
	vals, missing := lookup(values, a.Activations)
	if missing != "" {
		return &AssertionError{
			Type:     AssertOrder,
			Expected: fmt.Sprintf("salience for every activation in %v", a.Activations),
			Actual:   fmt.Sprintf("%s has no salience", missing),
			Trace:    trace,
		}
	}

	for i := 1; i < len(vals); i++ {
		if vals[i-1].Compare(vals[i]) < 0 {
			return &AssertionError{
				Type:     AssertOrder,
				Expected: fmt.Sprintf("activations in firing order: %v", a.Activations),
				Actual: fmt.Sprintf("%s (%s) ranks below %s (%s)",
					a.Activations[i-1], vals[i-1], a.Activations[i], vals[i]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertEqual checks that the activations tie.
func assertEqual(trace []TraceEvent, values map[string]salience.Value, a Assertion) error {
	vals, missing := lookup(values, a.Activations)
	if missing != "" {
		return &AssertionError{
			Type:     AssertEqual,
			Expected: fmt.Sprintf("salience for every activation in %v", a.Activations),
			Actual:   fmt.Sprintf("%s has no salience", missing),
			Trace:    trace,
		}
	}

	for i := 1; i < len(vals); i++ {
		if vals[0].Compare(vals[i]) != 0 {
			return &AssertionError{
				Type:     AssertEqual,
				Expected: fmt.Sprintf("equal salience for %v", a.Activations),
				Actual:   fmt.Sprintf("%s is %s, %s is %s", a.Activations[0], vals[0], a.Activations[i], vals[i]),
				Trace:    trace,
			}
		}
	}
	return nil
}

// assertErrorCount checks the number of failed evaluations.
func assertErrorCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if (ev.Type == EventActivate || ev.Type == EventEvaluate) && ev.Error != "" {
			count++
		}
	}

	if count != a.Count {
		return &AssertionError{
			Type:     AssertErrorCount,
			Expected: fmt.Sprintf("%d failed evaluations", a.Count),
			Actual:   fmt.Sprintf("%d failed evaluations", count),
			Trace:    trace,
		}
	}
	return nil
}
