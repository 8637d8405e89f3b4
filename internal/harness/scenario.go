package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a salience test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Package is a directory of CUE sources, relative to the scenario
	// file. Exactly one of Package and Source is set.
	Package string `yaml:"package,omitempty"`

	// Source is inline CUE.
	Source string `yaml:"source,omitempty"`

	// Use selects the package to build when the sources define several.
	Use string `yaml:"use,omitempty"`

	// SessionID is an optional fixed session id. Defaults to
	// testutil.FixedSessionID.
	SessionID string `yaml:"session_id,omitempty"`

	// BuildErrors lists the rules expected to fail building. Any other
	// failure fails the scenario.
	BuildErrors []BuildErrorExpect `yaml:"build_errors,omitempty"`

	// Steps run in order against one session.
	Steps []Step `yaml:"steps"`

	// Assertions are checked after all steps.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// BuildErrorExpect names a rule and the code its build must fail with.
type BuildErrorExpect struct {
	Rule string `yaml:"rule"`
	Code string `yaml:"code"`
}

// Step is one session operation. Exactly one field is set.
// Facts and activations are referred to by their labels.
type Step struct {
	Insert   *InsertStep   `yaml:"insert,omitempty"`
	Update   *UpdateStep   `yaml:"update,omitempty"`
	Retract  string        `yaml:"retract,omitempty"`
	Activate *ActivateStep `yaml:"activate,omitempty"`
	Evaluate *EvaluateStep `yaml:"evaluate,omitempty"`
}

// InsertStep inserts a fact and labels its handle.
type InsertStep struct {
	Fact   string         `yaml:"fact"`
	Type   string         `yaml:"type"`
	Fields map[string]any `yaml:"fields"`
}

// UpdateStep replaces the fields of a labeled fact.
type UpdateStep struct {
	Fact   string         `yaml:"fact"`
	Fields map[string]any `yaml:"fields"`
}

// ActivateStep binds labeled facts to a rule and evaluates its salience.
type ActivateStep struct {
	// Name labels the activation for assertions. Defaults to the rule name.
	Name  string   `yaml:"name,omitempty"`
	Rule  string   `yaml:"rule"`
	Facts []string `yaml:"facts"`

	Expectation `yaml:",inline"`
}

// EvaluateStep evaluates an existing activation again, typically after
// its facts were updated or retracted.
type EvaluateStep struct {
	Activation string `yaml:"activation"`

	Expectation `yaml:",inline"`
}

// Expectation is the outcome an evaluation must have. With neither field
// set, any successful evaluation passes.
type Expectation struct {
	// Expect is the expected salience. An integer expects an int result,
	// a number with a fraction or exponent a float result.
	Expect any `yaml:"expect,omitempty"`

	// ExpectError is the expected error code, e.g. DIVISION_BY_ZERO.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Label returns the activation's name for assertions.
func (a *ActivateStep) Label() string {
	if a.Name != "" {
		return a.Name
	}
	return a.Rule
}

// Assertion checks a property across activations.
type Assertion struct {
	// Type specifies the assertion type:
	// - "order": Activations have non-increasing salience, as the agenda
	//   would fire them
	// - "equal": Activations have the same salience
	// - "error_count": exactly Count activations failed
	Type string `yaml:"type"`

	// Activations names activations (used by order and equal).
	Activations []string `yaml:"activations,omitempty"`

	// Count is the expected number of failures (used by error_count).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertOrder      = "order"
	AssertEqual      = "equal"
	AssertErrorCount = "error_count"
)

// LoadScenario reads and parses a scenario YAML file. A relative Package
// path is resolved against the file's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.Package != "" && !filepath.IsAbs(scenario.Package) {
		scenario.Package = filepath.Join(filepath.Dir(path), scenario.Package)
	}
	if scenario.Package != "" {
		if _, err := os.Stat(scenario.Package); err != nil {
			return nil, fmt.Errorf("invalid scenario: package directory: %w", err)
		}
	}
	return scenario, nil
}

// ParseScenario parses scenario YAML. Package paths are left as written.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if (s.Package == "") == (s.Source == "") {
		return fmt.Errorf("exactly one of package and source is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, be := range s.BuildErrors {
		if be.Rule == "" || be.Code == "" {
			return fmt.Errorf("build_errors[%d]: rule and code are required", i)
		}
	}

	labels := make(map[string]bool)
	activations := make(map[string]bool)
	for i, step := range s.Steps {
		if err := validateStep(i, step, labels, activations); err != nil {
			return err
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a, activations); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, step Step, facts, activations map[string]bool) error {
	set := 0
	if step.Insert != nil {
		set++
	}
	if step.Update != nil {
		set++
	}
	if step.Retract != "" {
		set++
	}
	if step.Activate != nil {
		set++
	}
	if step.Evaluate != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("steps[%d]: exactly one of insert, update, retract, activate, evaluate is required", i)
	}

	switch {
	case step.Insert != nil:
		if step.Insert.Fact == "" || step.Insert.Type == "" {
			return fmt.Errorf("steps[%d].insert: fact and type are required", i)
		}
		if facts[step.Insert.Fact] {
			return fmt.Errorf("steps[%d].insert: fact %q already inserted", i, step.Insert.Fact)
		}
		facts[step.Insert.Fact] = true
	case step.Update != nil:
		if !facts[step.Update.Fact] {
			return fmt.Errorf("steps[%d].update: unknown fact %q", i, step.Update.Fact)
		}
	case step.Retract != "":
		if !facts[step.Retract] {
			return fmt.Errorf("steps[%d].retract: unknown fact %q", i, step.Retract)
		}
	case step.Activate != nil:
		a := step.Activate
		if a.Rule == "" {
			return fmt.Errorf("steps[%d].activate: rule is required", i)
		}
		for _, f := range a.Facts {
			if !facts[f] {
				return fmt.Errorf("steps[%d].activate: unknown fact %q", i, f)
			}
		}
		if a.Expect != nil && a.ExpectError != "" {
			return fmt.Errorf("steps[%d].activate: expect and expect_error are exclusive", i)
		}
		if activations[a.Label()] {
			return fmt.Errorf("steps[%d].activate: duplicate activation name %q", i, a.Label())
		}
		activations[a.Label()] = true
	case step.Evaluate != nil:
		e := step.Evaluate
		if !activations[e.Activation] {
			return fmt.Errorf("steps[%d].evaluate: unknown activation %q", i, e.Activation)
		}
		if e.Expect != nil && e.ExpectError != "" {
			return fmt.Errorf("steps[%d].evaluate: expect and expect_error are exclusive", i)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, activations map[string]bool) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertOrder, AssertEqual:
		if len(a.Activations) < 2 {
			return fmt.Errorf("assertions[%d]: %s needs at least two activations", index, a.Type)
		}
		for _, name := range a.Activations {
			if !activations[name] {
				return fmt.Errorf("assertions[%d]: unknown activation %q", index, name)
			}
		}
	case AssertErrorCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for error_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
