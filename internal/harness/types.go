package harness

// Trace event types.
const (
	EventInsert   = "insert"
	EventUpdate   = "update"
	EventRetract  = "retract"
	EventActivate = "activate"
	EventEvaluate = "evaluate"
)

// TraceEvent records one executed step.
type TraceEvent struct {
	Step    int     `json:"step"`
	Type    string  `json:"type"`
	Fact    string  `json:"fact,omitempty"`
	Handle  int64   `json:"handle,omitempty"`
	Name    string  `json:"name,omitempty"`
	Rule    string  `json:"rule,omitempty"`
	Handles []int64 `json:"handles,omitempty"`

	// Salience is the evaluated value in its printed form, so that
	// snapshots never carry floats.
	Salience string `json:"salience,omitempty"`

	// Kind is "int" or "float" for a successful evaluation.
	Kind string `json:"kind,omitempty"`

	// Error is the error code of a failed step.
	Error string `json:"error,omitempty"`
}

// BuildSummary is the outcome of building the scenario's package, as
// read back from the store.
type BuildSummary struct {
	Package  string         `json:"package"`
	Hash     string         `json:"hash"`
	Built    []string       `json:"built"`
	Failures []BuildFailure `json:"failures,omitempty"`
}

// BuildFailure is one rule that failed to build.
type BuildFailure struct {
	Rule string `json:"rule"`
	Code string `json:"code"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	Pass bool `json:"pass"`

	Build BuildSummary `json:"build"`

	// Trace contains every executed step in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Evaluations returns the activate and evaluate events of the named
// activation in step order.
func (r *Result) Evaluations(name string) []TraceEvent {
	var out []TraceEvent
	for _, ev := range r.Trace {
		if (ev.Type == EventActivate || ev.Type == EventEvaluate) && ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}
