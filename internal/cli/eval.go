package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/salience/internal/engine"
	"github.com/roach88/salience/internal/ir"
	"github.com/roach88/salience/internal/rule"
	"github.com/roach88/salience/internal/salience"
)

// EvalOptions holds flags for the eval command.
type EvalOptions struct {
	*RootOptions
	Package string
	Rule    string
	Facts   string // YAML facts file
}

// FactsFile is the YAML document read by eval. Facts are inserted in
// order and bound to the rule's patterns in that same order.
type FactsFile struct {
	Facts []FactEntry `yaml:"facts"`
}

// FactEntry is one fact to insert.
type FactEntry struct {
	Type   string         `yaml:"type"`
	Fields map[string]any `yaml:"fields"`
}

// EvalResult is the outcome of one salience evaluation.
type EvalResult struct {
	Package  string         `json:"package"`
	Rule     string         `json:"rule"`
	Session  string         `json:"session"`
	Handles  []int64        `json:"handles"`
	Salience salience.Value `json:"salience"`
	Kind     string         `json:"kind"`
}

// NewEvalCommand creates the eval command.
func NewEvalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EvalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "eval <packages-dir>",
		Short: "Evaluate one rule's salience against facts",
		Long: `Build a package, insert the facts from a YAML file into a new session
and evaluate the salience of one rule over them.

The facts file lists facts in pattern order:

  facts:
    - type: Person
      fields: {name: ann, age: 31}

Exit codes:
  0 - Salience evaluated
  1 - The rule failed to build or evaluation failed
  2 - Command error (load failure, bad facts file, etc.)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Package, "package", "p", "", "package to build (default: the only package)")
	cmd.Flags().StringVarP(&opts.Rule, "rule", "r", "", "rule to evaluate")
	cmd.Flags().StringVar(&opts.Facts, "facts", "", "YAML file with the facts to insert")
	_ = cmd.MarkFlagRequired("rule")
	_ = cmd.MarkFlagRequired("facts")

	return cmd
}

func runEval(opts *EvalOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(cmd, opts.RootOptions)

	facts, err := readFactsFile(opts.Facts)
	if err != nil {
		_ = formatter.Error(ErrCodeFacts, err.Error(), nil)
		return WrapExitError(ExitCommandError, "reading facts", err)
	}

	pkg, report, err := loadAndBuild(opts.RootOptions, formatter, dir, opts.Package)
	if err != nil {
		return err
	}
	if f, failed := report.Failure(opts.Rule); failed {
		_ = formatter.Error(ErrCodeRuleBuild, f.Error(), map[string]string{"code": string(f.Code)})
		return WrapExitError(ExitFailure, fmt.Sprintf("rule %q did not build", opts.Rule), f)
	}

	sess := engine.NewSession(pkg, engine.WithLogger(opts.Logger()))
	handles := make([]*rule.FactHandle, 0, len(facts))
	for i, f := range facts {
		fields, err := ir.ObjectFromGo(f.Fields)
		if err != nil {
			err = fmt.Errorf("facts[%d]: %w", i, err)
			_ = formatter.Error(ErrCodeFacts, err.Error(), nil)
			return WrapExitError(ExitCommandError, "converting facts", err)
		}
		h, err := sess.Insert(f.Type, fields)
		if err != nil {
			return outputEvalError(formatter, ErrCodeFacts, ExitCommandError, fmt.Errorf("facts[%d]: %w", i, err))
		}
		formatter.Debug("inserted fact", "handle", h.ID(), "type", f.Type)
		handles = append(handles, h)
	}

	act, err := sess.NewActivation(opts.Rule, handles...)
	if err != nil {
		return outputEvalError(formatter, ErrCodeEvaluation, ExitFailure, err)
	}
	v, err := sess.Salience(act)
	if err != nil {
		return outputEvalError(formatter, ErrCodeEvaluation, ExitFailure, err)
	}

	result := EvalResult{
		Package:  pkg.Name(),
		Rule:     opts.Rule,
		Session:  sess.ID(),
		Handles:  make([]int64, len(handles)),
		Salience: v,
		Kind:     valueKind(v),
	}
	for i, h := range handles {
		result.Handles[i] = h.ID()
	}

	if formatter.json() {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "%s = %s (%s)\n", act, v, result.Kind)
	return nil
}

// readFactsFile decodes a facts file, rejecting unknown keys.
func readFactsFile(path string) ([]FactEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ff FactsFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&ff); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	for i, f := range ff.Facts {
		if f.Type == "" {
			return nil, fmt.Errorf("facts[%d]: type is required", i)
		}
	}
	return ff.Facts, nil
}

// outputEvalError reports a session or salience error with its code.
func outputEvalError(formatter *OutputFormatter, cliCode string, exitCode int, err error) error {
	details := map[string]string{"code": errorCodeOf(err)}
	_ = formatter.Error(cliCode, err.Error(), details)
	return WrapExitError(exitCode, details["code"], err)
}

// errorCodeOf returns the salience or session error code of err.
func errorCodeOf(err error) string {
	if code := salience.ErrorCode(err); code != "" {
		return code
	}
	if code, ok := engine.SessionErrorCodeOf(err); ok {
		return string(code)
	}
	return "ERROR"
}

func valueKind(v salience.Value) string {
	if v.IsInt() {
		return "int"
	}
	return "float"
}
