package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/salience/internal/engine"
	"github.com/roach88/salience/internal/ir"
)

// StressOptions holds flags for the stress command.
type StressOptions struct {
	*RootOptions
	Package    string
	Rule       string
	Type       string
	Fields     []string // name=value or name=base:step
	Sessions   int
	Iterations int
}

// fieldGen produces the value of one field for session i.
type fieldGen struct {
	name  string
	value func(i int) ir.IRValue
}

// NewStressCommand creates the stress command.
func NewStressCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StressOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "stress <packages-dir>",
		Short: "Evaluate one rule's salience from many sessions at once",
		Long: `Build a package and evaluate one rule's salience concurrently from
many sessions sharing it. Each session inserts one fact of --type and
binds it to every pattern of the rule.

Fields are given as name=value for a constant, or name=base:step for a
number that grows by step with each session:

  salience stress ./rules --rule "rule 1" --type Person \
      --field name=ann --field age=10:1 --sessions 16

Exit codes:
  0 - Every evaluation succeeded and was stable
  1 - Some evaluation failed or changed between iterations
  2 - Command error (load failure, bad field spec, etc.)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStress(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Package, "package", "p", "", "package to build (default: the only package)")
	cmd.Flags().StringVarP(&opts.Rule, "rule", "r", "", "rule to evaluate")
	cmd.Flags().StringVarP(&opts.Type, "type", "t", "", "type of the fact each session inserts")
	cmd.Flags().StringArrayVarP(&opts.Fields, "field", "f", nil, "fact field as name=value or name=base:step (repeatable)")
	cmd.Flags().IntVar(&opts.Sessions, "sessions", 8, "number of concurrent sessions")
	cmd.Flags().IntVar(&opts.Iterations, "iterations", 1000, "evaluations per session")
	_ = cmd.MarkFlagRequired("rule")
	_ = cmd.MarkFlagRequired("type")

	return cmd
}

func runStress(opts *StressOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(cmd, opts.RootOptions)

	gens := make([]fieldGen, 0, len(opts.Fields))
	for _, spec := range opts.Fields {
		g, err := parseFieldSpec(spec)
		if err != nil {
			_ = formatter.Error(ErrCodeFacts, err.Error(), nil)
			return WrapExitError(ExitCommandError, "invalid --field", err)
		}
		gens = append(gens, g)
	}

	pkg, report, err := loadAndBuild(opts.RootOptions, formatter, dir, opts.Package)
	if err != nil {
		return err
	}
	if f, failed := report.Failure(opts.Rule); failed {
		_ = formatter.Error(ErrCodeRuleBuild, f.Error(), map[string]string{"code": string(f.Code)})
		return WrapExitError(ExitFailure, fmt.Sprintf("rule %q did not build", opts.Rule), f)
	}

	stress, err := engine.Stress(cmd.Context(), engine.StressConfig{
		Package:    pkg,
		Rule:       opts.Rule,
		Type:       opts.Type,
		Fact:       factFunc(gens),
		Sessions:   opts.Sessions,
		Iterations: opts.Iterations,
		Logger:     opts.Logger(),
	})
	if err != nil {
		return outputEvalError(formatter, ErrCodeStress, ExitCommandError, err)
	}

	if formatter.json() {
		if !stress.OK() {
			msg := fmt.Sprintf("%d error(s), %d mismatch(es)", stress.Errors, stress.Mismatches)
			if err := formatter.Failure(ErrCodeStress, msg, stress); err != nil {
				return err
			}
			return NewExitError(ExitFailure, msg)
		}
		return formatter.Success(stress)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "Rule %s: %d session(s) x %d iteration(s) in %s\n",
		stress.Rule, stress.Sessions, stress.Iterations, stress.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "  evaluations: %d\n", stress.Evaluations)
	fmt.Fprintf(w, "  errors:      %d\n", stress.Errors)
	fmt.Fprintf(w, "  mismatches:  %d\n", stress.Mismatches)
	if opts.Verbose {
		for _, r := range stress.Results {
			if r.Error != "" {
				fmt.Fprintf(w, "  %s: %s\n", r.Session, r.Error)
				continue
			}
			fmt.Fprintf(w, "  %s: %s\n", r.Session, r.Value)
		}
	}

	if !stress.OK() {
		fmt.Fprintln(w, "✗ Stress run failed")
		return NewExitError(ExitFailure, fmt.Sprintf("%d error(s), %d mismatch(es)", stress.Errors, stress.Mismatches))
	}
	fmt.Fprintln(w, "✓ Stress run passed")
	return nil
}

func factFunc(gens []fieldGen) func(i int) ir.IRObject {
	return func(i int) ir.IRObject {
		obj := make(ir.IRObject, len(gens))
		for _, g := range gens {
			obj[g.name] = g.value(i)
		}
		return obj
	}
}

// parseFieldSpec parses name=value or name=base:step. Constants are
// read as int, float, bool or string in that order; base:step requires
// numbers and stays int only if both are ints.
func parseFieldSpec(spec string) (fieldGen, error) {
	name, raw, ok := strings.Cut(spec, "=")
	if !ok || name == "" {
		return fieldGen{}, fmt.Errorf("field %q: want name=value or name=base:step", spec)
	}

	if baseRaw, stepRaw, ranged := strings.Cut(raw, ":"); ranged {
		if bi, err := strconv.ParseInt(baseRaw, 10, 64); err == nil {
			if si, err := strconv.ParseInt(stepRaw, 10, 64); err == nil {
				return fieldGen{name: name, value: func(i int) ir.IRValue {
					return ir.IRInt(bi + si*int64(i))
				}}, nil
			}
		}
		bf, err := strconv.ParseFloat(baseRaw, 64)
		if err != nil {
			return fieldGen{}, fmt.Errorf("field %q: base %q is not a number", spec, baseRaw)
		}
		sf, err := strconv.ParseFloat(stepRaw, 64)
		if err != nil {
			return fieldGen{}, fmt.Errorf("field %q: step %q is not a number", spec, stepRaw)
		}
		return fieldGen{name: name, value: func(i int) ir.IRValue {
			return ir.IRFloat(bf + sf*float64(i))
		}}, nil
	}

	v := parseScalar(raw)
	return fieldGen{name: name, value: func(int) ir.IRValue { return v }}, nil
}

func parseScalar(raw string) ir.IRValue {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return ir.IRInt(n)
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return ir.IRFloat(f)
	}
	switch raw {
	case "true":
		return ir.IRBool(true)
	case "false":
		return ir.IRBool(false)
	}
	return ir.IRString(raw)
}
