package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/salience/internal/ir"
	"github.com/roach88/salience/internal/kbase"
	"github.com/roach88/salience/internal/store"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Database string // store path; empty skips persisting
	Package  string // build only this package
}

// CompilationResult lists the outcome for every package built.
type CompilationResult struct {
	Packages []PackageSummary `json:"packages"`
}

// PackageSummary is the build outcome of one package.
type PackageSummary struct {
	Name     string        `json:"name"`
	Hash     string        `json:"hash"`
	Seq      int64         `json:"seq,omitempty"`
	Built    []string      `json:"built"`
	Failures []RuleFailure `json:"failures,omitempty"`
}

// RuleFailure is one rule left out of a package.
type RuleFailure struct {
	Rule    string `json:"rule"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// FailureCount returns the number of rules that failed across packages.
func (r *CompilationResult) FailureCount() int {
	n := 0
	for _, p := range r.Packages {
		n += len(p.Failures)
	}
	return n
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <packages-dir>",
		Short: "Compile and build rule packages",
		Long: `Compile the CUE rule packages in a directory and build every rule's
salience expression.

Rules whose salience does not compile are reported with their error
code and left out of the package. With --db the package descriptor and
the per-rule outcome are saved to a SQLite store.

Exit codes:
  0 - Every rule built
  1 - One or more rules failed to build
  2 - Command error (load failure, unreadable store, etc.)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite store to save built packages to")
	cmd.Flags().StringVarP(&opts.Package, "package", "p", "", "build only the named package")

	return cmd
}

func runCompile(ctx context.Context, opts *CompileOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(cmd, opts.RootOptions)

	descrs, err := loadDescriptors(formatter, dir)
	if err != nil {
		return err
	}
	if opts.Package != "" {
		descr, err := selectDescriptor(formatter, descrs, opts.Package)
		if err != nil {
			return err
		}
		descrs = []*ir.PackageDescr{descr}
	}

	var st *store.Store
	if opts.Database != "" {
		st, err = store.Open(opts.Database)
		if err != nil {
			_ = formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "opening store", err)
		}
		defer st.Close()
	}

	result := &CompilationResult{Packages: make([]PackageSummary, 0, len(descrs))}
	for _, descr := range descrs {
		formatter.Debug("building package", "package", descr.Name)
		_, report, err := buildDescriptor(descr, opts.Logger())
		if err != nil {
			_ = formatter.Error(ErrCodePackageBuild, err.Error(), nil)
			return WrapExitError(ExitCommandError, fmt.Sprintf("building package %s", descr.Name), err)
		}

		summary := summarizeBuild(report)
		if st != nil {
			rec, err := st.SavePackage(ctx, descr, report)
			if err != nil {
				_ = formatter.Error(ErrCodeStore, err.Error(), nil)
				return WrapExitError(ExitCommandError, "saving package", err)
			}
			summary.Seq = rec.Seq
		}
		result.Packages = append(result.Packages, summary)
	}

	return outputCompileResult(formatter, result, opts.Database)
}

// summarizeBuild converts a build report for output.
func summarizeBuild(report *kbase.BuildReport) PackageSummary {
	summary := PackageSummary{
		Name:  report.Package,
		Hash:  report.Hash,
		Built: append([]string{}, report.Built...),
	}
	for _, f := range report.Failures {
		msg := f.Error()
		if f.Err != nil {
			msg = f.Err.Error()
		}
		summary.Failures = append(summary.Failures, RuleFailure{
			Rule:    f.Rule,
			Code:    string(f.Code),
			Message: msg,
		})
	}
	return summary
}

func outputCompileResult(formatter *OutputFormatter, result *CompilationResult, database string) error {
	failed := result.FailureCount()
	if formatter.json() {
		if failed > 0 {
			msg := fmt.Sprintf("%d rule(s) failed to build", failed)
			if err := formatter.Failure(ErrCodeRuleBuild, msg, result); err != nil {
				return err
			}
			return NewExitError(ExitFailure, msg)
		}
		return formatter.Success(result)
	}

	w := formatter.Writer
	for _, p := range result.Packages {
		fmt.Fprintf(w, "Package %s (%s)\n", p.Name, shortHash(p.Hash))
		for _, name := range p.Built {
			fmt.Fprintf(w, "  ✓ %s\n", name)
		}
		for _, f := range p.Failures {
			fmt.Fprintf(w, "  ✗ %s: %s: %s\n", f.Rule, f.Code, f.Message)
		}
		fmt.Fprintln(w)
	}
	if database != "" {
		fmt.Fprintf(w, "Saved %d package(s) to %s\n", len(result.Packages), database)
	}

	if failed > 0 {
		fmt.Fprintf(w, "✗ %d rule(s) failed to build\n", failed)
		return NewExitError(ExitFailure, fmt.Sprintf("%d rule(s) failed to build", failed))
	}
	fmt.Fprintf(w, "✓ Compiled %d package(s)\n", len(result.Packages))
	return nil
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
