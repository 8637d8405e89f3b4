package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"cuelang.org/go/cue/token"

	"github.com/roach88/salience/internal/compiler"
	"github.com/roach88/salience/internal/ir"
	"github.com/roach88/salience/internal/kbase"
)

// loadDescriptors compiles every package under dir. Any load or compile
// error is a command error; it is written through formatter and returned
// as an *ExitError.
func loadDescriptors(formatter *OutputFormatter, dir string) ([]*ir.PackageDescr, error) {
	result, errs := compiler.LoadPackages(dir, compiler.LoadModeCollectAll)
	if len(errs) > 0 {
		return nil, outputLoadErrors(formatter, errs)
	}
	formatter.Debug("loaded packages", "dir", dir, "files", result.FileCount, "packages", len(result.Packages))
	return result.Packages, nil
}

// selectDescriptor picks the package named name, or the only package when
// name is empty.
func selectDescriptor(formatter *OutputFormatter, descrs []*ir.PackageDescr, name string) (*ir.PackageDescr, error) {
	if name == "" {
		if len(descrs) == 1 {
			return descrs[0], nil
		}
		names := make([]string, len(descrs))
		for i, d := range descrs {
			names[i] = d.Name
		}
		sort.Strings(names)
		msg := fmt.Sprintf("found %d packages (%s); choose one with --package", len(descrs), strings.Join(names, ", "))
		_ = formatter.Error(ErrCodeUnknownPackage, msg, nil)
		return nil, NewExitError(ExitCommandError, msg)
	}
	for _, d := range descrs {
		if d.Name == name {
			return d, nil
		}
	}
	msg := fmt.Sprintf("package %q not found", name)
	_ = formatter.Error(ErrCodeUnknownPackage, msg, nil)
	return nil, NewExitError(ExitCommandError, msg)
}

// buildDescriptor builds descr into a fresh package.
func buildDescriptor(descr *ir.PackageDescr, logger *slog.Logger) (*kbase.Package, *kbase.BuildReport, error) {
	b := kbase.NewBuilder(kbase.WithLogger(logger))
	pkg := b.NewPackage(descr.Name)
	report, err := b.Build(pkg, descr)
	if err != nil {
		return nil, nil, err
	}
	return pkg, report, nil
}

// loadAndBuild loads dir, selects one package and builds it. Rules that
// fail to build are logged and left out; commands that evaluate a single
// rule report that rule's absence themselves.
func loadAndBuild(opts *RootOptions, formatter *OutputFormatter, dir, name string) (*kbase.Package, *kbase.BuildReport, error) {
	descrs, err := loadDescriptors(formatter, dir)
	if err != nil {
		return nil, nil, err
	}
	descr, err := selectDescriptor(formatter, descrs, name)
	if err != nil {
		return nil, nil, err
	}
	pkg, report, err := buildDescriptor(descr, opts.Logger())
	if err != nil {
		_ = formatter.Error(ErrCodePackageBuild, err.Error(), nil)
		return nil, nil, WrapExitError(ExitCommandError, "building package", err)
	}
	return pkg, report, nil
}

// outputLoadErrors writes load and compile errors and returns the
// command error for them.
func outputLoadErrors(formatter *OutputFormatter, errs []error) error {
	failed := NewExitError(ExitCommandError, fmt.Sprintf("loading failed with %d error(s)", len(errs)))
	if formatter.json() {
		cliErrors := make([]CLIError, len(errs))
		for i, err := range errs {
			code, message := parseLoadError(err)
			cliErrors[i] = CLIError{Code: code, Message: message}
		}
		if err := formatter.Failure(cliErrors[0].Code, cliErrors[0].Message, cliErrors); err != nil {
			return err
		}
		return failed
	}

	w := formatter.Writer
	fmt.Fprintln(w, "✗ Loading failed")
	fmt.Fprintln(w)
	for _, err := range errs {
		if pos := errorPos(err); pos.IsValid() {
			fmt.Fprintf(w, "%s:%d:%d\n", pos.Filename(), pos.Line(), pos.Column())
		}
		code, message := parseLoadError(err)
		fmt.Fprintf(w, "  %s: %s\n\n", code, message)
	}
	return failed
}

// errorPos returns the CUE position of a load or compile error.
func errorPos(err error) token.Pos {
	var loadErr *compiler.LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Pos
	}
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return compileErr.Pos
	}
	return token.NoPos
}

// parseLoadError extracts error code and message from an error.
func parseLoadError(err error) (string, string) {
	var loadErr *compiler.LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Message
	}
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return compiler.ErrCodeBuildFailed, compileErr.Field + ": " + compileErr.Message
	}
	return compiler.ErrCodeGeneric, err.Error()
}
