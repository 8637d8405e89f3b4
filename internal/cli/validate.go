package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/salience/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool                       `json:"valid"`
	Errors []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <packages-dir>",
		Short: "Validate rule packages without building them",
		Long: `Validate CUE rule packages without building a knowledge base.

Checks names, field kinds, pattern types and bindings, and that every
salience expression parses and only uses variables its rule binds.
Faster than compile for development feedback.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(cmd, opts)

	validationErrors, err := ValidatePackagesDir(dir)
	if err != nil {
		code, message := parseLoadError(err)
		return outputValidateError(formatter, code, message, nil)
	}

	if len(validationErrors) > 0 {
		return outputValidationErrors(formatter, validationErrors)
	}
	return outputValidateSuccess(formatter)
}

// ValidatePackagesDir validates every package in a directory. Compile
// errors for individual packages come back as validation errors; the
// returned error is reserved for directories that cannot be loaded.
func ValidatePackagesDir(dir string) ([]compiler.ValidationError, error) {
	result, loadErrs := compiler.LoadPackages(dir, compiler.LoadModeCollectAll)
	if result == nil && len(loadErrs) > 0 {
		return nil, loadErrs[0]
	}

	var all []compiler.ValidationError
	for _, err := range loadErrs {
		all = append(all, loadValidationError(err))
	}
	for _, p := range result.Packages {
		for _, ve := range compiler.Validate(p) {
			ve.Field = fmt.Sprintf("pkg.%s.%s", p.Name, ve.Field)
			all = append(all, ve)
		}
	}
	return all, nil
}

func loadValidationError(err error) compiler.ValidationError {
	code, message := parseLoadError(err)
	ve := compiler.ValidationError{Field: "load", Message: message, Code: code}
	var loadErr *compiler.LoadError
	if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
		ve.Line = loadErr.Pos.Line()
	}
	return ve
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter) error {
	if formatter.json() {
		return formatter.Success(ValidationResult{Valid: true})
	}

	fmt.Fprintln(formatter.Writer, "✓ All packages valid")
	return nil
}

// outputValidateError outputs an error that stopped validation.
func outputValidateError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	// Load errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors reports every validation error. Validation
// failures exit 1, unlike load errors.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	failed := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	if formatter.json() {
		data := ValidationResult{Valid: false, Errors: errs}
		if err := formatter.Failure(errs[0].Code, errs[0].Message, data); err != nil {
			return err
		}
		return failed
	}

	w := formatter.Writer
	fmt.Fprintln(w, "✗ Validation failed")
	fmt.Fprintln(w)
	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(w, "line %d\n", err.Line)
		}
		fmt.Fprintf(w, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}
	return failed
}
