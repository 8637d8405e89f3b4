package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Rule, scenario or evaluation failure
	ExitCommandError = 2 // Command error (invalid paths, unreadable store, etc.)
)

// CLI error codes (E200-E299). Load and validation codes come from the
// compiler package.
const (
	ErrCodeRuleBuild      = "E201" // one or more rules failed to build
	ErrCodePackageBuild   = "E202" // package could not be built at all
	ErrCodeStore          = "E203" // store could not be opened, read or written
	ErrCodeUnknownPackage = "E204" // no package with the requested name
	ErrCodeFacts          = "E205" // facts or field specs could not be read
	ErrCodeEvaluation     = "E206" // salience evaluation failed
	ErrCodeStress         = "E207" // stress run saw errors or mismatches
	ErrCodeTestFailed     = "E208" // one or more scenarios failed
)

// ExitError carries the process exit code a command failed with.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates an ExitError without an underlying cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps err with an exit code and context.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// CLIResponse is the JSON envelope every command writes with --format json.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // payload, also on failures that produced results
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E001", "E201", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// OutputFormatter writes command results as text or as a CLIResponse.
type OutputFormatter struct {
	Format  string
	Writer  io.Writer
	Verbose bool
	// Logger receives progress; nil discards it.
	Logger *slog.Logger
}

// newFormatter returns the formatter for cmd under the global options.
func newFormatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
		Logger:  opts.Logger(),
	}
}

func (f *OutputFormatter) json() bool {
	return f.Format == "json"
}

func (f *OutputFormatter) encode(resp CLIResponse) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// Success writes data. Text output prints data with fmt.
func (f *OutputFormatter) Success(data any) error {
	if f.json() {
		return f.encode(CLIResponse{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error writes an error. Text output includes details only when verbose.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.json() {
		return f.encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Failure writes a result that carries both data and an error, such as a
// compile in which some rules failed. Text output prints nothing; callers
// print their own summary.
func (f *OutputFormatter) Failure(code, message string, data any) error {
	if !f.json() {
		return nil
	}
	return f.encode(CLIResponse{
		Status: "error",
		Data:   data,
		Error:  &CLIError{Code: code, Message: message},
	})
}

// Debug logs progress at debug level, visible with --verbose.
func (f *OutputFormatter) Debug(msg string, args ...any) {
	if f.Logger != nil {
		f.Logger.Debug(msg, args...)
	}
}
