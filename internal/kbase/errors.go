package kbase

import (
	"errors"
	"fmt"

	"github.com/roach88/salience/internal/salience"
)

// RuleBuildErrorCode categorizes per-rule build failures. Salience
// compile failures reuse the salience BuildError codes.
type RuleBuildErrorCode string

const (
	// ErrCodeUnsupportedDialect indicates a rule asks for a dialect the
	// builder has no compiler for.
	ErrCodeUnsupportedDialect RuleBuildErrorCode = "UNSUPPORTED_DIALECT"

	// ErrCodeInvalidCondition indicates the rule's condition tree could
	// not be laid out: unknown types or fields, duplicate bindings.
	ErrCodeInvalidCondition RuleBuildErrorCode = "INVALID_CONDITION"

	// ErrCodeDuplicateRule indicates a second rule with an existing name.
	ErrCodeDuplicateRule RuleBuildErrorCode = "DUPLICATE_RULE"
)

// RuleBuildError records why one rule was left out of a package.
type RuleBuildError struct {
	Package string
	Rule    string
	Code    RuleBuildErrorCode
	Err     error
}

func (e *RuleBuildError) Error() string {
	return fmt.Sprintf("%s: rule %q in package %q: %v", e.Code, e.Rule, e.Package, e.Err)
}

func (e *RuleBuildError) Unwrap() error {
	return e.Err
}

func newRuleBuildError(pkg, rule string, err error) *RuleBuildError {
	code := RuleBuildErrorCode(salience.ErrorCode(err))
	if code == "" {
		code = ErrCodeInvalidCondition
	}
	return &RuleBuildError{Package: pkg, Rule: rule, Code: code, Err: err}
}

// IsRuleBuildError reports whether err is a *RuleBuildError.
func IsRuleBuildError(err error) bool {
	var rbe *RuleBuildError
	return errors.As(err, &rbe)
}

// PackageError is a failure that prevents a package from building at
// all, such as a malformed type declaration.
type PackageError struct {
	Package string
	Message string
	Err     error
}

func (e *PackageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("package %q: %s: %v", e.Package, e.Message, e.Err)
	}
	return fmt.Sprintf("package %q: %s", e.Package, e.Message)
}

func (e *PackageError) Unwrap() error {
	return e.Err
}
