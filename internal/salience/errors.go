package salience

import (
	"errors"
	"fmt"
)

// BuildErrorCode categorizes compile failures.
type BuildErrorCode string

const (
	// ErrCodeSyntax indicates source text outside the expression grammar.
	ErrCodeSyntax BuildErrorCode = "SYNTAX_ERROR"

	// ErrCodeUnboundVariable indicates a name with no available declaration.
	ErrCodeUnboundVariable BuildErrorCode = "UNBOUND_VARIABLE"

	// ErrCodeType indicates an expression that does not reduce to a number.
	ErrCodeType BuildErrorCode = "TYPE_ERROR"
)

// BuildError is returned by Compile. It is final for the rule being
// compiled and has no effect on any other rule.
type BuildError struct {
	Code    BuildErrorCode
	Message string

	// Source is the expression text and Offset the byte offset of the
	// offending token within it.
	Source string
	Offset int

	// Err is the underlying cause, e.g. a resolver error.
	Err error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("%s: %s (offset %d in %q)", e.Code, e.Message, e.Offset, e.Source)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// RuntimeErrorCode categorizes evaluation failures.
type RuntimeErrorCode string

const (
	// ErrCodeExtraction indicates bound fact data no longer matches the
	// shape its declaration expects.
	ErrCodeExtraction RuntimeErrorCode = "EXTRACTION_ERROR"

	// ErrCodeTypeMismatch indicates a dynamically typed value of the
	// wrong kind reached an operator.
	ErrCodeTypeMismatch RuntimeErrorCode = "TYPE_MISMATCH"

	// ErrCodeDivisionByZero indicates integer division by zero.
	ErrCodeDivisionByZero RuntimeErrorCode = "DIVISION_BY_ZERO"
)

// RuntimeError is returned by Evaluate. The caller must treat it as fatal
// for the activation being prioritized.
type RuntimeError struct {
	Code    RuntimeErrorCode
	Message string

	// Declaration names the variable being read, when relevant.
	Declaration string

	Err error
}

func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Declaration != "" {
		msg = fmt.Sprintf("%s (declaration=%s)", msg, e.Declaration)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func buildCode(err error) (BuildErrorCode, bool) {
	var be *BuildError
	if errors.As(err, &be) {
		return be.Code, true
	}
	return "", false
}

func runtimeCode(err error) (RuntimeErrorCode, bool) {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code, true
	}
	return "", false
}

// IsSyntaxError reports whether err is a SYNTAX_ERROR BuildError.
func IsSyntaxError(err error) bool {
	code, ok := buildCode(err)
	return ok && code == ErrCodeSyntax
}

// IsUnboundVariableError reports whether err is an UNBOUND_VARIABLE BuildError.
func IsUnboundVariableError(err error) bool {
	code, ok := buildCode(err)
	return ok && code == ErrCodeUnboundVariable
}

// IsTypeError reports whether err is a TYPE_ERROR BuildError.
func IsTypeError(err error) bool {
	code, ok := buildCode(err)
	return ok && code == ErrCodeType
}

// IsExtractionError reports whether err is an EXTRACTION_ERROR RuntimeError.
func IsExtractionError(err error) bool {
	code, ok := runtimeCode(err)
	return ok && code == ErrCodeExtraction
}

// IsDivisionByZero reports whether err is a DIVISION_BY_ZERO RuntimeError.
func IsDivisionByZero(err error) bool {
	code, ok := runtimeCode(err)
	return ok && code == ErrCodeDivisionByZero
}

// IsTypeMismatch reports whether err is a TYPE_MISMATCH RuntimeError.
func IsTypeMismatch(err error) bool {
	code, ok := runtimeCode(err)
	return ok && code == ErrCodeTypeMismatch
}

// ErrorCode returns the code of a BuildError or RuntimeError, or "".
func ErrorCode(err error) string {
	if code, ok := buildCode(err); ok {
		return string(code)
	}
	if code, ok := runtimeCode(err); ok {
		return string(code)
	}
	return ""
}
