package engine

import (
	"errors"
	"fmt"
)

// SessionError reports misuse of a session: unknown rules or types,
// facts that do not fit a pattern, handles from elsewhere.
//
// Salience evaluation failures are not SessionErrors; Session.Salience
// returns the *salience.RuntimeError unchanged.
type SessionError struct {
	// Code identifies the error category.
	Code SessionErrorCode

	// Message is a human-readable description.
	Message string

	// SessionID identifies the session.
	SessionID string

	// Rule names the rule involved, if any.
	Rule string
}

// SessionErrorCode categorizes session errors.
type SessionErrorCode string

const (
	// ErrCodeUnknownType indicates a fact of a type the package does not declare.
	ErrCodeUnknownType SessionErrorCode = "UNKNOWN_TYPE"

	// ErrCodeInvalidFact indicates fact fields that do not fit the type.
	ErrCodeInvalidFact SessionErrorCode = "INVALID_FACT"

	// ErrCodeUnknownRule indicates a rule name the package does not have.
	ErrCodeUnknownRule SessionErrorCode = "UNKNOWN_RULE"

	// ErrCodeUnknownHandle indicates a handle not owned by the session.
	ErrCodeUnknownHandle SessionErrorCode = "UNKNOWN_HANDLE"

	// ErrCodeArity indicates the wrong number of facts for a rule's patterns.
	ErrCodeArity SessionErrorCode = "ARITY_MISMATCH"

	// ErrCodePatternType indicates a fact whose type differs from its pattern's.
	ErrCodePatternType SessionErrorCode = "PATTERN_TYPE_MISMATCH"

	// ErrCodeRetracted indicates use of a retracted handle.
	ErrCodeRetracted SessionErrorCode = "RETRACTED"

	// ErrCodeMissingArtifact indicates a rule with salience whose artifact
	// is not published.
	ErrCodeMissingArtifact SessionErrorCode = "MISSING_ARTIFACT"
)

// Error implements the error interface.
func (e *SessionError) Error() string {
	if e.Rule != "" {
		return fmt.Sprintf("%s: %s (session=%s, rule=%s)", e.Code, e.Message, e.SessionID, e.Rule)
	}
	return fmt.Sprintf("%s: %s (session=%s)", e.Code, e.Message, e.SessionID)
}

// SessionErrorCodeOf returns the code of a *SessionError in err's chain.
func SessionErrorCodeOf(err error) (SessionErrorCode, bool) {
	var se *SessionError
	if errors.As(err, &se) {
		return se.Code, true
	}
	return "", false
}

// IsSessionError returns true if err is a *SessionError with the given code.
// Uses errors.As to handle wrapped errors.
func IsSessionError(err error, code SessionErrorCode) bool {
	c, ok := SessionErrorCodeOf(err)
	return ok && c == code
}
