package scope

import (
	"errors"
	"fmt"
)

// UnresolvedReason explains why a name has no reachable binding.
type UnresolvedReason string

const (
	// ReasonUndeclared means no pattern binds the name.
	ReasonUndeclared UnresolvedReason = "undeclared"

	// ReasonNegated means the name is bound only inside not/exists.
	ReasonNegated UnresolvedReason = "bound only inside not/exists"

	// ReasonPartialOr means some or-branch leaves the name unbound, or
	// branches bind it at different tuple offsets.
	ReasonPartialOr UnresolvedReason = "not bound in every or branch"

	// ReasonMixedOr means every or-branch binds the name, but to facts of
	// different types or to different fields.
	ReasonMixedOr UnresolvedReason = "bound differently in or branches"
)

// UnresolvedVariableError is returned when a name has no binding reachable
// from the scope.
type UnresolvedVariableError struct {
	Name   string
	Reason UnresolvedReason
}

func (e *UnresolvedVariableError) Error() string {
	return fmt.Sprintf("unresolved variable %q: %s", e.Name, e.Reason)
}

// DuplicateDeclarationError is returned when one conjunction binds the
// same name twice.
type DuplicateDeclarationError struct {
	Name string
}

func (e *DuplicateDeclarationError) Error() string {
	return fmt.Sprintf("variable %q is declared more than once", e.Name)
}

// UnknownTypeError is returned when a pattern names an undeclared type.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown type %q", e.Type)
}

// IsUnresolved reports whether err is an UnresolvedVariableError.
// Uses errors.As to handle wrapped errors.
func IsUnresolved(err error) bool {
	var ue *UnresolvedVariableError
	return errors.As(err, &ue)
}
