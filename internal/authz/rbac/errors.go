package rbac

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for RBAC configuration and checks.
var (
	// ErrForbidden indicates the principal lacks a required role or permission.
	ErrForbidden = errors.New("forbidden")

	// ErrHierarchyCycle indicates the role hierarchy includes a role in its
	// own expansion.
	ErrHierarchyCycle = errors.New("role hierarchy cycle")

	// ErrHierarchyNotClosed indicates the hierarchy table is missing a
	// transitive inclusion.
	ErrHierarchyNotClosed = errors.New("role hierarchy not transitively closed")

	// ErrUnknownRole indicates a reference to a role with no definition.
	ErrUnknownRole = errors.New("unknown role")

	// ErrDuplicateRole indicates two role definitions share a name.
	ErrDuplicateRole = errors.New("duplicate role")
)

// ForbiddenError carries the missing requirements of a denied check.
// The list is for server-side logging and audit only; clients get a
// generic message.
type ForbiddenError struct {
	Missing []string
}

// Error implements the error interface.
func (e *ForbiddenError) Error() string {
	if len(e.Missing) == 0 {
		return "forbidden"
	}
	return fmt.Sprintf("forbidden: missing %s", strings.Join(e.Missing, ", "))
}

// Is reports a match for ErrForbidden.
func (e *ForbiddenError) Is(target error) bool {
	return errors.Is(target, ErrForbidden)
}

// NewForbiddenError creates a ForbiddenError with the given missing
// requirements.
func NewForbiddenError(missing ...string) *ForbiddenError {
	return &ForbiddenError{Missing: missing}
}
