package auth

import (
	"errors"
	"fmt"
)

// Sentinel errors for identity resolution. Every concrete failure wraps
// ErrUnauthenticated so the transport layer maps them all to the same
// status without leaking which check failed.
var (
	// ErrUnauthenticated is the single externally visible failure kind.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrNoCredentials indicates that no credentials were provided.
	ErrNoCredentials = errors.New("no credentials provided")

	// ErrSessionInvalid indicates that the session handle is unknown or malformed.
	ErrSessionInvalid = errors.New("session invalid")

	// ErrSessionExpired indicates that the session has expired.
	ErrSessionExpired = errors.New("session expired")

	// ErrTokenExpired indicates that the bearer token has expired.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenMalformed indicates that the bearer token is malformed.
	ErrTokenMalformed = errors.New("token malformed")

	// ErrInvalidSignature indicates that the token signature does not verify.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrSubjectNotFound indicates that the credential subject has no stored record.
	ErrSubjectNotFound = errors.New("subject not found")

	// ErrSubjectInactive indicates that the stored subject is deactivated.
	ErrSubjectInactive = errors.New("subject inactive")

	// ErrDomainMismatch indicates a domain mismatch between the credential
	// claim and the stored record.
	ErrDomainMismatch = errors.New("domain mismatch")

	// ErrStoreTimeout indicates that a backing store lookup timed out.
	ErrStoreTimeout = errors.New("store lookup timed out")
)

// ResolveError carries the concrete cause of a failed resolution for
// server-side logging and audit. It matches ErrUnauthenticated under
// errors.Is regardless of the cause.
type ResolveError struct {
	Method AuthMethod
	Cause  error
}

// Error implements the error interface.
func (e *ResolveError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("identity resolution failed (%s): %v", e.Method, e.Cause)
	}
	return fmt.Sprintf("identity resolution failed (%s)", e.Method)
}

// Unwrap returns the underlying cause.
func (e *ResolveError) Unwrap() error {
	return e.Cause
}

// Is reports a match for ErrUnauthenticated and for the concrete cause.
func (e *ResolveError) Is(target error) bool {
	if errors.Is(target, ErrUnauthenticated) {
		return true
	}
	return errors.Is(e.Cause, target)
}

// NewResolveError creates a ResolveError for the given method and cause.
func NewResolveError(method AuthMethod, cause error) *ResolveError {
	return &ResolveError{Method: method, Cause: cause}
}

// IsUnauthenticated checks if an error represents an authentication failure.
func IsUnauthenticated(err error) bool {
	return errors.Is(err, ErrUnauthenticated)
}
