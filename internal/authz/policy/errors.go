package policy

import (
	"errors"
	"fmt"
)

// Sentinel errors for policy evaluation.
var (
	// ErrPolicyEvaluationError indicates policies could not be fetched or
	// evaluated. Callers treat it as DENY.
	ErrPolicyEvaluationError = errors.New("policy evaluation error")

	// ErrStoreUnavailable indicates the policy store is unreachable or its
	// circuit breaker is open.
	ErrStoreUnavailable = errors.New("policy store unavailable")

	// ErrPolicyNotFound indicates no policy exists with the given id.
	ErrPolicyNotFound = errors.New("policy not found")
)

// EvaluationError wraps the concrete cause of a failed evaluation. It
// matches ErrPolicyEvaluationError under errors.Is.
type EvaluationError struct {
	Cause error
}

// Error implements the error interface.
func (e *EvaluationError) Error() string {
	return fmt.Sprintf("policy evaluation failed: %v", e.Cause)
}

// Unwrap returns the underlying cause.
func (e *EvaluationError) Unwrap() error {
	return e.Cause
}

// Is reports a match for ErrPolicyEvaluationError.
func (e *EvaluationError) Is(target error) bool {
	return errors.Is(target, ErrPolicyEvaluationError)
}
