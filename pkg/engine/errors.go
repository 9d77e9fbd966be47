package engine

import (
	"errors"
	"fmt"
	"time"
)

// ErrorClass separates failures recorded as data from failures that stop a run.
type ErrorClass string

const (
	// ErrorClassRecorded indicates a per-resource failure captured in an OperationResult.
	ErrorClassRecorded ErrorClass = "recorded"

	// ErrorClassInvariant indicates an orchestrator bug. The run stops.
	ErrorClassInvariant ErrorClass = "invariant"

	// ErrorClassPreflight indicates the run was refused before provisioning.
	ErrorClassPreflight ErrorClass = "preflight"
)

// AdapterError wraps a provider-side failure for a single adapter call.
type AdapterError struct {
	// Kind is the resource kind the call targeted.
	Kind Kind

	// ID is the resource identifier, empty for provision calls.
	ID string

	// Op is the adapter operation name.
	Op string

	// Err is the provider error.
	Err error
}

// Error implements the error interface.
func (e *AdapterError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("adapter %s failed (kind=%s, id=%s): %v", e.Op, e.Kind, e.ID, e.Err)
	}
	return fmt.Sprintf("adapter %s failed (kind=%s): %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the provider error.
func (e *AdapterError) Unwrap() error {
	return e.Err
}

// DuplicateResourceError is returned when a (kind, id) pair is registered twice.
type DuplicateResourceError struct {
	Kind Kind
	ID   string
}

// Error implements the error interface.
func (e *DuplicateResourceError) Error() string {
	return fmt.Sprintf("resource already registered (kind=%s, id=%s)", e.Kind, e.ID)
}

// InvalidTransitionError is returned when a state change violates the forward-only rule
// or targets a resource the registry does not hold.
type InvalidTransitionError struct {
	Kind Kind
	ID   string
	From State
	To   State
}

// Error implements the error interface.
func (e *InvalidTransitionError) Error() string {
	if e.From == "" {
		return fmt.Sprintf("cannot transition unknown resource (kind=%s, id=%s) to %s", e.Kind, e.ID, e.To)
	}
	return fmt.Sprintf("invalid transition %s -> %s (kind=%s, id=%s)", e.From, e.To, e.Kind, e.ID)
}

// VerificationTimeoutError records that a resource never reported the expected state.
type VerificationTimeoutError struct {
	Kind     Kind
	ID       string
	Expected State
	Observed State
	Attempts int
	Budget   time.Duration
}

// Error implements the error interface.
func (e *VerificationTimeoutError) Error() string {
	return fmt.Sprintf("resource (kind=%s, id=%s) did not reach %s after %d attempts (last observed %q, budget %s)",
		e.Kind, e.ID, e.Expected, e.Attempts, e.Observed, e.Budget)
}

// PolicyDeniedError is returned by a Preflight gate that refuses the run.
type PolicyDeniedError struct {
	Violations []string
}

// Error implements the error interface.
func (e *PolicyDeniedError) Error() string {
	return fmt.Sprintf("run denied by policy: %d violation(s): %v", len(e.Violations), e.Violations)
}

// Classify returns the error class used to decide whether a run can continue.
func Classify(err error) ErrorClass {
	var dup *DuplicateResourceError
	var inv *InvalidTransitionError
	var pol *PolicyDeniedError
	switch {
	case errors.As(err, &dup), errors.As(err, &inv):
		return ErrorClassInvariant
	case errors.As(err, &pol):
		return ErrorClassPreflight
	default:
		return ErrorClassRecorded
	}
}

// IsInvariant returns true if the error indicates an orchestrator bug.
func IsInvariant(err error) bool {
	return err != nil && Classify(err) == ErrorClassInvariant
}

// IsAdapterError returns true if the error came from the provider adapter.
func IsAdapterError(err error) bool {
	var e *AdapterError
	return errors.As(err, &e)
}

// IsVerificationTimeout returns true if the error is a verification timeout.
func IsVerificationTimeout(err error) bool {
	var e *VerificationTimeoutError
	return errors.As(err, &e)
}
