/*
errors.go - Centralized error types for the engine

PURPOSE:
  All error kinds in one place. Callers dispatch with errors.Is/errors.As;
  the service and API layers map these onto transactional aborts and HTTP
  status codes.

ERROR CATEGORIES:
  1. Validation errors  - Bad input, reported immediately, never retried
  2. Integrity errors   - Event history that cannot be ordered safely
  3. Concurrency errors - Conflicting compound operations; abort entirely
  4. Not-found errors   - Missing referenced records

Configuration gaps (missing coverage threshold, missing annual excess-hours
figure) are deliberately NOT errors: the detector and the penalty calculator
return distinguishable "not applicable" results instead, so presentation
layers can explain the gap.
*/
package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the base of all input validation failures.
	ErrValidation = errors.New("validation failed")

	// ErrDataIntegrity is returned when an event history cannot be ordered
	// without guessing (e.g. a cancellation dated before its approval).
	// The engine surfaces this instead of inventing an ordering that could
	// change financial outcomes.
	ErrDataIntegrity = errors.New("ledger data integrity violation")

	// ErrConcurrencyConflict is returned when a compound operation detects a
	// conflicting writer (double penalty application, stale balance read).
	// The whole operation must abort with nothing committed.
	ErrConcurrencyConflict = errors.New("concurrent modification detected")

	// ErrNothingToApply is returned when applying a penalty whose incremental
	// delta is zero or negative. A no-op apply is rejected, not silently
	// succeeded.
	ErrNothingToApply = errors.New("nothing to apply")

	// ErrInsufficientBalance is returned when a request exceeds the
	// employee's available balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrEmployeeNotFound is returned when a referenced employee doesn't exist.
	ErrEmployeeNotFound = errors.New("employee not found")

	// ErrRequestNotFound is returned when a referenced request doesn't exist.
	ErrRequestNotFound = errors.New("request not found")

	// ErrInvalidTransition is returned on a lifecycle transition the current
	// status doesn't allow.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes a rejected input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// DataIntegrityError pinpoints the record that made the history unorderable.
type DataIntegrityError struct {
	RequestID string
	Date      Date
	Message   string
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("data integrity: request %s at %s: %s", e.RequestID, e.Date, e.Message)
}

func (e *DataIntegrityError) Unwrap() error { return ErrDataIntegrity }

// InsufficientBalanceError details a balance shortage.
type InsufficientBalanceError struct {
	EmployeeID string
	Available  Hours
	Requested  Hours
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for %s: available %s, requested %s",
		e.EmployeeID, e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrNothingToApply)
}

// IsRetryable returns true if the operation might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEmployeeNotFound) ||
		errors.Is(err, ErrRequestNotFound)
}
