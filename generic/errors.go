/*
errors.go - Centralized error types for the engine

PURPOSE:
  All error kinds in one place for consistency and discoverability.
  Every error the engine returns carries a machine-readable kind plus a
  human-readable message. Domain packages return these types; the API layer
  maps kinds to HTTP statuses.

ERROR KINDS:
  1. validation_error  - Malformed input (bad ranges, hours, week start)
  2. invalid_state     - Operation against a record in the wrong lifecycle state
  3. not_found         - Unknown id
  4. conflict_detected - Strict mode found overlapping assignments
  5. internal          - Anything else (store failures, cancelled contexts)

USAGE:
  if errors.Is(err, generic.ErrInvalidState) {
      ...
  }
  var ve *generic.ValidationError
  if errors.As(err, &ve) {
      fmt.Println(ve.Field)
  }

SEE ALSO:
  - api/handlers.go: writeError maps kinds to HTTP statuses
*/
package generic

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidState is returned when a record is in the wrong lifecycle state.
	ErrInvalidState = errors.New("invalid state")

	// ErrNotFound is returned for unknown ids.
	ErrNotFound = errors.New("not found")

	// ErrConflictDetected is returned by strict-mode creates that overlap.
	ErrConflictDetected = errors.New("conflict detected")

	// ErrDuplicateKey is returned by stores when a unique key already exists.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrStoreRequired is returned when an operation needs a transactional store.
	ErrStoreRequired = errors.New("operation requires transactional store")
)

// =============================================================================
// ERROR KINDS
// =============================================================================

type ErrorKind string

const (
	KindValidation   ErrorKind = "validation_error"
	KindInvalidState ErrorKind = "invalid_state"
	KindNotFound     ErrorKind = "not_found"
	KindConflict     ErrorKind = "conflict_detected"
	KindInternal     ErrorKind = "internal"
)

// KindOf classifies any error returned by the engine.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrInvalidState):
		return KindInvalidState
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflictDetected):
		return KindConflict
	default:
		return KindInternal
	}
}

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports a malformed input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Message
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid is shorthand for a *ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// InvalidStateError reports an operation against a record in the wrong state.
type InvalidStateError struct {
	Record    string // "assignment", "timesheet"
	ID        string
	Current   string
	Operation string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s %s %s: status is %s", e.Operation, e.Record, e.ID, e.Current)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// NotFoundError reports an unknown id.
type NotFoundError struct {
	Record string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Record, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConflictError carries the overlaps that blocked a strict-mode write.
type ConflictError struct {
	Assignee  Assignee
	Conflicts []ConflictDescriptor
}

func (e *ConflictError) Error() string {
	ids := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		ids[i] = c.ConflictingAssignmentID
	}
	return fmt.Sprintf("%s has %d conflicting assignment(s): %s",
		e.Assignee, len(e.Conflicts), strings.Join(ids, ", "))
}

func (e *ConflictError) Unwrap() error { return ErrConflictDetected }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to the caller's input or
// the record's state rather than the engine.
func IsClientError(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindInvalidState, KindConflict, KindNotFound:
		return true
	}
	return false
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
