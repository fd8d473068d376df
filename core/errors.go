package core

import (
	"errors"
	"fmt"
)

var (
	// ErrIndexOutOfRange is returned when an insertion index is not yet committed.
	ErrIndexOutOfRange = errors.New("index out of range")
	// ErrStoreDisposed is returned by every store operation after Dispose.
	ErrStoreDisposed = errors.New("store disposed")
	// ErrStoreComplete is returned when appending to a store that was marked complete.
	ErrStoreComplete = errors.New("store already complete")
	// ErrCorrupted marks a persisted store that failed validation on reopen.
	// Callers are expected to discard it and rebuild from the trace.
	ErrCorrupted = errors.New("persisted store corrupted")
	// ErrInvalidInterval is returned for intervals whose start is after their end.
	ErrInvalidInterval = errors.New("invalid interval")
	// ErrSourceLost is wrapped around failures of the event source during a build.
	ErrSourceLost = errors.New("event source lost")
)

// ValidationError is a custom error type for validation failures.
type ValidationError struct {
	Message string
	Field   string // e.g., "tid", "ret", "schema"
	Value   string // The invalid value
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s '%s': %s", e.Field, e.Value, e.Message)
}

// UnsupportedTypeError reports a field value of a type the schema cannot hold.
type UnsupportedTypeError struct {
	Message string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported type value: %s", e.Message)
}

// IsValidationError checks if an error is a ValidationError.
func IsValidationError(err error) bool {
	var validationError *ValidationError
	return errors.As(err, &validationError)
}

func IsUnsupportedError(err error) bool {
	var unsupportedError *UnsupportedTypeError
	return errors.As(err, &unsupportedError)
}

// IsRecoverable reports whether err belongs to the expected class of
// failures: a malformed single event or a persisted store that must be
// rebuilt. Resource and contract errors are not recoverable.
func IsRecoverable(err error) bool {
	if err == nil {
		return true
	}
	return IsValidationError(err) || IsUnsupportedError(err) || errors.Is(err, ErrCorrupted)
}
