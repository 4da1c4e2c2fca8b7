// Package apperror defines the domain error taxonomy shared by every layer.
//
// Services and the ranking core return these errors; only the HTTP layer
// (handler.writeError) knows how they map to status codes.
//
// SENTINELS VS *AppError:
// Each constructor returns an *AppError whose Err field is one of the sentinel
// values below. Callers test the KIND with errors.Is(err, ErrNotFound) and read
// the human-readable message with errors.As(err, &appErr).
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("Validation Error")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvariant marks a broken contract inside the ranking core, such as a
	// duplicate user in a snapshot. Never repaired silently.
	ErrInvariant = errors.New("invariant violation")

	// ErrTransient marks a backing-store timeout or connectivity failure.
	// The caller may retry with backoff.
	ErrTransient = errors.New("transient store error")
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Cause   error  // Optional: underlying error (store failure etc.)
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap exposes both the sentinel and the cause so errors.Is matches either,
// e.g. errors.Is(err, context.DeadlineExceeded) on a Transient error.
func (e *AppError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

// UnknownUser is returned by write paths that require the identity store to
// confirm the user exists. It is a NotFound.
func UnknownUser(id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("unknown user %s", id),
		Field:   "userId",
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized means the caller could not be authenticated (bad credentials,
// missing session). HTTP handlers map this to 401.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

func InvariantViolation(message string) *AppError {
	return &AppError{
		Err:     ErrInvariant,
		Message: message,
	}
}

// Transient wraps a store failure. op names the operation that failed.
func Transient(op string, cause error) *AppError {
	return &AppError{
		Err:     ErrTransient,
		Message: op,
		Cause:   cause,
	}
}
