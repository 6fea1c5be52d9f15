// Package errors provides the structured error type used across the
// retrieval core. Every error exposed to the HTTP gateway or the bus
// carries a Kind; stack traces never leave the process.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for propagation policy and HTTP mapping.
type Kind string

const (
	// KindInvalidArgument indicates a caller-supplied value failed a range
	// or enum check. Returned to the caller (400).
	KindInvalidArgument Kind = "INVALID_ARGUMENT"
	// KindNotFound indicates an id lookup missed (404).
	KindNotFound Kind = "NOT_FOUND"
	// KindConflict indicates a state conflict such as deleting a non-empty
	// taxonomy node or a slug clash (409).
	KindConflict Kind = "CONFLICT"
	// KindUnavailable indicates a model or backend is missing or timed out.
	// Callers degrade silently and log.
	KindUnavailable Kind = "UNAVAILABLE"
	// KindInternal indicates an unexpected failure (500).
	KindInternal Kind = "INTERNAL"
)

// Error is the structured error type for the retrieval core.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by Kind, enabling errors.Is against sentinel kinds.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// WithDetail adds a key-value detail to the error. Returns the error for
// method chaining.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates an Error with the given kind and formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind from an existing error.
// Returns nil if err is nil.
func Wrap(kind Kind, err error, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Cause: err}
}

// InvalidArgument creates an invalid-argument error.
func InvalidArgument(format string, args ...any) *Error {
	return New(KindInvalidArgument, format, args...)
}

// NotFound creates a not-found error.
func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

// Conflict creates a conflict error.
func Conflict(format string, args ...any) *Error {
	return New(KindConflict, format, args...)
}

// Unavailable creates an unavailable error.
func Unavailable(format string, args ...any) *Error {
	return New(KindUnavailable, format, args...)
}

// Internal creates an internal error.
func Internal(format string, args ...any) *Error {
	return New(KindInternal, format, args...)
}

// KindOf extracts the Kind from an error chain.
// Unrecognized errors are classified as KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps an error to the gateway status code per the error
// handling contract.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInvalidArgument:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
