// Package errors provides the structured error type used at component
// boundaries. Every error carries a Kind that maps 1:1 to the envelope
// code returned by the tool dispatcher.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for envelope translation and retry decisions.
type Kind string

const (
	// KindValidation indicates the request failed schema or semantic validation.
	KindValidation Kind = "validation"

	// KindUnauthorized indicates missing or invalid credentials.
	KindUnauthorized Kind = "unauthorized"

	// KindForbidden indicates a valid principal with insufficient tier or missing MFA.
	KindForbidden Kind = "forbidden"

	// KindNotFound indicates an absent resource (index, document, tool).
	KindNotFound Kind = "not_found"

	// KindConflict indicates a rejected admin operation (schema differs,
	// destructive call without confirm=true).
	KindConflict Kind = "conflict"

	// KindDependencyUnavailable indicates an external search/embedding/auth
	// failure that persisted after retries.
	KindDependencyUnavailable Kind = "dependency_unavailable"

	// KindTimeout indicates a deadline was exceeded.
	KindTimeout Kind = "timeout"

	// KindInternal indicates unexpected state. The message shown to callers
	// is generic; details stay in logs keyed by correlation id.
	KindInternal Kind = "internal"
)

// Error is the structured error type for AmanRAG.
type Error struct {
	// Kind is the error classification (maps to the envelope code).
	Kind Kind

	// Message is the human-readable error message.
	Message string

	// Field names the offending request field for validation errors.
	Field string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Kind, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by Kind so errors.Is works across wrap layers.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// New creates a new Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a new Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error from an existing error, preserving it as the cause.
// Returns nil if err is nil.
func Wrap(kind Kind, message string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Cause: err}
}

// Validation creates a validation error naming the offending field.
func Validation(field, message string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

// NotFound creates a not_found error for the named resource.
func NotFound(resource string) *Error {
	return &Error{Kind: KindNotFound, Message: resource + " not found"}
}

// Forbidden creates a forbidden error.
func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

// Conflict creates a conflict error.
func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// Dependency creates a dependency_unavailable error wrapping the cause.
func Dependency(service string, err error) *Error {
	return &Error{
		Kind:    KindDependencyUnavailable,
		Message: service + " unavailable",
		Cause:   err,
	}
}

// Unavailable creates a dependency_unavailable error with a literal
// message, for dependencies that are absent rather than failing.
func Unavailable(message string) *Error {
	return &Error{Kind: KindDependencyUnavailable, Message: message}
}

// KindOf extracts the Kind from an error chain.
// Unknown errors classify as KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsRetryable reports whether the operation that produced err may be retried.
// Only dependency failures and timeouts are considered transient.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindDependencyUnavailable, KindTimeout:
		return true
	default:
		return false
	}
}
