// Package apperr defines the application error taxonomy. Every error
// that crosses a package boundary is either one of these kinds or an
// unexpected internal error. Each kind maps to exactly one HTTP status,
// carries a stable machine-readable code, and a human message safe to
// return to clients.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error.
type Kind int

const (
	// BadRequest: the request shape or a value constraint is violated.
	BadRequest Kind = iota
	// Unauthorized: missing, invalid, or expired credentials.
	Unauthorized
	// Forbidden: authenticated but not allowed.
	Forbidden
	// NotFound: no such entity, or an empty result where one is required.
	NotFound
	// Conflict: a uniqueness constraint is violated.
	Conflict
	// RateLimited: the caller must back off (login lockout).
	RateLimited
	// Integrity: an FK/cascade anomaly. Always a bug; surfaces as 500.
	Integrity
	// Transient: retryable I/O failure.
	Transient
)

// Error is the application error type. Code is stable across releases;
// Message is human-readable and safe to expose.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	// RetryAfterSeconds is set on RateLimited errors and rendered as a
	// Retry-After header.
	RetryAfterSeconds int
	// Err is the wrapped cause, never exposed to clients.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an Error of the given kind.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind wrapping a cause.
func Wrap(kind Kind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// KindOf returns the kind of err if it is (or wraps) an *Error. The
// second result reports whether a kind was found.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// HTTPStatus maps an error to its HTTP status code. Unclassified errors
// map to 500.
func HTTPStatus(err error) int {
	kind, ok := KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch kind {
	case BadRequest:
		return http.StatusBadRequest
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case RateLimited:
		return http.StatusTooManyRequests
	case Integrity, Transient:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Common constructors used throughout the request path.

// BadRequestf returns a BadRequest error with the "InvalidRequest" code.
func BadRequestf(format string, args ...any) *Error {
	return Newf(BadRequest, "InvalidRequest", format, args...)
}

// NotFoundf returns a NotFound error with the "NotFound" code.
func NotFoundf(format string, args ...any) *Error {
	return Newf(NotFound, "NotFound", format, args...)
}

// Conflictf returns a Conflict error with the "Conflict" code.
func Conflictf(format string, args ...any) *Error {
	return Newf(Conflict, "Conflict", format, args...)
}
