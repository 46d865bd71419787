// Package apierr defines the typed error taxonomy shared across the
// orchestrator so HTTP handlers and callers can map failures to the right
// status code and retry behavior without string-matching error text.
package apierr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for status-code mapping and retry policy.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindNotFound    Kind = "not_found"
	KindUnavailable Kind = "unavailable"
	KindTimeout     Kind = "timeout"
	KindRateLimit   Kind = "rate_limit"
	KindAuth        Kind = "auth"
	KindInternal    Kind = "internal"
)

// Error is the common shape for every typed error in this module.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// Validation reports a malformed or missing request field.
func Validation(format string, args ...any) *Error { return newf(KindValidation, format, args...) }

// NotFound reports a missing resource (task, profile, collection).
func NotFound(format string, args ...any) *Error { return newf(KindNotFound, format, args...) }

// Unavailable reports a dependency (data source, LLM provider, engine
// instance) that is temporarily down.
func Unavailable(format string, args ...any) *Error { return newf(KindUnavailable, format, args...) }

// UnavailableWrap wraps an underlying error as Unavailable.
func UnavailableWrap(err error, format string, args ...any) *Error {
	return wrap(KindUnavailable, err, format, args...)
}

// Timeout reports an operation that exceeded its deadline.
func Timeout(format string, args ...any) *Error { return newf(KindTimeout, format, args...) }

// RateLimit reports a source or provider rejecting a call due to rate caps.
func RateLimit(format string, args ...any) *Error { return newf(KindRateLimit, format, args...) }

// Auth reports a credential or permission failure.
func Auth(format string, args ...any) *Error { return newf(KindAuth, format, args...) }

// Internal reports a programming or invariant-violation error.
func Internal(format string, args ...any) *Error { return newf(KindInternal, format, args...) }

// InternalWrap wraps an underlying error as Internal.
func InternalWrap(err error, format string, args ...any) *Error {
	return wrap(KindInternal, err, format, args...)
}

// As reports whether err (or something it wraps) is an *Error, returning it.
func As(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
