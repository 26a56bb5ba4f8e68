// Package errs defines the error taxonomy shared by every sonec component.
// Callers distinguish cases with errors.As against the typed values below
// rather than string matching, the same way the teacher's service layer
// wraps provider-specific failures into a small closed set of sentinels.
package errs

import (
	"errors"
	"fmt"
)

// Code identifies a taxonomy member independent of its message text.
type Code string

const (
	CodeInvalidArgument     Code = "invalid_argument"
	CodeNotConfigured       Code = "not_configured"
	CodeNotRegistered       Code = "not_registered"
	CodeAlreadyRegistered   Code = "already_registered"
	CodeTypeMismatch        Code = "type_mismatch"
	CodeAuthError           Code = "auth_error"
	CodeInvalidQuery        Code = "invalid_query"
	CodeRateLimited         Code = "rate_limited"
	CodeTemporaryNetwork    Code = "temporary_network_error"
	CodeProviderUnavailable Code = "provider_unavailable"
	CodeInvalidToken        Code = "invalid_token"
	CodeUniqueConflict      Code = "unique_conflict"
)

// Error is the concrete type every taxonomy member is built from. It
// carries an optional wrapped cause and, for RateLimited, a retry hint.
type Error struct {
	Code       Code
	Message    string
	RetryAfter float64 // seconds; only meaningful for CodeRateLimited
	Cause      error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is makes errors.Is(err, errs.ErrInvalidArgument) etc. work against the
// sentinel values declared below, comparing by code rather than identity.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func InvalidArgument(format string, args ...any) *Error {
	return newf(CodeInvalidArgument, format, args...)
}

func NotConfigured(format string, args ...any) *Error {
	return newf(CodeNotConfigured, format, args...)
}

func NotRegistered(name string) *Error {
	return newf(CodeNotRegistered, "provider %q is not registered", name)
}

func AlreadyRegistered(name string) *Error {
	return newf(CodeAlreadyRegistered, "provider %q is already registered", name)
}

func TypeMismatch(format string, args ...any) *Error {
	return newf(CodeTypeMismatch, format, args...)
}

func AuthError(format string, args ...any) *Error {
	return newf(CodeAuthError, format, args...)
}

func InvalidQuery(format string, args ...any) *Error {
	return newf(CodeInvalidQuery, format, args...)
}

// RateLimited builds a RateLimited error carrying the retry-after hint the
// provider reported, defaulting to 0 when the upstream gave none.
func RateLimited(retryAfterSeconds float64, format string, args ...any) *Error {
	e := newf(CodeRateLimited, format, args...)
	e.RetryAfter = retryAfterSeconds
	return e
}

func TemporaryNetworkError(cause error) *Error {
	return &Error{Code: CodeTemporaryNetwork, Message: cause.Error(), Cause: cause}
}

func ProviderUnavailable(format string, args ...any) *Error {
	return newf(CodeProviderUnavailable, format, args...)
}

func InvalidToken(format string, args ...any) *Error {
	return newf(CodeInvalidToken, format, args...)
}

func UniqueConflict(format string, args ...any) *Error {
	return newf(CodeUniqueConflict, format, args...)
}

// Sentinels for errors.Is comparisons against a bare code, e.g.
// errors.Is(err, errs.ErrNotConfigured).
var (
	ErrInvalidArgument     = &Error{Code: CodeInvalidArgument}
	ErrNotConfigured       = &Error{Code: CodeNotConfigured}
	ErrNotRegistered       = &Error{Code: CodeNotRegistered}
	ErrAlreadyRegistered   = &Error{Code: CodeAlreadyRegistered}
	ErrTypeMismatch        = &Error{Code: CodeTypeMismatch}
	ErrAuthError           = &Error{Code: CodeAuthError}
	ErrInvalidQuery        = &Error{Code: CodeInvalidQuery}
	ErrRateLimited         = &Error{Code: CodeRateLimited}
	ErrTemporaryNetwork    = &Error{Code: CodeTemporaryNetwork}
	ErrProviderUnavailable = &Error{Code: CodeProviderUnavailable}
	ErrInvalidToken        = &Error{Code: CodeInvalidToken}
	ErrUniqueConflict      = &Error{Code: CodeUniqueConflict}
)

// As reports whether err (or something it wraps) carries the given code.
func As(err error, code Code) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == code
}
