package client

import (
	"errors"
	"fmt"
)

// Code is the closed set of daemon client error kinds.
type Code string

const (
	// CodeUnavailable means the daemon cannot be reached or authenticated
	// with. Retryable.
	CodeUnavailable Code = "DAEMON_UNAVAILABLE"
	// CodeDisconnected means an operation was attempted while not connected.
	// Retryable.
	CodeDisconnected Code = "DAEMON_DISCONNECTED"
	// CodeNotFound means a referenced conversation or message does not
	// exist. Not retryable.
	CodeNotFound Code = "DAEMON_NOT_FOUND"
)

// Error is the typed failure signal carried by every fallible client
// operation. Immutable after construction.
type Error struct {
	// Code classifies the failure.
	Code Code
	// Message is the failure description.
	Message string
	// Retryable indicates automatic retry is a reasonable strategy.
	Retryable bool
	// FallbackHint optionally suggests a manual recovery to surface in UI.
	FallbackHint string
}

// Error implements error.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unavailable constructs a retryable DAEMON_UNAVAILABLE error.
func Unavailable(msg, hint string) *Error {
	return &Error{Code: CodeUnavailable, Message: msg, Retryable: true, FallbackHint: hint}
}

// Unavailablef constructs a retryable DAEMON_UNAVAILABLE error with a
// formatted message and no hint.
func Unavailablef(format string, args ...any) *Error {
	return &Error{Code: CodeUnavailable, Message: fmt.Sprintf(format, args...), Retryable: true}
}

// Disconnected constructs the retryable fail-fast error for operations
// attempted while not connected.
func Disconnected(op string) *Error {
	return &Error{
		Code:         CodeDisconnected,
		Message:      fmt.Sprintf("%s requires an active daemon connection", op),
		Retryable:    true,
		FallbackHint: "reconnect to the daemon and try again",
	}
}

// NotFound constructs a non-retryable DAEMON_NOT_FOUND error.
func NotFound(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...), Retryable: false}
}

// CodeOf extracts the error code from err, unwrapping as needed.
func CodeOf(err error) (Code, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code, true
	}
	return "", false
}

// IsRetryable reports whether err is a typed client error flagged retryable.
// Untyped errors are treated as not retryable.
func IsRetryable(err error) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}
