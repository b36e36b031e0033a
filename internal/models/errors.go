package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies pipeline failures for retry decisions and display.
type ErrorKind string

const (
	ErrNetwork        ErrorKind = "network"
	ErrTimeout        ErrorKind = "timeout"
	ErrRateLimited    ErrorKind = "rate_limited"
	ErrAuthInvalid    ErrorKind = "auth_invalid"
	ErrNotFound       ErrorKind = "not_found"
	ErrServer         ErrorKind = "server_error"
	ErrDecode         ErrorKind = "decode"
	ErrSizeMismatch   ErrorKind = "size_mismatch"
	ErrUnknownConsole ErrorKind = "unknown_console"
	ErrIO             ErrorKind = "io_error"
)

// PipelineError carries an error kind and a user-visible message through the
// pipeline. RetryAfter is only set for rate_limited errors that carried a
// Retry-After header.
type PipelineError struct {
	Kind       ErrorKind
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// Errf builds a PipelineError with a formatted message.
func Errf(kind ErrorKind, format string, args ...interface{}) *PipelineError {
	return &PipelineError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapErr builds a PipelineError wrapping an underlying error.
func WrapErr(kind ErrorKind, err error, format string, args ...interface{}) *PipelineError {
	return &PipelineError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the error's kind, or empty string for non-pipeline errors.
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// Retryable reports whether the error is transient per the adapter's retry
// policy: rate limiting and server-side failures retry, everything else
// propagates immediately.
func Retryable(err error) bool {
	switch KindOf(err) {
	case ErrRateLimited, ErrServer:
		return true
	}
	return false
}
