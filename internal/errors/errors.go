// Package errors defines the coded error taxonomy used across brewv.
//
// Recoverable conditions (an artifact missing from one source) are not
// errors at all; they travel as registry outcomes. Everything here is fatal
// for the switch that produced it.
package errors

import (
	"errors"
	"fmt"
)

// Code identifies an error category independent of its message.
type Code string

const (
	ErrUnknown              Code = "UNKNOWN"
	ErrUsage                Code = "USAGE"
	ErrHashMismatch         Code = "HASH_MISMATCH"
	ErrHTTP                 Code = "HTTP"
	ErrSubprocess           Code = "SUBPROCESS_FAILURE"
	ErrUnsupportedPlatform  Code = "UNSUPPORTED_PLATFORM"
	ErrUnsupportedOSVersion Code = "UNSUPPORTED_OS_VERSION"
	ErrSlowSearchDisabled   Code = "SLOW_SEARCH_DISABLED"
	ErrVersionNotFound      Code = "VERSION_NOT_FOUND"
	ErrGit                  Code = "GIT"
	ErrConfig               Code = "CONFIG"
)

// Error is a structured error with a stable code.
type Error struct {
	Code    Code
	Message string
	Details map[string]interface{}
	Wrapped error
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Wrapped
}

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message, Details: make(map[string]interface{})}
}

func Newf(code Code, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap returns nil when err is nil.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	e := New(code, message)
	e.Wrapped = err
	return e
}

func Wrapf(err error, code Code, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// WithDetail adds a detail to the error.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// CodeOf returns the code of the first *Error in err's chain, or ErrUnknown.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrUnknown
}

// HasCode reports whether err's chain contains an *Error with code.
func HasCode(err error, code Code) bool {
	return errors.Is(err, &Error{Code: code})
}

// ExitCoder is implemented by errors that dictate the process exit code,
// like a failed brew install.
type ExitCoder interface {
	ExitCode() int
}

// ExitCode maps err to a process exit code: 0 for nil, the code of an
// ExitCoder in the chain, and 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ec ExitCoder
	if errors.As(err, &ec) && ec.ExitCode() != 0 {
		return ec.ExitCode()
	}
	return 1
}

// As and Is are re-exported so callers can use this package in place of the
// standard one.
func As(err error, target interface{}) bool { return errors.As(err, target) }
func Is(err, target error) bool            { return errors.Is(err, target) }
