package cloud

import (
	"errors"
	"fmt"
)

// ErrorKind tags a provider error so callers can decide whether to retry.
type ErrorKind int

const (
	// KindFatal is any provider error that must not be retried.
	KindFatal ErrorKind = iota
	// KindNotFound means the addressed resource does not exist.
	KindNotFound
	// KindRetryable marks eventually-consistent failures, such as a role
	// that was just created and is not yet visible to another service.
	KindRetryable
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindRetryable:
		return "retryable"
	default:
		return "fatal"
	}
}

// Error is returned by every Cloud API client method that fails.
type Error struct {
	Kind    ErrorKind
	Op      string
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, msg)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NotFound builds a KindNotFound error.
func NotFound(op, code, message string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Code: code, Message: message}
}

// Retryable builds a KindRetryable error.
func Retryable(op, code, message string) *Error {
	return &Error{Kind: KindRetryable, Op: op, Code: code, Message: message}
}

// Fatal builds a KindFatal error.
func Fatal(op, code, message string) *Error {
	return &Error{Kind: KindFatal, Op: op, Code: code, Message: message}
}

// KindOf returns the kind of the first *Error in err's chain, or KindFatal.
func KindOf(err error) ErrorKind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindFatal
}

// IsNotFound reports whether err is a not-found provider error.
func IsNotFound(err error) bool {
	return err != nil && KindOf(err) == KindNotFound
}

// IsRetryable reports whether err is an eventually-consistent provider error.
func IsRetryable(err error) bool {
	return err != nil && KindOf(err) == KindRetryable
}

// CodeOf returns the provider error code carried by err, if any.
func CodeOf(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
