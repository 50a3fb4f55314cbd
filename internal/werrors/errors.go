// Package werrors implements the error taxonomy of spec.md §7: a small
// set of typed error kinds that the HTTP server maps to status codes and
// the worker loop uses to decide whether to retry.
package werrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error the way spec.md §7 does.
type Kind int

const (
	// KindUnknown wraps an error that doesn't fit the taxonomy; treated
	// like a 500 / Fatal by callers that don't special-case it.
	KindUnknown Kind = iota
	KindNotFound
	KindValidation
	KindEmptyQueue
	KindConflict
	KindTransportFailure
	KindExecutionFailure
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindValidation:
		return "Validation"
	case KindEmptyQueue:
		return "EmptyQueue"
	case KindConflict:
		return "Conflict"
	case KindTransportFailure:
		return "TransportFailure"
	case KindExecutionFailure:
		return "ExecutionFailure"
	case KindFatal:
		return "Fatal"
	default:
		return "Unknown"
	}
}

// Error is a typed domain error that composes with errors.Is/errors.As.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, werrors.NotFound) work against a bare Kind sentinel
// by comparing Kind values instead of pointer identity.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// NotFound builds a KindNotFound error for a missing entity.
func NotFound(format string, args ...any) *Error { return newf(KindNotFound, format, args...) }

// Validation builds a KindValidation error for malformed input, illegal
// transitions, circular dependencies, or archived-project mutations.
func Validation(format string, args ...any) *Error { return newf(KindValidation, format, args...) }

// EmptyQueue builds a KindEmptyQueue error — recovered locally by the
// worker loop, never surfaced as a server fault.
func EmptyQueue(format string, args ...any) *Error { return newf(KindEmptyQueue, format, args...) }

// Conflict builds a KindConflict error for unique-constraint violations.
func Conflict(format string, args ...any) *Error { return newf(KindConflict, format, args...) }

// Transport wraps an underlying transport error (connection refused,
// timeout) as KindTransportFailure.
func Transport(err error, format string, args ...any) *Error {
	e := newf(KindTransportFailure, format, args...)
	e.Err = err
	return e
}

// Execution wraps a non-zero exit code or a panic while invoking the
// external command formatter as KindExecutionFailure.
func Execution(err error, format string, args ...any) *Error {
	e := newf(KindExecutionFailure, format, args...)
	e.Err = err
	return e
}

// Fatal builds a KindFatal error — the store is unreachable on startup, or
// a termination signal was received.
func Fatal(err error, format string, args ...any) *Error {
	e := newf(KindFatal, format, args...)
	e.Err = err
	return e
}

// Wrap annotates err with a Kind while preserving it as the cause, the
// same way the teacher wraps database/sql errors with fmt.Errorf("...: %w").
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	e := newf(kind, format, args...)
	e.Err = err
	return e
}

// KindOf extracts the Kind of err, defaulting to KindUnknown if err is not
// (or does not wrap) a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
