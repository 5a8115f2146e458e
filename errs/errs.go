// Package errs defines the kind-tagged error taxonomy shared by every
// uvrpc component. Errors are constructed with github.com/pkg/errors so
// that the transport and protocol failures which tend to get logged
// (rather than just matched on) keep a stack trace.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is the taxonomy tag from the error handling design. It is
// intentionally small and closed: callers switch on Kind, not on
// concrete error types.
type Kind int

const (
	// Ok is the success sentinel used in the status field of responses.
	// It is never wrapped in an Error value.
	Ok Kind = iota
	InvalidArgument
	InvalidState
	NotFound
	MethodNotFound
	AlreadyExists
	Backpressure
	Timeout
	Disconnected
	Protocol
	Transport
	InternalError
)

func (k Kind) String() string {
	switch k {
	case Ok:
		return "Ok"
	case InvalidArgument:
		return "InvalidArgument"
	case InvalidState:
		return "InvalidState"
	case NotFound:
		return "NotFound"
	case MethodNotFound:
		return "MethodNotFound"
	case AlreadyExists:
		return "AlreadyExists"
	case Backpressure:
		return "Backpressure"
	case Timeout:
		return "Timeout"
	case Disconnected:
		return "Disconnected"
	case Protocol:
		return "Protocol"
	case Transport:
		return "Transport"
	case InternalError:
		return "InternalError"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error carries a taxonomy Kind alongside an underlying cause. The cause
// is produced with github.com/pkg/errors so Transport/Protocol failures
// retain a stack trace usable from log output.
type Error struct {
	kind  Kind
	cause error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return e.kind.String()
	}
	return fmt.Sprintf("%s: %v", e.kind, e.cause)
}

// Unwrap allows errors.Is/errors.As to reach the wrapped cause.
func (e *Error) Unwrap() error { return e.cause }

// Kind reports the taxonomy tag.
func (e *Error) Kind() Kind { return e.kind }

// New builds an Error of the given kind with a formatted message. The
// message is built with errors.Errorf so a stack trace is captured at
// the call site.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{kind: kind, cause: errors.Errorf(format, args...)}
}

// Wrap builds an Error of the given kind around an existing error,
// attaching a stack trace at the call site via errors.Wrap.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	if cause == nil {
		return New(kind, format, args...)
	}
	return &Error{kind: kind, cause: errors.Wrapf(cause, format, args...)}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.kind == kind
}

// KindOf extracts the Kind from err, defaulting to InternalError for any
// error not produced by this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	if err == nil {
		return Ok
	}
	return InternalError
}
