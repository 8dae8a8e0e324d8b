package types

import (
	"errors"
	"fmt"
)

// Kind is the stable error classification used across the pipeline and
// surfaced through the tool protocol.
type Kind string

const (
	KindInvalidArgument    Kind = "INVALID_ARGUMENT"
	KindNotFound           Kind = "NOT_FOUND"
	KindResourceExhausted  Kind = "RESOURCE_EXHAUSTED"
	KindPreconditionFailed Kind = "PRECONDITION_FAILED"
	KindDeadlineExceeded   Kind = "DEADLINE_EXCEEDED"
	KindUnavailable        Kind = "UNAVAILABLE"
	KindInvariantViolated  Kind = "INVARIANT_VIOLATED"
)

// Error carries a Kind through wrapping so callers can route on it
// with errors.As without string matching.
type Error struct {
	Kind    Kind
	Op      string // component.operation, e.g. "store.UpsertDocument"
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("%s: %s: %s: %v", e.Op, e.Kind, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// E constructs a classified error.
func E(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the Kind from an error chain. Unclassified errors
// report UNAVAILABLE, the safe retryable default for transport faults.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindUnavailable
}

// Retryable reports whether the caller may retry with backoff.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindUnavailable, KindResourceExhausted:
		return true
	}
	return false
}
