package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures crossing component boundaries.
type ErrorKind string

const (
	// KindInvalidArgument is bad input at a boundary. Never retried.
	KindInvalidArgument ErrorKind = "InvalidArgument"
	// KindTransportFailure is a network or timeout failure. The caller may retry.
	KindTransportFailure ErrorKind = "TransportFailure"
	// KindRejected means the server refused to issue a credential. Not retryable.
	KindRejected ErrorKind = "Rejected"
	// KindBusy means a join attempt is already in progress.
	KindBusy ErrorKind = "Busy"
	// KindUnsupported is an unknown bridge action.
	KindUnsupported ErrorKind = "Unsupported"
	// KindInternal is a failure of a local collaborator such as the screen launcher.
	KindInternal ErrorKind = "Internal"
)

var (
	ErrInvalidArgument  = &Error{Kind: KindInvalidArgument}
	ErrTransportFailure = &Error{Kind: KindTransportFailure}
	ErrRejected         = &Error{Kind: KindRejected}
	ErrBusy             = &Error{Kind: KindBusy}
	ErrUnsupported      = &Error{Kind: KindUnsupported}
	ErrInternal         = &Error{Kind: KindInternal}
)

// Error is the typed failure reported across the bridge as {kind, message}.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func WrapError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Message == "" && e.Err == nil:
		return string(e.Kind)
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Message == "":
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrBusy) works
// regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Retryable reports whether the caller may try the operation again.
func (e *Error) Retryable() bool {
	return e.Kind == KindTransportFailure
}

// KindOf extracts the kind of err, falling back to KindInternal for
// untyped errors.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the human readable part of err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Message != "" {
			return e.Message
		}
		if e.Err != nil {
			return e.Err.Error()
		}
		return string(e.Kind)
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
