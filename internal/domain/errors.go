package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced by the relay core.
type ErrorKind string

const (
	KindDecode     ErrorKind = "decode"
	KindValidation ErrorKind = "validation"
	KindDispatch   ErrorKind = "dispatch"
	KindSend       ErrorKind = "send"
	KindRegistry   ErrorKind = "registry"
)

var (
	ErrEmptyMessage      = errors.New("message must not be empty")
	ErrMessageTooLong    = errors.New("message is too long")
	ErrDuplicateSession  = errors.New("session already registered")
	ErrSessionClosed     = errors.New("session closed")
	ErrSendBufferFull    = errors.New("session send buffer full")
	ErrWatermarkNotFound = errors.New("read watermark not found")
	ErrNotMember         = errors.New("user is not a member of the chat room")
	ErrInvalidArgument   = errors.New("invalid argument")
)

// Error is a classified relay error. Op names the failing step.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with a kind and operation.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf reports the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
