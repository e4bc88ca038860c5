package service

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by a service either wraps one of these
// or is an unexpected internal failure.
var (
	ErrValidation           = errors.New("validation error")
	ErrConflict             = errors.New("conflict")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrNotFound             = errors.New("not found")
	ErrInvalidFormat        = errors.New("invalid format")
	ErrInvalidValue         = errors.New("invalid value")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrInternal             = errors.New("internal error")
)

// Error carries a client-facing message together with its kind.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newError(kind error, format string, args ...interface{}) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Message returns the client-facing message of err, or "" when err does not
// carry one.
func Message(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Message
	}
	return ""
}
