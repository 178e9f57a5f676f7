package services

import (
	"errors"
	"fmt"
)

// Error kinds returned by services. Handlers map them to HTTP statuses.
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")
	// ErrGateway wraps failures talking to the payment gateway.
	ErrGateway = errors.New("payment gateway error")
)

// Error carries a client-facing message alongside its kind.
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

func notFound(entity string) error {
	return &Error{Kind: ErrNotFound, Message: entity + " not found"}
}

func invalid(format string, args ...any) error {
	return &Error{Kind: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

func conflict(format string, args ...any) error {
	return &Error{Kind: ErrConflict, Message: fmt.Sprintf(format, args...)}
}
