package core

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every layer. Callers match with errors.Is.
var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrNotFound         = errors.New("not found")
	ErrForbidden        = errors.New("forbidden")
	ErrConflict         = errors.New("conflict")
	ErrExhaustedPool    = errors.New("no slots available")
	ErrTransportFailure = errors.New("transport failure")
	ErrInvalidInput     = errors.New("invalid input")

	// ErrAlreadyDecided is returned when a proof that already carries a
	// decision is decided again.
	ErrAlreadyDecided = fmt.Errorf("proof already decided: %w", ErrConflict)

	ErrInvalidAmount = fmt.Errorf("invalid amount: %w", ErrInvalidInput)
)

// Transport wraps an infrastructure failure from the data backend so that it
// matches ErrTransportFailure while keeping the cause inspectable.
func Transport(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrTransportFailure, err)
}

// ValidationError reports every invalid field of an input at once.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 1 {
		for k, v := range e.Fields {
			return fmt.Sprintf("invalid %s: %s", k, v)
		}
	}
	return fmt.Sprintf("%d invalid fields", len(e.Fields))
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = msg
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}
