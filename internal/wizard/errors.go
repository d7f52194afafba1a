package wizard

import (
	"errors"
	"fmt"
)

var (
	// ErrStepGate is returned when the current step's data does not allow moving forward.
	ErrStepGate = errors.New("step requirements not met")
	// ErrInvalidState is returned for operations not allowed in the current step.
	ErrInvalidState = errors.New("operation not allowed in current step")
)

// ValidationError names the field that blocked a transition.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrStepGate
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
