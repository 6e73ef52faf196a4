package daq

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidState is reported when a trigger arrives in a state that
	// cannot start a run.
	ErrInvalidState = errors.New("invalid starting state for trigger")
	// ErrMotorConfig is reported when a configured motor cannot report a
	// position.
	ErrMotorConfig = errors.New("motors must be real position-bearing devices")
	// ErrInterrupted is reported when a collection is cut short.
	ErrInterrupted = errors.New("collection interrupted")
	// ErrUnknownField is returned by Configure for keys it does not accept.
	ErrUnknownField = errors.New("unknown configuration field")
)

// FieldError is returned when a configuration value has the wrong type.
type FieldError struct {
	Field    string
	Expected string
	Got      any
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s must be of type %s, got %T", e.Field, e.Expected, e.Got)
}
