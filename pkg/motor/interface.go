package motor

import "github.com/itohio/daqsim/pkg/device"

// Motor is a named positioner that can be closed.
type Motor interface {
	device.Movable
	Name() string
	Close() error
}

// Ensure Serial implements Motor.
var _ Motor = (*Serial)(nil)

// Ensure Sim implements Motor.
var _ Motor = (*Sim)(nil)
