package device

import "context"

// Reading is a keyed set of values returned by read and describe calls.
type Reading map[string]any

// Fields carries optional configuration values keyed by field name.
type Fields map[string]any

// Named exposes the identity every protocol device carries.
type Named interface {
	Name() string
	Parent() Named
}

// Readable devices report readings and their configuration.
type Readable interface {
	Named
	Read() Reading
	Describe() Reading
	ReadConfiguration() Reading
	DescribeConfiguration() Reading
}

// Configurable devices accept partial configuration updates and report the
// old and new configuration readings.
type Configurable interface {
	Configure(fields Fields) (Reading, Reading, error)
}

// Status is the handle returned by a trigger. It resolves exactly once.
type Status interface {
	Done() <-chan struct{}
	Wait(ctx context.Context) error
	Resolved() bool
	Success() bool
	Err() error
}

// Triggerable devices start an acquisition and return immediately.
type Triggerable interface {
	Trigger() Status
}

// Stageable devices are prepared before and torn down after a run.
type Stageable interface {
	Stage() []any
	Unstage() []any
}

// Detector is the full readable/configurable/triggerable device protocol.
type Detector interface {
	Readable
	Configurable
	Triggerable
	Stageable
}

// HasPosition is the capability required of anything configured as a motor.
type HasPosition interface {
	Position() (float64, error)
}

// Movable positioners can be driven to a setpoint.
type Movable interface {
	HasPosition
	Move(ctx context.Context, position float64) error
}
