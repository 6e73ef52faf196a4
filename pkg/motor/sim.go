package motor

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"

	"github.com/itohio/daqsim/pkg/config"
)

// DefaultTick is the simulated stepper update period.
const DefaultTick = 10 * time.Millisecond

// Sim simulates a stepper motor. The position is held as a whole number of
// steps; moves are quantized to the step resolution and, when a velocity is
// configured, take real time to complete.
type Sim struct {
	name       string
	resolution float32 // Units per step
	velocity   float32 // Units per second, 0 = instant
	tick       time.Duration

	mu     sync.RWMutex
	steps  int64
	moving bool
}

// NewSim creates a simulated stepper motor.
func NewSim(cfg *config.MotorConfig) *Sim {
	if cfg == nil {
		cfg = &config.MotorConfig{
			Name:       "sim_motor",
			Kind:       config.MotorSim,
			Resolution: 0.001,
		}
	}

	resolution := float32(cfg.Resolution)
	if resolution <= 0 {
		resolution = 0.001
	}

	return &Sim{
		name:       cfg.Name,
		resolution: resolution,
		velocity:   math32.Abs(float32(cfg.Velocity)),
		tick:       DefaultTick,
		steps:      toSteps(cfg.Initial, resolution),
	}
}

// Name returns the motor name.
func (m *Sim) Name() string {
	return m.name
}

// Position returns the current position in user units.
func (m *Sim) Position() (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return float64(m.steps) * float64(m.resolution), nil
}

// Moving reports whether a move is in progress.
func (m *Sim) Moving() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.moving
}

// Move drives the motor to position and blocks until it arrives. If ctx is
// cancelled the motor stops on the current step.
func (m *Sim) Move(ctx context.Context, position float64) error {
	target := toSteps(position, m.resolution)

	m.mu.Lock()
	if m.moving {
		m.mu.Unlock()
		return errors.Errorf("motor %s: already moving", m.name)
	}
	if m.velocity == 0 {
		m.steps = target
		m.mu.Unlock()
		return nil
	}
	m.moving = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.moving = false
		m.mu.Unlock()
	}()

	// Steps covered per tick, at least one.
	perTick := int64(math32.Max(1, math32.Floor(m.velocity*float32(m.tick.Seconds())/m.resolution)))

	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	for {
		m.mu.RLock()
		arrived := m.steps == target
		m.mu.RUnlock()
		if arrived {
			return nil
		}

		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "motor %s: move to %g", m.name, position)
		case <-ticker.C:
		}

		m.mu.Lock()
		remaining := target - m.steps
		switch {
		case remaining > perTick:
			m.steps += perTick
		case remaining < -perTick:
			m.steps -= perTick
		default:
			m.steps = target
		}
		m.mu.Unlock()
	}
}

// Close is a no-op for the simulated motor.
func (m *Sim) Close() error {
	return nil
}

// toSteps quantizes position to a whole number of steps.
func toSteps(position float64, resolution float32) int64 {
	return int64(math.Round(position / float64(resolution)))
}
