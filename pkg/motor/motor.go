// Package motor provides position-bearing devices that can be configured as
// DAQ motors: a simulated stepper and a serial motor controller client.
package motor

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/itohio/daqsim/pkg/config"
)

// New creates and connects the motor described by cfg.
func New(cfg *config.MotorConfig, log *logrus.Entry) (Motor, error) {
	switch cfg.Kind {
	case config.MotorSim, "":
		return NewSim(cfg), nil
	case config.MotorSerial:
		m := NewSerial(cfg, log)
		if err := m.Connect(); err != nil {
			return nil, err
		}
		return m, nil
	}
	return nil, errors.Errorf("motor %q: unknown kind %q", cfg.Name, cfg.Kind)
}

// NewAll creates every configured motor, keyed by name. On failure the
// motors created so far are closed.
func NewAll(cfgs []config.MotorConfig, log *logrus.Entry) (map[string]Motor, error) {
	motors := make(map[string]Motor, len(cfgs))
	for i := range cfgs {
		m, err := New(&cfgs[i], log.WithField("motor", cfgs[i].Name))
		if err != nil {
			CloseAll(motors)
			return nil, err
		}
		motors[cfgs[i].Name] = m
	}
	return motors, nil
}

// CloseAll closes every motor in the map.
func CloseAll(motors map[string]Motor) {
	for _, m := range motors {
		m.Close()
	}
}
