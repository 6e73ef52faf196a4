package daq

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/itohio/daqsim/pkg/device"
)

// Trigger starts one simulated acquisition and returns its status without
// blocking. Any collection still waiting from an earlier trigger is
// interrupted first. Failures are reported only through the status.
func (d *Daq) Trigger() device.Status {
	d.mu.Lock()
	d.interrupt.Set()
	status := NewStatus()
	state := d.sm.state

	if d.closed {
		d.mu.Unlock()
		status.fail(ErrClosed)
		return status
	}
	if !canTrigger(state) {
		d.mu.Unlock()
		err := errors.Wrapf(ErrInvalidState, "state %s", state)
		d.log.WithField("state", state).Warn("trigger rejected")
		status.fail(err)
		return status
	}

	obs := d.sm.transitionTo(Running)
	gen := d.interrupt.Arm()
	motors := append([]any(nil), d.settings.Motors...)
	events := d.settings.Events

	d.workers.Add(1)
	go d.collect(status, gen, motors, events)

	d.unlockAndNotify(obs)
	return status
}

// collect is the body of one collection worker.
func (d *Daq) collect(status *Status, gen <-chan struct{}, motors []any, events int) {
	defer d.workers.Done()

	log := d.log.WithField("op", status.ID())

	for i, m := range motors {
		pos, err := readPosition(m)
		if err != nil {
			log.WithField("motor", i).Warnf("motor read failed: %v", err)
			status.fail(errors.Wrapf(ErrMotorConfig, "motor %d: %v", i, err))
			return
		}
		d.mu.Lock()
		d.lastPos, d.hasLastPos = pos, true
		d.mu.Unlock()
	}

	window := waitFor(events, d.rate)
	log.WithFields(logrus.Fields{"events": events, "window": window}).Debug("collecting")

	if Wait(d.ctx, gen, window) {
		log.Info("collection interrupted")
		status.fail(ErrInterrupted)
		return
	}

	d.mu.Lock()
	select {
	case <-gen:
		// A newer trigger or stage won the race with the timer.
		d.mu.Unlock()
		log.Info("collection interrupted")
		status.fail(ErrInterrupted)
		return
	default:
	}
	obs := d.sm.transitionTo(Starting)
	d.unlockAndNotify(obs)

	log.WithField("elapsed", status.Elapsed()).Info("collection finished")
	status.finish()
}

// readPosition reads m as a position-bearing device, turning a missing
// capability or a panicking accessor into an error.
func readPosition(m any) (pos float64, err error) {
	hp, ok := m.(device.HasPosition)
	if !ok {
		return 0, fmt.Errorf("%T has no position", m)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("position of %T panicked: %v", m, r)
		}
	}()
	return hp.Position()
}
