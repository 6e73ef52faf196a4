package daq

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Event identifies the kind of observation emitted while changing state.
type Event int

const (
	// EventTransition is emitted after every single-ordinal step.
	EventTransition Event = iota
	// EventRunStarting is emitted before stepping CONFIGURED -> STARTING.
	EventRunStarting
	// EventRunEnding is emitted before stepping STARTING -> CONFIGURED.
	EventRunEnding
)

func (e Event) String() string {
	switch e {
	case EventTransition:
		return "transition"
	case EventRunStarting:
		return "run starting"
	case EventRunEnding:
		return "run ending"
	}
	return "unknown"
}

// Observation records one event produced by the state machine.
type Observation struct {
	Event Event
	From  State
	To    State
	Time  time.Time
}

// boundary is a single-ordinal step that carries a side effect.
type boundary struct {
	from, to State
}

// boundaries maps boundary crossings to the event emitted before the step.
var boundaries = map[boundary]Event{
	{Configured, Starting}: EventRunStarting,
	{Starting, Configured}: EventRunEnding,
}

// machine holds the current state and walks it one ordinal at a time.
// It is not safe for concurrent use; Daq serializes access.
type machine struct {
	state State
	log   *logrus.Entry
	now   func() time.Time
}

func newMachine(initial State, log *logrus.Entry) *machine {
	return &machine{state: initial, log: log, now: time.Now}
}

// transitionTo steps toward target and returns everything observed on the way.
// An undefined target is ignored.
func (m *machine) transitionTo(target State) []Observation {
	if !target.Valid() {
		m.log.WithField("target", int(target)).Warn("ignoring transition to undefined state")
		return nil
	}
	var observed []Observation
	for m.state != target {
		next := Step(m.state, target)
		if ev, ok := boundaries[boundary{m.state, next}]; ok {
			observed = append(observed, Observation{Event: ev, From: m.state, To: next, Time: m.now()})
			m.log.WithField("state", m.state).Info(ev.String())
		}
		prev := m.state
		m.state = next
		observed = append(observed, Observation{Event: EventTransition, From: prev, To: next, Time: m.now()})
		m.log.WithFields(logrus.Fields{"from": prev, "to": next}).Debugf("daq state %s", next)
	}
	return observed
}
