package daq

import (
	"strings"

	"github.com/pkg/errors"
)

// State is a DAQ run-control state. States are totally ordered by ordinal and
// the device only ever moves between adjacent states.
type State int

const (
	Reset State = iota
	Unallocated
	Allocated
	Connected
	Configured
	Starting
	Paused
	Running
)

var stateNames = [...]string{
	Reset:       "RESET",
	Unallocated: "UNALLOCATED",
	Allocated:   "ALLOCATED",
	Connected:   "CONNECTED",
	Configured:  "CONFIGURED",
	Starting:    "STARTING",
	Paused:      "PAUSED",
	Running:     "RUNNING",
}

// States lists every state in ordinal order.
func States() []State {
	return []State{Reset, Unallocated, Allocated, Connected, Configured, Starting, Paused, Running}
}

func (s State) String() string {
	if !s.Valid() {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// Valid reports whether s is one of the defined states.
func (s State) Valid() bool {
	return s >= Reset && s <= Running
}

// ParseState converts a state name (any case) into a State.
func ParseState(name string) (State, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for i, n := range stateNames {
		if n == upper {
			return State(i), nil
		}
	}
	return Reset, errors.Errorf("unknown daq state %q", name)
}

// Step returns the state one ordinal from current toward target.
// If current already equals target it is returned unchanged.
func Step(current, target State) State {
	switch {
	case target > current:
		return current + 1
	case target < current:
		return current - 1
	default:
		return current
	}
}

// Path returns the sequence of states visited when moving from current to
// target, excluding current itself.
func Path(current, target State) []State {
	var path []State
	for current != target {
		current = Step(current, target)
		path = append(path, current)
	}
	return path
}

// canTrigger reports whether a trigger may start from s.
func canTrigger(s State) bool {
	switch s {
	case Reset, Unallocated, Allocated, Running:
		return false
	}
	return true
}
