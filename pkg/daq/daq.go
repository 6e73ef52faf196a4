// Package daq simulates a multi-node data-acquisition device. It reproduces
// the run-control state machine, trigger timing and failure behavior of the
// real DAQ so that scan orchestration can be exercised without hardware.
package daq

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/itohio/daqsim/pkg/device"
)

const (
	// DefaultName is the protocol name of the simulated device.
	DefaultName = "daq"
	// DefaultRate is the simulated trigger frequency in Hz.
	DefaultRate = 120.0
)

// ErrClosed is reported by triggers issued after Close.
var ErrClosed = errors.New("daq closed")

// Ensure Daq implements the detector protocol.
var _ device.Detector = (*Daq)(nil)

// Config configures a simulated DAQ.
type Config struct {
	Name         string
	Rate         float64 // Simulated trigger rate (Hz)
	InitialState State
	Settings     *Settings     // Initial configurable fields (nil = DefaultSettings)
	Logger       *logrus.Entry // nil = standard logger tagged with the device name
}

// DefaultConfig returns the configuration of a freshly allocated DAQ.
func DefaultConfig() *Config {
	return &Config{
		Name:         DefaultName,
		Rate:         DefaultRate,
		InitialState: Allocated,
	}
}

// Daq is the simulated device.
//
// State, settings and the interrupt are guarded by mu. Observers are
// notified in transition order without mu held, so they may read the device.
// They must not trigger, stage or unstage it from the callback.
type Daq struct {
	name string
	rate float64
	log  *logrus.Entry

	mu         sync.Mutex
	sm         *machine
	settings   Settings
	interrupt  *Interrupt
	lastPos    float64
	hasLastPos bool
	closed     bool

	// Worker lifecycle
	ctx     context.Context
	cancel  context.CancelFunc
	workers sync.WaitGroup

	// Transition callbacks
	pending      []Observation // guarded by mu
	notifyMu     sync.Mutex
	cbMu         sync.RWMutex
	onTransition []func(Observation)
}

// New creates a simulated DAQ. A nil cfg uses DefaultConfig.
func New(cfg *Config) *Daq {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	name := cfg.Name
	if name == "" {
		name = DefaultName
	}
	rate := cfg.Rate
	if rate <= 0 {
		rate = DefaultRate
	}
	settings := DefaultSettings()
	if cfg.Settings != nil {
		settings = cfg.Settings.clone()
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.WithField("device", name)
	}
	initial := cfg.InitialState
	if !initial.Valid() {
		initial = Allocated
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daq{
		name:      name,
		rate:      rate,
		log:       log,
		sm:        newMachine(initial, log),
		settings:  settings,
		interrupt: NewInterrupt(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Name returns the protocol name of the device.
func (d *Daq) Name() string {
	return d.name
}

// Parent always returns nil; the DAQ is a top-level device.
func (d *Daq) Parent() device.Named {
	return nil
}

// Rate returns the simulated trigger rate in Hz.
func (d *Daq) Rate() float64 {
	return d.rate
}

// State returns the current run-control state.
func (d *Daq) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sm.state
}

// Settings returns a snapshot of the configurable fields.
func (d *Daq) Settings() Settings {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.settings.clone()
}

// LastPosition returns the last motor position read by a collection worker.
func (d *Daq) LastPosition() (float64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastPos, d.hasLastPos
}

// OnTransition registers a callback for every state machine observation.
func (d *Daq) OnTransition(fn func(Observation)) {
	d.cbMu.Lock()
	defer d.cbMu.Unlock()
	d.onTransition = append(d.onTransition, fn)
}

// TransitionTo walks the state machine to target one state at a time.
func (d *Daq) TransitionTo(target State) {
	d.mu.Lock()
	obs := d.sm.transitionTo(target)
	d.unlockAndNotify(obs)
}

// Read returns an empty reading; the simulator records no data.
func (d *Daq) Read() device.Reading {
	return device.Reading{}
}

// Describe returns an empty description.
func (d *Daq) Describe() device.Reading {
	return device.Reading{}
}

// ReadConfiguration returns an empty reading.
func (d *Daq) ReadConfiguration() device.Reading {
	return device.Reading{}
}

// DescribeConfiguration returns an empty description.
func (d *Daq) DescribeConfiguration() device.Reading {
	return device.Reading{}
}

// Configure validates and applies a partial update. Fields are checked in a
// fixed order and the first invalid one aborts the call; fields before it
// stay applied. seq_ctl is cleared on every call unless supplied.
func (d *Daq) Configure(fields device.Fields) (device.Reading, device.Reading, error) {
	if err := checkKnown(fields); err != nil {
		return nil, nil, err
	}

	opts, failed, err := decodeFields(fields)

	d.mu.Lock()
	opts.applyTo(&d.settings, err == nil || failed == FieldSeqCtl)
	d.mu.Unlock()

	if err != nil {
		d.log.WithField("field", failed).Warnf("configure rejected: %v", err)
		return nil, nil, err
	}
	return device.Reading{}, device.Reading{}, nil
}

// Apply merges a typed partial update.
func (d *Daq) Apply(opts Options) {
	d.mu.Lock()
	defer d.mu.Unlock()
	opts.applyTo(&d.settings, true)
}

// Stage interrupts any collection in progress and moves to CONNECTED.
func (d *Daq) Stage() []any {
	d.toConnected()
	return []any{d}
}

// Unstage interrupts any collection in progress and moves to CONNECTED.
func (d *Daq) Unstage() []any {
	d.toConnected()
	return []any{d}
}

func (d *Daq) toConnected() {
	d.mu.Lock()
	d.interrupt.Set()
	obs := d.sm.transitionTo(Connected)
	d.unlockAndNotify(obs)
}

// Close interrupts any running collection and waits for workers to exit.
func (d *Daq) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.interrupt.Set()
	d.cancel()
	d.mu.Unlock()

	d.workers.Wait()
	return nil
}

// unlockAndNotify queues obs, releases mu and delivers every queued
// observation in order. Must be called with mu held.
func (d *Daq) unlockAndNotify(obs []Observation) {
	d.pending = append(d.pending, obs...)
	d.mu.Unlock()
	d.drain()
}

// drain delivers queued observations. Only one goroutine delivers at a time
// and mu is never held while callbacks run.
func (d *Daq) drain() {
	d.notifyMu.Lock()
	defer d.notifyMu.Unlock()

	for {
		d.mu.Lock()
		batch := d.pending
		d.pending = nil
		d.mu.Unlock()

		if len(batch) == 0 {
			return
		}

		d.cbMu.RLock()
		callbacks := make([]func(Observation), len(d.onTransition))
		copy(callbacks, d.onTransition)
		d.cbMu.RUnlock()

		for _, o := range batch {
			for _, fn := range callbacks {
				fn(o)
			}
		}
	}
}

// waitFor converts an event count into the simulated acquisition window.
// Windows too long for a time.Duration are clamped to the longest one.
func waitFor(events int, rate float64) time.Duration {
	ns := float64(events) / rate * float64(time.Second)
	if ns >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(ns)
}
