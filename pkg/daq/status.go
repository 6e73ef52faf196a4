package daq

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/itohio/daqsim/pkg/device"
)

// Ensure Status implements device.Status.
var _ device.Status = (*Status)(nil)

// Status is the one-shot handle returned by Trigger. It starts pending and
// resolves exactly once, either successfully or with an error.
type Status struct {
	id      uuid.UUID
	created time.Time

	mu        sync.Mutex
	done      chan struct{}
	resolved  bool
	err       error
	finished  time.Time
	callbacks []func(*Status)
}

// NewStatus creates a pending status.
func NewStatus() *Status {
	return &Status{
		id:      uuid.New(),
		created: time.Now(),
		done:    make(chan struct{}),
	}
}

// ID uniquely identifies the operation.
func (s *Status) ID() uuid.UUID {
	return s.id
}

// Created returns when the status was created.
func (s *Status) Created() time.Time {
	return s.created
}

// Done returns a channel closed once the status resolves.
func (s *Status) Done() <-chan struct{} {
	return s.done
}

// Resolved reports whether the status has resolved.
func (s *Status) Resolved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolved
}

// Success reports whether the status resolved without error.
func (s *Status) Success() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolved && s.err == nil
}

// Err returns the failure reason, or nil if pending or successful.
func (s *Status) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Elapsed returns the time between creation and resolution, or the time
// since creation while pending.
func (s *Status) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.resolved {
		return time.Since(s.created)
	}
	return s.finished.Sub(s.created)
}

// Wait blocks until the status resolves or ctx is done.
func (s *Status) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AddCallback registers fn to run once the status resolves. If it has
// already resolved, fn runs immediately on the calling goroutine.
func (s *Status) AddCallback(fn func(*Status)) {
	s.mu.Lock()
	if !s.resolved {
		s.callbacks = append(s.callbacks, fn)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	fn(s)
}

// finish resolves the status successfully.
func (s *Status) finish() bool {
	return s.resolve(nil)
}

// fail resolves the status with err.
func (s *Status) fail(err error) bool {
	return s.resolve(err)
}

// resolve is one-shot: only the first call has any effect.
func (s *Status) resolve(err error) bool {
	s.mu.Lock()
	if s.resolved {
		s.mu.Unlock()
		return false
	}
	s.resolved = true
	s.err = err
	s.finished = time.Now()
	callbacks := s.callbacks
	s.callbacks = nil
	close(s.done)
	s.mu.Unlock()

	for _, fn := range callbacks {
		fn(s)
	}
	return true
}
