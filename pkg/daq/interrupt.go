package daq

import (
	"context"
	"sync"
	"time"
)

// Interrupt is a generation based wake/cancel signal shared by the
// triggering caller and collection workers.
//
// Set wakes every waiter of the current generation. Arm clears the signal by
// opening a new generation and returns it; waiters of older generations stay
// woken.
type Interrupt struct {
	mu  sync.Mutex
	gen chan struct{}
	set bool
}

// NewInterrupt returns a cleared interrupt.
func NewInterrupt() *Interrupt {
	return &Interrupt{gen: make(chan struct{})}
}

// Set signals the current generation. Calling Set on an already set
// interrupt is a no-op.
func (i *Interrupt) Set() {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.set {
		close(i.gen)
		i.set = true
	}
}

// Arm clears the signal and returns the channel of the new generation. The
// channel is closed on the next Set.
func (i *Interrupt) Arm() <-chan struct{} {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.set {
		i.gen = make(chan struct{})
		i.set = false
	}
	return i.gen
}

// IsSet reports whether the current generation has been signalled.
func (i *Interrupt) IsSet() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.set
}

// Wait blocks for up to d or until gen is signalled or ctx is done. It
// returns true if the wait ended early.
func Wait(ctx context.Context, gen <-chan struct{}, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-gen:
			return true
		default:
			return false
		}
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-gen:
		return true
	case <-ctx.Done():
		return true
	case <-timer.C:
		return false
	}
}
