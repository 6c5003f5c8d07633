// SPDX-License-Identifier: MPL-2.0

package runstate

import (
	"sync"
	"sync/atomic"
	"time"
)

type (
	// Base tracks the run state of a component that starts running on
	// creation and is stopped once.
	Base struct {
		state atomic.Int32

		stopOnce  sync.Once
		wg        sync.WaitGroup
		stoppedCh chan struct{}

		mu   sync.Mutex
		errs []error
	}

	// StopResult is the outcome of waiting for the stop sequence.
	StopResult struct {
		// TimedOut is set when the wait ended before the sequence completed.
		TimedOut bool
		// Errors collected by the stop sequence. Empty when TimedOut is set.
		Errors []error
	}
)

// NewBase returns a Base in the Running state.
func NewBase() *Base {
	b := &Base{stoppedCh: make(chan struct{})}
	b.state.Store(int32(StateRunning))
	return b
}

// State returns the current run state (atomic, lock-free read).
func (b *Base) State() State {
	return State(b.state.Load())
}

// IsRunning returns true if the component has not begun stopping.
func (b *Base) IsRunning() bool {
	return b.State() == StateRunning
}

// Stop moves to Stopping and runs seq on a tracked goroutine. Only the first
// call has an effect; it reports whether it started the sequence. Errors
// returned by seq are kept for WaitForStop. The state becomes Stopped after
// seq and then done (if non-nil) have returned.
func (b *Base) Stop(seq func() []error, done func()) bool {
	started := false
	b.stopOnce.Do(func() {
		started = true
		b.state.Store(int32(StateStopping))

		b.wg.Go(func() {
			errs := seq()
			b.mu.Lock()
			b.errs = errs
			b.mu.Unlock()
			if done != nil {
				done()
			}
			b.state.Store(int32(StateStopped))
			close(b.stoppedCh)
		})
	})
	return started
}

// Stopped returns a channel closed once the stop sequence has completed.
func (b *Base) Stopped() <-chan struct{} {
	return b.stoppedCh
}

// WaitForStop blocks until the stop sequence completes or timeout elapses.
// A timeout of zero or less waits indefinitely.
func (b *Base) WaitForStop(timeout time.Duration) StopResult {
	if timeout <= 0 {
		<-b.stoppedCh
		return b.result()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-b.stoppedCh:
		return b.result()
	case <-timer.C:
		return StopResult{TimedOut: true}
	}
}

func (b *Base) result() StopResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	return StopResult{Errors: b.errs}
}
