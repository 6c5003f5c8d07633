// SPDX-License-Identifier: MPL-2.0

package framework

import (
	"context"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/invowk/modrt/pkg/module"
)

// Shutdown begins stopping every running module, dependents before the
// modules they are wired to, on a pool of workers. It returns immediately;
// use WaitForStop to block until the framework has stopped. Failures are
// emitted as EventError and collected in the StopResult rather than
// aborting the sequence. Only the first call has an effect.
func (f *Framework) Shutdown() {
	if f.base.Stop(f.stopAll, f.finishStop) {
		f.logger.Debug("framework shutdown requested")
	}
}

// WaitForStop blocks until shutdown has completed or timeout elapses. A
// timeout of zero or less waits indefinitely.
func (f *Framework) WaitForStop(timeout time.Duration) StopResult {
	return f.base.WaitForStop(timeout)
}

// Stopped returns a channel closed once shutdown has completed.
func (f *Framework) Stopped() <-chan struct{} {
	return f.base.Stopped()
}

func (f *Framework) stopAll() []error {
	reg := f.reg.Load()
	levels := dependencyGraph(reg).Levels()

	var (
		mu   sync.Mutex
		errs []error
	)
	record := func(id module.ID, err error) {
		f.logger.Error("stop during shutdown", "module", id, "error", err)
		f.emit(module.EventError, id, err)
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	for _, level := range slices.Backward(levels) {
		var g errgroup.Group
		g.SetLimit(f.shutdownWorkers)
		for _, id := range level {
			e, ok := reg.installed[id]
			if !ok {
				continue
			}
			g.Go(func() error {
				if err := f.acquire(context.Background(), e); err != nil {
					record(id, err)
					return nil
				}
				defer f.release(e)
				if err := f.stopLocked(e); err != nil {
					record(id, err)
				}
				return nil
			})
		}
		_ = g.Wait()
	}
	return errs
}

func (f *Framework) finishStop() {
	f.emit(module.EventFrameworkStopped, 0, nil)
	f.events.close()
}
