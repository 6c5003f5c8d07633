// SPDX-License-Identifier: MPL-2.0

package framework

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/invowk/modrt/pkg/module"
)

// Install adds a module at location declared by desc. Installing a location
// twice returns the module already installed there. Content is opened from
// the configured storage.
func (f *Framework) Install(ctx context.Context, location string, desc *module.Descriptor) (*module.Module, error) {
	if !f.base.IsRunning() {
		return nil, module.ErrFrameworkStopped
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	if reg := f.reg.Load(); reg.locations[location] != 0 {
		return reg.installed[reg.locations[location]].mod, nil
	}

	var content module.ContentRoot
	if f.storage != nil {
		root, err := f.storage.Root(ctx, location)
		if err != nil {
			return nil, fmt.Errorf("open content of %s: %w", location, err)
		}
		content = root
	}

	f.mu.Lock()
	reg := f.reg.Load()
	if id, ok := reg.locations[location]; ok {
		f.mu.Unlock()
		return reg.installed[id].mod, nil
	}
	for _, e := range reg.installed {
		d := e.mod.Descriptor()
		if d.SymbolicName == desc.SymbolicName && d.EffectiveVersion().Equal(desc.EffectiveVersion()) {
			f.mu.Unlock()
			return nil, fmt.Errorf("%w: %s already installed as %s", module.ErrDuplicateModule, desc, e.mod.ID())
		}
	}
	f.nextID++
	m := module.New(f.nextID, location, desc, content)
	next := reg.clone()
	next.installed[m.ID()] = newEntry(m)
	next.locations[location] = m.ID()
	f.reg.Store(next)
	f.mu.Unlock()

	f.logger.Debug("module installed", "module", m, "location", location)
	f.emit(module.EventInstalled, m.ID(), nil)
	return m, nil
}

// Start resolves the module if needed and runs its activator. Starting an
// ACTIVE module does nothing. If the activator fails or cannot be built, the
// module is torn down back to RESOLVED and an *module.ActivationError is returned.
func (f *Framework) Start(ctx context.Context, id module.ID) error {
	if !f.base.IsRunning() {
		return module.ErrFrameworkStopped
	}
	e, err := f.entry("start", id)
	if err != nil {
		return err
	}
	if err := f.acquire(ctx, e); err != nil {
		return err
	}
	defer f.release(e)
	return f.startLocked(ctx, e)
}

// Stop runs the module's exit point and tears down its activation. The module
// lands in RESOLVED even when the exit point fails; the failure is then
// returned as an *module.DeactivationError. If the module was uninstalled
// while stopping, an *module.RemovedDuringStopError is returned instead.
func (f *Framework) Stop(ctx context.Context, id module.ID) error {
	e, err := f.entry("stop", id)
	if err != nil {
		return err
	}
	if err := f.acquire(ctx, e); err != nil {
		return err
	}
	defer f.release(e)

	if e.mod.State() == module.StateUninstalled {
		return &module.LifecycleError{Module: id, Op: "stop", State: module.StateUninstalled}
	}
	return f.stopLocked(e)
}

// Uninstall stops the module if it is running and removes it. A module that
// other modules are wired to stays reachable through those wires until
// Refresh; no new wires are created against it.
func (f *Framework) Uninstall(ctx context.Context, id module.ID) error {
	e, err := f.entry("uninstall", id)
	if err != nil {
		return err
	}
	if e.mod.State() == module.StateStopping {
		e.removing.Store(true)
	}
	if err := f.acquire(ctx, e); err != nil {
		e.removing.Store(false)
		return err
	}
	defer f.release(e)

	if e.mod.State() == module.StateUninstalled {
		return &module.LifecycleError{Module: id, Op: "uninstall", State: module.StateUninstalled}
	}

	if e.mod.State().IsRunning() {
		e.removing.Store(true)
		if err := f.stopLocked(e); err != nil {
			var removed *module.RemovedDuringStopError
			if errors.As(err, &removed) && removed.Suppressed != nil {
				f.logger.Warn("exit point failed during uninstall", "module", e.mod, "error", removed.Suppressed)
				f.emit(module.EventError, id, removed.Suppressed)
			}
		}
	}

	f.resolveMu.Lock()
	f.mu.Lock()
	next := f.reg.Load().clone()
	delete(next.installed, id)
	delete(next.locations, e.mod.Location())
	pending := next.referenced(id)
	if pending {
		next.pending[id] = e
	}
	f.reg.Store(next)
	f.mu.Unlock()
	f.resolveMu.Unlock()

	if !pending {
		e.scope.Store(nil)
	}
	e.mod.ClearWiring()
	e.mod.SetState(module.StateUninstalled)

	f.logger.Debug("module uninstalled", "module", e.mod, "pending", pending)
	f.emit(module.EventUninstalled, id, nil)
	return nil
}

func (f *Framework) startLocked(ctx context.Context, e *entry) error {
	m := e.mod
	switch s := m.State(); {
	case s == module.StateUninstalled:
		return &module.LifecycleError{Module: m.ID(), Op: "start", State: s}
	case m.Descriptor().IsFragment():
		return &module.LifecycleError{Module: m.ID(), Op: "start", State: s, Detail: "fragments are started through their host"}
	case s == module.StateActive:
		return nil
	case s == module.StateInstalled:
		if err := f.resolveOne(ctx, m.ID()); err != nil {
			return err
		}
	}

	if !m.CompareAndSwapState(module.StateResolved, module.StateStarting) {
		return &module.LifecycleError{Module: m.ID(), Op: "start", State: m.State()}
	}
	f.emit(module.EventStarting, m.ID(), nil)

	act := newActivation(f, e)
	activator, err := f.activatorFor(m.Descriptor())
	if err == nil {
		err = call(activator.Start, act)
	}
	if err != nil {
		m.SetState(module.StateStopping)
		f.emit(module.EventStopping, m.ID(), nil)
		if tdErr := act.teardown(); tdErr != nil {
			f.logger.Warn("teardown after failed start", "module", m, "error", tdErr)
		}
		m.SetState(module.StateResolved)
		f.emit(module.EventStopped, m.ID(), nil)
		return &module.ActivationError{Module: m.ID(), Cause: err}
	}

	e.activator, e.activation = activator, act
	m.SetState(module.StateActive)
	f.logger.Debug("module started", "module", m)
	f.emit(module.EventStarted, m.ID(), nil)
	return nil
}

// stopLocked moves a running module back to RESOLVED. It is a no-op for
// modules that are not running.
func (f *Framework) stopLocked(e *entry) error {
	m := e.mod
	if !m.State().IsRunning() {
		return nil
	}

	m.SetState(module.StateStopping)
	f.emit(module.EventStopping, m.ID(), nil)

	var stopErr error
	if e.activator != nil {
		stopErr = call(e.activator.Stop, e.activation)
	}
	if e.activation != nil {
		if tdErr := e.activation.teardown(); tdErr != nil {
			f.logger.Warn("teardown after stop", "module", m, "error", tdErr)
		}
	}
	e.activator, e.activation = nil, nil

	m.SetState(module.StateResolved)
	f.logger.Debug("module stopped", "module", m)
	f.emit(module.EventStopped, m.ID(), stopErr)

	if e.removing.Load() {
		return &module.RemovedDuringStopError{Module: m.ID(), Suppressed: stopErr}
	}
	if stopErr != nil {
		return &module.DeactivationError{Module: m.ID(), Cause: stopErr}
	}
	return nil
}

// activatorFor builds the activator a descriptor names. Modules without an
// activator get one that does nothing.
func (f *Framework) activatorFor(d *module.Descriptor) (module.Activator, error) {
	if d.Activator == "" {
		return module.ActivatorFuncs{}, nil
	}
	if f.factory == nil {
		return nil, fmt.Errorf("%w: no activator factory configured for %q", module.ErrMalformedActivator, d.Activator)
	}
	return f.factory.NewActivator(d.Activator)
}

// acquire takes the module's transition lock, giving up when ctx is done or
// the lock timeout elapses.
func (f *Framework) acquire(ctx context.Context, e *entry) error {
	select {
	case e.lock <- struct{}{}:
		return nil
	default:
	}

	timer := time.NewTimer(f.lockTimeout)
	defer timer.Stop()
	select {
	case e.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%w: module %s after %s", module.ErrLockTimeout, e.mod.ID(), f.lockTimeout)
	}
}

func (f *Framework) release(e *entry) {
	<-e.lock
}
