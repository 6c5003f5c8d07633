// SPDX-License-Identifier: MPL-2.0

package module

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/invowk/modrt/pkg/capability"
)

type (
	// Activator is a module's entry point. Start and Stop are each invoked
	// exactly once per ACTIVE period.
	Activator interface {
		Start(ctx ActivationContext) error
		Stop(ctx ActivationContext) error
	}

	// ActivationContext is handed to an activator for one ACTIVE period. Every
	// service, listener and tracked resource registered through it is torn
	// down when the module leaves STOPPING, whether or not Stop succeeded.
	ActivationContext interface {
		// ID uniquely identifies this activation.
		ID() uuid.UUID
		// Module returns the module being activated.
		Module() *Module
		// Lookup resolves a symbol through the module's scope.
		Lookup(ctx context.Context, sym capability.Symbol) (*Definition, error)
		// RegisterService publishes svc under name until the returned function
		// is called or the activation ends.
		RegisterService(name string, svc any) (unregister func(), err error)
		// Service returns the service registered under name by any active module.
		Service(name string) (any, bool)
		// AddListener subscribes to framework events for this activation.
		AddListener(l Listener) (remove func())
		// Track closes c during teardown.
		Track(c io.Closer)
		// Logger returns a logger scoped to the module.
		Logger() *log.Logger
	}

	// ActivatorFactory builds the activator a descriptor names.
	ActivatorFactory interface {
		NewActivator(name string) (Activator, error)
	}

	// Activators is an ActivatorFactory backed by a map of constructors.
	Activators map[string]func() Activator

	// ActivatorFuncs adapts a pair of functions to the Activator interface.
	// A nil function is a no-op.
	ActivatorFuncs struct {
		OnStart func(ActivationContext) error
		OnStop  func(ActivationContext) error
	}
)

// NewActivator implements ActivatorFactory.
func (a Activators) NewActivator(name string) (Activator, error) {
	ctor, ok := a[name]
	if !ok {
		return nil, fmt.Errorf("%w: no activator registered as %q", ErrMalformedActivator, name)
	}
	act := ctor()
	if act == nil {
		return nil, fmt.Errorf("%w: constructor for %q returned nil", ErrMalformedActivator, name)
	}
	return act, nil
}

// Start implements Activator.
func (f ActivatorFuncs) Start(ctx ActivationContext) error {
	if f.OnStart == nil {
		return nil
	}
	return f.OnStart(ctx)
}

// Stop implements Activator.
func (f ActivatorFuncs) Stop(ctx ActivationContext) error {
	if f.OnStop == nil {
		return nil
	}
	return f.OnStop(ctx)
}
