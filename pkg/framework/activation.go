// SPDX-License-Identifier: MPL-2.0

package framework

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/invowk/modrt/pkg/capability"
	"github.com/invowk/modrt/pkg/module"
)

// ErrActivationClosed is returned when registering through an activation
// context whose ACTIVE period has ended.
var ErrActivationClosed = errors.New("activation context closed")

// activation implements module.ActivationContext for one ACTIVE period.
type activation struct {
	id     uuid.UUID
	fw     *Framework
	e      *entry
	logger *log.Logger

	mu       sync.Mutex
	cleanups []func() error
	closed   bool
}

var _ module.ActivationContext = (*activation)(nil)

func newActivation(fw *Framework, e *entry) *activation {
	id := uuid.New()
	return &activation{
		id:     id,
		fw:     fw,
		e:      e,
		logger: fw.logger.With("module", e.mod.ID(), "activation", id.String()[:8]),
	}
}

func (a *activation) ID() uuid.UUID { return a.id }

func (a *activation) Module() *module.Module { return a.e.mod }

func (a *activation) Logger() *log.Logger { return a.logger }

func (a *activation) Lookup(ctx context.Context, sym capability.Symbol) (*module.Definition, error) {
	return a.fw.lookupEntry(ctx, a.e, sym)
}

func (a *activation) RegisterService(name string, svc any) (func(), error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, ErrActivationClosed
	}
	unregister, err := a.fw.services.register(a.e.mod.ID(), name, svc)
	if err != nil {
		return nil, err
	}
	once := sync.OnceFunc(unregister)
	a.cleanups = append(a.cleanups, func() error { once(); return nil })
	return once, nil
}

func (a *activation) Service(name string) (any, bool) {
	return a.fw.services.get(name)
}

func (a *activation) AddListener(l module.Listener) func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return func() {}
	}
	once := sync.OnceFunc(a.fw.events.add(l))
	a.cleanups = append(a.cleanups, func() error { once(); return nil })
	return once
}

// Track closes c during teardown, or immediately if teardown already ran.
func (a *activation) Track(c io.Closer) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		if err := c.Close(); err != nil {
			a.logger.Warn("closing resource tracked after teardown", "error", err)
		}
		return
	}
	a.cleanups = append(a.cleanups, c.Close)
	a.mu.Unlock()
}

// teardown releases everything registered through the activation, newest
// first. Every cleanup runs; their errors are joined.
func (a *activation) teardown() error {
	a.mu.Lock()
	a.closed = true
	cleanups := a.cleanups
	a.cleanups = nil
	a.mu.Unlock()

	var errs []error
	for _, fn := range slices.Backward(cleanups) {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// call invokes an activator callback, turning a panic into an error.
func call(fn func(module.ActivationContext) error, actx module.ActivationContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(actx)
}
