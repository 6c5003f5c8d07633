// SPDX-License-Identifier: MPL-2.0

package framework

import (
	"cmp"
	"fmt"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/invowk/modrt/internal/core/runstate"
	"github.com/invowk/modrt/pkg/capability"
	"github.com/invowk/modrt/pkg/module"
	"github.com/invowk/modrt/pkg/resolver"
)

const (
	// DefaultShutdownWorkers bounds how many modules are stopped in parallel during shutdown.
	DefaultShutdownWorkers = 4
	// DefaultLockTimeout bounds how long a transition waits for a module's lock.
	DefaultLockTimeout = 30 * time.Second
)

type (
	// Option configures a Framework.
	Option func(*Framework)

	// Framework installs, resolves, starts, stops and removes modules.
	Framework struct {
		base     *runstate.Base
		logger   *log.Logger
		storage  module.Storage
		factory  module.ActivatorFactory
		resolver *resolver.Resolver

		shutdownWorkers int
		lockTimeout     time.Duration

		// mu serializes registry writers; readers load reg.
		mu     sync.Mutex
		reg    atomic.Pointer[registry]
		nextID module.ID

		// resolveMu makes resolution single-writer.
		resolveMu sync.Mutex
		// refreshMu serializes refreshes.
		refreshMu sync.Mutex

		events   *dispatcher
		services *services
	}

	// ProvidedCapability is a capability exported by a resolved module.
	ProvidedCapability struct {
		Module     module.ID
		Capability capability.Capability
	}

	// StopResult is the outcome of WaitForStop.
	StopResult = runstate.StopResult
)

// WithLogger sets the framework logger.
func WithLogger(l *log.Logger) Option {
	return func(f *Framework) {
		f.logger = l
	}
}

// WithStorage sets where module content is read from. Without storage,
// modules have no local content.
func WithStorage(s module.Storage) Option {
	return func(f *Framework) {
		f.storage = s
	}
}

// WithActivators sets the factory that builds the activators descriptors name.
func WithActivators(factory module.ActivatorFactory) Option {
	return func(f *Framework) {
		f.factory = factory
	}
}

// WithShutdownWorkers sets how many modules are stopped in parallel during shutdown.
func WithShutdownWorkers(n int) Option {
	return func(f *Framework) {
		if n > 0 {
			f.shutdownWorkers = n
		}
	}
}

// WithLockTimeout sets how long a transition waits for a module's lock.
func WithLockTimeout(d time.Duration) Option {
	return func(f *Framework) {
		if d > 0 {
			f.lockTimeout = d
		}
	}
}

// New creates a running Framework. Shutdown must be called to release its
// event dispatcher.
func New(opts ...Option) *Framework {
	f := &Framework{
		base:            runstate.NewBase(),
		logger:          log.NewWithOptions(os.Stderr, log.Options{Prefix: "modrt", Level: log.WarnLevel}),
		shutdownWorkers: DefaultShutdownWorkers,
		lockTimeout:     DefaultLockTimeout,
		services:        newServices(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.resolver = resolver.New(resolver.WithLogger(f.logger))
	f.events = newDispatcher(f.logger)
	f.reg.Store(newRegistry())
	return f
}

// AddListener subscribes l to framework events and returns a function
// removing it. Listeners run on the dispatch goroutine and must not block.
func (f *Framework) AddListener(l module.Listener) func() {
	return f.events.add(l)
}

// Module returns an installed module.
func (f *Framework) Module(id module.ID) (*module.Module, bool) {
	e, ok := f.reg.Load().installed[id]
	if !ok {
		return nil, false
	}
	return e.mod, true
}

// Modules returns the installed modules in identifier order.
func (f *Framework) Modules() []*module.Module {
	return f.reg.Load().modules()
}

// Pending returns the uninstalled modules still wired to by others.
func (f *Framework) Pending() []module.ID {
	entries := sortedEntries(f.reg.Load().pending)
	out := make([]module.ID, len(entries))
	for i, e := range entries {
		out[i] = e.mod.ID()
	}
	return out
}

// Wiring returns the wiring of a resolved, installed module.
func (f *Framework) Wiring(id module.ID) (*module.Wiring, bool) {
	m, ok := f.Module(id)
	if !ok {
		return nil, false
	}
	w := m.Wiring()
	return w, w != nil
}

// ResolvedCapabilities returns the capabilities exported by resolved modules
// whose namespace matches filter, best first within a namespace. The filter
// is a namespace, a trailing-wildcard prefix ("com.acme.*") or "*"; an empty
// filter matches everything.
func (f *Framework) ResolvedCapabilities(filter capability.Namespace) []ProvidedCapability {
	if filter == "" {
		filter = capability.Wildcard
	}

	var out []ProvidedCapability
	for _, e := range f.reg.Load().entries() {
		w := e.mod.Wiring()
		if w == nil || e.mod.Descriptor().IsFragment() {
			continue
		}
		for _, c := range w.Capabilities {
			if filter.MatchPattern(c.Namespace) {
				out = append(out, ProvidedCapability{Module: e.mod.ID(), Capability: c})
			}
		}
	}
	slices.SortStableFunc(out, func(a, b ProvidedCapability) int {
		if c := cmp.Compare(a.Capability.Namespace, b.Capability.Namespace); c != 0 {
			return c
		}
		if c := b.Capability.EffectiveVersion().Compare(a.Capability.EffectiveVersion()); c != 0 {
			return c
		}
		return cmp.Compare(a.Module, b.Module)
	})
	return out
}

// Service returns the service registered under name by an active module.
func (f *Framework) Service(name string) (any, bool) {
	return f.services.get(name)
}

func (f *Framework) emit(t module.EventType, id module.ID, err error) {
	f.events.emit(module.Event{Type: t, Module: id, Err: err})
}

// entry returns the installed entry for id. Identifiers of modules that were
// uninstalled yield a LifecycleError for op.
func (f *Framework) entry(op string, id module.ID) (*entry, error) {
	if e, ok := f.reg.Load().installed[id]; ok {
		return e, nil
	}
	f.mu.Lock()
	issued := id > 0 && id <= f.nextID
	f.mu.Unlock()
	if issued {
		return nil, &module.LifecycleError{Module: id, Op: op, State: module.StateUninstalled}
	}
	return nil, fmt.Errorf("%w: %s", module.ErrUnknownModule, id)
}
