// SPDX-License-Identifier: MPL-2.0

package scope

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/invowk/modrt/pkg/capability"
	"github.com/invowk/modrt/pkg/module"
)

type (
	// Result is the outcome of a SymbolProvider lookup. A miss is not an error.
	Result struct {
		Definition *module.Definition
		Found      bool
	}

	// SymbolProvider is one step of a scope's search order.
	SymbolProvider interface {
		Find(ctx context.Context, sym capability.Symbol, g *Guard) (Result, error)
	}

	// Exporter is a resolved module exporting a namespace.
	Exporter struct {
		Module     module.ID
		Capability capability.Capability
	}

	// Environment is the framework side of a scope: access to other modules'
	// scopes and on-demand resolution for dynamic requirements.
	Environment interface {
		// Module returns an installed or removal-pending module.
		Module(id module.ID) (*module.Module, bool)
		// Scope returns the scope of a resolved or removal-pending module.
		Scope(id module.ID) (*Scope, bool)
		// Exporters returns the resolved, installed modules exporting a
		// capability that satisfies req for ns, best first.
		Exporters(ns capability.Namespace, req capability.Requirement) []Exporter
		// ResolveExporters tries to resolve installed modules that export ns.
		// It reports whether any module was newly resolved.
		ResolveExporters(ctx context.Context, ns capability.Namespace) (bool, error)
	}

	// Option configures a Scope.
	Option func(*Scope)

	// Scope is the symbol resolution scope of one resolved module.
	Scope struct {
		mod       *module.Module
		env       Environment
		logger    *log.Logger
		providers []SymbolProvider

		wiring atomic.Pointer[module.Wiring]

		mu      sync.Mutex
		defined map[capability.Symbol]*module.Definition
		flight  singleflight.Group
	}
)

// NotFound is the Result of a provider that cannot supply the symbol.
var NotFound = Result{}

// WithLogger sets the logger used for lookup diagnostics.
func WithLogger(l *log.Logger) Option {
	return func(s *Scope) {
		s.logger = l
	}
}

// New creates the scope of a resolved module. The module's current wiring is
// captured; later dynamic wires are added through the scope.
func New(mod *module.Module, env Environment, opts ...Option) *Scope {
	s := &Scope{
		mod:     mod,
		env:     env,
		logger:  log.New(io.Discard),
		defined: make(map[capability.Symbol]*module.Definition),
	}
	s.wiring.Store(mod.Wiring())
	s.providers = []SymbolProvider{
		&LocalProvider{scope: s},
		&WireProvider{scope: s},
		&DynamicProvider{scope: s},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Module returns the module the scope belongs to.
func (s *Scope) Module() *module.Module { return s.mod }

// Wiring returns the wiring the scope resolves against. It stays available
// after the module is uninstalled so that stale dependents keep working.
func (s *Scope) Wiring() *module.Wiring { return s.wiring.Load() }

// Defined returns the cached definition of sym, if any.
func (s *Scope) Defined(sym capability.Symbol) (*module.Definition, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	def, ok := s.defined[sym]
	return def, ok
}

// Lookup resolves sym. Concurrent lookups of the same symbol share one search
// and observe the same definition. A miss returns a *module.SymbolNotFoundError.
func (s *Scope) Lookup(ctx context.Context, sym capability.Symbol) (*module.Definition, error) {
	if ok, errs := sym.IsValid(); !ok {
		return nil, errs[0]
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if def, ok := s.Defined(sym); ok {
		return def, nil
	}

	ch := s.flight.DoChan(string(sym), func() (any, error) {
		// Joined callers must not inherit the first caller's cancellation.
		res, err := s.find(context.WithoutCancel(ctx), sym, NewGuard())
		if err != nil {
			return nil, err
		}
		return res, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-ch:
		if out.Err != nil {
			return nil, out.Err
		}
		res := out.Val.(Result)
		if !res.Found {
			s.logger.Debug("symbol not found", "module", s.mod.ID(), "symbol", sym)
			return nil, &module.SymbolNotFoundError{Module: s.mod.ID(), Symbol: sym}
		}
		return res.Definition, nil
	}
}

// find runs the provider chain for sym under guard g.
func (s *Scope) find(ctx context.Context, sym capability.Symbol, g *Guard) (Result, error) {
	if def, ok := s.Defined(sym); ok {
		return Result{Definition: def, Found: true}, nil
	}
	if !g.enter(s.mod.ID(), sym) {
		return NotFound, nil
	}

	found := false
	defer func() { g.leave(s.mod.ID(), sym, found) }()

	for _, p := range s.providers {
		if err := ctx.Err(); err != nil {
			return NotFound, err
		}
		res, err := p.Find(ctx, sym, g)
		if err != nil {
			return NotFound, err
		}
		if res.Found {
			found = true
			return Result{Definition: s.define(sym, res.Definition), Found: true}, nil
		}
	}
	return NotFound, nil
}

// define caches def under sym unless another definition won the race, in
// which case the winner is returned.
func (s *Scope) define(sym capability.Symbol, def *module.Definition) *module.Definition {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.defined[sym]; ok {
		return existing
	}
	s.defined[sym] = def
	return def
}

// addDynamicWire records wire on the scope's wiring and on the module's
// published wiring if it is still installed.
func (s *Scope) addDynamicWire(wire module.Wire) {
	for {
		cur := s.wiring.Load()
		next := cur.WithDynamicWire(wire)
		if next == cur || s.wiring.CompareAndSwap(cur, next) {
			break
		}
	}
	s.mod.UpdateWiring(func(cur *module.Wiring) *module.Wiring {
		if cur == nil {
			return nil
		}
		return cur.WithDynamicWire(wire)
	})
}

// scopeOf returns the scope of a wired provider.
func (s *Scope) scopeOf(id module.ID) (*Scope, bool) {
	if id == s.mod.ID() {
		return s, true
	}
	return s.env.Scope(id)
}
