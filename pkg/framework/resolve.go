// SPDX-License-Identifier: MPL-2.0

package framework

import (
	"cmp"
	"context"
	"slices"

	"github.com/invowk/modrt/pkg/capability"
	"github.com/invowk/modrt/pkg/module"
	"github.com/invowk/modrt/pkg/resolver"
	"github.com/invowk/modrt/pkg/scope"
)

// environment adapts the framework to scope.Environment.
type environment struct {
	f *Framework
}

var _ scope.Environment = environment{}

// Resolve resolves one module. Resolving a module that is already resolved
// does nothing; a module that cannot be resolved yields its
// *module.ResolutionError.
func (f *Framework) Resolve(ctx context.Context, id module.ID) error {
	e, err := f.entry("resolve", id)
	if err != nil {
		return err
	}
	if e.mod.State().IsResolved() {
		return nil
	}
	return f.resolveOne(ctx, id)
}

// ResolveAll resolves every installed module it can. Modules that cannot be
// resolved are reported, not raised; they stay INSTALLED. The error is
// non-nil only when ctx is done.
func (f *Framework) ResolveAll(ctx context.Context) (map[module.ID]*module.ResolutionError, error) {
	f.resolveMu.Lock()
	defer f.resolveMu.Unlock()

	res, err := f.resolveLocked(ctx, nil)
	if err != nil {
		return nil, err
	}
	return res.Failures, nil
}

func (f *Framework) resolveOne(ctx context.Context, id module.ID) error {
	f.resolveMu.Lock()
	defer f.resolveMu.Unlock()

	res, err := f.resolveLocked(ctx, []module.ID{id})
	if err != nil {
		return err
	}
	if fail, ok := res.Failures[id]; ok {
		return fail
	}
	return nil
}

// resolveLocked runs the resolver over the installed modules and publishes
// the result. The caller holds resolveMu.
func (f *Framework) resolveLocked(ctx context.Context, roots []module.ID) (*resolver.Result, error) {
	reg := f.reg.Load()
	res, err := f.resolver.Resolve(ctx, reg.modules(), roots)
	if err != nil {
		return nil, err
	}

	for _, id := range res.Order {
		e := reg.installed[id]
		e.mod.PublishWiring(res.Wirings[id])
		if !e.mod.Descriptor().IsFragment() {
			e.scope.Store(scope.New(e.mod, environment{f}, scope.WithLogger(f.logger)))
		}
		e.mod.SetState(module.StateResolved)
		f.emit(module.EventResolved, id, nil)
	}
	for id, fail := range res.Failures {
		f.logger.Info("module unresolved", "module", reg.installed[id].mod, "error", fail)
	}
	return res, nil
}

// Lookup resolves sym through the scope of module id, resolving the module
// first if needed. Fragment symbols are looked up through the host.
func (f *Framework) Lookup(ctx context.Context, id module.ID, sym capability.Symbol) (*module.Definition, error) {
	e, err := f.entry("lookup", id)
	if err != nil {
		return nil, err
	}
	return f.lookupEntry(ctx, e, sym)
}

func (f *Framework) lookupEntry(ctx context.Context, e *entry, sym capability.Symbol) (*module.Definition, error) {
	m := e.mod
	if m.Descriptor().IsFragment() {
		return nil, &module.LifecycleError{Module: m.ID(), Op: "lookup", State: m.State(), Detail: "fragment symbols are served by the host"}
	}
	if m.State() == module.StateInstalled {
		if err := f.resolveOne(ctx, m.ID()); err != nil {
			return nil, err
		}
	}
	s := e.scope.Load()
	if s == nil {
		return nil, &module.LifecycleError{Module: m.ID(), Op: "lookup", State: m.State()}
	}
	return s.Lookup(ctx, sym)
}

func (env environment) Module(id module.ID) (*module.Module, bool) {
	e, ok := env.f.reg.Load().lookup(id)
	if !ok {
		return nil, false
	}
	return e.mod, true
}

func (env environment) Scope(id module.ID) (*scope.Scope, bool) {
	e, ok := env.f.reg.Load().lookup(id)
	if !ok {
		return nil, false
	}
	s := e.scope.Load()
	return s, s != nil
}

// Exporters only considers installed modules so that removal-pending modules
// never gain new wires.
func (env environment) Exporters(ns capability.Namespace, req capability.Requirement) []scope.Exporter {
	var out []scope.Exporter
	for _, e := range env.f.reg.Load().entries() {
		w := e.mod.Wiring()
		if w == nil || !e.mod.State().IsResolved() || e.mod.Descriptor().IsFragment() {
			continue
		}
		if c, ok := w.Export(ns); ok && req.Matches(c) {
			out = append(out, scope.Exporter{Module: e.mod.ID(), Capability: c})
		}
	}
	slices.SortStableFunc(out, func(a, b scope.Exporter) int {
		if c := b.Capability.EffectiveVersion().Compare(a.Capability.EffectiveVersion()); c != 0 {
			return c
		}
		return cmp.Compare(a.Module, b.Module)
	})
	return out
}

func (env environment) ResolveExporters(ctx context.Context, ns capability.Namespace) (bool, error) {
	f := env.f
	f.resolveMu.Lock()
	defer f.resolveMu.Unlock()

	var roots []module.ID
	for _, e := range f.reg.Load().entries() {
		if e.mod.State() == module.StateInstalled && e.mod.Descriptor().Owns(ns) {
			roots = append(roots, e.mod.ID())
		}
	}
	if len(roots) == 0 {
		return false, nil
	}
	res, err := f.resolveLocked(ctx, roots)
	if err != nil {
		return false, err
	}
	return len(res.Order) > 0, nil
}
