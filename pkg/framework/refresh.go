// SPDX-License-Identifier: MPL-2.0

package framework

import (
	"context"
	"slices"

	"github.com/invowk/modrt/internal/dag"
	"github.com/invowk/modrt/pkg/module"
)

// RefreshResult reports what a refresh did.
type RefreshResult struct {
	// Refreshed lists the modules whose wiring was dropped, in identifier order.
	// Removal-pending modules among them were discarded.
	Refreshed []module.ID
	// Restarted lists the modules that were ACTIVE before and were started again.
	Restarted []module.ID
	// Unresolved holds the modules that could not be resolved again. They are left INSTALLED.
	Unresolved map[module.ID]*module.ResolutionError
	// Errors holds stop and restart failures.
	Errors []error
}

// dependencyGraph returns the provider -> dependent graph of every installed
// and removal-pending module. Hosts and fragments depend on each other.
func dependencyGraph(reg *registry) *dag.Graph[module.ID] {
	g := dag.New[module.ID]()
	entries := reg.all()
	for _, e := range entries {
		g.AddNode(e.mod.ID())
	}
	for _, e := range entries {
		w := e.mod.Wiring()
		if w == nil {
			continue
		}
		id := e.mod.ID()
		for _, p := range w.Providers() {
			if p != id && g.Has(p) {
				g.AddEdge(p, id)
			}
		}
		for _, frag := range w.Fragments {
			if g.Has(frag) {
				g.AddEdge(frag, id)
				g.AddEdge(id, frag)
			}
		}
	}
	return g
}

// Refresh drops the wiring of ids and of every module transitively wired to
// them, re-resolves them and restarts those that were ACTIVE. With no ids,
// the removal-pending modules are refreshed. Only a done ctx or a lock
// timeout aborts a refresh; other failures are reported in the result.
func (f *Framework) Refresh(ctx context.Context, ids ...module.ID) (*RefreshResult, error) {
	f.refreshMu.Lock()
	defer f.refreshMu.Unlock()

	reg := f.reg.Load()
	if len(ids) == 0 {
		ids = f.Pending()
	}
	var targets []module.ID
	for _, id := range ids {
		if _, ok := reg.lookup(id); ok {
			targets = append(targets, id)
		}
	}

	res := &RefreshResult{Unresolved: make(map[module.ID]*module.ResolutionError)}
	if len(targets) == 0 {
		return res, nil
	}

	g := dependencyGraph(reg)
	affected := g.Reachable(targets...)
	slices.Sort(affected)
	res.Refreshed = affected

	var installed []*entry
	for _, id := range affected {
		if e, ok := reg.installed[id]; ok {
			installed = append(installed, e)
		}
	}

	for i, e := range installed {
		if err := f.acquire(ctx, e); err != nil {
			for _, held := range installed[:i] {
				f.release(held)
			}
			return nil, err
		}
	}
	defer func() {
		for _, e := range installed {
			f.release(e)
		}
	}()

	var wasActive []module.ID
	for _, e := range installed {
		if e.mod.State() == module.StateActive {
			wasActive = append(wasActive, e.mod.ID())
		}
	}

	levels := g.Subgraph(affected).Levels()
	for _, level := range slices.Backward(levels) {
		for _, id := range level {
			e, ok := reg.installed[id]
			if !ok {
				continue
			}
			if err := f.stopLocked(e); err != nil {
				f.logger.Warn("stop during refresh", "module", e.mod, "error", err)
				res.Errors = append(res.Errors, err)
			}
		}
	}

	f.resolveMu.Lock()
	f.unresolveLocked(affected)
	resolved, err := f.resolveLocked(ctx, rootsOf(installed))
	f.resolveMu.Unlock()
	if err != nil {
		return nil, err
	}
	for _, e := range installed {
		if fail, ok := resolved.Failures[e.mod.ID()]; ok {
			res.Unresolved[e.mod.ID()] = fail
		}
	}

	for _, id := range wasActive {
		e := reg.installed[id]
		if !e.mod.State().IsResolved() {
			continue
		}
		if err := f.startLocked(ctx, e); err != nil {
			f.logger.Warn("restart during refresh", "module", e.mod, "error", err)
			res.Errors = append(res.Errors, err)
			continue
		}
		res.Restarted = append(res.Restarted, id)
	}

	f.logger.Debug("refresh complete", "refreshed", len(res.Refreshed), "restarted", len(res.Restarted))
	f.emit(module.EventRefreshed, 0, nil)
	return res, nil
}

// unresolveLocked returns installed modules among ids to INSTALLED and
// discards removal-pending ones. The caller holds resolveMu and the module
// locks of the installed modules.
func (f *Framework) unresolveLocked(ids []module.ID) {
	f.mu.Lock()
	next := f.reg.Load().clone()
	for _, id := range ids {
		if e, ok := next.pending[id]; ok {
			delete(next.pending, id)
			e.scope.Store(nil)
			f.logger.Debug("removal-pending module discarded", "module", e.mod)
		}
	}
	f.reg.Store(next)
	f.mu.Unlock()

	for _, id := range ids {
		e, ok := next.installed[id]
		if !ok || e.mod.Wiring() == nil {
			continue
		}
		e.scope.Store(nil)
		e.mod.SetState(module.StateInstalled)
		e.mod.ClearWiring()
		f.emit(module.EventUnresolved, id, nil)
	}
}

func rootsOf(entries []*entry) []module.ID {
	roots := make([]module.ID, 0, len(entries))
	for _, e := range entries {
		roots = append(roots, e.mod.ID())
	}
	return roots
}
