// SPDX-License-Identifier: MPL-2.0

package framework

import (
	"cmp"
	"maps"
	"slices"
	"sync/atomic"

	"github.com/invowk/modrt/pkg/module"
	"github.com/invowk/modrt/pkg/scope"
)

type (
	// entry is the framework's bookkeeping for one module.
	entry struct {
		mod *module.Module

		// lock serializes lifecycle transitions of the module.
		lock chan struct{}
		// removing is set by Uninstall when it finds the module STOPPING.
		removing atomic.Bool
		scope    atomic.Pointer[scope.Scope]

		// Guarded by lock.
		activator  module.Activator
		activation *activation
	}

	// registry is an immutable snapshot of the installed and removal-pending
	// modules. Writers clone it, modify the clone and publish it.
	registry struct {
		installed map[module.ID]*entry
		pending   map[module.ID]*entry
		locations map[string]module.ID
	}
)

func newEntry(m *module.Module) *entry {
	return &entry{mod: m, lock: make(chan struct{}, 1)}
}

func newRegistry() *registry {
	return &registry{
		installed: make(map[module.ID]*entry),
		pending:   make(map[module.ID]*entry),
		locations: make(map[string]module.ID),
	}
}

func (r *registry) clone() *registry {
	return &registry{
		installed: maps.Clone(r.installed),
		pending:   maps.Clone(r.pending),
		locations: maps.Clone(r.locations),
	}
}

// lookup returns an installed or removal-pending entry.
func (r *registry) lookup(id module.ID) (*entry, bool) {
	if e, ok := r.installed[id]; ok {
		return e, true
	}
	e, ok := r.pending[id]
	return e, ok
}

// entries returns the installed entries in identifier order.
func (r *registry) entries() []*entry {
	return sortedEntries(r.installed)
}

// all returns installed and removal-pending entries in identifier order.
func (r *registry) all() []*entry {
	out := sortedEntries(r.installed)
	out = append(out, sortedEntries(r.pending)...)
	slices.SortFunc(out, byID)
	return out
}

func sortedEntries(m map[module.ID]*entry) []*entry {
	out := slices.Collect(maps.Values(m))
	slices.SortFunc(out, byID)
	return out
}

func byID(a, b *entry) int {
	return cmp.Compare(a.mod.ID(), b.mod.ID())
}

// modules returns the installed modules in identifier order.
func (r *registry) modules() []*module.Module {
	entries := r.entries()
	out := make([]*module.Module, len(entries))
	for i, e := range entries {
		out[i] = e.mod
	}
	return out
}

// referenced reports whether any other module's wiring points at id.
func (r *registry) referenced(id module.ID) bool {
	for _, e := range r.all() {
		if e.mod.ID() == id {
			continue
		}
		w := e.mod.Wiring()
		if w == nil {
			continue
		}
		if slices.Contains(w.Fragments, id) || slices.Contains(w.Providers(), id) {
			return true
		}
	}
	return false
}
