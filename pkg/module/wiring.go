// SPDX-License-Identifier: MPL-2.0

package module

import (
	"fmt"
	"slices"

	"github.com/invowk/modrt/pkg/capability"
)

type (
	// Wire binds one requirement of a requiring module to the capability of
	// the module chosen to provide it. Wires are values and never change.
	Wire struct {
		Requirer    ID
		Requirement capability.Requirement
		Provider    ID
		Capability  capability.Capability
	}

	// Wiring is the immutable record published for a resolved module. Adding a
	// dynamic wire produces a new Wiring; the previous one stays valid for
	// readers that already hold it.
	Wiring struct {
		// Module the wiring belongs to.
		Module ID
		// Wires are the static wires in requirement declaration order, the
		// module's own requirements first and then those contributed by
		// attached fragments. A fragment's wiring holds only its host wire.
		Wires []Wire
		// Dynamic wires created lazily at lookup time, in creation order.
		Dynamic []Wire
		// Fragments attached to the module, in install order.
		Fragments []ID
		// Capabilities are the effective exports including fragment contributions.
		Capabilities []capability.Capability
		// Requirements are the effective requirements including fragment contributions.
		Requirements []capability.Requirement
		// Private namespaces are owned locally but not exported.
		Private []capability.Namespace
	}
)

// String returns "#<requirer> -> #<provider> (<capability>)".
func (w Wire) String() string {
	return fmt.Sprintf("%s -> %s (%s)", w.Requirer, w.Provider, w.Capability)
}

// Providers returns the distinct providers of static and dynamic wires, in wire order.
func (w *Wiring) Providers() []ID {
	var out []ID
	for _, wire := range w.AllWires() {
		if !slices.Contains(out, wire.Provider) {
			out = append(out, wire.Provider)
		}
	}
	return out
}

// AllWires returns the static wires followed by the dynamic wires.
func (w *Wiring) AllWires() []Wire {
	return append(slices.Clone(w.Wires), w.Dynamic...)
}

// Export returns the package capability the module exports for ns.
func (w *Wiring) Export(ns capability.Namespace) (capability.Capability, bool) {
	for _, c := range w.Capabilities {
		if c.Kind == capability.KindPackage && c.Namespace == ns {
			return c, true
		}
	}
	return capability.Capability{}, false
}

// Owns reports whether ns is exported or private to the module.
func (w *Wiring) Owns(ns capability.Namespace) bool {
	if _, ok := w.Export(ns); ok {
		return true
	}
	return slices.Contains(w.Private, ns)
}

// ImportsPackage reports whether a static package wire targets ns.
func (w *Wiring) ImportsPackage(ns capability.Namespace) bool {
	return slices.ContainsFunc(w.Wires, func(wire Wire) bool {
		return wire.Capability.Kind == capability.KindPackage && wire.Capability.Namespace == ns
	})
}

// DynamicRequirements returns the dynamic requirements in declaration order.
func (w *Wiring) DynamicRequirements() []capability.Requirement {
	var out []capability.Requirement
	for _, r := range w.Requirements {
		if r.Dynamic {
			out = append(out, r)
		}
	}
	return out
}

// DynamicWires returns the dynamic wires created for ns, in creation order.
func (w *Wiring) DynamicWires(ns capability.Namespace) []Wire {
	var out []Wire
	for _, wire := range w.Dynamic {
		if wire.Capability.Namespace == ns {
			out = append(out, wire)
		}
	}
	return out
}

// WithDynamicWire returns a copy of w with wire appended to the dynamic wires.
// If a dynamic wire for the same namespace and provider exists, w is returned
// unchanged.
func (w *Wiring) WithDynamicWire(wire Wire) *Wiring {
	for _, d := range w.Dynamic {
		if d.Provider == wire.Provider && d.Capability.Namespace == wire.Capability.Namespace {
			return w
		}
	}
	next := *w
	next.Dynamic = append(slices.Clone(w.Dynamic), wire)
	return &next
}
