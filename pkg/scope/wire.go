// SPDX-License-Identifier: MPL-2.0

package scope

import (
	"context"

	"github.com/invowk/modrt/pkg/capability"
	"github.com/invowk/modrt/pkg/module"
)

// WireProvider delegates to the providers of the module's static wires, in
// declaration order. The first wire able to supply the symbol wins; a wire
// whose provider filters the symbol out is skipped.
type WireProvider struct {
	scope *Scope
}

// Find implements SymbolProvider.
func (p *WireProvider) Find(ctx context.Context, sym capability.Symbol, g *Guard) (Result, error) {
	w := p.scope.Wiring()
	if w == nil {
		return NotFound, nil
	}
	for _, wire := range w.Wires {
		if wire.Requirement.Kind == capability.KindHost {
			continue
		}
		res, err := p.scope.throughWire(ctx, wire, sym, g, true)
		if err != nil || res.Found {
			return res, err
		}
	}
	return NotFound, nil
}

// throughWire asks the provider of wire for sym. Package wires match by
// namespace. Module wires match any namespace the provider exports and, when
// reexport is set, any namespace reachable through the provider's own
// re-exported wires.
func (s *Scope) throughWire(ctx context.Context, wire module.Wire, sym capability.Symbol, g *Guard, reexport bool) (Result, error) {
	ns, simple := sym.Split()

	provider, ok := s.scopeOf(wire.Provider)
	if !ok {
		return NotFound, nil
	}

	if wire.Capability.Kind == capability.KindPackage {
		if wire.Capability.Namespace != ns || !wire.Capability.Visible(simple) {
			return NotFound, nil
		}
		return provider.find(ctx, sym, g)
	}

	pw := provider.Wiring()
	if pw == nil {
		return NotFound, nil
	}
	if c, ok := pw.Export(ns); ok {
		if !c.Visible(simple) {
			return NotFound, nil
		}
		return provider.find(ctx, sym, g)
	}
	if !reexport {
		return NotFound, nil
	}
	for _, rw := range pw.Wires {
		if !rw.Requirement.Reexport {
			continue
		}
		res, err := provider.throughWire(ctx, rw, sym, g, false)
		if err != nil || res.Found {
			return res, err
		}
	}
	return NotFound, nil
}
