// SPDX-License-Identifier: MPL-2.0

package scope

import (
	"context"

	"github.com/invowk/modrt/pkg/capability"
	"github.com/invowk/modrt/pkg/module"
)

// DynamicProvider late-binds symbols whose namespace matches one of the
// module's dynamic requirements. Each symbol is resolved on its own: dynamic
// wires already created for the namespace are tried first, as long as their
// provider is still installed, and a miss falls through to every resolved
// exporter and then to on-demand resolution. A successful binding to a new
// provider is recorded as a dynamic wire.
type DynamicProvider struct {
	scope *Scope
}

// Find implements SymbolProvider.
func (p *DynamicProvider) Find(ctx context.Context, sym capability.Symbol, g *Guard) (Result, error) {
	s := p.scope
	w := s.Wiring()
	if w == nil {
		return NotFound, nil
	}
	ns := sym.Namespace()

	var matched []capability.Requirement
	for _, req := range w.DynamicRequirements() {
		if req.Namespace.MatchPattern(ns) {
			matched = append(matched, req)
		}
	}
	if len(matched) == 0 {
		return NotFound, nil
	}

	for _, wire := range w.DynamicWires(ns) {
		if !p.installed(wire.Provider) {
			continue
		}
		res, err := s.throughWire(ctx, wire, sym, g, false)
		if err != nil || res.Found {
			return res, err
		}
	}

	if !g.enterDynamic(sym) {
		return NotFound, nil
	}
	defer g.leaveDynamic(sym)

	res, err := p.scan(ctx, sym, matched, g)
	if err != nil || res.Found {
		return res, err
	}

	resolved, err := s.env.ResolveExporters(ctx, ns)
	if err != nil || !resolved {
		return NotFound, err
	}
	return p.scan(ctx, sym, matched, g)
}

// scan asks every resolved exporter of the symbol's namespace, best first.
func (p *DynamicProvider) scan(ctx context.Context, sym capability.Symbol, matched []capability.Requirement, g *Guard) (Result, error) {
	s := p.scope
	ns := sym.Namespace()
	for _, req := range matched {
		// Patterns match by namespace; the exporter lookup is by concrete name.
		concrete := req
		concrete.Namespace = ns
		concrete.Dynamic = false

		for _, exp := range s.env.Exporters(ns, concrete) {
			if exp.Module == s.mod.ID() {
				continue
			}
			wire := module.Wire{
				Requirer:    s.mod.ID(),
				Requirement: req,
				Provider:    exp.Module,
				Capability:  exp.Capability,
			}
			res, err := s.throughWire(ctx, wire, sym, g, false)
			if err != nil {
				return NotFound, err
			}
			if res.Found {
				s.addDynamicWire(wire)
				s.logger.Debug("dynamic wire created", "module", s.mod.ID(), "namespace", ns, "provider", exp.Module)
				return res, nil
			}
		}
	}
	return NotFound, nil
}

// installed reports whether id may still be bound by new lookups. A
// removal-pending provider keeps serving the symbols already defined from it.
func (p *DynamicProvider) installed(id module.ID) bool {
	m, ok := p.scope.env.Module(id)
	return ok && m.State() != module.StateUninstalled
}
