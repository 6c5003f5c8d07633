// SPDX-License-Identifier: MPL-2.0

package resolver

import (
	"cmp"
	"context"
	"errors"
	"io"
	"maps"
	"slices"

	"github.com/charmbracelet/log"

	"github.com/invowk/modrt/internal/dag"
	"github.com/invowk/modrt/pkg/capability"
	"github.com/invowk/modrt/pkg/module"
)

// ErrHostResolved is the cause reported for a fragment whose only matching
// host is already resolved. The host must be refreshed for the fragment to attach.
var ErrHostResolved = errors.New("host already resolved")

type (
	// Option configures a Resolver.
	Option func(*Resolver)

	// Resolver wires installed modules. A Resolver holds no state between
	// calls; callers serialize Resolve invocations that share modules.
	Resolver struct {
		logger *log.Logger
	}

	// Result is the outcome of one resolution pass.
	Result struct {
		// Wirings holds the new wiring of every module that resolved.
		Wirings map[module.ID]*module.Wiring
		// Failures holds the reason each failed root could not resolve. For a
		// pass over every installed module it holds every failure.
		Failures map[module.ID]*module.ResolutionError
		// Order lists the resolved modules with providers before their requirers.
		// Modules on a wiring cycle are listed last, in identifier order.
		Order []module.ID
	}

	// candidate is one provider capability able to satisfy a requirement.
	candidate struct {
		id    module.ID
		fixed bool
		cap   capability.Capability
	}

	// pass holds the working state of a single Resolve call.
	pass struct {
		ids      []module.ID
		mods     map[module.ID]*module.Module
		fixed    map[module.ID]bool
		pool     map[module.ID]bool
		failures map[module.ID]*module.ResolutionError
		hostOf   map[module.ID]module.ID
	}
)

// WithLogger sets the logger used for resolution diagnostics.
func WithLogger(l *log.Logger) Option {
	return func(r *Resolver) {
		r.logger = l
	}
}

// New creates a Resolver with the given options.
func New(opts ...Option) *Resolver {
	r := &Resolver{logger: log.New(io.Discard)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve wires the INSTALLED modules of universe reachable from roots. A nil
// roots slice resolves every installed module. Modules whose state is
// RESOLVED or later are treated as fixed providers. Failures are returned as
// data in the Result; the error is non-nil only when ctx is done.
func (r *Resolver) Resolve(ctx context.Context, universe []*module.Module, roots []module.ID) (*Result, error) {
	p := newPass(universe)

	if err := p.fixedPoint(ctx); err != nil {
		return nil, err
	}

	res := &Result{
		Wirings:  make(map[module.ID]*module.Wiring),
		Failures: make(map[module.ID]*module.ResolutionError),
	}

	all := roots == nil
	if all {
		roots = p.ids
	}
	for _, id := range roots {
		if fail, ok := p.failures[id]; ok {
			res.Failures[id] = fail
		}
	}
	if all {
		maps.Copy(res.Failures, p.failures)
	}

	p.commit(roots, res)
	res.Order = p.order(res.Wirings)

	for _, id := range res.Order {
		r.logger.Debug("module resolved", "module", p.mods[id], "wires", len(res.Wirings[id].Wires))
	}
	for id, fail := range res.Failures {
		r.logger.Debug("module unresolved", "module", p.mods[id], "reason", fail.Reason, "requirement", fail.Requirement.String())
	}
	return res, nil
}

func newPass(universe []*module.Module) *pass {
	p := &pass{
		mods:     make(map[module.ID]*module.Module, len(universe)),
		fixed:    make(map[module.ID]bool),
		pool:     make(map[module.ID]bool),
		failures: make(map[module.ID]*module.ResolutionError),
		hostOf:   make(map[module.ID]module.ID),
	}
	for _, m := range universe {
		id := m.ID()
		p.mods[id] = m
		p.ids = append(p.ids, id)
		switch s := m.State(); {
		case s.IsResolved() && m.Wiring() != nil:
			p.fixed[id] = true
		case s == module.StateInstalled:
			p.pool[id] = true
		}
	}
	slices.Sort(p.ids)
	return p
}

// fixedPoint discards pool modules until every survivor has a candidate for
// each mandatory requirement among fixed modules and other survivors.
func (p *pass) fixedPoint(ctx context.Context) error {
	for changed := true; changed; {
		if err := ctx.Err(); err != nil {
			return err
		}
		changed = false

		for _, id := range p.ids {
			if !p.pool[id] || !p.isFragment(id) || p.failures[id] != nil {
				continue
			}
			if p.attachFragment(id) {
				changed = true
			}
		}

		for _, id := range p.ids {
			if !p.viable(id) {
				continue
			}
			for _, req := range p.mods[id].Descriptor().Requirements {
				if !req.Mandatory() || p.selfSatisfies(id, req) {
					continue
				}
				if len(p.candidates(req, id)) == 0 {
					p.failures[id] = p.diagnose(id, req)
					changed = true
					break
				}
			}
		}
	}
	return nil
}

// attachFragment picks the fragment's host and checks the fragment's own
// requirements. It reports whether anything changed.
func (p *pass) attachFragment(id module.ID) bool {
	desc := p.mods[id].Descriptor()
	prev, hadHost := p.hostOf[id]

	host, ok := p.bestHost(*desc.Host)
	if !ok {
		delete(p.hostOf, id)
		p.failures[id] = p.diagnoseHost(id, *desc.Host)
		return true
	}
	p.hostOf[id] = host

	for _, req := range desc.Requirements {
		if !req.Mandatory() || p.selfSatisfies(host, req) {
			continue
		}
		if len(p.candidates(req, host)) == 0 {
			delete(p.hostOf, id)
			p.failures[id] = p.diagnose(id, req)
			return true
		}
	}
	return !hadHost || prev != host
}

func (p *pass) isFragment(id module.ID) bool {
	return p.mods[id].Descriptor().IsFragment()
}

// viable reports whether id is a non-fragment pool module that has not failed.
func (p *pass) viable(id module.ID) bool {
	return p.pool[id] && !p.isFragment(id) && p.failures[id] == nil
}

// providerEligible reports whether id may be wired to in this pass.
func (p *pass) providerEligible(id module.ID) bool {
	if p.isFragment(id) {
		return false
	}
	return p.fixed[id] || p.viable(id)
}

// exports returns the effective capabilities of a module: the published wiring
// for fixed modules, otherwise the declared exports plus those of attached fragments.
func (p *pass) exports(id module.ID) []capability.Capability {
	m := p.mods[id]
	if p.fixed[id] {
		return m.Wiring().Capabilities
	}
	caps := m.Descriptor().Exports()
	for _, f := range p.fragmentsOf(id) {
		caps = append(caps, p.mods[f].Descriptor().Capabilities...)
	}
	return caps
}

// fragmentsOf returns the fragments currently attached to host, in identifier order.
func (p *pass) fragmentsOf(host module.ID) []module.ID {
	var out []module.ID
	for _, id := range p.ids {
		if h, ok := p.hostOf[id]; ok && h == host && p.failures[id] == nil {
			out = append(out, id)
		}
	}
	return out
}

func (p *pass) selfSatisfies(id module.ID, req capability.Requirement) bool {
	return slices.ContainsFunc(p.exports(id), req.Matches)
}

// candidates returns the providers able to satisfy req for requirer, best first.
func (p *pass) candidates(req capability.Requirement, requirer module.ID) []candidate {
	var out []candidate
	for _, id := range p.ids {
		if id == requirer || !p.providerEligible(id) {
			continue
		}
		for _, c := range p.exports(id) {
			if req.Matches(c) {
				out = append(out, candidate{id: id, fixed: p.fixed[id], cap: c})
				break
			}
		}
	}
	slices.SortStableFunc(out, compareCandidates)
	return out
}

// compareCandidates orders fixed providers first, then higher versions, then lower identifiers.
func compareCandidates(a, b candidate) int {
	if a.fixed != b.fixed {
		if a.fixed {
			return -1
		}
		return 1
	}
	if c := b.cap.EffectiveVersion().Compare(a.cap.EffectiveVersion()); c != 0 {
		return c
	}
	return cmp.Compare(a.id, b.id)
}

// bestHost returns the viable pool module a fragment should attach to.
func (p *pass) bestHost(req capability.Requirement) (module.ID, bool) {
	var best *candidate
	for _, id := range p.ids {
		if !p.viable(id) {
			continue
		}
		c := candidate{id: id, cap: p.mods[id].Descriptor().Identity()}
		if !req.Matches(c.cap) {
			continue
		}
		if best == nil || compareCandidates(c, *best) < 0 {
			best = &c
		}
	}
	if best == nil {
		return 0, false
	}
	return best.id, true
}

// diagnose explains why req of id has no candidate.
func (p *pass) diagnose(id module.ID, req capability.Requirement) *module.ResolutionError {
	fail := &module.ResolutionError{
		Module:      id,
		Name:        string(p.mods[id].Descriptor().SymbolicName),
		Requirement: req,
		Reason:      module.ReasonAbsent,
	}

	closest := capability.MatchNamespace
	for _, other := range p.ids {
		if other == id || p.isFragment(other) {
			continue
		}
		for _, c := range p.exports(other) {
			switch m := req.Compare(c); {
			case m == capability.MatchOK:
				// Matching provider that failed itself.
				if cause, ok := p.failures[other]; ok && fail.Cause == nil {
					fail.Reason = module.ReasonProviderUnresolvable
					fail.Cause = cause
				}
			case fail.Cause == nil && m > closest:
				closest = m
			}
		}
	}
	if fail.Cause != nil {
		return fail
	}
	switch closest {
	case capability.MatchVersion:
		fail.Reason = module.ReasonVersionMismatch
	case capability.MatchAttributes:
		fail.Reason = module.ReasonAttributeMismatch
	}
	return fail
}

// diagnoseHost explains why a fragment found no host.
func (p *pass) diagnoseHost(id module.ID, req capability.Requirement) *module.ResolutionError {
	fail := p.diagnose(id, req)
	if fail.Cause != nil {
		return fail
	}
	for _, other := range p.ids {
		if p.fixed[other] && !p.isFragment(other) && req.Matches(p.mods[other].Descriptor().Identity()) {
			fail.Reason = module.ReasonProviderUnresolvable
			fail.Cause = ErrHostResolved
			break
		}
	}
	return fail
}

// commit builds wirings for the viable closure of roots.
func (p *pass) commit(roots []module.ID, res *Result) {
	var queue []module.ID
	for _, id := range roots {
		switch {
		case p.viable(id):
			queue = append(queue, id)
		case p.pool[id] && p.isFragment(id) && p.failures[id] == nil:
			queue = append(queue, p.hostOf[id])
		}
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, done := res.Wirings[id]; done {
			continue
		}

		w := p.wiring(id)
		res.Wirings[id] = w
		for _, f := range w.Fragments {
			res.Wirings[f] = p.fragmentWiring(f, id)
		}
		for _, wire := range w.Wires {
			if p.pool[wire.Provider] {
				queue = append(queue, wire.Provider)
			}
		}
	}
}

// wiring builds the wiring record of a viable host and its attached fragments.
func (p *pass) wiring(id module.ID) *module.Wiring {
	desc := p.mods[id].Descriptor()
	w := &module.Wiring{
		Module:       id,
		Fragments:    p.fragmentsOf(id),
		Capabilities: p.exports(id),
		Requirements: slices.Clone(desc.Requirements),
		Private:      slices.Clone(desc.Private),
	}
	for _, f := range w.Fragments {
		fd := p.mods[f].Descriptor()
		w.Requirements = append(w.Requirements, fd.Requirements...)
		w.Private = append(w.Private, fd.Private...)
	}

	for _, req := range w.Requirements {
		if req.Dynamic || p.selfSatisfies(id, req) {
			continue
		}
		cands := p.candidates(req, id)
		if len(cands) == 0 {
			// Optional and unsatisfied.
			continue
		}
		best := cands[0]
		w.Wires = append(w.Wires, module.Wire{
			Requirer:    id,
			Requirement: req,
			Provider:    best.id,
			Capability:  best.cap,
		})
	}
	return w
}

func (p *pass) fragmentWiring(id, host module.ID) *module.Wiring {
	desc := p.mods[id].Descriptor()
	return &module.Wiring{
		Module: id,
		Wires: []module.Wire{{
			Requirer:    id,
			Requirement: *desc.Host,
			Provider:    host,
			Capability:  p.mods[host].Descriptor().Identity(),
		}},
		Requirements: slices.Clone(desc.Requirements),
		Private:      slices.Clone(desc.Private),
	}
}

// order returns the newly wired modules with providers first.
func (p *pass) order(wirings map[module.ID]*module.Wiring) []module.ID {
	g := dag.New[module.ID]()
	for _, id := range p.ids {
		if _, ok := wirings[id]; ok {
			g.AddNode(id)
		}
	}
	for _, id := range g.Nodes() {
		for _, wire := range wirings[id].Wires {
			if _, ok := wirings[wire.Provider]; ok && wire.Provider != id {
				g.AddEdge(wire.Provider, id)
			}
		}
	}
	return slices.Concat(g.Levels()...)
}
