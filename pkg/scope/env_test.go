// SPDX-License-Identifier: MPL-2.0

package scope

import (
	"cmp"
	"context"
	"io"
	"io/fs"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/invowk/modrt/pkg/capability"
	"github.com/invowk/modrt/pkg/module"
	"github.com/invowk/modrt/pkg/resolver"
)

type (
	// memRoot serves symbol bytes from a map keyed by content path.
	memRoot map[string]string

	descOpt func(*module.Descriptor)

	// testEnv is a minimal framework stand-in: it installs modules, resolves
	// them with the real resolver and hands out scopes.
	testEnv struct {
		t            *testing.T
		mu           sync.Mutex
		mods         []*module.Module
		scopes       map[module.ID]*Scope
		resolveCalls atomic.Int32
	}
)

func (r memRoot) Open(_ context.Context, path string) (io.ReadCloser, error) {
	data, ok := r[path]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}
	return io.NopCloser(strings.NewReader(data)), nil
}

func exporting(ns string, version string) descOpt {
	return func(d *module.Descriptor) {
		d.Capabilities = append(d.Capabilities, capability.NewPackage(capability.Namespace(ns), capability.MustParseVersion(version)))
	}
}

func exportingFiltered(ns string, include, exclude []string) descOpt {
	return func(d *module.Descriptor) {
		c := capability.NewPackage(capability.Namespace(ns), nil)
		c.Include, c.Exclude = include, exclude
		d.Capabilities = append(d.Capabilities, c)
	}
}

func private(ns string) descOpt {
	return func(d *module.Descriptor) {
		d.Private = append(d.Private, capability.Namespace(ns))
	}
}

func requiring(reqs ...capability.Requirement) descOpt {
	return func(d *module.Descriptor) {
		d.Requirements = append(d.Requirements, reqs...)
	}
}

func hostedBy(name string) descOpt {
	return func(d *module.Descriptor) {
		d.Host = &capability.Requirement{Kind: capability.KindHost, Namespace: capability.Namespace(name)}
	}
}

func pkg(ns string) capability.Requirement {
	return capability.Requirement{Kind: capability.KindPackage, Namespace: capability.Namespace(ns)}
}

func requireModule(name string, reexport bool) capability.Requirement {
	return capability.Requirement{Kind: capability.KindModule, Namespace: capability.Namespace(name), Reexport: reexport}
}

func dynamic(pattern string) capability.Requirement {
	return capability.Requirement{Kind: capability.KindPackage, Namespace: capability.Namespace(pattern), Dynamic: true}
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	return &testEnv{t: t, scopes: make(map[module.ID]*Scope)}
}

func (e *testEnv) install(name string, content memRoot, opts ...descOpt) *module.Module {
	e.mu.Lock()
	defer e.mu.Unlock()

	d := &module.Descriptor{SymbolicName: capability.Namespace(name), Version: capability.MustParseVersion("1.0.0")}
	for _, opt := range opts {
		opt(d)
	}
	var root module.ContentRoot
	if content != nil {
		root = content
	}
	m := module.New(module.ID(len(e.mods)+1), name, d, root)
	e.mods = append(e.mods, m)
	return m
}

// resolve resolves roots (every installed module when none are given) and
// fails the test if any root cannot resolve.
func (e *testEnv) resolve(roots ...module.ID) {
	e.t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()

	if roots == nil {
		for _, m := range e.mods {
			if m.State() == module.StateInstalled {
				roots = append(roots, m.ID())
			}
		}
	}
	res := e.resolveLocked(roots)
	if len(res.Failures) > 0 {
		e.t.Fatalf("resolve failures: %v", res.Failures)
	}
}

func (e *testEnv) resolveLocked(roots []module.ID) *resolver.Result {
	e.resolveCalls.Add(1)
	res, err := resolver.New().Resolve(context.Background(), e.mods, roots)
	if err != nil {
		e.t.Fatalf("Resolve: %v", err)
	}
	for _, id := range res.Order {
		m := e.mods[id-1]
		m.PublishWiring(res.Wirings[id])
		m.SetState(module.StateResolved)
		if !m.Descriptor().IsFragment() {
			e.scopes[id] = New(m, e)
		}
	}
	return res
}

func (e *testEnv) scope(m *module.Module) *Scope {
	e.t.Helper()
	s, ok := e.Scope(m.ID())
	if !ok {
		e.t.Fatalf("module %s has no scope", m)
	}
	return s
}

func (e *testEnv) Module(id module.ID) (*module.Module, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if id == 0 || int(id) > len(e.mods) {
		return nil, false
	}
	return e.mods[id-1], true
}

func (e *testEnv) Scope(id module.ID) (*Scope, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.scopes[id]
	return s, ok
}

func (e *testEnv) Exporters(ns capability.Namespace, req capability.Requirement) []Exporter {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []Exporter
	for _, m := range e.mods {
		w := m.Wiring()
		if !m.State().IsResolved() || w == nil || m.Descriptor().IsFragment() {
			continue
		}
		if c, ok := w.Export(ns); ok && req.Matches(c) {
			out = append(out, Exporter{Module: m.ID(), Capability: c})
		}
	}
	slices.SortStableFunc(out, func(a, b Exporter) int {
		if c := b.Capability.EffectiveVersion().Compare(a.Capability.EffectiveVersion()); c != 0 {
			return c
		}
		return cmp.Compare(a.Module, b.Module)
	})
	return out
}

func (e *testEnv) ResolveExporters(_ context.Context, ns capability.Namespace) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var roots []module.ID
	for _, m := range e.mods {
		if m.State() == module.StateInstalled && m.Descriptor().Owns(ns) {
			roots = append(roots, m.ID())
		}
	}
	if len(roots) == 0 {
		return false, nil
	}
	return len(e.resolveLocked(roots).Wirings) > 0, nil
}
