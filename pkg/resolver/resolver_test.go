// SPDX-License-Identifier: MPL-2.0

package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/invowk/modrt/pkg/capability"
	"github.com/invowk/modrt/pkg/module"
)

type descOpt func(*module.Descriptor)

func exporting(ns string, version string) descOpt {
	return func(d *module.Descriptor) {
		d.Capabilities = append(d.Capabilities, capability.NewPackage(capability.Namespace(ns), capability.MustParseVersion(version)))
	}
}

func exportingAttrs(ns string, attrs capability.Attributes) descOpt {
	return func(d *module.Descriptor) {
		c := capability.NewPackage(capability.Namespace(ns), nil)
		c.Attributes = attrs
		d.Capabilities = append(d.Capabilities, c)
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

func pkg(ns, rng string) capability.Requirement {
	return capability.Requirement{Kind: capability.KindPackage, Namespace: capability.Namespace(ns), Range: capability.MustParseRange(rng)}
}

func newModule(id module.ID, name string, opts ...descOpt) *module.Module {
	d := &module.Descriptor{SymbolicName: capability.Namespace(name), Version: capability.MustParseVersion("1.0.0")}
	for _, opt := range opts {
		opt(d)
	}
	return module.New(id, name, d, nil)
}

// markResolved publishes a wiring for m as if a previous pass had resolved it.
func markResolved(m *module.Module) *module.Module {
	m.PublishWiring(&module.Wiring{Module: m.ID(), Capabilities: m.Descriptor().Exports()})
	m.SetState(module.StateResolved)
	return m
}

func providersOf(w *module.Wiring) []module.ID {
	var out []module.ID
	for _, wire := range w.Wires {
		out = append(out, wire.Provider)
	}
	return out
}

func mustResolve(t *testing.T, universe []*module.Module, roots []module.ID) *Result {
	t.Helper()
	res, err := New().Resolve(context.Background(), universe, roots)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return res
}

func TestResolve_WiresRequirerToProvider(t *testing.T) {
	t.Parallel()

	a := newModule(1, "app", requiring(pkg("lib.api", "[1.0.0,2.0.0)")))
	b := newModule(2, "lib", exporting("lib.api", "1.2.0"))

	res := mustResolve(t, []*module.Module{a, b}, nil)

	if len(res.Failures) != 0 {
		t.Fatalf("unexpected failures: %v", res.Failures)
	}
	if diff := cmp.Diff([]module.ID{2}, providersOf(res.Wirings[1])); diff != "" {
		t.Errorf("providers of app (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]module.ID{2, 1}, res.Order); diff != "" {
		t.Errorf("order (-want +got):\n%s", diff)
	}
	if got := res.Wirings[1].Wires[0].Capability.Namespace; got != "lib.api" {
		t.Errorf("wired capability = %s", got)
	}
}

func TestResolve_HighestVersionWins(t *testing.T) {
	t.Parallel()

	for range 10 {
		universe := []*module.Module{
			newModule(1, "lib.v1", exporting("lib.api", "1.0.0")),
			newModule(2, "lib.v2", exporting("lib.api", "2.0.0")),
			newModule(3, "app", requiring(pkg("lib.api", ""))),
		}
		res := mustResolve(t, universe, nil)
		if diff := cmp.Diff([]module.ID{2}, providersOf(res.Wirings[3])); diff != "" {
			t.Fatalf("providers of app (-want +got):\n%s", diff)
		}
	}
}

func TestResolve_TieBreak(t *testing.T) {
	t.Parallel()

	t.Run("resolved provider preferred over higher version", func(t *testing.T) {
		t.Parallel()

		old := markResolved(newModule(1, "lib.v1", exporting("lib.api", "1.0.0")))
		universe := []*module.Module{
			old,
			newModule(2, "lib.v2", exporting("lib.api", "2.0.0")),
			newModule(3, "app", requiring(pkg("lib.api", ""))),
		}
		res := mustResolve(t, universe, []module.ID{3})
		if diff := cmp.Diff([]module.ID{1}, providersOf(res.Wirings[3])); diff != "" {
			t.Errorf("providers of app (-want +got):\n%s", diff)
		}
		if _, ok := res.Wirings[2]; ok {
			t.Error("unused provider should not be resolved by a rooted pass")
		}
		if _, ok := res.Wirings[1]; ok {
			t.Error("already resolved module must not be rewired")
		}
	})

	t.Run("equal versions prefer lowest id", func(t *testing.T) {
		t.Parallel()

		universe := []*module.Module{
			newModule(5, "app", requiring(pkg("lib.api", ""))),
			newModule(4, "lib.b", exporting("lib.api", "1.0.0")),
			newModule(3, "lib.a", exporting("lib.api", "1.0.0")),
		}
		res := mustResolve(t, universe, nil)
		if diff := cmp.Diff([]module.ID{3}, providersOf(res.Wirings[5])); diff != "" {
			t.Errorf("providers of app (-want +got):\n%s", diff)
		}
	})
}

func TestResolve_OptionalVersusMandatory(t *testing.T) {
	t.Parallel()

	optional := pkg("missing.api", "")
	optional.Optional = true

	res := mustResolve(t, []*module.Module{newModule(1, "app", requiring(optional))}, nil)
	if len(res.Failures) != 0 {
		t.Fatalf("optional requirement should be dropped, got %v", res.Failures)
	}
	if w := res.Wirings[1]; w == nil || len(w.Wires) != 0 {
		t.Fatalf("expected a wiring without wires, got %+v", w)
	}

	res = mustResolve(t, []*module.Module{newModule(1, "app", requiring(pkg("missing.api", "")))}, nil)
	fail := res.Failures[1]
	if fail == nil || fail.Reason != module.ReasonAbsent {
		t.Fatalf("expected absent failure, got %v", fail)
	}
	if _, ok := res.Wirings[1]; ok {
		t.Error("failed module must not be wired")
	}
}

func TestResolve_FailureReasons(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		req  capability.Requirement
		want module.Reason
	}{
		{"version mismatch", pkg("lib.api", "[2.0.0,3.0.0)"), module.ReasonVersionMismatch},
		{
			"attribute mismatch",
			capability.Requirement{Kind: capability.KindPackage, Namespace: "lib.api", Attributes: capability.Attributes{"vendor": "other"}},
			module.ReasonAttributeMismatch,
		},
		{"absent", pkg("lib.other", ""), module.ReasonAbsent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			lib := newModule(1, "lib", exportingAttrs("lib.api", capability.Attributes{"vendor": "acme"}))
			app := newModule(2, "app", requiring(tt.req))

			res := mustResolve(t, []*module.Module{lib, app}, nil)
			fail := res.Failures[2]
			if fail == nil {
				t.Fatal("expected failure")
			}
			if fail.Reason != tt.want {
				t.Errorf("reason = %s, want %s", fail.Reason, tt.want)
			}
			if res.Wirings[1] == nil {
				t.Error("provider should still resolve")
			}
		})
	}
}

func TestResolve_TransitiveFailure(t *testing.T) {
	t.Parallel()

	app := newModule(1, "app", requiring(pkg("mid.api", "")))
	mid := newModule(2, "mid", exporting("mid.api", "1.0.0"), requiring(pkg("missing.api", "")))

	res := mustResolve(t, []*module.Module{app, mid}, []module.ID{1})

	fail := res.Failures[1]
	if fail == nil || fail.Reason != module.ReasonProviderUnresolvable {
		t.Fatalf("expected provider-unresolvable failure, got %v", fail)
	}
	var cause *module.ResolutionError
	if !errors.As(fail.Cause, &cause) || cause.Module != 2 || cause.Reason != module.ReasonAbsent {
		t.Errorf("expected cause to be mid's absent failure, got %v", fail.Cause)
	}
	if !errors.Is(fail, module.ErrResolution) {
		t.Error("failure should wrap ErrResolution")
	}
	if _, reported := res.Failures[2]; reported {
		t.Error("rooted pass should report only root failures")
	}
	if len(res.Wirings) != 0 {
		t.Errorf("nothing should resolve, got %v", res.Wirings)
	}
}

func TestResolve_Cycles(t *testing.T) {
	t.Parallel()

	t.Run("satisfiable cycle resolves", func(t *testing.T) {
		t.Parallel()

		a := newModule(1, "a", exporting("a.api", "1.0.0"), requiring(pkg("b.api", "")))
		b := newModule(2, "b", exporting("b.api", "1.0.0"), requiring(pkg("a.api", "")))

		res := mustResolve(t, []*module.Module{a, b}, []module.ID{1})
		if len(res.Failures) != 0 {
			t.Fatalf("unexpected failures: %v", res.Failures)
		}
		if diff := cmp.Diff([]module.ID{1, 2}, res.Order); diff != "" {
			t.Errorf("order (-want +got):\n%s", diff)
		}
	})

	t.Run("unsatisfiable cycle fails every member", func(t *testing.T) {
		t.Parallel()

		a := newModule(1, "a", exporting("a.api", "1.0.0"), requiring(pkg("b.api", "")))
		b := newModule(2, "b", exporting("b.api", "1.0.0"), requiring(pkg("a.api", ""), pkg("missing.api", "")))

		res := mustResolve(t, []*module.Module{a, b}, nil)
		if len(res.Wirings) != 0 {
			t.Fatalf("nothing should resolve, got %v", res.Wirings)
		}
		if res.Failures[1] == nil || res.Failures[1].Reason != module.ReasonProviderUnresolvable {
			t.Errorf("a: expected provider-unresolvable, got %v", res.Failures[1])
		}
		if res.Failures[2] == nil || res.Failures[2].Reason != module.ReasonAbsent {
			t.Errorf("b: expected absent, got %v", res.Failures[2])
		}
	})
}

func TestResolve_SelfSatisfiedRequirement(t *testing.T) {
	t.Parallel()

	a := newModule(1, "a", exporting("a.api", "1.0.0"), requiring(pkg("a.api", "")))
	other := newModule(2, "other", exporting("a.api", "9.0.0"))

	res := mustResolve(t, []*module.Module{a, other}, []module.ID{1})
	if w := res.Wirings[1]; w == nil || len(w.Wires) != 0 {
		t.Fatalf("own export should satisfy the requirement without a wire, got %+v", w)
	}
}

func TestResolve_Fragments(t *testing.T) {
	t.Parallel()

	t.Run("fragment capabilities are served by the host", func(t *testing.T) {
		t.Parallel()

		host := newModule(1, "core", exporting("core.api", "1.0.0"))
		frag := newModule(2, "core.extra", hostedBy("core"), exporting("core.extra", "1.0.0"), requiring(pkg("util.api", "")))
		util := newModule(3, "util", exporting("util.api", "1.0.0"))
		app := newModule(4, "app", requiring(pkg("core.extra", "")))

		res := mustResolve(t, []*module.Module{host, frag, util, app}, []module.ID{4})
		if len(res.Failures) != 0 {
			t.Fatalf("unexpected failures: %v", res.Failures)
		}
		if diff := cmp.Diff([]module.ID{1}, providersOf(res.Wirings[4])); diff != "" {
			t.Errorf("app should wire to the host (-want +got):\n%s", diff)
		}
		hw := res.Wirings[1]
		if diff := cmp.Diff([]module.ID{2}, hw.Fragments); diff != "" {
			t.Errorf("host fragments (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]module.ID{3}, providersOf(hw)); diff != "" {
			t.Errorf("fragment requirement should wire from the host (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]module.ID{1}, providersOf(res.Wirings[2])); diff != "" {
			t.Errorf("fragment host wire (-want +got):\n%s", diff)
		}
		if res.Wirings[2].Capabilities != nil {
			t.Error("fragment must not export on its own")
		}
	})

	t.Run("unsatisfiable fragment leaves host resolvable", func(t *testing.T) {
		t.Parallel()

		host := newModule(1, "core")
		frag := newModule(2, "core.extra", hostedBy("core"), requiring(pkg("missing.api", "")))

		res := mustResolve(t, []*module.Module{host, frag}, nil)
		if res.Wirings[1] == nil || len(res.Wirings[1].Fragments) != 0 {
			t.Fatalf("host should resolve without the fragment, got %+v", res.Wirings[1])
		}
		if res.Failures[2] == nil || res.Failures[2].Reason != module.ReasonAbsent {
			t.Errorf("fragment: expected absent, got %v", res.Failures[2])
		}
	})

	t.Run("resolved host cannot take new fragments", func(t *testing.T) {
		t.Parallel()

		host := markResolved(newModule(1, "core"))
		frag := newModule(2, "core.extra", hostedBy("core"))

		res := mustResolve(t, []*module.Module{host, frag}, nil)
		fail := res.Failures[2]
		if fail == nil || !errors.Is(fail, ErrHostResolved) {
			t.Fatalf("expected ErrHostResolved, got %v", fail)
		}
	})
}

func TestResolve_ModuleRequirement(t *testing.T) {
	t.Parallel()

	core := newModule(1, "core", exporting("core.api", "1.0.0"))
	app := newModule(2, "app", requiring(capability.Requirement{
		Kind:      capability.KindModule,
		Namespace: "core",
		Range:     capability.MustParseRange("^1.0.0"),
		Reexport:  true,
	}))

	res := mustResolve(t, []*module.Module{core, app}, nil)
	w := res.Wirings[2]
	if w == nil || len(w.Wires) != 1 {
		t.Fatalf("expected one wire, got %+v", w)
	}
	if got := w.Wires[0].Capability.Kind; got != capability.KindModule {
		t.Errorf("wired capability kind = %s", got)
	}
}

func TestResolve_DynamicRequirementsAreNotWired(t *testing.T) {
	t.Parallel()

	dyn := capability.Requirement{Kind: capability.KindPackage, Namespace: "*", Dynamic: true}
	res := mustResolve(t, []*module.Module{newModule(1, "app", requiring(dyn))}, nil)
	w := res.Wirings[1]
	if w == nil || len(w.Wires) != 0 {
		t.Fatalf("expected resolution without wires, got %+v", w)
	}
	if got := w.DynamicRequirements(); len(got) != 1 {
		t.Errorf("dynamic requirement should be kept on the wiring, got %v", got)
	}
}

func TestResolve_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().Resolve(ctx, []*module.Module{newModule(1, "app")}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
