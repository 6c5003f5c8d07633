// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/invowk/modrt/pkg/framework"
	"github.com/invowk/modrt/pkg/module"
)

// moduleLabel renders "name@version (#id)".
func moduleLabel(fw *framework.Framework, id module.ID) string {
	m, ok := fw.Module(id)
	if !ok {
		return id.String()
	}
	d := m.Descriptor()
	return fmt.Sprintf("%s@%s (%s)", ModuleStyle.Render(string(d.SymbolicName)), d.EffectiveVersion(), id)
}

func stateStyle(s module.State) string {
	if s.IsResolved() {
		return SuccessStyle.Render(s.String())
	}
	return WarningStyle.Render(s.String())
}

// printWiring writes every module with its state and wires, followed by
// the modules that failed to resolve.
func printWiring(w io.Writer, fw *framework.Framework, failures map[module.ID]*module.ResolutionError) {
	fmt.Fprintln(w, TitleStyle.Render("Modules"))
	for _, m := range fw.Modules() {
		id := m.ID()
		fmt.Fprintf(w, "%s %s\n", moduleLabel(fw, id), stateStyle(m.State()))

		wiring, ok := fw.Wiring(id)
		if !ok {
			continue
		}
		for _, wire := range wiring.Wires {
			fmt.Fprintln(w, wireIndent.Render(fmt.Sprintf("%s -> %s", wire.Requirement, moduleLabel(fw, wire.Provider))))
		}
		for _, wire := range wiring.Dynamic {
			fmt.Fprintln(w, wireIndent.Render(fmt.Sprintf("%s -> %s %s", wire.Capability.Namespace, moduleLabel(fw, wire.Provider), SubtitleStyle.Render("(dynamic)"))))
		}
		for _, frag := range wiring.Fragments {
			fmt.Fprintln(w, wireIndent.Render("fragment "+moduleLabel(fw, frag)))
		}
	}

	if len(failures) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, ErrorStyle.Render("Unresolved"))
	ids := make([]module.ID, 0, len(failures))
	for id := range failures {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		f := failures[id]
		line := fmt.Sprintf("%s: %s (%s)", moduleLabel(fw, id), f.Requirement, f.Reason)
		if f.Cause != nil {
			line += ": " + f.Cause.Error()
		}
		fmt.Fprintln(w, wireIndent.Render(line))
	}
}

// printCapabilities lists the capabilities resolved modules export.
func printCapabilities(w io.Writer, fw *framework.Framework, caps []framework.ProvidedCapability) {
	fmt.Fprintln(w, TitleStyle.Render("Capabilities"))
	if len(caps) == 0 {
		fmt.Fprintln(w, SubtitleStyle.Render("  (none)"))
		return
	}
	for _, pc := range caps {
		var attrs []string
		for k, v := range pc.Capability.Attributes {
			attrs = append(attrs, k+"="+v)
		}
		slices.Sort(attrs)
		line := fmt.Sprintf("%s %s from %s", pc.Capability.Namespace, pc.Capability.EffectiveVersion(), moduleLabel(fw, pc.Module))
		if len(attrs) > 0 {
			line += " [" + strings.Join(attrs, ", ") + "]"
		}
		fmt.Fprintln(w, wireIndent.Render(line))
	}
}
