// SPDX-License-Identifier: MPL-2.0

package module

import (
	"fmt"
	"sync/atomic"
)

// Module is the framework's record of one installed unit. The descriptor and
// location are fixed at install; state and wiring are published atomically and
// may be read from any goroutine without locking. Only the framework mutates
// them, and it serializes transitions per module.
type Module struct {
	id       ID
	location string
	desc     *Descriptor
	content  ContentRoot

	state  atomic.Int32
	wiring atomic.Pointer[Wiring]
}

// New returns a module in the INSTALLED state.
func New(id ID, location string, desc *Descriptor, content ContentRoot) *Module {
	m := &Module{id: id, location: location, desc: desc, content: content}
	m.state.Store(int32(StateInstalled))
	return m
}

// ID returns the module identifier.
func (m *Module) ID() ID { return m.id }

// Location returns the install location the module was created from.
func (m *Module) Location() string { return m.location }

// Descriptor returns the module's declarations.
func (m *Module) Descriptor() *Descriptor { return m.desc }

// Content returns the root the module's symbol bytes are materialized from.
// It may be nil for modules without local content.
func (m *Module) Content() ContentRoot { return m.content }

// State returns the current lifecycle state.
func (m *Module) State() State { return State(m.state.Load()) }

// SetState unconditionally publishes a new lifecycle state.
func (m *Module) SetState(s State) { m.state.Store(int32(s)) }

// CompareAndSwapState atomically transitions from old to next.
func (m *Module) CompareAndSwapState(old, next State) bool {
	return m.state.CompareAndSwap(int32(old), int32(next))
}

// Wiring returns the published wiring record, or nil when the module is not resolved.
func (m *Module) Wiring() *Wiring { return m.wiring.Load() }

// PublishWiring installs w as the module's wiring record.
func (m *Module) PublishWiring(w *Wiring) { m.wiring.Store(w) }

// UpdateWiring applies fn to the current wiring until the result is published
// without interference. fn must not mutate its argument. If fn returns its
// argument unchanged, nothing is published.
func (m *Module) UpdateWiring(fn func(*Wiring) *Wiring) *Wiring {
	for {
		cur := m.wiring.Load()
		next := fn(cur)
		if next == cur || m.wiring.CompareAndSwap(cur, next) {
			return next
		}
	}
}

// ClearWiring drops the wiring record.
func (m *Module) ClearWiring() { m.wiring.Store(nil) }

// String returns "<name>@<version> #<id>".
func (m *Module) String() string {
	return fmt.Sprintf("%s %s", m.desc, m.id)
}
