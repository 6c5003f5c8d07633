// SPDX-License-Identifier: MPL-2.0

// Package module holds the runtime vocabulary shared by the resolver, the
// symbol resolution scopes and the framework: module identity and descriptors,
// lifecycle states, wires and wiring records, symbol definitions, the
// activator contract, framework events and the error taxonomy.
//
// A [Module] is created by the framework on install and lives until uninstall.
// Its lifecycle [State] and its [Wiring] are published atomically so that
// readers never take a lock; only the framework mutates them.
package module
