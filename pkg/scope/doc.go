// SPDX-License-Identifier: MPL-2.0

// Package scope answers "where does this symbol come from" for a resolved
// module.
//
// A [Scope] composes a prioritized list of [SymbolProvider]s:
//
//  1. [LocalProvider] materializes symbols of namespaces the module owns
//     (exported or private, including fragment contributions) from the
//     module's content root, unless a static package wire imports the namespace.
//  2. [WireProvider] walks the static wires in declaration order and delegates
//     to the providing module's scope, honoring the provider's visibility
//     filter and one hop of re-export.
//  3. [DynamicProvider] late-binds namespaces matching a dynamic requirement
//     pattern against resolved modules and, failing that, against installed
//     modules it resolves on demand.
//
// Every definition a scope hands out is defined once: concurrent lookups of
// the same name converge on one *module.Definition. Misses are never cached
// beyond the call that observed them, so installing a provider later makes the
// symbol reachable.
//
// Re-entrant delegation is bounded by a [Guard] threaded through each lookup
// rather than by goroutine-local state.
package scope
