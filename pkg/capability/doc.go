// SPDX-License-Identifier: MPL-2.0

// Package capability defines the immutable value types modules use to describe
// what they offer and what they need.
//
// A [Capability] is something a module exports: a namespace of symbols at a
// version, or the module's own identity. A [Requirement] is a module's declared
// need for a capability, with a version range, an attribute filter and the
// optional, dynamic and re-export flags.
//
// # Kinds
//
//   - [KindPackage]: a namespace of symbols ("com.acme.util").
//   - [KindModule]: a whole module, addressed by its symbolic name.
//   - [KindHost]: a fragment's attachment to its host module.
//
// # Version ranges
//
// [ParseRange] accepts Masterminds constraint syntax (">=1.0.0, <2.0.0", "^1.2",
// "~1.4.0") as well as interval notation ("[1.0.0,2.0.0)", "(1.0,)"). An empty
// range or "*" matches every version.
//
// # Dynamic patterns
//
// Dynamic requirements name a namespace pattern instead of a namespace: an exact
// name, a trailing wildcard ("com.acme.*") or a bare "*".
package capability
