// SPDX-License-Identifier: MPL-2.0

// Package resolver computes wirings for installed modules by matching their
// requirements against the capabilities other modules export.
//
// Resolution is incremental: modules that are already resolved keep their
// wiring and act as fixed providers; only INSTALLED modules are wired. The
// resolver iterates to a fixed point, discarding modules with an unsatisfiable
// mandatory requirement and then any module that depended on them, so mutually
// dependent modules resolve together while a failure anywhere on a module's
// dependency path fails the module.
//
// When several providers match a requirement the choice is deterministic:
// already resolved providers win over newly resolved ones, then the highest
// capability version, then the lowest module identifier.
//
// The resolver never mutates modules. The framework publishes the returned
// wirings and serializes calls to Resolve.
package resolver
