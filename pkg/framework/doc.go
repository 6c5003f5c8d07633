// SPDX-License-Identifier: MPL-2.0

// Package framework is the module manager: it owns the registry of installed
// modules and drives each one through its lifecycle.
//
//	INSTALLED -> RESOLVED -> STARTING -> ACTIVE -> STOPPING -> RESOLVED -> UNINSTALLED
//
// A Framework is an explicit context object; nothing in this package is global.
// It starts running when created and stops once, asynchronously, through
// Shutdown. Callers observe completion with WaitForStop.
//
// # Concurrency
//
// Registry reads are lock-free against an immutable snapshot; install and
// uninstall replace the snapshot under a single writer lock. Resolution is
// single-writer. Lifecycle transitions of one module are serialized by a
// per-module lock honoring both the caller's context and the configured lock
// timeout; transitions of different modules proceed concurrently. Locks are
// always taken in the order module lock, resolution lock, registry lock, and
// several module locks are taken in ascending identifier order.
//
// # Removal
//
// An uninstalled module that other modules are still wired to becomes
// removal-pending: dependents keep resolving symbols through their existing
// wires, but no new wire is created against it. Refresh with no arguments
// re-resolves the dependents of every pending module and discards it.
package framework
