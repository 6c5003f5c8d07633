// SPDX-License-Identifier: MPL-2.0

// Package runstate provides the run-state machine of a long-lived component
// that is stopped asynchronously: atomic state reads, a one-shot stop
// sequence tracked by a WaitGroup, and a bounded wait for completion.
package runstate
