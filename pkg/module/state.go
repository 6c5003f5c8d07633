// SPDX-License-Identifier: MPL-2.0

package module

import (
	"errors"
	"fmt"
)

const (
	// StateUninstalled is terminal: the module has been removed from the framework.
	// It is also the zero value, i.e. the state of a module before install.
	StateUninstalled State = iota
	// StateInstalled indicates the module is known to the framework but not wired.
	StateInstalled
	// StateResolved indicates the module's requirements are wired.
	StateResolved
	// StateStarting indicates the activator's Start callback is running.
	StateStarting
	// StateActive indicates the module started successfully.
	StateActive
	// StateStopping indicates the activator's Stop callback or teardown is running.
	StateStopping
)

// ErrInvalidState is returned when a State value is not one of the defined lifecycle states.
var ErrInvalidState = errors.New("invalid state")

type (
	// State represents the lifecycle state of a module.
	State int32

	// InvalidStateError is returned when a State value is not recognized.
	// It wraps ErrInvalidState for errors.Is() compatibility.
	InvalidStateError struct {
		Value State
	}
)

// String returns a human-readable representation of the module state.
func (s State) String() string {
	switch s {
	case StateUninstalled:
		return "uninstalled"
	case StateInstalled:
		return "installed"
	case StateResolved:
		return "resolved"
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Error implements the error interface for InvalidStateError.
func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state %d (valid: 0=uninstalled, 1=installed, 2=resolved, 3=starting, 4=active, 5=stopping)", e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidStateError) Unwrap() error {
	return ErrInvalidState
}

// Validate returns nil if the State is one of the defined lifecycle states,
// or an error wrapping ErrInvalidState if it is not.
func (s State) Validate() error {
	switch s {
	case StateUninstalled, StateInstalled, StateResolved, StateStarting, StateActive, StateStopping:
		return nil
	default:
		return &InvalidStateError{Value: s}
	}
}

// IsResolved returns true for RESOLVED and every later state. A module's
// wiring is present exactly when this holds.
func (s State) IsResolved() bool {
	return s >= StateResolved
}

// IsRunning returns true while an activator may be live (STARTING, ACTIVE, STOPPING).
func (s State) IsRunning() bool {
	return s == StateStarting || s == StateActive || s == StateStopping
}
