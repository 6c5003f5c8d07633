// SPDX-License-Identifier: MPL-2.0

package module

import (
	"errors"
	"fmt"

	"github.com/invowk/modrt/pkg/capability"
)

const (
	// ReasonAbsent means no module exports a matching namespace.
	ReasonAbsent Reason = iota + 1
	// ReasonVersionMismatch means the namespace is exported, but not at an acceptable version.
	ReasonVersionMismatch
	// ReasonAttributeMismatch means the namespace and version match but the attribute filter does not.
	ReasonAttributeMismatch
	// ReasonProviderUnresolvable means every matching provider failed to resolve itself.
	ReasonProviderUnresolvable
)

var (
	// ErrResolution is wrapped by every ResolutionError.
	ErrResolution = errors.New("resolution failed")
	// ErrSymbolNotFound is wrapped by SymbolNotFoundError.
	ErrSymbolNotFound = errors.New("symbol not found")
	// ErrInvalidTransition is wrapped by LifecycleError.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
	// ErrActivation is wrapped by ActivationError.
	ErrActivation = errors.New("activation failed")
	// ErrDeactivation is wrapped by DeactivationError.
	ErrDeactivation = errors.New("deactivation failed")
	// ErrRemovedDuringStop is wrapped by RemovedDuringStopError.
	ErrRemovedDuringStop = errors.New("module removed during stop")
	// ErrMalformedActivator is returned when a module's entry point cannot be constructed.
	ErrMalformedActivator = errors.New("malformed activator")
	// ErrUnknownModule is returned for identifiers the framework does not know.
	ErrUnknownModule = errors.New("unknown module")
	// ErrDuplicateModule is returned when installing a second module with the
	// same symbolic name and version.
	ErrDuplicateModule = errors.New("duplicate module")
	// ErrLockTimeout is returned when a module's transition lock cannot be acquired in time.
	ErrLockTimeout = errors.New("timed out waiting for module lock")
	// ErrFrameworkStopped is returned by operations on a framework that has shut down.
	ErrFrameworkStopped = errors.New("framework stopped")
)

type (
	// Reason classifies why a requirement could not be satisfied.
	Reason int

	// ResolutionError reports a module that could not be resolved: the first
	// unmet requirement and why it was unmet. Cause is set for
	// ReasonProviderUnresolvable and holds the provider's own failure.
	ResolutionError struct {
		Module      ID
		Name        string
		Requirement capability.Requirement
		Reason      Reason
		Cause       error
	}

	// SymbolNotFoundError is returned when no provider in a scope can supply a symbol.
	SymbolNotFoundError struct {
		Module ID
		Symbol capability.Symbol
	}

	// LifecycleError is returned when an operation is attempted from a state
	// that does not allow it.
	LifecycleError struct {
		Module ID
		Op     string
		State  State
		Detail string
	}

	// ActivationError wraps the failure of a module's entry point.
	ActivationError struct {
		Module ID
		Cause  error
	}

	// DeactivationError wraps the failure of a module's exit point. Teardown
	// completed before it was returned.
	DeactivationError struct {
		Module ID
		Cause  error
	}

	// RemovedDuringStopError is returned by Stop when the module was uninstalled
	// while stopping. Suppressed holds the exit point's error, if any.
	RemovedDuringStopError struct {
		Module     ID
		Suppressed error
	}
)

// String returns a human-readable representation of the reason.
func (r Reason) String() string {
	switch r {
	case ReasonAbsent:
		return "absent"
	case ReasonVersionMismatch:
		return "version mismatch"
	case ReasonAttributeMismatch:
		return "attribute mismatch"
	case ReasonProviderUnresolvable:
		return "provider unresolvable"
	default:
		return "unknown"
	}
}

// Error implements the error interface.
func (e *ResolutionError) Error() string {
	msg := fmt.Sprintf("module %s %s: requirement %q unsatisfied (%s)", e.Name, e.Module, e.Requirement.String(), e.Reason)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns ErrResolution and, when set, the cause.
func (e *ResolutionError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrResolution}
	}
	return []error{ErrResolution, e.Cause}
}

// Error implements the error interface.
func (e *SymbolNotFoundError) Error() string {
	return fmt.Sprintf("symbol %s not found from module %s", e.Symbol, e.Module)
}

// Unwrap returns ErrSymbolNotFound for errors.Is() compatibility.
func (e *SymbolNotFoundError) Unwrap() error { return ErrSymbolNotFound }

// Error implements the error interface.
func (e *LifecycleError) Error() string {
	msg := fmt.Sprintf("cannot %s module %s in state %s", e.Op, e.Module, e.State)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Unwrap returns ErrInvalidTransition for errors.Is() compatibility.
func (e *LifecycleError) Unwrap() error { return ErrInvalidTransition }

// Error implements the error interface.
func (e *ActivationError) Error() string {
	return fmt.Sprintf("activation of module %s failed: %v", e.Module, e.Cause)
}

// Unwrap returns ErrActivation and the original cause.
func (e *ActivationError) Unwrap() []error { return []error{ErrActivation, e.Cause} }

// Error implements the error interface.
func (e *DeactivationError) Error() string {
	return fmt.Sprintf("deactivation of module %s failed: %v", e.Module, e.Cause)
}

// Unwrap returns ErrDeactivation and the original cause.
func (e *DeactivationError) Unwrap() []error { return []error{ErrDeactivation, e.Cause} }

// Error implements the error interface.
func (e *RemovedDuringStopError) Error() string {
	if e.Suppressed != nil {
		return fmt.Sprintf("module %s was uninstalled while stopping (suppressed: %v)", e.Module, e.Suppressed)
	}
	return fmt.Sprintf("module %s was uninstalled while stopping", e.Module)
}

// Unwrap returns ErrRemovedDuringStop for errors.Is() compatibility.
// The suppressed exit-point error is not part of the chain.
func (e *RemovedDuringStopError) Unwrap() error { return ErrRemovedDuringStop }
