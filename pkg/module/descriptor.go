// SPDX-License-Identifier: MPL-2.0

package module

import (
	"errors"
	"fmt"
	"slices"

	"github.com/Masterminds/semver/v3"

	"github.com/invowk/modrt/pkg/capability"
)

// ErrInvalidDescriptor is the sentinel error wrapped by InvalidDescriptorError.
var ErrInvalidDescriptor = errors.New("invalid module descriptor")

type (
	// ID identifies an installed module. IDs are assigned in install order
	// starting at 1 and are never reused within a framework.
	ID uint64

	// Descriptor is the declaration of an installable unit as produced by the
	// metadata collaborator (see the manifest package). Descriptors are treated
	// as immutable once installed.
	Descriptor struct {
		// SymbolicName identifies the module; together with Version it must be
		// unique within a framework.
		SymbolicName capability.Namespace
		// Version of the module. Nil means 0.0.0.
		Version *semver.Version
		// Capabilities exported by the module, in declaration order.
		Capabilities []capability.Capability
		// Requirements declared by the module, in declaration order.
		Requirements []capability.Requirement
		// Host is set for fragments: the module whose identity the fragment attaches to.
		Host *capability.Requirement
		// Activator names the entry point resolved through the framework's
		// ActivatorFactory. Empty means the module has no entry point.
		Activator string
		// Private namespaces are owned and served locally but not exported.
		Private []capability.Namespace
	}

	// InvalidDescriptorError is returned when a Descriptor fails validation.
	// It wraps ErrInvalidDescriptor for errors.Is() compatibility.
	InvalidDescriptorError struct {
		Name        capability.Namespace
		FieldErrors []error
	}
)

// String returns "#<id>".
func (id ID) String() string { return fmt.Sprintf("#%d", uint64(id)) }

// Error implements the error interface.
func (e *InvalidDescriptorError) Error() string {
	return fmt.Sprintf("invalid module descriptor %q: %v", e.Name, errors.Join(e.FieldErrors...))
}

// Unwrap returns ErrInvalidDescriptor for errors.Is() compatibility.
func (e *InvalidDescriptorError) Unwrap() error { return ErrInvalidDescriptor }

// IsFragment reports whether the descriptor attaches to a host module.
func (d *Descriptor) IsFragment() bool { return d.Host != nil }

// EffectiveVersion returns the module version, or 0.0.0 when unset.
func (d *Descriptor) EffectiveVersion() *semver.Version {
	return capability.Capability{Version: d.Version}.EffectiveVersion()
}

// Identity returns the implicit module-kind capability every non-fragment
// module offers under its symbolic name.
func (d *Descriptor) Identity() capability.Capability {
	return capability.Capability{
		Kind:      capability.KindModule,
		Namespace: d.SymbolicName,
		Version:   d.EffectiveVersion(),
	}
}

// Exports returns the module identity followed by the declared capabilities.
// Fragments carry no identity of their own.
func (d *Descriptor) Exports() []capability.Capability {
	out := make([]capability.Capability, 0, len(d.Capabilities)+1)
	if !d.IsFragment() {
		out = append(out, d.Identity())
	}
	return append(out, d.Capabilities...)
}

// Owns reports whether the namespace is exported or private to this descriptor.
func (d *Descriptor) Owns(ns capability.Namespace) bool {
	if slices.Contains(d.Private, ns) {
		return true
	}
	return slices.ContainsFunc(d.Capabilities, func(c capability.Capability) bool {
		return c.Kind == capability.KindPackage && c.Namespace == ns
	})
}

// String returns "<name>@<version>".
func (d *Descriptor) String() string {
	return fmt.Sprintf("%s@%s", d.SymbolicName, d.EffectiveVersion())
}

// Validate checks that the descriptor is well formed. All field errors are
// collected and returned together.
func (d *Descriptor) Validate() error {
	var errs []error
	if ok, fieldErrs := d.SymbolicName.IsValid(); !ok {
		errs = append(errs, fieldErrs...)
	}

	seen := make(map[capability.Namespace]bool, len(d.Capabilities))
	for _, c := range d.Capabilities {
		if c.Kind != capability.KindPackage {
			errs = append(errs, fmt.Errorf("capability %s: only package capabilities can be declared", c.Namespace))
			continue
		}
		if ok, fieldErrs := c.Namespace.IsValid(); !ok {
			errs = append(errs, fieldErrs...)
			continue
		}
		if seen[c.Namespace] {
			errs = append(errs, fmt.Errorf("capability %s: exported more than once", c.Namespace))
		}
		seen[c.Namespace] = true
	}
	for _, ns := range d.Private {
		if ok, fieldErrs := ns.IsValid(); !ok {
			errs = append(errs, fieldErrs...)
		}
		if seen[ns] {
			errs = append(errs, fmt.Errorf("namespace %s: both exported and private", ns))
		}
	}

	for _, r := range d.Requirements {
		if r.Kind == capability.KindHost {
			errs = append(errs, fmt.Errorf("requirement %s: host requirements are declared through the host field", r.Namespace))
			continue
		}
		if err := r.Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	if d.Host != nil {
		if d.Host.Kind != capability.KindHost {
			errs = append(errs, fmt.Errorf("host %s: kind must be %q", d.Host.Namespace, capability.KindHost))
		} else if err := d.Host.Validate(); err != nil {
			errs = append(errs, err)
		}
		if d.Activator != "" {
			errs = append(errs, errors.New("fragments cannot declare an activator"))
		}
	}

	if len(errs) > 0 {
		return &InvalidDescriptorError{Name: d.SymbolicName, FieldErrors: errs}
	}
	return nil
}
