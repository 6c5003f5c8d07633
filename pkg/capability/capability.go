// SPDX-License-Identifier: MPL-2.0

package capability

import (
	"errors"
	"fmt"
	"maps"
	"path"
	"strings"

	"github.com/Masterminds/semver/v3"
)

const (
	// KindPackage is a namespace of symbols.
	KindPackage Kind = "package"
	// KindModule is a whole module, addressed by symbolic name.
	KindModule Kind = "module"
	// KindHost is a fragment's attachment to a host module.
	KindHost Kind = "host"
)

const (
	// MatchOK means the capability satisfies the requirement.
	MatchOK Match = iota
	// MatchNamespace means kind or namespace differ.
	MatchNamespace
	// MatchVersion means the namespace matches but the version is outside the range.
	MatchVersion
	// MatchAttributes means namespace and version match but the attribute filter does not.
	MatchAttributes
)

// ErrInvalidKind is returned when a Kind value is not recognized.
var ErrInvalidKind = errors.New("invalid capability kind")

type (
	// Kind classifies capabilities and requirements.
	Kind string

	// InvalidKindError is returned when a Kind value is not recognized.
	InvalidKindError struct {
		Value Kind
	}

	// Match describes how closely a capability satisfies a requirement.
	Match int

	// Attributes are string key/value pairs attached to capabilities and used as
	// equality filters by requirements.
	Attributes map[string]string

	// Capability is something a module offers. Capabilities are values; copy them freely.
	Capability struct {
		// Kind is KindPackage for namespaces and KindModule for module identity.
		Kind Kind
		// Namespace is the exported namespace or, for KindModule, the symbolic name.
		Namespace Namespace
		// Version of the capability; nil means 0.0.0.
		Version *semver.Version
		// Attributes matched by requirement filters.
		Attributes Attributes
		// Include limits visible symbols to simple names matching one of the
		// patterns (path.Match syntax). Empty means all.
		Include []string
		// Exclude hides simple names matching one of the patterns.
		Exclude []string
	}

	// Requirement is a module's declared need for a capability.
	Requirement struct {
		// Kind of capability required.
		Kind Kind
		// Namespace required, or a pattern when Dynamic is set.
		Namespace Namespace
		// Range of acceptable versions.
		Range VersionRange
		// Attributes every matching capability must carry with equal values.
		Attributes Attributes
		// Optional requirements that cannot be satisfied are dropped.
		Optional bool
		// Dynamic requirements are resolved lazily at symbol lookup time.
		Dynamic bool
		// Reexport makes the provider's symbols visible to this module's own dependents.
		Reexport bool
	}
)

// Error implements the error interface.
func (e *InvalidKindError) Error() string {
	return fmt.Sprintf("invalid capability kind %q (valid: package, module, host)", e.Value)
}

// Unwrap returns ErrInvalidKind so callers can use errors.Is for programmatic detection.
func (e *InvalidKindError) Unwrap() error { return ErrInvalidKind }

// Validate returns nil if the Kind is one of the defined kinds.
func (k Kind) Validate() error {
	switch k {
	case KindPackage, KindModule, KindHost:
		return nil
	default:
		return &InvalidKindError{Value: k}
	}
}

// String returns a human-readable representation of the match result.
func (m Match) String() string {
	switch m {
	case MatchOK:
		return "ok"
	case MatchNamespace:
		return "namespace mismatch"
	case MatchVersion:
		return "version mismatch"
	case MatchAttributes:
		return "attribute mismatch"
	default:
		return "unknown"
	}
}

// Clone returns a copy of the attributes.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	return maps.Clone(a)
}

// Satisfies reports whether every key in filter is present in a with an equal value.
func (a Attributes) Satisfies(filter Attributes) bool {
	for k, want := range filter {
		if got, ok := a[k]; !ok || got != want {
			return false
		}
	}
	return true
}

// NewPackage returns a package capability for ns at version v.
func NewPackage(ns Namespace, v *semver.Version) Capability {
	return Capability{Kind: KindPackage, Namespace: ns, Version: v}
}

// EffectiveVersion returns the capability version, or 0.0.0 when unset.
func (c Capability) EffectiveVersion() *semver.Version {
	if c.Version == nil {
		return zeroVersion
	}
	return c.Version
}

// Visible reports whether the symbol simple name passes the include/exclude filter.
func (c Capability) Visible(simpleName string) bool {
	for _, pattern := range c.Exclude {
		if ok, _ := path.Match(pattern, simpleName); ok {
			return false
		}
	}
	if len(c.Include) == 0 {
		return true
	}
	for _, pattern := range c.Include {
		if ok, _ := path.Match(pattern, simpleName); ok {
			return true
		}
	}
	return false
}

// String returns "<kind> <namespace>;version=<v>".
func (c Capability) String() string {
	return fmt.Sprintf("%s %s;version=%s", c.Kind, c.Namespace, c.EffectiveVersion())
}

// Mandatory reports whether the requirement must be satisfied at resolution time.
func (r Requirement) Mandatory() bool {
	return !r.Optional && !r.Dynamic
}

// Compare reports how well c satisfies r. Host requirements are matched against
// module capabilities. Dynamic requirements match by namespace pattern.
func (r Requirement) Compare(c Capability) Match {
	kind := r.Kind
	if kind == KindHost {
		kind = KindModule
	}
	if kind != c.Kind {
		return MatchNamespace
	}
	if r.Dynamic {
		if !r.Namespace.MatchPattern(c.Namespace) {
			return MatchNamespace
		}
	} else if r.Namespace != c.Namespace {
		return MatchNamespace
	}
	if !r.Range.Contains(c.EffectiveVersion()) {
		return MatchVersion
	}
	if !c.Attributes.Satisfies(r.Attributes) {
		return MatchAttributes
	}
	return MatchOK
}

// Matches reports whether c satisfies r.
func (r Requirement) Matches(c Capability) bool {
	return r.Compare(c) == MatchOK
}

// String returns a compact human-readable form, e.g.
// "package com.acme.util [1.0.0,2.0.0) optional".
func (r Requirement) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s %s", r.Kind, r.Namespace, r.Range)
	if len(r.Attributes) > 0 {
		fmt.Fprintf(&sb, " %v", map[string]string(r.Attributes))
	}
	if r.Optional {
		sb.WriteString(" optional")
	}
	if r.Dynamic {
		sb.WriteString(" dynamic")
	}
	if r.Reexport {
		sb.WriteString(" reexport")
	}
	return sb.String()
}

// Validate checks that the requirement is well formed.
func (r Requirement) Validate() error {
	if err := r.Kind.Validate(); err != nil {
		return err
	}
	if r.Dynamic {
		if r.Kind != KindPackage {
			return fmt.Errorf("dynamic requirement %q: only package requirements can be dynamic", r.Namespace)
		}
		if !r.Namespace.ValidPattern() {
			return &InvalidNamespaceError{Value: r.Namespace}
		}
		return nil
	}
	if ok, errs := r.Namespace.IsValid(); !ok {
		return errs[0]
	}
	return nil
}
