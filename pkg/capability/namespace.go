// SPDX-License-Identifier: MPL-2.0

package capability

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Wildcard matches every namespace when used as a dynamic requirement pattern.
const Wildcard = "*"

var (
	// ErrInvalidNamespace is the sentinel error wrapped by InvalidNamespaceError.
	ErrInvalidNamespace = errors.New("invalid namespace")
	// ErrInvalidSymbol is the sentinel error wrapped by InvalidSymbolError.
	ErrInvalidSymbol = errors.New("invalid symbol")

	// namespaceRegex matches dot-separated identifiers ("com.acme.util").
	namespaceRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)
)

type (
	// Namespace is a dot-separated name grouping symbols, e.g. "com.acme.util".
	// For KindModule capabilities it carries the module's symbolic name.
	Namespace string

	// InvalidNamespaceError is returned when a Namespace is not a dotted identifier.
	InvalidNamespaceError struct {
		Value Namespace
	}

	// Symbol is a fully-qualified symbol name: a namespace followed by a simple
	// name, e.g. "com.acme.util.Helper".
	Symbol string

	// InvalidSymbolError is returned when a Symbol has no namespace or simple name.
	InvalidSymbolError struct {
		Value Symbol
	}
)

// Error implements the error interface.
func (e *InvalidNamespaceError) Error() string {
	return fmt.Sprintf("invalid namespace %q", e.Value)
}

// Unwrap returns ErrInvalidNamespace so callers can use errors.Is for programmatic detection.
func (e *InvalidNamespaceError) Unwrap() error { return ErrInvalidNamespace }

// Error implements the error interface.
func (e *InvalidSymbolError) Error() string {
	return fmt.Sprintf("invalid symbol %q (expected <namespace>.<name>)", e.Value)
}

// Unwrap returns ErrInvalidSymbol so callers can use errors.Is for programmatic detection.
func (e *InvalidSymbolError) Unwrap() error { return ErrInvalidSymbol }

// String returns the string representation of the Namespace.
func (n Namespace) String() string { return string(n) }

// IsValid returns whether the Namespace is a dotted identifier,
// and a list of validation errors if it is not.
func (n Namespace) IsValid() (bool, []error) {
	if !namespaceRegex.MatchString(string(n)) {
		return false, []error{&InvalidNamespaceError{Value: n}}
	}
	return true, nil
}

// ValidPattern reports whether n is usable as a dynamic requirement pattern:
// a concrete namespace, a trailing wildcard or a bare "*".
func (n Namespace) ValidPattern() bool {
	if n == Wildcard {
		return true
	}
	if prefix, ok := strings.CutSuffix(string(n), ".*"); ok {
		return namespaceRegex.MatchString(prefix)
	}
	return namespaceRegex.MatchString(string(n))
}

// MatchPattern reports whether the concrete namespace ns matches the pattern n.
// A trailing wildcard matches every namespace below the prefix, not the prefix itself.
func (n Namespace) MatchPattern(ns Namespace) bool {
	switch {
	case n == Wildcard:
		return true
	case strings.HasSuffix(string(n), ".*"):
		return strings.HasPrefix(string(ns), strings.TrimSuffix(string(n), "*"))
	default:
		return n == ns
	}
}

// String returns the string representation of the Symbol.
func (s Symbol) String() string { return string(s) }

// IsValid returns whether the Symbol has both a valid namespace and a simple name.
func (s Symbol) IsValid() (bool, []error) {
	ns, name := s.Split()
	if name == "" || ns == "" {
		return false, []error{&InvalidSymbolError{Value: s}}
	}
	if ok, _ := ns.IsValid(); !ok {
		return false, []error{&InvalidSymbolError{Value: s}}
	}
	return true, nil
}

// Split returns the namespace and simple name of the symbol.
func (s Symbol) Split() (Namespace, string) {
	idx := strings.LastIndexByte(string(s), '.')
	if idx < 0 {
		return "", string(s)
	}
	return Namespace(s[:idx]), string(s[idx+1:])
}

// Namespace returns the namespace part of the symbol.
func (s Symbol) Namespace() Namespace {
	ns, _ := s.Split()
	return ns
}

// SimpleName returns the symbol name without its namespace.
func (s Symbol) SimpleName() string {
	_, name := s.Split()
	return name
}

// Path returns the slash-separated content path under which the symbol's bytes
// are stored in a module's content root ("com.acme.util.Helper" becomes
// "com/acme/util/Helper").
func (s Symbol) Path() string {
	return strings.ReplaceAll(string(s), ".", "/")
}
