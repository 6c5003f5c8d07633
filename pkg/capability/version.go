// SPDX-License-Identifier: MPL-2.0

package capability

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

var (
	// ErrInvalidVersion is the sentinel error wrapped by InvalidVersionError.
	ErrInvalidVersion = errors.New("invalid version")
	// ErrInvalidRange is the sentinel error wrapped by InvalidRangeError.
	ErrInvalidRange = errors.New("invalid version range")

	// zeroVersion is used for capabilities that declare no version.
	zeroVersion = semver.MustParse("0.0.0")
)

type (
	// InvalidVersionError is returned when a version string cannot be parsed.
	InvalidVersionError struct {
		Value string
		Err   error
	}

	// InvalidRangeError is returned when a version range string cannot be parsed.
	InvalidRangeError struct {
		Value string
		Err   error
	}

	// VersionRange is a parsed version constraint. The zero value matches every version.
	VersionRange struct {
		raw         string
		constraints *semver.Constraints
	}
)

// Error implements the error interface.
func (e *InvalidVersionError) Error() string {
	return fmt.Sprintf("invalid version %q: %v", e.Value, e.Err)
}

// Unwrap returns ErrInvalidVersion so callers can use errors.Is for programmatic detection.
func (e *InvalidVersionError) Unwrap() error { return ErrInvalidVersion }

// Error implements the error interface.
func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid version range %q: %v", e.Value, e.Err)
}

// Unwrap returns ErrInvalidRange so callers can use errors.Is for programmatic detection.
func (e *InvalidRangeError) Unwrap() error { return ErrInvalidRange }

// ParseVersion parses a semantic version. A leading "v" is tolerated and an
// empty string yields 0.0.0.
func ParseVersion(s string) (*semver.Version, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return zeroVersion, nil
	}
	v, err := semver.NewVersion(strings.TrimPrefix(s, "v"))
	if err != nil {
		return nil, &InvalidVersionError{Value: s, Err: err}
	}
	return v, nil
}

// MustParseVersion is like ParseVersion but panics on error. Intended for tests
// and static declarations.
func MustParseVersion(s string) *semver.Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// ParseRange parses a version range. Interval notation ("[1.0,2.0)") is
// translated to the equivalent constraint; anything else is handed to
// Masterminds/semver. An empty string or "*" returns the match-all range.
func ParseRange(s string) (VersionRange, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == Wildcard {
		return VersionRange{}, nil
	}

	expr := s
	if strings.HasPrefix(s, "[") || strings.HasPrefix(s, "(") {
		translated, err := translateInterval(s)
		if err != nil {
			return VersionRange{}, &InvalidRangeError{Value: s, Err: err}
		}
		expr = translated
	}

	c, err := semver.NewConstraint(expr)
	if err != nil {
		return VersionRange{}, &InvalidRangeError{Value: s, Err: err}
	}
	return VersionRange{raw: s, constraints: c}, nil
}

// MustParseRange is like ParseRange but panics on error.
func MustParseRange(s string) VersionRange {
	r, err := ParseRange(s)
	if err != nil {
		panic(err)
	}
	return r
}

// Contains reports whether v lies inside the range. A nil version is treated as 0.0.0.
func (r VersionRange) Contains(v *semver.Version) bool {
	if r.constraints == nil {
		return true
	}
	if v == nil {
		v = zeroVersion
	}
	return r.constraints.Check(v)
}

// String returns the range as it was declared, or "*" for the match-all range.
func (r VersionRange) String() string {
	if r.constraints == nil {
		return Wildcard
	}
	return r.raw
}

// translateInterval converts "[a,b)" style intervals into a constraint expression.
func translateInterval(s string) (string, error) {
	if len(s) < 3 {
		return "", errors.New("interval too short")
	}
	open, closing := s[0], s[len(s)-1]
	if closing != ']' && closing != ')' {
		return "", errors.New("interval must end with ']' or ')'")
	}
	lower, upper, found := strings.Cut(s[1:len(s)-1], ",")
	if !found {
		return "", errors.New("interval must contain a comma")
	}
	lower, upper = strings.TrimSpace(lower), strings.TrimSpace(upper)

	var parts []string
	if lower != "" {
		op := ">="
		if open == '(' {
			op = ">"
		}
		parts = append(parts, op+lower)
	}
	if upper != "" {
		op := "<="
		if closing == ')' {
			op = "<"
		}
		parts = append(parts, op+upper)
	}
	if len(parts) == 0 {
		return "*", nil
	}
	return strings.Join(parts, ", "), nil
}
