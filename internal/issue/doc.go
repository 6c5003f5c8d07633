// SPDX-License-Identifier: MPL-2.0

// Package issue turns runtime failures into messages a user can act on.
//
// ActionableError carries the failed operation, the resource involved and
// fix hints. An error may link to a catalog Issue whose Markdown guidance
// the CLI renders with glamour in verbose mode.
package issue
