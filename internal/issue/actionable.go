// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"fmt"
	"strings"
)

type (
	// ActionableError is a user-facing error: the operation that failed, the
	// module, manifest or store involved, and what the user can do about it.
	//
	//	return issue.NewErrorContext().
	//		WithOperation("discover modules").
	//		WithResource("./bundles").
	//		WithIssue(issue.ManifestNotFoundId).
	//		Wrap(manifest.ErrManifestNotFound).
	//		BuildError()
	ActionableError struct {
		// Operation is a verb phrase such as "open storage" or "import modules".
		Operation string
		// Resource names the directory, module or file involved. Optional.
		Resource string
		// Suggestions are one-line fixes shown under the message.
		Suggestions []string
		// Cause is the underlying error.
		Cause error
		// Issue links the catalog entry with longer guidance. Zero means none.
		Issue Id
	}

	// ErrorContext accumulates the parts of an ActionableError. Build copies
	// the accumulated state, so a context can be reused for several errors.
	ErrorContext struct {
		operation   string
		resource    string
		suggestions []string
		cause       error
		issue       Id
	}
)

// NewErrorContext returns an empty builder.
func NewErrorContext() *ErrorContext {
	return &ErrorContext{}
}

// Error returns "failed to <operation>[: <resource>][: <cause>]".
func (e *ActionableError) Error() string {
	var msg strings.Builder
	msg.WriteString("failed to ")
	msg.WriteString(e.Operation)
	if e.Resource != "" {
		msg.WriteString(": ")
		msg.WriteString(e.Resource)
	}
	if e.Cause != nil {
		msg.WriteString(": ")
		msg.WriteString(e.Cause.Error())
	}
	return msg.String()
}

// Unwrap returns the cause for errors.Is and errors.As.
func (e *ActionableError) Unwrap() error {
	return e.Cause
}

// Format renders the message followed by the suggestions as a bullet list.
// Verbose output adds the cause chain, one error per line; errors joined
// with errors.Join are expanded as indented branches.
func (e *ActionableError) Format(verbose bool) string {
	var msg strings.Builder
	msg.WriteString(e.Error())

	if len(e.Suggestions) > 0 {
		msg.WriteString("\n")
		for _, s := range e.Suggestions {
			msg.WriteString("\n  • ")
			msg.WriteString(s)
		}
	}

	if verbose && e.Cause != nil {
		msg.WriteString("\n\nError chain:")
		n := 0
		writeChain(&msg, e.Cause, 1, &n)
	}
	return msg.String()
}

// writeChain numbers each error in the chain below err. Single-cause
// wrappers continue at the same depth; joined errors open one branch each.
func writeChain(b *strings.Builder, err error, depth int, n *int) {
	for err != nil {
		*n++
		fmt.Fprintf(b, "\n%s%d. %s", strings.Repeat("  ", depth), *n, err.Error())
		switch u := err.(type) {
		case interface{ Unwrap() []error }:
			for _, branch := range u.Unwrap() {
				writeChain(b, branch, depth+1, n)
			}
			return
		case interface{ Unwrap() error }:
			err = u.Unwrap()
		default:
			return
		}
	}
}

// Guidance returns the catalog entry linked to the error, or nil.
func (e *ActionableError) Guidance() *Issue {
	if e.Issue == 0 {
		return nil
	}
	return Get(e.Issue)
}

// WithOperation sets the failed operation.
func (c *ErrorContext) WithOperation(op string) *ErrorContext {
	c.operation = op
	return c
}

// WithResource sets the directory, module or file involved.
func (c *ErrorContext) WithResource(res string) *ErrorContext {
	c.resource = res
	return c
}

// WithSuggestion appends a fix hint.
func (c *ErrorContext) WithSuggestion(sug string) *ErrorContext {
	c.suggestions = append(c.suggestions, sug)
	return c
}

// WithIssue links the error to a catalog entry rendered in verbose output.
func (c *ErrorContext) WithIssue(id Id) *ErrorContext {
	c.issue = id
	return c
}

// Wrap sets the cause.
func (c *ErrorContext) Wrap(err error) *ErrorContext {
	c.cause = err
	return c
}

// Build returns the ActionableError, or nil when no operation was set.
func (c *ErrorContext) Build() *ActionableError {
	if c.operation == "" {
		return nil
	}
	return &ActionableError{
		Operation:   c.operation,
		Resource:    c.resource,
		Suggestions: append([]string(nil), c.suggestions...),
		Cause:       c.cause,
		Issue:       c.issue,
	}
}

// BuildError is Build for return statements; it never returns a typed nil.
func (c *ErrorContext) BuildError() error {
	if ae := c.Build(); ae != nil {
		return ae
	}
	return nil
}
