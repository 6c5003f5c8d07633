// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"strings"
	"testing"
)

func TestValues_OrderedAndComplete(t *testing.T) {
	t.Parallel()

	values := Values()
	if len(values) != int(ShutdownTimeoutId) {
		t.Fatalf("Values() returned %d issues, want %d", len(values), ShutdownTimeoutId)
	}
	for i, is := range values {
		if is.Id() != Id(i+1) {
			t.Errorf("Values()[%d].Id() = %d, want %d", i, is.Id(), i+1)
		}
		if is.Title() == "" || strings.TrimSpace(string(is.MarkdownMsg())) == "" {
			t.Errorf("issue %d has no title or message", is.Id())
		}
	}
}

func TestGet(t *testing.T) {
	t.Parallel()

	tests := []struct {
		id    Id
		title string
	}{
		{ConfigLoadFailedId, "Failed to load configuration"},
		{ManifestNotFoundId, "No module manifest found"},
		{ManifestInvalidId, "Invalid module manifest"},
		{ResolutionFailedId, "Module could not be resolved"},
		{SymbolNotFoundId, "Symbol not found"},
		{StorageUnavailableId, "Storage unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			t.Parallel()
			is := Get(tt.id)
			if is == nil {
				t.Fatalf("Get(%d) returned nil", tt.id)
			}
			if is.Title() != tt.title {
				t.Errorf("Get(%d).Title() = %q, want %q", tt.id, is.Title(), tt.title)
			}
		})
	}

	if Get(Id(9999)) != nil {
		t.Error("Get(9999) should return nil")
	}
}

// Not parallel: swaps the package-level renderer.
func TestIssue_Render(t *testing.T) {
	original := render
	defer func() { render = original }()

	var gotStyle string
	render = func(in string, stylePath string) (string, error) {
		gotStyle = stylePath
		return in, nil
	}

	out, err := Get(ResolutionFailedId).Render("")
	if err != nil {
		t.Fatalf("Render() returned error: %v", err)
	}
	if !strings.HasPrefix(out, "# Module could not be resolved\n") {
		t.Errorf("Render() should start with the title heading, got:\n%s", out)
	}
	if !strings.Contains(out, "provider unresolvable") {
		t.Error("Render() should include the message body")
	}
	if gotStyle != "auto" {
		t.Errorf("empty style should default to auto, got %q", gotStyle)
	}

	if _, err := Get(LockTimeoutId).Render("dark"); err != nil || gotStyle != "dark" {
		t.Errorf("explicit style not passed through: style=%q err=%v", gotStyle, err)
	}
}
