// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"fmt"
	"strings"
	"testing"
)

const testSchema = `
#Settings: {
	name:     string & =~"^[a-z]+$"
	workers:  int & >=1
	enabled?: bool
	tags?: [...string]
}
`

type testSettings struct {
	Name    string   `json:"name"`
	Workers int      `json:"workers"`
	Enabled bool     `json:"enabled,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

func TestParseAndDecode(t *testing.T) {
	t.Parallel()

	t.Run("valid input decodes", func(t *testing.T) {
		t.Parallel()

		data := []byte(`
name: "runtime"
workers: 4
tags: ["a", "b"]
`)
		result, err := ParseAndDecode[testSettings]([]byte(testSchema), data, "#Settings")
		if err != nil {
			t.Fatalf("ParseAndDecode failed: %v", err)
		}
		if result.Value.Name != "runtime" || result.Value.Workers != 4 || len(result.Value.Tags) != 2 {
			t.Errorf("unexpected value %+v", result.Value)
		}
	})

	t.Run("constraint violation reports path and file", func(t *testing.T) {
		t.Parallel()

		data := []byte(`
name: "runtime"
workers: 0
`)
		_, err := ParseAndDecode[testSettings]([]byte(testSchema), data, "#Settings", WithFilename("settings.cue"))
		if err == nil {
			t.Fatal("expected error")
		}
		if !strings.Contains(err.Error(), "settings.cue") || !strings.Contains(err.Error(), "workers") {
			t.Errorf("error should name file and field, got: %v", err)
		}
	})

	t.Run("missing required field fails when concrete", func(t *testing.T) {
		t.Parallel()

		_, err := ParseAndDecode[testSettings]([]byte(testSchema), []byte(`name: "x"`), "#Settings")
		if err == nil {
			t.Error("expected error for missing required field")
		}
	})

	t.Run("non-concrete decode into map", func(t *testing.T) {
		t.Parallel()

		result, err := ParseAndDecode[map[string]any]([]byte(`#Partial: { name?: string, workers?: int }`), []byte(`workers: 2`), "#Partial", WithConcrete(false))
		if err != nil {
			t.Fatalf("ParseAndDecode failed: %v", err)
		}
		if got := (*result.Value)["workers"]; fmt.Sprint(got) != "2" {
			t.Errorf("workers = %v (%T)", got, got)
		}
	})

	t.Run("syntax error", func(t *testing.T) {
		t.Parallel()

		_, err := ParseAndDecode[testSettings]([]byte(testSchema), []byte(`name: "x`), "#Settings", WithFilename("broken.cue"))
		if err == nil || !strings.Contains(err.Error(), "broken.cue") {
			t.Errorf("expected syntax error naming the file, got %v", err)
		}
	})
}

func TestCheckFileSize(t *testing.T) {
	t.Parallel()

	if err := CheckFileSize(make([]byte, 10), 10, "f.cue"); err != nil {
		t.Errorf("at limit should pass: %v", err)
	}
	if err := CheckFileSize(make([]byte, 11), 10, "f.cue"); err == nil {
		t.Error("over limit should fail")
	}
	_, err := ParseAndDecode[testSettings]([]byte(testSchema), []byte(`name: "abc"`), "#Settings", WithMaxFileSize(3))
	if err == nil || !strings.Contains(err.Error(), "exceeds maximum") {
		t.Errorf("expected size error, got %v", err)
	}
}

func TestFormatPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path []string
		want string
	}{
		{nil, ""},
		{[]string{"name"}, "name"},
		{[]string{"requires", "0", "range"}, "requires[0].range"},
		{[]string{"a", "b", "12"}, "a.b[12]"},
	}
	for _, tt := range tests {
		if got := formatPath(tt.path); got != tt.want {
			t.Errorf("formatPath(%v) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
