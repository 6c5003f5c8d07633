// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/invowk/modrt/internal/config"
	"github.com/invowk/modrt/pkg/capability"
	"github.com/invowk/modrt/pkg/module"
	"github.com/invowk/modrt/pkg/storage"
)

const helperContent = "helper-bytes"

type staticConfig struct {
	cfg *config.Config
}

func (s staticConfig) Load(context.Context, config.LoadOptions) (*config.Loaded, error) {
	return &config.Loaded{Config: s.cfg}, nil
}

// bundles returns a filesystem with a provider, a dependent using the log
// activator and a module whose requirement nothing satisfies.
func bundles(t *testing.T) afero.Fs {
	t.Helper()
	fsys := afero.NewMemMapFs()
	files := map[string]string{
		"/bundles/util/module.cue": `
name:    "com.acme.util"
version: "1.2.0"
exports: [{namespace: "com.acme.util", version: "1.2.0"}]
`,
		"/bundles/util/com/acme/util/Helper": helperContent,
		"/bundles/app/module.cue": `
name:      "com.acme.app"
version:   "1.0.0"
activator: "modrt.log"
requires: [{namespace: "com.acme.util", range: "[1.0.0,2.0.0)"}]
`,
		"/bundles/orphan/module.cue": `
name: "com.acme.orphan"
requires: [{namespace: "com.acme.missing"}]
`,
	}
	for path, content := range files {
		if err := afero.WriteFile(fsys, path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	return fsys
}

func execute(t *testing.T, fsys afero.Fs, cfg *config.Config, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	app := NewApp(Dependencies{
		Config: staticConfig{cfg: cfg},
		FS:     fsys,
		Stdout: &stdout,
		Stderr: &stderr,
	})
	root := NewRootCommand(app)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestResolveCommand(t *testing.T) {
	t.Parallel()

	out, _, err := execute(t, bundles(t), config.DefaultConfig(), "resolve", "/bundles", "--capabilities", "com.acme.*")

	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != ExitUnresolved {
		t.Fatalf("expected exit code %d, got %v", ExitUnresolved, err)
	}
	for _, want := range []string{
		"com.acme.app@1.0.0",
		"package com.acme.util [1.0.0,2.0.0) -> com.acme.util@1.2.0",
		"Unresolved",
		"com.acme.orphan@0.0.0",
		"absent",
		"Capabilities",
		"com.acme.util 1.2.0 from com.acme.util@1.2.0",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestLookupCommand(t *testing.T) {
	t.Parallel()

	out, _, err := execute(t, bundles(t), config.DefaultConfig(),
		"lookup", "/bundles", "com.acme.app", "com.acme.util.Helper", "--data")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}

	sum := sha256.Sum256([]byte(helperContent))
	for _, want := range []string{
		"owner:  com.acme.util@1.2.0",
		"digest: " + hex.EncodeToString(sum[:]),
		helperContent,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestLookupCommand_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		want error
	}{
		{"unknown module", []string{"lookup", "/bundles", "com.acme.nope", "com.acme.util.Helper"}, module.ErrUnknownModule},
		{"missing symbol", []string{"lookup", "/bundles", "com.acme.app", "com.acme.util.Missing"}, module.ErrSymbolNotFound},
		{"unresolvable module", []string{"lookup", "/bundles", "com.acme.orphan", "com.acme.missing.X"}, module.ErrResolution},
		{"invalid symbol", []string{"lookup", "/bundles", "com.acme.app", "Helper"}, capability.ErrInvalidSymbol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, _, err := execute(t, bundles(t), config.DefaultConfig(), tt.args...)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestRunCommand_Once(t *testing.T) {
	t.Parallel()

	out, stderr, err := execute(t, bundles(t), config.DefaultConfig(), "run", "/bundles", "--once")
	if err != nil {
		t.Fatalf("run: %v\nstderr: %s", err, stderr)
	}
	if !strings.Contains(out, "2 of 3 modules active") {
		t.Errorf("expected two active modules:\n%s", out)
	}
	if !strings.Contains(out, "All modules stopped.") {
		t.Errorf("expected a clean shutdown:\n%s", out)
	}
}

func TestRunCommand_MissingActivator(t *testing.T) {
	t.Parallel()

	fsys := bundles(t)
	if err := afero.WriteFile(fsys, "/bundles/app/module.cue", []byte(`
name:      "com.acme.app"
activator: "not.registered"
`), 0o644); err != nil {
		t.Fatal(err)
	}

	out, stderr, err := execute(t, fsys, config.DefaultConfig(), "run", "/bundles", "--once")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "1 of 3 modules active") {
		t.Errorf("expected only the provider to start:\n%s", out)
	}
	if !strings.Contains(stderr, "malformed activator") {
		t.Errorf("expected the activator failure on stderr:\n%s", stderr)
	}
}

func TestImportThenLookupFromSQLite(t *testing.T) {
	t.Parallel()

	fsys := bundles(t)
	cfg := config.DefaultConfig()
	cfg.Storage.Driver = storage.DriverSQLite
	cfg.Storage.Path = filepath.Join(t.TempDir(), "modules.db")

	out, _, err := execute(t, fsys, cfg, "import", "/bundles")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(out, "com.acme.util@1.2.0") || !strings.Contains(out, "2 files from /bundles/util") {
		t.Errorf("unexpected import output:\n%s", out)
	}

	// Content now comes from the store, not the filesystem.
	if err := fsys.Remove("/bundles/util/com/acme/util/Helper"); err != nil {
		t.Fatal(err)
	}
	out, _, err = execute(t, fsys, cfg, "lookup", "/bundles", "com.acme.app", "com.acme.util.Helper")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !strings.Contains(out, "owner:  com.acme.util@1.2.0") {
		t.Errorf("unexpected lookup output:\n%s", out)
	}
}

func TestImportCommand_RequiresSQLite(t *testing.T) {
	t.Parallel()

	_, _, err := execute(t, bundles(t), config.DefaultConfig(), "import", "/bundles")
	if err == nil || !strings.Contains(err.Error(), `storage driver is "fs"`) {
		t.Errorf("expected a driver error, got %v", err)
	}
}

func TestResolveCommand_NoManifests(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	if err := fsys.MkdirAll("/empty", 0o755); err != nil {
		t.Fatal(err)
	}
	_, _, err := execute(t, fsys, config.DefaultConfig(), "resolve", "/empty")
	if err == nil || !strings.Contains(err.Error(), "module.cue not found") {
		t.Errorf("expected a not-found error, got %v", err)
	}
}

func TestFormatErrorForDisplay(t *testing.T) {
	t.Parallel()

	err := &module.ResolutionError{
		Module:      1,
		Name:        "com.acme.app",
		Requirement: capability.Requirement{Kind: capability.KindPackage, Namespace: "com.acme.util"},
		Reason:      module.ReasonAbsent,
	}

	short := formatErrorForDisplay(err, false)
	if !strings.Contains(short, "com.acme.util") || !strings.Contains(short, "--verbose") {
		t.Errorf("unexpected short output:\n%s", short)
	}

	long := formatErrorForDisplay(err, true)
	if !strings.Contains(long, "Error chain:") {
		t.Errorf("verbose output should include the error chain:\n%s", long)
	}

	if got := formatErrorForDisplay(errors.New("plain"), false); strings.Contains(got, "--verbose") {
		t.Errorf("unclassified errors have no guidance:\n%s", got)
	}
}

func TestGetVersionString(t *testing.T) {
	// Not parallel: mutates package-level Version/Commit/BuildDate vars.
	origVersion, origCommit, origBuildDate := Version, Commit, BuildDate
	t.Cleanup(func() {
		Version, Commit, BuildDate = origVersion, origCommit, origBuildDate
	})

	Version, Commit, BuildDate = "v1.2.3", "abc1234", "2026-01-02T03:04:05Z"
	if got, want := getVersionString(), "v1.2.3 (commit: abc1234, built: 2026-01-02T03:04:05Z)"; got != want {
		t.Errorf("getVersionString() = %q, want %q", got, want)
	}

	Version = "dev"
	if got := getVersionString(); got != "dev (built from source)" {
		t.Errorf("getVersionString() = %q", got)
	}
}
