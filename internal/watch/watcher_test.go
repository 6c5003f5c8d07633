// SPDX-License-Identifier: MPL-2.0

package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// bundleDir lays out two units, util and app, with some content.
func bundleDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "util", "module.cue"), `name: "com.acme.util"`)
	writeFile(t, filepath.Join(dir, "util", "com", "acme", "util", "Helper"), "v1")
	writeFile(t, filepath.Join(dir, "app", "module.cue"), `name: "com.acme.app"`)
	return dir
}

// start runs w until the test ends and reports Run's result on cleanup.
func start(t *testing.T, w *Watcher) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errCh:
			if err != nil {
				t.Errorf("Run() error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Run() did not return after cancellation")
		}
	})
	return cancel
}

func TestWatcher_CoalescesIntoUnits(t *testing.T) {
	t.Parallel()

	dir := bundleDir(t)

	var (
		mu    sync.Mutex
		calls [][]string
	)
	done := make(chan struct{})

	w, err := New(Config{
		Dir:      dir,
		Debounce: 100 * time.Millisecond,
		OnChange: func(_ context.Context, units []string) error {
			mu.Lock()
			defer mu.Unlock()
			calls = append(calls, units)
			if len(calls) == 1 {
				close(done)
			}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	start(t, w)

	// Several writes in two units, all inside one debounce window.
	writeFile(t, filepath.Join(dir, "util", "com", "acme", "util", "Helper"), "v2")
	time.Sleep(10 * time.Millisecond)
	writeFile(t, filepath.Join(dir, "util", "module.cue"), `name: "com.acme.util", version: "1.1.0"`)
	time.Sleep(10 * time.Millisecond)
	writeFile(t, filepath.Join(dir, "app", "module.cue"), `name: "com.acme.app", version: "2.0.0"`)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for callback")
	}
	time.Sleep(250 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(calls) != 1 {
		t.Fatalf("expected 1 debounced callback, got %d: %v", len(calls), calls)
	}
	if diff := cmp.Diff([]string{"app", "util"}, calls[0]); diff != "" {
		t.Errorf("units mismatch (-want +got):\n%s", diff)
	}
}

func TestWatcher_IgnorePatterns(t *testing.T) {
	t.Parallel()

	dir := bundleDir(t)
	fired := make(chan []string, 10)

	w, err := New(Config{
		Dir:      dir,
		Ignore:   []string{"**/*.log"},
		Debounce: 50 * time.Millisecond,
		OnChange: func(_ context.Context, units []string) error {
			fired <- units
			return nil
		},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	start(t, w)

	writeFile(t, filepath.Join(dir, "util", "debug.log"), "log")
	time.Sleep(200 * time.Millisecond)
	writeFile(t, filepath.Join(dir, "app", "Main"), "main")

	select {
	case units := <-fired:
		if diff := cmp.Diff([]string{"app"}, units); diff != "" {
			t.Errorf("units mismatch (-want +got):\n%s", diff)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for callback")
	}
}

func TestWatcher_PatternFiltering(t *testing.T) {
	t.Parallel()

	dir := bundleDir(t)
	fired := make(chan []string, 10)

	w, err := New(Config{
		Dir:      dir,
		Patterns: []string{"**/module.cue"},
		Debounce: 50 * time.Millisecond,
		OnChange: func(_ context.Context, units []string) error {
			fired <- units
			return nil
		},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	start(t, w)

	writeFile(t, filepath.Join(dir, "util", "com", "acme", "util", "Helper"), "v2")
	time.Sleep(200 * time.Millisecond)
	writeFile(t, filepath.Join(dir, "app", "module.cue"), `name: "com.acme.app"`)

	select {
	case units := <-fired:
		if diff := cmp.Diff([]string{"app"}, units); diff != "" {
			t.Errorf("units mismatch (-want +got):\n%s", diff)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for callback")
	}
}

func TestWatcher_NewUnitDirectory(t *testing.T) {
	t.Parallel()

	dir := bundleDir(t)
	fired := make(chan []string, 10)

	w, err := New(Config{
		Dir:      dir,
		Debounce: 100 * time.Millisecond,
		OnChange: func(_ context.Context, units []string) error {
			fired <- units
			return nil
		},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	start(t, w)

	if err := os.Mkdir(filepath.Join(dir, "extra"), 0o755); err != nil {
		t.Fatal(err)
	}
	// Let the watcher pick up the new directory before writing into it.
	time.Sleep(50 * time.Millisecond)
	writeFile(t, filepath.Join(dir, "extra", "module.cue"), `name: "com.acme.extra"`)

	deadline := time.After(5 * time.Second)
	for {
		select {
		case units := <-fired:
			if slices.Contains(units, "extra") {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for the new unit")
		}
	}
}

func TestWatcher_Units(t *testing.T) {
	t.Parallel()

	dir := bundleDir(t)
	w, err := New(Config{Dir: dir})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { _ = w.fsw.Close() })

	tests := []struct {
		name    string
		changed []string
		want    []string
	}{
		{"content file", []string{filepath.Join("util", "com", "acme", "util", "Helper")}, []string{"util"}},
		{"manifest", []string{filepath.Join("app", "module.cue")}, []string{"app"}},
		{"deleted manifest", []string{filepath.Join("gone", "module.cue")}, []string{"gone"}},
		{"removed unit directory", []string{filepath.Join("old", "com", "x")}, []string{"old"}},
		{"root itself", []string{"."}, []string{}},
		{"deduplicated", []string{filepath.Join("util", "a"), filepath.Join("util", "b"), "util"}, []string{"util"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := w.units(tt.changed)
			if got == nil {
				got = []string{}
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("units(%v) mismatch (-want +got):\n%s", tt.changed, diff)
			}
		})
	}
}

func TestWatcher_SkipIfBusy(t *testing.T) {
	t.Parallel()

	dir := bundleDir(t)

	var (
		mu      sync.Mutex
		active  int
		overlap bool
		calls   int
	)
	firstDone := make(chan struct{})

	w, err := New(Config{
		Dir:      dir,
		Debounce: 50 * time.Millisecond,
		OnChange: func(_ context.Context, _ []string) error {
			mu.Lock()
			active++
			calls++
			n := calls
			if active > 1 {
				overlap = true
			}
			mu.Unlock()

			if n == 1 {
				time.Sleep(300 * time.Millisecond)
				close(firstDone)
			}

			mu.Lock()
			active--
			mu.Unlock()
			return nil
		},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	start(t, w)

	writeFile(t, filepath.Join(dir, "util", "first"), "1")
	time.Sleep(100 * time.Millisecond)
	writeFile(t, filepath.Join(dir, "app", "second"), "2")

	select {
	case <-firstDone:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for first callback")
	}
	time.Sleep(300 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if overlap {
		t.Error("callbacks overlapped")
	}
	if calls != 2 {
		t.Errorf("expected the busy change to be retried, got %d calls", calls)
	}
}

func TestWatcher_CallbackErrorKeepsRunning(t *testing.T) {
	t.Parallel()

	dir := bundleDir(t)
	fired := make(chan struct{}, 10)

	w, err := New(Config{
		Dir:      dir,
		Debounce: 50 * time.Millisecond,
		OnChange: func(context.Context, []string) error {
			fired <- struct{}{}
			return errors.New("boom")
		},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	start(t, w)

	for i := range 2 {
		writeFile(t, filepath.Join(dir, "app", "file"), strings.Repeat("x", i+1))
		select {
		case <-fired:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for callback %d", i+1)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func TestDefaultIgnores(t *testing.T) {
	t.Parallel()

	w := &Watcher{ignores: DefaultIgnores()}

	tests := []struct {
		path    string
		ignored bool
	}{
		{".git/config", true},
		{"util/.git/objects/ab/cd1234", true},
		{"util/module.cue.swp", true},
		{"util/module.cue.swo", true},
		{"backup~", true},
		{".DS_Store", true},
		{"util/.DS_Store", true},
		{"modules.db", true},
		{"state/modules.db-wal", true},
		{"util/module.cue", false},
		{"util/com/acme/util/Helper", false},
		{".gitignore", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			if got := w.isIgnored(tt.path); got != tt.ignored {
				t.Errorf("isIgnored(%q) = %v, want %v", tt.path, got, tt.ignored)
			}
		})
	}
}

func TestNew_InvalidPattern(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  Config
	}{
		{"bad watch glob", Config{Patterns: []string{"[invalid"}}},
		{"empty watch glob", Config{Patterns: []string{""}}},
		{"bad ignore glob", Config{Ignore: []string{"**/[x"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tt.cfg.Dir = t.TempDir()
			if _, err := New(tt.cfg); !errors.Is(err, ErrInvalidPattern) {
				t.Errorf("New() error = %v, want ErrInvalidPattern", err)
			}
		})
	}
}

func TestWatcher_DoubleRun(t *testing.T) {
	t.Parallel()

	w, err := New(Config{Dir: t.TempDir(), Debounce: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)

	if err := w.Run(ctx); err == nil || !strings.Contains(err.Error(), "Run called more than once") {
		t.Errorf("second Run() = %v, want a double-run error", err)
	}

	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("first Run() returned error: %v", err)
	}
}
