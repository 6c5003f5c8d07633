// SPDX-License-Identifier: MPL-2.0

package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"

	"github.com/invowk/modrt/pkg/module"
)

func readAll(t *testing.T, root module.ContentRoot, path string) string {
	t.Helper()
	rc, err := root.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open(%s): %v", path, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll(%s): %v", path, err)
	}
	return string(data)
}

func TestFS(t *testing.T) {
	t.Parallel()

	mem := afero.NewMemMapFs()
	if err := afero.WriteFile(mem, "/mods/lib/com/acme/util/Helper", []byte("helper"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(mem, "/mods/plain.txt", []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := NewFS(mem, "/mods")
	ctx := context.Background()

	root, err := s.Root(ctx, "lib")
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	if got := readAll(t, root, "com/acme/util/Helper"); got != "helper" {
		t.Errorf("unexpected content %q", got)
	}

	if _, err := root.Open(ctx, "com/acme/util/Missing"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist, got %v", err)
	}
	if _, err := root.Open(ctx, "com/acme"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("directory should read as missing, got %v", err)
	}
	if _, err := root.Open(ctx, "../plain.txt"); err == nil {
		t.Error("escaping the location must fail")
	}

	if _, err := s.Root(ctx, "missing"); !errors.Is(err, ErrUnknownLocation) {
		t.Errorf("expected ErrUnknownLocation, got %v", err)
	}
	if _, err := s.Root(ctx, "plain.txt"); !errors.Is(err, ErrUnknownLocation) {
		t.Errorf("file location should be rejected, got %v", err)
	}
	if _, err := s.Root(ctx, "/mods/lib"); err != nil {
		t.Errorf("absolute location should be accepted: %v", err)
	}
}

func newSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLite_PutAndOpen(t *testing.T) {
	t.Parallel()

	s := newSQLite(t)
	ctx := context.Background()

	d1, err := s.Put(ctx, "lib", "com/acme/util/Helper", []byte("same"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	d2, err := s.Put(ctx, "app", "com/acme/app/Main", []byte("same"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if d1 != d2 {
		t.Error("identical content should share a digest")
	}

	var blobs int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM blobs`).Scan(&blobs); err != nil {
		t.Fatal(err)
	}
	if blobs != 1 {
		t.Errorf("expected 1 blob, got %d", blobs)
	}

	root, err := s.Root(ctx, "lib")
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	if got := readAll(t, root, "com/acme/util/Helper"); got != "same" {
		t.Errorf("unexpected content %q", got)
	}
	if _, err := root.Open(ctx, "com/acme/app/Main"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("entries of another location must not be visible, got %v", err)
	}

	if _, err := s.Put(ctx, "lib", "com/acme/util/Helper", []byte("updated")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if got := readAll(t, root, "com/acme/util/Helper"); got != "updated" {
		t.Errorf("overwrite not visible, got %q", got)
	}

	if _, err := s.Root(ctx, "nowhere"); !errors.Is(err, ErrUnknownLocation) {
		t.Errorf("expected ErrUnknownLocation, got %v", err)
	}
}

func TestSQLite_ImportAndDelete(t *testing.T) {
	t.Parallel()

	src := afero.NewMemMapFs()
	files := map[string]string{
		"/src/lib/com/acme/util/Helper": "helper",
		"/src/lib/com/acme/util/Other":  "other",
		"/src/lib/module.cue":           "name: \"lib\"",
	}
	for p, data := range files {
		if err := afero.WriteFile(src, p, []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	s := newSQLite(t)
	ctx := context.Background()

	n, err := s.Import(ctx, "lib", src, filepath.FromSlash("/src/lib"))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if n != 3 {
		t.Errorf("imported %d files, want 3", n)
	}

	root, err := s.Root(ctx, "lib")
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	if got := readAll(t, root, "com/acme/util/Other"); got != "other" {
		t.Errorf("unexpected content %q", got)
	}

	if err := s.Delete(ctx, "lib"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Root(ctx, "lib"); !errors.Is(err, ErrUnknownLocation) {
		t.Errorf("deleted location should be unknown, got %v", err)
	}
	var blobs int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM blobs`).Scan(&blobs); err != nil {
		t.Fatal(err)
	}
	if blobs != 0 {
		t.Errorf("unreferenced blobs should be removed, %d left", blobs)
	}
}

// cancelOnOpen cancels an import when the walk reaches one file.
type cancelOnOpen struct {
	afero.Fs
	trigger string
	cancel  context.CancelFunc
}

func (c cancelOnOpen) Open(name string) (afero.File, error) {
	if name == c.trigger {
		c.cancel()
	}
	return c.Fs.Open(name)
}

func writeTree(t *testing.T, fsys afero.Fs, files map[string]string) {
	t.Helper()
	for p, data := range files {
		if err := afero.WriteFile(fsys, p, []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestSQLite_Replace(t *testing.T) {
	t.Parallel()

	s := newSQLite(t)
	ctx := context.Background()

	src := afero.NewMemMapFs()
	writeTree(t, src, map[string]string{"/v1/a": "old-a", "/v1/gone": "gone"})
	if _, err := s.Import(ctx, "lib", src, "/v1"); err != nil {
		t.Fatalf("Import: %v", err)
	}

	writeTree(t, src, map[string]string{"/v2/a": "new-a", "/v2/b": "new-b"})
	n, err := s.Replace(ctx, "lib", src, "/v2")
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if n != 2 {
		t.Errorf("replaced with %d files, want 2", n)
	}

	root, err := s.Root(ctx, "lib")
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	if got := readAll(t, root, "a"); got != "new-a" {
		t.Errorf("a = %q, want new-a", got)
	}
	if _, err := root.Open(ctx, "gone"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("files missing from the new tree should be dropped, got %v", err)
	}
	var blobs int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM blobs`).Scan(&blobs); err != nil {
		t.Fatal(err)
	}
	if blobs != 2 {
		t.Errorf("expected 2 blobs after replace, got %d", blobs)
	}
}

func TestSQLite_ReplaceCancelledKeepsPreviousContent(t *testing.T) {
	t.Parallel()

	// A file database survives the connection a cancelled transaction discards.
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "modules.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	mem := afero.NewMemMapFs()
	writeTree(t, mem, map[string]string{
		"/v1/a":    "old-a",
		"/v1/gone": "gone",
		"/v2/a":    "new-a",
		"/v2/b":    "new-b",
		"/v2/c":    "new-c",
	})
	if _, err := s.Import(context.Background(), "lib", mem, "/v1"); err != nil {
		t.Fatalf("Import: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := cancelOnOpen{Fs: mem, trigger: filepath.FromSlash("/v2/b"), cancel: cancel}
	if n, err := s.Replace(ctx, "lib", src, "/v2"); err == nil {
		t.Fatalf("Replace should fail once cancelled, imported %d files", n)
	}

	bg := context.Background()
	root, err := s.Root(bg, "lib")
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	if got := readAll(t, root, "a"); got != "old-a" {
		t.Errorf("a = %q, want the previous content", got)
	}
	if got := readAll(t, root, "gone"); got != "gone" {
		t.Errorf("gone = %q, want the previous content", got)
	}
	if _, err := root.Open(bg, "c"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("partial import must not be visible, got %v", err)
	}
}

func TestOpen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	b, err := Open(ctx, DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("Open(sqlite): %v", err)
	}
	if _, ok := b.(*SQLite); !ok {
		t.Errorf("expected *SQLite, got %T", b)
	}
	_ = b.Close()

	b, err = Open(ctx, DriverFS, t.TempDir())
	if err != nil {
		t.Fatalf("Open(fs): %v", err)
	}
	if _, ok := b.(*FS); !ok {
		t.Errorf("expected *FS, got %T", b)
	}

	if _, err := Open(ctx, "s3", ""); !errors.Is(err, ErrInvalidDriver) {
		t.Errorf("expected ErrInvalidDriver, got %v", err)
	}
}
