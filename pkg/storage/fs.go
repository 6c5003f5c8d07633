// SPDX-License-Identifier: MPL-2.0

package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/invowk/modrt/pkg/module"
)

type (
	// FS serves install locations as directories of an afero filesystem.
	// Relative locations are resolved against the base directory.
	FS struct {
		fs   afero.Fs
		base string
	}

	fsRoot struct {
		fs afero.Fs
	}
)

// NewFS returns an FS over fsys rooted at base. An empty base leaves relative
// locations relative to the filesystem root.
func NewFS(fsys afero.Fs, base string) *FS {
	return &FS{fs: fsys, base: base}
}

// Root implements module.Storage. The location must be an existing directory.
func (s *FS) Root(ctx context.Context, location string) (module.ContentRoot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir := location
	if !filepath.IsAbs(dir) && s.base != "" {
		dir = filepath.Join(s.base, dir)
	}
	info, err := s.fs.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnknownLocation, location, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrUnknownLocation, location)
	}
	return &fsRoot{fs: afero.NewBasePathFs(s.fs, dir)}, nil
}

// Close implements Backend. FS holds no resources.
func (s *FS) Close() error { return nil }

// Open implements module.ContentRoot.
func (r *fsRoot) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clean := path.Clean("/" + name)
	if strings.Contains(name, "..") || clean == "/" {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	f, err := r.fs.Open(filepath.FromSlash(clean))
	if err != nil {
		return nil, err
	}
	if info, statErr := f.Stat(); statErr == nil && info.IsDir() {
		_ = f.Close()
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return f, nil
}
