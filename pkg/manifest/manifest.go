// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"

	"github.com/spf13/afero"

	"github.com/invowk/modrt/internal/cueutil"
	"github.com/invowk/modrt/pkg/capability"
	"github.com/invowk/modrt/pkg/module"
)

// FileName is the manifest file every unit directory carries.
const FileName = "module.cue"

var (
	//go:embed module_schema.cue
	moduleSchema string

	// ErrManifestNotFound is returned when a directory has no module.cue.
	ErrManifestNotFound = errors.New("module.cue not found")
)

type (
	// File is the decoded content of a module.cue.
	File struct {
		Name      string        `json:"name"`
		Version   string        `json:"version,omitempty"`
		Activator string        `json:"activator,omitempty"`
		Host      *HostSpec     `json:"host,omitempty"`
		Exports   []ExportSpec  `json:"exports,omitempty"`
		Requires  []RequireSpec `json:"requires,omitempty"`
		Private   []string      `json:"private,omitempty"`

		// FilePath is where the manifest was read from.
		FilePath string `json:"-"`
	}

	// HostSpec names a fragment's host.
	HostSpec struct {
		Name  string `json:"name"`
		Range string `json:"range,omitempty"`
	}

	// ExportSpec declares an exported namespace.
	ExportSpec struct {
		Namespace  string            `json:"namespace"`
		Version    string            `json:"version,omitempty"`
		Attributes map[string]string `json:"attributes,omitempty"`
		Include    []string          `json:"include,omitempty"`
		Exclude    []string          `json:"exclude,omitempty"`
	}

	// RequireSpec declares a requirement.
	RequireSpec struct {
		Kind       string            `json:"kind"`
		Namespace  string            `json:"namespace"`
		Range      string            `json:"range,omitempty"`
		Attributes map[string]string `json:"attributes,omitempty"`
		Optional   bool              `json:"optional"`
		Dynamic    bool              `json:"dynamic"`
		Reexport   bool              `json:"reexport"`
	}

	// Unit is a manifest directory ready to install.
	Unit struct {
		// Location is the unit directory.
		Location string
		// Descriptor is the module declaration read from the manifest.
		Descriptor *module.Descriptor
	}
)

// Parse decodes and validates module.cue content. filename is used in errors.
func Parse(data []byte, filename string) (*File, error) {
	result, err := cueutil.ParseAndDecodeString[File](
		moduleSchema,
		data,
		"#Module",
		cueutil.WithFilename(filename),
	)
	if err != nil {
		return nil, err
	}
	f := result.Value
	f.FilePath = filename
	return f, nil
}

// Descriptor converts the manifest into a validated module descriptor.
func (f *File) Descriptor() (*module.Descriptor, error) {
	var errs []error

	version, err := capability.ParseVersion(f.Version)
	if err != nil {
		errs = append(errs, fmt.Errorf("version: %w", err))
	}
	d := &module.Descriptor{
		SymbolicName: capability.Namespace(f.Name),
		Version:      version,
		Activator:    f.Activator,
	}

	if f.Host != nil {
		rng, err := capability.ParseRange(f.Host.Range)
		if err != nil {
			errs = append(errs, fmt.Errorf("host.range: %w", err))
		}
		d.Host = &capability.Requirement{Kind: capability.KindHost, Namespace: capability.Namespace(f.Host.Name), Range: rng}
	}

	for i, e := range f.Exports {
		v, err := capability.ParseVersion(e.Version)
		if err != nil {
			errs = append(errs, fmt.Errorf("exports[%d].version: %w", i, err))
		}
		d.Capabilities = append(d.Capabilities, capability.Capability{
			Kind:       capability.KindPackage,
			Namespace:  capability.Namespace(e.Namespace),
			Version:    v,
			Attributes: e.Attributes,
			Include:    slices.Clone(e.Include),
			Exclude:    slices.Clone(e.Exclude),
		})
	}

	for i, r := range f.Requires {
		rng, err := capability.ParseRange(r.Range)
		if err != nil {
			errs = append(errs, fmt.Errorf("requires[%d].range: %w", i, err))
		}
		kind := capability.Kind(r.Kind)
		if kind == "" {
			kind = capability.KindPackage
		}
		d.Requirements = append(d.Requirements, capability.Requirement{
			Kind:       kind,
			Namespace:  capability.Namespace(r.Namespace),
			Range:      rng,
			Attributes: r.Attributes,
			Optional:   r.Optional,
			Dynamic:    r.Dynamic,
			Reexport:   r.Reexport,
		})
	}

	for _, p := range f.Private {
		d.Private = append(d.Private, capability.Namespace(p))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%s: %w", f.FilePath, errors.Join(errs...))
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", f.FilePath, err)
	}
	return d, nil
}

// Load reads the unit in dir.
func Load(fsys afero.Fs, dir string) (*Unit, error) {
	path := filepath.Join(dir, FileName)
	data, err := afero.ReadFile(fsys, path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrManifestNotFound, dir)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest at %s: %w", path, err)
	}

	f, err := Parse(data, path)
	if err != nil {
		return nil, err
	}
	d, err := f.Descriptor()
	if err != nil {
		return nil, err
	}
	return &Unit{Location: dir, Descriptor: d}, nil
}

// Discover loads every unit below root in lexical order of their paths. A
// unit's subdirectories hold its content and are not searched for further
// units. Every manifest is attempted; the errors of those that fail are joined.
func Discover(fsys afero.Fs, root string) ([]*Unit, error) {
	var (
		units []*Unit
		errs  []error
	)
	err := afero.Walk(fsys, root, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if ok, _ := afero.Exists(fsys, filepath.Join(path, FileName)); !ok {
			return nil
		}
		u, loadErr := Load(fsys, path)
		if loadErr != nil {
			errs = append(errs, loadErr)
		} else {
			units = append(units, u)
		}
		if path == root {
			return nil
		}
		return filepath.SkipDir
	})
	if err != nil {
		return nil, fmt.Errorf("discover modules under %s: %w", root, err)
	}
	return units, errors.Join(errs...)
}
