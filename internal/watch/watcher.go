// SPDX-License-Identifier: MPL-2.0

// Package watch reports which module directories changed below a bundles
// directory.
//
// Filesystem events are debounced: events arriving within the quiet period
// are coalesced and the callback fires once with every affected unit.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// defaultDebounce lets an editor's write-then-rename settle into one callback.
const defaultDebounce = 500 * time.Millisecond

// defaultUnitFile marks the root directory of a unit.
const defaultUnitFile = "module.cue"

// defaultIgnores are never reported, whatever the configured ignores.
var defaultIgnores = []string{
	"**/.git/**",
	"**/*.swp",
	"**/*.swo",
	"**/*~",
	"**/.DS_Store",
	"**/*.db",
	"**/*.db-journal",
	"**/*.db-wal",
	"**/*.db-shm",
}

// ErrInvalidPattern is returned by New when a watch or ignore glob does not parse.
var ErrInvalidPattern = errors.New("invalid glob pattern")

type (
	// Config holds the parameters for a Watcher.
	Config struct {
		// Dir is the bundles directory to watch. Empty means the working directory.
		Dir string

		// UnitFile names the manifest that marks a unit root. Defaults to module.cue.
		UnitFile string

		// Patterns are doublestar globs, relative to Dir, selecting the files
		// that count as changes. Empty selects every non-ignored file.
		Patterns []string

		// Ignore are doublestar globs merged with the built-in ignores.
		Ignore []string

		// Debounce is the quiet period after the last event. Zero or negative
		// values fall back to defaultDebounce.
		Debounce time.Duration

		// OnChange receives the changed unit directories relative to Dir, sorted.
		// Calls never overlap. A nil callback is a no-op.
		OnChange func(ctx context.Context, units []string) error

		// Logger receives watcher diagnostics. Nil discards them.
		Logger *log.Logger
	}

	// Watcher monitors a bundles directory. Run must be called exactly once.
	Watcher struct {
		cfg      Config
		fsw      *fsnotify.Watcher
		ignores  []string
		logger   *log.Logger
		debounce time.Duration
		dir      string
		unitFile string
		started  atomic.Bool
	}
)

// New resolves cfg.Dir, validates the globs and registers every
// non-ignored directory below it with fsnotify.
func New(cfg Config) (*Watcher, error) {
	dir := cfg.Dir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("watch: determine working directory: %w", err)
		}
		dir = wd
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve directory: %w", err)
	}

	if err := validatePatterns(cfg.Patterns, "watch"); err != nil {
		return nil, err
	}
	if err := validatePatterns(cfg.Ignore, "ignore"); err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		cfg:      cfg,
		fsw:      fsw,
		ignores:  slices.Concat(defaultIgnores, cfg.Ignore),
		logger:   cfg.Logger,
		debounce: cfg.Debounce,
		dir:      absDir,
		unitFile: cfg.UnitFile,
	}
	if w.logger == nil {
		w.logger = log.New(io.Discard)
	}
	if w.debounce <= 0 {
		w.debounce = defaultDebounce
	}
	if w.unitFile == "" {
		w.unitFile = defaultUnitFile
	}

	if err := w.addDirectories(); err != nil {
		if closeErr := fsw.Close(); closeErr != nil {
			w.logger.Warn("close watcher after init failure", "err", closeErr)
		}
		return nil, err
	}
	return w, nil
}

// Run blocks until ctx is done, dispatching debounced callbacks. It returns
// nil on cancellation and an error when fsnotify breaks for good.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return errors.New("watch: Run called more than once")
	}

	var (
		mu      sync.Mutex
		pending = make(map[string]struct{})
		timer   *time.Timer
		running atomic.Bool
	)

	// fire may run from time.AfterFunc after ctx is done; the callback gets
	// ctx and must honour it. A busy callback reschedules rather than drops.
	fire := func() {
		if ctx.Err() != nil {
			return
		}
		if !running.CompareAndSwap(false, true) {
			w.logger.Debug("previous change still being applied, retrying")
			mu.Lock()
			if timer != nil {
				timer.Reset(w.debounce)
			}
			mu.Unlock()
			return
		}
		defer running.Store(false)

		mu.Lock()
		if len(pending) == 0 {
			mu.Unlock()
			return
		}
		changed := slices.Collect(maps.Keys(pending))
		clear(pending)
		mu.Unlock()

		units := w.units(changed)
		if len(units) == 0 || w.cfg.OnChange == nil {
			return
		}
		w.logger.Debug("units changed", "units", units)
		if err := w.cfg.OnChange(ctx, units); err != nil {
			w.logger.Error("apply change", "units", units, "err", err)
		}
	}

	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
		if err := w.fsw.Close(); err != nil {
			w.logger.Warn("close fsnotify", "err", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watch: fsnotify event channel closed unexpectedly")
			}
			rel, err := filepath.Rel(w.dir, evt.Name)
			if err != nil || w.isIgnored(rel) || !w.matchesPatterns(rel) {
				continue
			}
			if evt.Has(fsnotify.Create) {
				w.maybeAddDir(evt.Name)
			}

			mu.Lock()
			pending[rel] = struct{}{}
			if timer == nil {
				timer = time.AfterFunc(w.debounce, fire)
			} else {
				timer.Reset(w.debounce)
			}
			mu.Unlock()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watch: fsnotify error channel closed unexpectedly")
			}
			if isFatalFsnotifyError(err) {
				return fmt.Errorf("watch: fatal fsnotify error: %w", err)
			}
			w.logger.Warn("fsnotify error", "err", err)
		}
	}
}

// units maps changed paths to the unit directories holding them. A path
// belongs to the nearest enclosing directory with a unit file; the manifest
// itself always marks its directory, even after a delete. Paths with no
// enclosing unit are attributed to their first path element, which covers
// a unit directory that was removed as a whole.
func (w *Watcher) units(changed []string) []string {
	set := make(map[string]struct{}, len(changed))
	for _, rel := range changed {
		rel = filepath.Clean(rel)
		if rel == "." {
			continue
		}
		if filepath.Base(rel) == w.unitFile {
			set[filepath.Dir(rel)] = struct{}{}
			continue
		}
		if unit, ok := w.enclosingUnit(rel); ok {
			set[unit] = struct{}{}
			continue
		}
		first, _, _ := strings.Cut(filepath.ToSlash(rel), "/")
		set[filepath.FromSlash(first)] = struct{}{}
	}
	return slices.Sorted(maps.Keys(set))
}

func (w *Watcher) enclosingUnit(rel string) (string, bool) {
	for dir := rel; dir != "." && dir != string(filepath.Separator); dir = filepath.Dir(dir) {
		if _, err := os.Stat(filepath.Join(w.dir, dir, w.unitFile)); err == nil {
			return dir, true
		}
	}
	return "", false
}

// addDirectories registers every non-ignored directory below dir.
// Unreadable directories are skipped and logged.
func (w *Watcher) addDirectories() error {
	walkErr := filepath.WalkDir(w.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn("skipping inaccessible path", "path", path, "err", err)
			return nil //nolint:nilerr // inaccessible paths are skipped, not fatal
		}
		if !d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(w.dir, path)
		if relErr != nil {
			return nil //nolint:nilerr // cannot be made relative
		}
		if w.isIgnored(rel) || w.isIgnored(rel+"/") {
			return filepath.SkipDir
		}
		if addErr := w.fsw.Add(path); addErr != nil {
			return fmt.Errorf("watch: add directory %q: %w", path, addErr)
		}
		return nil
	})
	if walkErr != nil {
		return fmt.Errorf("watch: walk directory tree: %w", walkErr)
	}
	return nil
}

// maybeAddDir extends the watch to a directory created after startup.
func (w *Watcher) maybeAddDir(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}
	rel, err := filepath.Rel(w.dir, path)
	if err != nil || w.isIgnored(rel) || w.isIgnored(rel+"/") {
		return
	}
	if err := w.fsw.Add(path); err != nil {
		w.logger.Warn("add new directory", "path", path, "err", err)
	}
}

func (w *Watcher) isIgnored(rel string) bool {
	normalized := filepath.ToSlash(rel)
	for _, pat := range w.ignores {
		if matched, err := doublestar.Match(pat, normalized); err == nil && matched {
			return true
		}
	}
	return false
}

func (w *Watcher) matchesPatterns(rel string) bool {
	if len(w.cfg.Patterns) == 0 {
		return true
	}
	normalized := filepath.ToSlash(rel)
	for _, pat := range w.cfg.Patterns {
		if matched, err := doublestar.Match(pat, normalized); err == nil && matched {
			return true
		}
	}
	return false
}

// DefaultIgnores returns a copy of the built-in ignore patterns.
func DefaultIgnores() []string {
	return slices.Clone(defaultIgnores)
}

func validatePatterns(patterns []string, label string) error {
	for _, pat := range patterns {
		if pat == "" || !doublestar.ValidatePattern(pat) {
			return fmt.Errorf("watch: %w: %s pattern %q", ErrInvalidPattern, label, pat)
		}
	}
	return nil
}
