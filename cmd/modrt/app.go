// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"

	"github.com/invowk/modrt/internal/config"
	"github.com/invowk/modrt/internal/issue"
	"github.com/invowk/modrt/pkg/framework"
	"github.com/invowk/modrt/pkg/manifest"
	"github.com/invowk/modrt/pkg/module"
	"github.com/invowk/modrt/pkg/storage"
)

type (
	// App wires CLI services and shared dependencies. It is the composition
	// root for the CLI layer: every cobra handler receives an App and reaches
	// configuration, storage and the framework through it.
	App struct {
		Config     ConfigProvider
		Activators module.ActivatorFactory
		FS         afero.Fs
		stdout     io.Writer
		stderr     io.Writer

		// Bound to the root command's persistent flags.
		configPath string
		verbose    bool
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		Config     ConfigProvider
		Activators module.ActivatorFactory
		FS         afero.Fs
		Stdout     io.Writer
		Stderr     io.Writer
	}

	// ConfigProvider loads configuration using explicit options.
	ConfigProvider interface {
		Load(ctx context.Context, opts config.LoadOptions) (*config.Loaded, error)
	}

	// session is one framework populated from a bundles directory.
	session struct {
		dir     string
		cfg     *config.Loaded
		logger  *log.Logger
		fw      *framework.Framework
		backend storage.Backend
		// installed maps symbolic names to module IDs; later versions win.
		installed map[string]module.ID
		// problems are manifests or installs that failed without aborting the session.
		problems error
	}
)

// NewApp builds an App, filling unset dependencies with production defaults.
func NewApp(deps Dependencies) *App {
	app := &App{
		Config:     deps.Config,
		Activators: deps.Activators,
		FS:         deps.FS,
		stdout:     deps.Stdout,
		stderr:     deps.Stderr,
	}
	if app.Config == nil {
		app.Config = config.NewProvider()
	}
	if app.Activators == nil {
		app.Activators = BuiltinActivators()
	}
	if app.FS == nil {
		app.FS = afero.NewOsFs()
	}
	if app.stdout == nil {
		app.stdout = os.Stdout
	}
	if app.stderr == nil {
		app.stderr = os.Stderr
	}
	return app
}

func (a *App) loadConfig(ctx context.Context) (*config.Loaded, error) {
	return a.Config.Load(ctx, config.LoadOptions{ConfigFilePath: a.configPath})
}

func (a *App) newLogger(cfg *config.Loaded) *log.Logger {
	level := cfg.Log.Level.Level()
	if a.verbose {
		level = log.DebugLevel
	}
	return log.NewWithOptions(a.stderr, log.Options{
		Prefix:          "modrt",
		Level:           level,
		ReportTimestamp: a.verbose,
	})
}

func (a *App) openStorage(ctx context.Context, cfg *config.Loaded) (storage.Backend, error) {
	var (
		backend storage.Backend
		err     error
	)
	switch cfg.Storage.Driver {
	case storage.DriverFS:
		backend = storage.NewFS(a.FS, cfg.Storage.Path)
	default:
		backend, err = storage.Open(ctx, cfg.Storage.Driver, cfg.Storage.Path)
	}
	if err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("open storage").
			WithResource(cfg.Storage.Path).
			WithIssue(issue.StorageUnavailableId).
			Wrap(err).
			BuildError()
	}
	return backend, nil
}

// openSession loads configuration, opens storage and installs every unit
// found below dir (the configured bundles directory when empty). Broken
// manifests and failed installs are recorded in problems; the session is
// still usable for everything that did install.
func (a *App) openSession(ctx context.Context, dir string) (*session, error) {
	cfg, err := a.loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	if dir == "" {
		dir = cfg.Bundles.Dir
	}

	backend, err := a.openStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}

	logger := a.newLogger(cfg)
	s := &session{
		dir:     dir,
		cfg:     cfg,
		logger:  logger,
		backend: backend,
		fw: framework.New(
			framework.WithLogger(logger),
			framework.WithStorage(backend),
			framework.WithActivators(a.Activators),
			framework.WithShutdownWorkers(cfg.Shutdown.Workers),
			framework.WithLockTimeout(cfg.Lock.Timeout),
		),
		installed: make(map[string]module.ID),
	}

	units, discoverErr := manifest.Discover(a.FS, dir)
	if len(units) == 0 && discoverErr == nil {
		_ = s.close(0)
		return nil, issue.NewErrorContext().
			WithOperation("discover modules").
			WithResource(dir).
			WithIssue(issue.ManifestNotFoundId).
			Wrap(manifest.ErrManifestNotFound).
			BuildError()
	}

	problems := []error{discoverErr}
	for _, u := range units {
		if err := s.install(ctx, u); err != nil {
			problems = append(problems, err)
		}
	}
	s.problems = errors.Join(problems...)
	if s.problems != nil {
		logger.Warn("some modules were not installed", "dir", dir, "err", s.problems)
	}
	return s, nil
}

func (s *session) install(ctx context.Context, u *manifest.Unit) error {
	m, err := s.fw.Install(ctx, u.Location, u.Descriptor)
	if err != nil {
		return fmt.Errorf("install %s: %w", u.Location, err)
	}
	name := string(u.Descriptor.SymbolicName)
	if prev, ok := s.installed[name]; ok {
		if pm, _ := s.fw.Module(prev); pm != nil &&
			pm.Descriptor().EffectiveVersion().GreaterThan(u.Descriptor.EffectiveVersion()) {
			return nil
		}
	}
	s.installed[name] = m.ID()
	return nil
}

// forget drops id from the name index. Another installed module with the
// same name takes its place, the highest version first.
func (s *session) forget(id module.ID) {
	for name, cur := range s.installed {
		if cur != id {
			continue
		}
		delete(s.installed, name)
		var best *module.Module
		for _, m := range s.fw.Modules() {
			if m.ID() == id || string(m.Descriptor().SymbolicName) != name {
				continue
			}
			if best == nil || m.Descriptor().EffectiveVersion().GreaterThan(best.Descriptor().EffectiveVersion()) {
				best = m
			}
		}
		if best != nil {
			s.installed[name] = best.ID()
		}
	}
}

// startAll starts every resolved module that is not yet active and returns
// how many are active afterwards. Start failures are reported on w.
func (s *session) startAll(ctx context.Context, w io.Writer, verbose bool) int {
	active := 0
	for _, m := range s.fw.Modules() {
		if m.Descriptor().IsFragment() || !m.State().IsResolved() {
			continue
		}
		if m.State() != module.StateActive {
			if err := s.fw.Start(ctx, m.ID()); err != nil {
				fmt.Fprintln(w, formatErrorForDisplay(err, verbose))
				continue
			}
		}
		active++
	}
	return active
}

// redeploy replaces the modules installed from the changed unit
// directories (relative to the session directory) with their current
// manifests and refreshes the modules wired to the old ones. A unit whose
// manifest is gone is only removed. Callers start the new modules.
func (s *session) redeploy(ctx context.Context, fsys afero.Fs, units []string) (*framework.RefreshResult, error) {
	var errs []error
	for _, rel := range units {
		loc := filepath.Join(s.dir, rel)
		for _, m := range s.fw.Modules() {
			if filepath.Clean(m.Location()) != loc {
				continue
			}
			if err := s.fw.Uninstall(ctx, m.ID()); err != nil {
				errs = append(errs, fmt.Errorf("uninstall %s: %w", loc, err))
				continue
			}
			s.forget(m.ID())
		}

		u, err := manifest.Load(fsys, loc)
		if errors.Is(err, manifest.ErrManifestNotFound) {
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := s.install(ctx, u); err != nil {
			errs = append(errs, err)
		}
	}

	res, err := s.fw.Refresh(ctx)
	if err != nil {
		return nil, errors.Join(append(errs, err)...)
	}
	errs = append(errs, res.Errors...)
	if _, err := s.fw.ResolveAll(ctx); err != nil {
		errs = append(errs, err)
	}
	return res, errors.Join(errs...)
}

// module returns the installed module called name, or the module with the
// given ID written as "#3" or "3".
func (s *session) module(name string) (module.ID, error) {
	if id, ok := s.installed[name]; ok {
		return id, nil
	}
	if n, err := strconv.ParseUint(strings.TrimPrefix(name, "#"), 10, 64); err == nil {
		if _, ok := s.fw.Module(module.ID(n)); ok {
			return module.ID(n), nil
		}
	}
	return 0, fmt.Errorf("%w: %s", module.ErrUnknownModule, name)
}

// close shuts the framework down, waiting up to timeout, and releases storage.
// Modules still stopping after a timeout may read content, so storage is then
// closed only once the stop sequence completes.
func (s *session) close(timeout time.Duration) framework.StopResult {
	s.fw.Shutdown()
	res := s.fw.WaitForStop(timeout)
	if res.TimedOut {
		go func() {
			<-s.fw.Stopped()
			s.closeStorage()
		}()
		return res
	}
	s.closeStorage()
	return res
}

func (s *session) closeStorage() {
	if err := s.backend.Close(); err != nil {
		s.logger.Warn("close storage", "err", err)
	}
}
