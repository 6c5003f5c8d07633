// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/invowk/modrt/internal/issue"
	"github.com/invowk/modrt/pkg/manifest"
	"github.com/invowk/modrt/pkg/storage"
)

func newImportCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "import <dir>",
		Short: "Copy module content into the sqlite store",
		Long: `Copy the content of every module found below dir into the sqlite store
named by storage.path. Each module is stored under its directory path, the
same location later commands install it from; re-importing replaces it.

Requires storage.driver to be "sqlite".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, app, args[0])
		},
	}
}

func runImport(cmd *cobra.Command, app *App, dir string) error {
	ctx := cmd.Context()
	cfg, err := app.loadConfig(ctx)
	if err != nil {
		return err
	}
	if cfg.Storage.Driver != storage.DriverSQLite {
		return issue.NewErrorContext().
			WithOperation("import modules").
			WithSuggestion("Set storage.driver to \"sqlite\" and storage.path to a database file").
			WithSuggestion("Or export MODRT_STORAGE_DRIVER=sqlite MODRT_STORAGE_PATH=modules.db").
			WithIssue(issue.StorageUnavailableId).
			Wrap(fmt.Errorf("storage driver is %q", cfg.Storage.Driver)).
			BuildError()
	}

	backend, err := app.openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer backend.Close()
	db, ok := backend.(*storage.SQLite)
	if !ok {
		return fmt.Errorf("storage backend %T does not support import", backend)
	}

	units, discoverErr := manifest.Discover(app.FS, dir)
	out := cmd.OutOrStdout()
	var errs []error
	for _, u := range units {
		n, err := db.Replace(ctx, u.Location, app.FS, u.Location)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(out, "%s %s@%s %s\n", SuccessStyle.Render("✓"),
			ModuleStyle.Render(string(u.Descriptor.SymbolicName)), u.Descriptor.EffectiveVersion(),
			SubtitleStyle.Render(fmt.Sprintf("(%d files from %s)", n, u.Location)))
	}

	if err := errors.Join(append([]error{discoverErr}, errs...)...); err != nil {
		return issue.NewErrorContext().
			WithOperation("import modules").
			WithResource(dir).
			Wrap(err).
			BuildError()
	}
	if len(units) == 0 {
		return issue.NewErrorContext().
			WithOperation("import modules").
			WithResource(dir).
			WithIssue(issue.ManifestNotFoundId).
			Wrap(manifest.ErrManifestNotFound).
			BuildError()
	}
	return nil
}
