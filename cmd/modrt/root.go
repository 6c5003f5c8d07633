// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/invowk/modrt/internal/issue"
	"github.com/invowk/modrt/pkg/module"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// NewRootCommand builds the command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "modrt",
		Short: "A dynamic module runtime",
		Long: TitleStyle.Render("modrt") + SubtitleStyle.Render(" - a dynamic module runtime") + `

modrt installs modules described by module.cue manifests, wires each
module's requirements to the capabilities other modules export, and runs
their activators in dependency order.

` + SubtitleStyle.Render("Examples:") + `
  modrt resolve ./bundles                     Show the wiring of every module
  modrt run ./bundles                         Start every module until interrupted
  modrt run --watch ./bundles                 Also redeploy modules as their files change
  modrt lookup ./bundles com.acme.app com.acme.util.Helper
  modrt import ./bundles                      Copy module content into the sqlite store
  modrt config show                           Show the effective configuration`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(app.stdout)
	root.SetErr(app.stderr)

	root.PersistentFlags().BoolVarP(&app.verbose, "verbose", "v", false, "enable debug logging and detailed errors")
	root.PersistentFlags().StringVar(&app.configPath, "config", "", "config file (default is $HOME/.config/modrt/config.cue)")

	root.AddCommand(
		newResolveCommand(app),
		newRunCommand(app),
		newLookupCommand(app),
		newImportCommand(app),
		newConfigCommand(app),
	)
	return root
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the CLI and exits with the command's status. It is called by main.main().
func Execute() {
	app := NewApp(Dependencies{})
	root := NewRootCommand(app)

	// fang overrides rootCmd.Version, so the version is passed as an option.
	// Errors are printed here rather than by fang so they carry guidance.
	err := fang.Execute(
		context.Background(),
		root,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
		fang.WithErrorHandler(func(w io.Writer, _ fang.Styles, err error) {
			var exitErr *ExitError
			if errors.As(err, &exitErr) && exitErr.Err == nil {
				return // the command already reported
			}
			fmt.Fprintln(w, formatErrorForDisplay(err, app.verbose))
		}),
	)
	if err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(ExitFailure)
	}
}

// formatErrorForDisplay formats an error for user display. Errors are
// classified into catalog issues; in verbose mode the issue's guidance is
// rendered below the error chain.
func formatErrorForDisplay(err error, verbose bool) string {
	ae := actionable(err)
	out := ErrorStyle.Render("Error: ") + ae.Format(verbose)
	if !verbose {
		if ae.Guidance() != nil {
			out += "\n" + SubtitleStyle.Render("Run with --verbose for guidance.")
		}
		return out
	}
	if g := ae.Guidance(); g != nil {
		if rendered, renderErr := g.Render(""); renderErr == nil {
			out += "\n" + rendered
		}
	}
	return out
}

// actionable returns err as an ActionableError, classifying known runtime
// failures into catalog issues.
func actionable(err error) *issue.ActionableError {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		if ae.Issue == 0 {
			ae.Issue = classifyError(err)
		}
		return ae
	}
	return &issue.ActionableError{Operation: "run modrt", Cause: err, Issue: classifyError(err)}
}

func classifyError(err error) issue.Id {
	switch {
	case errors.Is(err, module.ErrResolution):
		return issue.ResolutionFailedId
	case errors.Is(err, module.ErrActivation), errors.Is(err, module.ErrMalformedActivator):
		return issue.ActivationFailedId
	case errors.Is(err, module.ErrDeactivation):
		return issue.DeactivationFailedId
	case errors.Is(err, module.ErrSymbolNotFound):
		return issue.SymbolNotFoundId
	case errors.Is(err, module.ErrLockTimeout):
		return issue.LockTimeoutId
	case errors.Is(err, module.ErrDuplicateModule):
		return issue.DuplicateModuleId
	case errors.Is(err, module.ErrInvalidDescriptor):
		return issue.ManifestInvalidId
	default:
		return 0
	}
}
