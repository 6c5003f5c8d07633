// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/invowk/modrt/internal/issue"
	"github.com/invowk/modrt/internal/watch"
	"github.com/invowk/modrt/pkg/manifest"
)

type runOptions struct {
	once     bool
	watch    bool
	debounce time.Duration
}

func newRunCommand(app *App) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run [dir]",
		Short: "Start every module below a directory until interrupted",
		Long: `Install and resolve every module found below dir, start each one that
resolved and wait for an interrupt. On interrupt the framework stops all
modules, dependents first, and waits up to shutdown.timeout.

With --watch, a changed module directory is redeployed: its module is
uninstalled and installed again from the current manifest, the modules
wired to it are refreshed, and everything that resolves is started.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModules(cmd, app, firstArg(args), opts)
		},
	}
	cmd.Flags().BoolVar(&opts.once, "once", false, "stop again right after starting instead of waiting for an interrupt")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "redeploy modules whose directories change")
	cmd.Flags().DurationVar(&opts.debounce, "debounce", 500*time.Millisecond, "quiet period before a change is applied")
	cmd.MarkFlagsMutuallyExclusive("once", "watch")
	return cmd
}

func runModules(cmd *cobra.Command, app *App, dir string, opts runOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	s, err := app.openSession(ctx, dir)
	if err != nil {
		return err
	}

	failures, err := s.fw.ResolveAll(ctx)
	if err != nil {
		s.close(s.cfg.Shutdown.Timeout)
		return err
	}
	for id, f := range failures {
		s.logger.Warn("module not resolved", "module", id, "err", f)
	}

	active := s.startAll(ctx, app.stderr, app.verbose)
	fmt.Fprintf(out, "%s %d of %d modules active\n", SuccessStyle.Render("✓"), active, len(s.fw.Modules()))

	if !opts.once {
		fmt.Fprintln(out, SubtitleStyle.Render("Press Ctrl+C to stop."))
		if err := wait(ctx, cmd, app, s, opts); err != nil {
			s.close(s.cfg.Shutdown.Timeout)
			return err
		}
	}

	res := s.close(s.cfg.Shutdown.Timeout)
	if res.TimedOut {
		return &ExitError{
			Code: ExitShutdownTimeout,
			Err: issue.NewErrorContext().
				WithOperation("stop modules").
				WithSuggestion(fmt.Sprintf("Raise shutdown.timeout (currently %s)", s.cfg.Shutdown.Timeout)).
				WithIssue(issue.ShutdownTimeoutId).
				Wrap(errors.New("shutdown timed out")).
				BuildError(),
		}
	}
	for _, err := range res.Errors {
		fmt.Fprintln(app.stderr, WarningStyle.Render("Warning: ")+err.Error())
	}
	fmt.Fprintln(out, SubtitleStyle.Render("All modules stopped."))
	return nil
}

// wait blocks until ctx is done, redeploying changed modules meanwhile
// when watching.
func wait(ctx context.Context, cmd *cobra.Command, app *App, s *session, opts runOptions) error {
	if !opts.watch {
		<-ctx.Done()
		return nil
	}

	w, err := watch.New(watch.Config{
		Dir:      s.dir,
		UnitFile: manifest.FileName,
		Debounce: opts.debounce,
		Logger:   s.logger,
		OnChange: func(ctx context.Context, units []string) error {
			return applyChange(ctx, cmd, app, s, units)
		},
	})
	if err != nil {
		return err
	}

	return w.Run(ctx)
}

// applyChange redeploys units and reports the outcome.
func applyChange(ctx context.Context, cmd *cobra.Command, app *App, s *session, units []string) error {
	out := cmd.OutOrStdout()
	res, err := s.redeploy(ctx, app.FS, units)
	if err != nil {
		fmt.Fprintln(app.stderr, formatErrorForDisplay(err, app.verbose))
	}
	if res != nil && len(res.Refreshed) > 0 {
		fmt.Fprintf(out, "%s refreshed %d, restarted %d\n", SubtitleStyle.Render("↻"), len(res.Refreshed), len(res.Restarted))
	}
	active := s.startAll(ctx, app.stderr, app.verbose)
	fmt.Fprintf(out, "%s %d of %d modules active\n", SuccessStyle.Render("✓"), active, len(s.fw.Modules()))
	return nil
}
