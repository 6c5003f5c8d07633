// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/invowk/modrt/pkg/capability"
)

func newResolveCommand(app *App) *cobra.Command {
	var capsFilter string

	cmd := &cobra.Command{
		Use:   "resolve [dir]",
		Short: "Install and resolve every module below a directory",
		Long: `Install every module found below dir (the configured bundles directory
by default), resolve them together and print each module's wiring.

Exits with status 2 when at least one module could not be resolved.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd, app, firstArg(args), capsFilter)
		},
	}
	cmd.Flags().StringVar(&capsFilter, "capabilities", "", "also list exported capabilities matching a namespace filter (\"*\", \"com.acme.*\")")
	return cmd
}

func runResolve(cmd *cobra.Command, app *App, dir, capsFilter string) error {
	ctx := cmd.Context()
	s, err := app.openSession(ctx, dir)
	if err != nil {
		return err
	}
	defer s.close(s.cfg.Shutdown.Timeout)

	failures, err := s.fw.ResolveAll(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printWiring(out, s.fw, failures)
	if cmd.Flags().Changed("capabilities") {
		fmt.Fprintln(out)
		printCapabilities(out, s.fw, s.fw.ResolvedCapabilities(capability.Namespace(capsFilter)))
	}
	if s.problems != nil {
		fmt.Fprintln(out)
		fmt.Fprintln(out, WarningStyle.Render("Not installed:"))
		fmt.Fprintln(out, wireIndent.Render(s.problems.Error()))
	}

	if len(failures) > 0 {
		return &ExitError{Code: ExitUnresolved}
	}
	return nil
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
