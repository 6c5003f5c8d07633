// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/invowk/modrt/pkg/capability"
)

func newLookupCommand(app *App) *cobra.Command {
	var showData bool

	cmd := &cobra.Command{
		Use:   "lookup [dir] <module> <symbol>",
		Short: "Look up a symbol through a module's scope",
		Long: `Install every module found below dir, resolve the named module and look
up a fully-qualified symbol (for example com.acme.util.Helper) the way the
module's own code would see it: local content first, then wires, then
dynamic requirements.

The module is a symbolic name or an ID such as #3.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 3 {
				dir, args = args[0], args[1:]
			}
			return runLookup(cmd, app, dir, args[0], capability.Symbol(args[1]), showData)
		},
	}
	cmd.Flags().BoolVar(&showData, "data", false, "print the symbol's content")
	return cmd
}

func runLookup(cmd *cobra.Command, app *App, dir, name string, sym capability.Symbol, showData bool) error {
	if ok, errs := sym.IsValid(); !ok {
		return errors.Join(errs...)
	}

	ctx := cmd.Context()
	s, err := app.openSession(ctx, dir)
	if err != nil {
		return err
	}
	defer s.close(s.cfg.Shutdown.Timeout)

	id, err := s.module(name)
	if err != nil {
		return err
	}
	def, err := s.fw.Lookup(ctx, id, sym)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n", TitleStyle.Render(string(def.Name)))
	fmt.Fprintf(out, "  owner:  %s\n", moduleLabel(s.fw, def.Owner))
	fmt.Fprintf(out, "  digest: %s\n", def.Digest)
	fmt.Fprintf(out, "  size:   %d bytes\n", len(def.Data))
	if showData {
		fmt.Fprintln(out)
		_, _ = out.Write(def.Data)
	}
	return nil
}
