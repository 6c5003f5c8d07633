// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/invowk/modrt/internal/config"
)

// newConfigCommand creates the `modrt config` command tree.
func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage modrt configuration",
		Long: `Manage modrt configuration.

Configuration is stored in:
  - Linux: ~/.config/modrt/config.cue
  - macOS: ~/Library/Application Support/modrt/config.cue
  - Windows: %APPDATA%\modrt\config.cue

Every key can be overridden with a MODRT_ environment variable, for example
MODRT_STORAGE_DRIVER=sqlite or MODRT_LOCK_TIMEOUT=5s.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration as CUE",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			source := SubtitleStyle.Render("(using defaults)")
			if cfg.Path != "" {
				source = cfg.Path
			}
			fmt.Fprintf(out, "%s %s\n\n", TitleStyle.Render("Config file:"), source)
			fmt.Fprint(out, config.GenerateCUE(cfg.Config))
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.CreateDefaultConfig()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", SuccessStyle.Render("✓"), path)
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show the configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := config.ConfigDir()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), filepath.Join(dir, config.ConfigFileName+"."+config.ConfigFileExt))
			return nil
		},
	})

	return cfgCmd
}
