package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/deckd/internal/config"
)

var checkConfigOpts struct {
	write bool
}

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate the config file",
	Long: `Load and validate the config file. A missing file is valid and means
defaults. With --write, a missing file is created with the defaults.`,
	Args: cobra.NoArgs,
	RunE: runCheckConfig,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "deckctl %s (commit: %s, built: %s)\n", version, commit, buildTime)
	},
}

func init() {
	rootCmd.AddCommand(checkConfigCmd, versionCmd)

	checkConfigCmd.Flags().BoolVar(&checkConfigOpts.write, "write", false,
		"Write the default config when no file exists")
}

func runCheckConfig(cmd *cobra.Command, _ []string) error {
	path := globalOpts.configPath
	if path == "" {
		p, err := config.ConfigPath()
		if err != nil {
			return err
		}
		path = p
	}

	_, statErr := os.Stat(path)
	missing := os.IsNotExist(statErr)

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if missing {
		if !checkConfigOpts.write {
			fmt.Fprintf(out, "%s: not found, using defaults\n", path)
			return nil
		}
		if err := cfg.Save(path); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
		fmt.Fprintf(out, "%s: written with defaults\n", path)
		return nil
	}

	fmt.Fprintf(out, "%s: ok\n", path)
	fmt.Fprintf(out, "  driver:  %s (%dx%d)\n", cfg.Device.Driver, cfg.Device.Rows, cfg.Device.Cols)
	fmt.Fprintf(out, "  socket:  %s\n", cfg.SocketPath())
	if cfg.History.Enabled {
		fmt.Fprintf(out, "  history: %s\n", cfg.HistoryPath())
	}
	if cfg.API.Listen != "" {
		fmt.Fprintf(out, "  api:     %s\n", cfg.API.Listen)
	}
	return nil
}
