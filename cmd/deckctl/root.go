// Package main provides the deckctl client for the deckd daemon.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/deckd/internal/config"
	"github.com/jmylchreest/deckd/internal/server"
)

// Build-time variables (set via ldflags)
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

var (
	globalOpts struct {
		verbose    bool
		configPath string
		socketPath string
	}
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "deckctl",
	Short: "Client for the deckd button deck daemon",
	Long: `deckctl talks to deckd over its unix socket.

Agent hooks call "deckctl hook" with the hook document on stdin. The other
commands put items on the deck by hand or inspect the daemon.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogger()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&globalOpts.verbose, "verbose", "v", false,
		"Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&globalOpts.configPath, "config", "",
		"Path to config file (default: ~/.config/deckd/deckd.toml)")
	rootCmd.PersistentFlags().StringVar(&globalOpts.socketPath, "socket", "",
		"Path to the daemon socket (default: from config)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "deckctl: %v\n", err)
		os.Exit(1)
	}
}

// setupLogger configures the global slog logger. Logs go to stderr so
// stdout stays clean for hook output.
func setupLogger() {
	level := slog.LevelWarn
	if globalOpts.verbose {
		level = slog.LevelDebug
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadConfig loads the config, falling back to defaults when it is broken.
// Hooks must never fail because of a bad config file.
func loadConfig() *config.Config {
	cfg, err := config.Load(globalOpts.configPath)
	if err != nil {
		logger.Warn("using default config", "error", err)
		return config.DefaultConfig()
	}
	return cfg
}

func socketPath(cfg *config.Config) string {
	if globalOpts.socketPath != "" {
		return globalOpts.socketPath
	}
	return cfg.SocketPath()
}

func newClient() (*server.Client, *config.Config) {
	cfg := loadConfig()
	return server.NewClient(socketPath(cfg)), cfg
}
