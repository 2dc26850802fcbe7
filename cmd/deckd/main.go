// Package main is the entry point for the deckd daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/jmylchreest/deckd/internal/config"
	"github.com/jmylchreest/deckd/internal/daemon"
	"github.com/jmylchreest/deckd/internal/server"
)

// Build-time variables
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: ~/.config/deckd/deckd.toml)")
	driver := flag.String("driver", "", "Override the device driver (terminal, panel, none)")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("deckd %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	if err := run(*configPath, *driver, *verbose); err != nil {
		fmt.Fprintf(os.Stderr, "deckd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, driver string, verbose bool) error {
	if configPath == "" {
		p, err := config.ConfigPath()
		if err != nil {
			return fmt.Errorf("failed to get config path: %w", err)
		}
		configPath = p
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if driver != "" {
		cfg.Device.Driver = driver
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
	}

	logger, closeLog, err := setupLogger(cfg, verbose)
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(logger)

	if err := server.CheckSocket(cfg.SocketPath()); err != nil {
		if errors.Is(err, server.ErrAlreadyRunning) {
			logger.Info("daemon already running", "socket", cfg.SocketPath())
			return nil
		}
		return err
	}

	d, err := daemon.New(cfg, daemon.Options{ConfigPath: configPath}, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting deckd", "version", version, "config", configPath)
	return d.Run(ctx)
}

// setupLogger builds the daemon logger. The terminal simulator owns the
// screen, so its logs always go to a file.
func setupLogger(cfg *config.Config, verbose bool) (*slog.Logger, func(), error) {
	level := parseLevel(cfg.Log.Level)
	if verbose {
		level = slog.LevelDebug
	}

	path := cfg.Log.File
	if path == "" && cfg.Device.Driver == config.DriverTerminal {
		if err := config.EnsureDataDir(); err != nil {
			return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		path = filepath.Join(config.DataPath(), "deckd.log")
	}

	var w io.Writer = os.Stderr
	closeFn := func() {}
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		closeFn = func() { _ = f.Close() }
		w = f
		if cfg.Device.Driver != config.DriverTerminal {
			w = io.MultiWriter(os.Stderr, f)
		}
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler), closeFn, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
