package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/deckd/internal/config"
	"github.com/jmylchreest/deckd/internal/protocol"
)

// ErrDaemonNotRunning is returned when the daemon is down and could not be
// started.
var ErrDaemonNotRunning = errors.New("daemon is not running")

const (
	connectRetryInterval = 100 * time.Millisecond
	defaultStartTimeout  = 5 * time.Second
)

var hookOpts struct {
	noStart      bool
	startTimeout time.Duration
}

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Answer an agent hook from stdin",
	Long: `Read an agent hook document from stdin and forward it to deckd.

Permission requests block until the deck answers, then print the decision
JSON on stdout. Notification and Stop hooks are forwarded without waiting.
On any failure nothing is printed and the exit code is 0, so the agent
falls back to its own prompt.

The daemon is started in the background when it is not running, unless
--no-start is given or the configured driver is the terminal simulator.`,
	Args: cobra.NoArgs,
	RunE: runHook,
}

func init() {
	rootCmd.AddCommand(hookCmd)

	hookCmd.Flags().BoolVar(&hookOpts.noStart, "no-start", false,
		"Do not start the daemon when it is not running")
	hookCmd.Flags().DurationVar(&hookOpts.startTimeout, "start-timeout", defaultStartTimeout,
		"How long to wait for a started daemon to accept connections")
}

// daemonClient is the part of the socket client the hook needs.
type daemonClient interface {
	Alive(ctx context.Context) bool
	Request(ctx context.Context, req *protocol.PermissionRequest) (*protocol.PermissionResponse, error)
	Notify(ctx context.Context, n *protocol.Notification) error
	StopHook(ctx context.Context, pid int) error
}

// hookRunner turns one hook document into at most one line of output.
type hookRunner struct {
	client       daemonClient
	start        func() error // nil disables auto-start
	startTimeout time.Duration
	retry        time.Duration
}

func runHook(cmd *cobra.Command, _ []string) error {
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		logger.Debug("failed to read hook input", "error", err)
		return nil
	}

	client, cfg := newClient()
	h := &hookRunner{
		client:       client,
		startTimeout: hookOpts.startTimeout,
		retry:        connectRetryInterval,
	}
	if !hookOpts.noStart {
		h.start = func() error { return startDaemon(cfg) }
	}

	out, err := h.run(cmd.Context(), data, os.Getppid())
	if err != nil {
		logger.Debug("hook fell back to the terminal", "error", err)
		return nil
	}
	if out == nil {
		return nil
	}
	if err := json.NewEncoder(cmd.OutOrStdout()).Encode(out); err != nil {
		logger.Debug("failed to write hook output", "error", err)
	}
	return nil
}

func (h *hookRunner) run(ctx context.Context, data []byte, pid int) (*protocol.HookOutput, error) {
	in, raw, err := protocol.ParseHookInput(data)
	if err != nil {
		return nil, err
	}
	logger.Debug("hook received", "event", in.HookEventName, "tool", in.ToolName)

	switch in.HookEventName {
	case protocol.HookNotification:
		return nil, h.client.Notify(ctx, protocol.BuildNotification(in, pid))
	case protocol.HookStop:
		return nil, h.client.StopHook(ctx, pid)
	}

	if err := h.ensureDaemon(ctx); err != nil {
		return nil, err
	}
	resp, err := h.client.Request(ctx, protocol.BuildRequest(in, raw, pid))
	if err != nil {
		return nil, err
	}
	logger.Debug("hook answered", "status", resp.Status)
	return protocol.HookResult(in, resp), nil
}

// ensureDaemon starts the daemon when nobody listens on the socket and waits
// for it to come up.
func (h *hookRunner) ensureDaemon(ctx context.Context) error {
	if h.client.Alive(ctx) {
		return nil
	}
	if h.start == nil {
		return ErrDaemonNotRunning
	}
	if err := h.start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, h.startTimeout)
	defer cancel()
	ticker := time.NewTicker(h.retry)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ErrDaemonNotRunning
		case <-ticker.C:
			if h.client.Alive(ctx) {
				return nil
			}
		}
	}
}

// startDaemon launches deckd detached from the hook's session.
func startDaemon(cfg *config.Config) error {
	if cfg.Device.Driver == config.DriverTerminal {
		return errors.New("the terminal driver needs its own terminal, start deckd by hand")
	}
	path, err := daemonPath()
	if err != nil {
		return err
	}

	var args []string
	if globalOpts.configPath != "" {
		args = append(args, "-config", globalOpts.configPath)
	}
	cmd := exec.Command(path, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return err
	}
	logger.Debug("daemon started", "path", path, "pid", cmd.Process.Pid)
	return cmd.Process.Release()
}

// daemonPath prefers a deckd next to this binary over one on PATH.
func daemonPath() (string, error) {
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), "deckd")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return exec.LookPath("deckd")
}
