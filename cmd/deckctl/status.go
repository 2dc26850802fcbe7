package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/deckd/internal/output"
)

const queryTimeout = 5 * time.Second

var statusOpts struct {
	format   string
	template string
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the deck and the queued items",
	Long: `Show the connected deck and every queued item, newest first. The item
on the deck is marked with *.

Formats: plain (default), json, yaml, ids. With --template, each item is
rendered through a Go template, e.g.

  deckctl status --template '{{.ID}} {{upper .Kind}} {{ago .CreatedAt}}'`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the daemon",
	Long:  `Ask the daemon to exit. Waiting requests are answered with an error.`,
	Args:  cobra.NoArgs,
	RunE:  runStop,
}

func init() {
	rootCmd.AddCommand(statusCmd, stopCmd)

	statusCmd.Flags().StringVarP(&statusOpts.format, "format", "f", string(output.FormatPlain),
		"Output format (plain, json, yaml, ids)")
	statusCmd.Flags().StringVarP(&statusOpts.template, "template", "t", "",
		"Go template applied to each item (plain format only)")
}

func newFormatter(format, template string) (output.Formatter, error) {
	return output.NewFormatter(output.FormatType(format), output.Options{
		Template: template,
		Width:    output.TerminalWidth(os.Stdout),
	})
}

func runStatus(cmd *cobra.Command, _ []string) error {
	f, err := newFormatter(statusOpts.format, statusOpts.template)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), queryTimeout)
	defer cancel()

	client, _ := newClient()
	status, err := client.Status(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDaemonNotRunning, err)
	}
	return f.Status(cmd.OutOrStdout(), status)
}

func runStop(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), queryTimeout)
	defer cancel()

	client, _ := newClient()
	if !client.Alive(ctx) {
		return ErrDaemonNotRunning
	}
	return client.Stop(ctx)
}
