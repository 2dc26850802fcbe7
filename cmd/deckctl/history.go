package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/deckd/internal/history"
	"github.com/jmylchreest/deckd/internal/output"
)

var historyOpts struct {
	limit    int
	format   string
	template string
	prune    bool
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show how past items were resolved",
	Long: `List resolved items, newest first, from the history database.

  deckctl history --limit 20
  deckctl history --format json
  deckctl history --prune`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVarP(&historyOpts.limit, "limit", "n", 50,
		"Maximum number of entries (0 = all)")
	historyCmd.Flags().StringVarP(&historyOpts.format, "format", "f", string(output.FormatPlain),
		"Output format (plain, json, yaml, ids)")
	historyCmd.Flags().StringVarP(&historyOpts.template, "template", "t", "",
		"Go template applied to each entry (plain format only)")
	historyCmd.Flags().BoolVar(&historyOpts.prune, "prune", false,
		"Delete entries older than the configured retention and exit")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfg := loadConfig()
	path := cfg.HistoryPath()
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no history at %s", path)
		}
		return err
	}

	store, err := history.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if historyOpts.prune {
		n, err := store.Prune(cmd.Context(), cfg.History.Retention.Duration())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries\n", n)
		return nil
	}

	f, err := newFormatter(historyOpts.format, historyOpts.template)
	if err != nil {
		return err
	}
	entries, err := store.List(cmd.Context(), historyOpts.limit)
	if err != nil {
		return err
	}
	return f.History(cmd.OutOrStdout(), entries)
}
