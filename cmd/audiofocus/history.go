package main

import (
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/audiofocus/internal/history"
)

var historyOpts struct {
	format string
	limit  int
	keep   int
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recently finished streams",
	Long: `Show the log of finished playback and recording streams, newest first.

Examples:
  audiofocus history
  audiofocus history -n 5 --format json
  audiofocus history prune --keep 100`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove old history entries",
	Args:  cobra.NoArgs,
	RunE:  runHistoryPrune,
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all history entries",
	Args:  cobra.NoArgs,
	RunE:  runHistoryClear,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyPruneCmd, historyClearCmd)

	historyCmd.Flags().StringVarP(&historyOpts.format, "format", "f", "plain",
		"Output format (plain, json, yaml)")
	historyCmd.Flags().IntVarP(&historyOpts.limit, "limit", "n", 20,
		"Maximum number of entries to show (0=unlimited)")
	historyPruneCmd.Flags().IntVar(&historyOpts.keep, "keep", 0,
		"Number of entries to keep (default: configured history keep)")
}

func openHistory() (*history.Log, error) {
	return history.Open(getConfig().HistoryPath())
}

func runHistory(cmd *cobra.Command, args []string) error {
	l, err := openHistory()
	if err != nil {
		return err
	}
	defer l.Close()

	entries, err := l.Load()
	if err != nil {
		return err
	}
	slices.Reverse(entries)
	if historyOpts.limit > 0 && len(entries) > historyOpts.limit {
		entries = entries[:historyOpts.limit]
	}

	return writeFormatted(cmd.OutOrStdout(), historyOpts.format, entries, func(w io.Writer) error {
		return printHistory(w, entries)
	})
}

func printHistory(w io.Writer, entries []history.Entry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No history")
		return err
	}
	for _, e := range entries {
		line := fmt.Sprintf("%-14s %-8s %-13s %s  %s, %s",
			humanize.Time(e.Ended()),
			e.State,
			e.Kind,
			e.Target,
			humanize.Bytes(uint64(e.Bytes)),
			e.Duration().Truncate(10*time.Millisecond),
		)
		if e.Priority != "" {
			line += " [" + e.Priority + "]"
		}
		if e.Error != "" {
			line += ": " + e.Error
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func runHistoryPrune(cmd *cobra.Command, args []string) error {
	keep := historyOpts.keep
	if keep <= 0 {
		keep = getConfig().History.Keep
	}

	l, err := openHistory()
	if err != nil {
		return err
	}
	defer l.Close()

	removed, err := l.Prune(keep)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Removed %d entries\n", removed)
	return nil
}

func runHistoryClear(cmd *cobra.Command, args []string) error {
	l, err := openHistory()
	if err != nil {
		return err
	}
	defer l.Close()

	if err := l.Clear(); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "History cleared")
	return nil
}
