package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/sitewatch/pkg/sitewatch/config"
	"github.com/jamesainslie/sitewatch/pkg/sitewatch/history"
)

var historyCmd = &cobra.Command{
	Use:   "history [site]",
	Short: "View the run history",
	Long: `View the root digests and change counts of past runs.

Without a site, the latest run of every site is shown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

var historyClearCmd = &cobra.Command{
	Use:   "clear [site]",
	Short: "Remove recorded runs",
	Long:  `Remove the recorded runs of one site, or of every site when none is named.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistoryClear,
}

var historyLimit int

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", config.DefaultHistoryLimit, "maximum number of runs to show")

	historyCmd.AddCommand(historyClearCmd)
	rootCmd.AddCommand(historyCmd)
}

// openHistory opens the configured history store.
func openHistory() (*history.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	store, err := history.Open(cfg.History.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	return store, nil
}

// runHistory lists recorded runs.
func runHistory(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	var records []history.Record
	if len(args) == 1 {
		records, err = store.List(args[0], historyLimit)
		if err != nil {
			return fmt.Errorf("failed to list history: %w", err)
		}
	} else {
		sites, err := store.Sites()
		if err != nil {
			return fmt.Errorf("failed to list sites: %w", err)
		}
		for _, site := range sites {
			rec, err := store.Latest(site)
			if err != nil {
				return err
			}
			records = append(records, *rec)
		}
	}

	if len(records) == 0 {
		printInfo("No runs recorded.")
		printInfo("Run 'sitewatch check' to capture the configured sites.")
		return nil
	}

	writeHistory(cmd.OutOrStdout(), records)
	return nil
}

// writeHistory prints records as a table.
func writeHistory(w io.Writer, records []history.Record) {
	fmt.Fprintf(w, "\n%-20s  %-16s  %-16s  %-5s  %-5s  %-5s  %-5s  %s\n",
		"SITE", "WHEN", "DIGEST", "NEW", "DEL", "CHG", "IGN", "SNAPSHOT")
	fmt.Fprintln(w, strings.Repeat("-", 100))

	for _, rec := range records {
		snapshot := rec.ArchiveID
		switch {
		case rec.Baseline:
			snapshot = "(baseline)"
		case snapshot == "" && rec.HasChanges():
			snapshot = "(not archived)"
		}
		fmt.Fprintf(w, "%-20s  %-16s  %-16s  %-5d  %-5d  %-5d  %-5d  %s\n",
			truncateString(rec.Site, 20),
			humanize.Time(rec.Timestamp),
			truncateString(rec.RootDigest, 16),
			rec.New, rec.Deleted, rec.Changed, rec.Ignored,
			snapshot,
		)
	}

	fmt.Fprintln(w, strings.Repeat("-", 100))
}

// runHistoryClear removes recorded runs.
func runHistoryClear(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	site := ""
	if len(args) == 1 {
		site = args[0]
	}
	if err := store.Clear(site); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}

	if site == "" {
		printInfo("History cleared.")
	} else {
		printInfo("History of %s cleared.", site)
	}
	return nil
}

// truncateString truncates a string to maxLen, adding "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
