package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/jamesainslie/sitewatch/pkg/sitewatch/archive"
	"github.com/jamesainslie/sitewatch/pkg/sitewatch/config"
)

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots [site]",
	Short: "List archived snapshots",
	Long: `List the snapshots archived for runs that found changes, newest first.

Every snapshot holds copies of both captures, the report as report.json and
the rendered diff as diff.html.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSnapshots,
}

var snapshotsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show the report of a snapshot",
	Long: `Print the report.json of a snapshot.

Use --query with a GJSON path to print part of it, for example:
  sitewatch snapshots show <id> --query changedFiles.#.comparePath
  sitewatch snapshots show <id> --query clonedRootHash`,
	Args: cobra.ExactArgs(1),
	RunE: runSnapshotsShow,
}

var snapshotsPathCmd = &cobra.Command{
	Use:   "path <id>",
	Short: "Show the diff page of a snapshot",
	Long:  `Print the path of a snapshot's diff.html.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotsPath,
}

var snapshotsCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove old snapshots",
	Long:  `Remove snapshots older than the retention period (archive.retention_days).`,
	Args:  cobra.NoArgs,
	RunE:  runSnapshotsClean,
}

var (
	snapshotsLimit int
	snapshotsQuery string
	snapshotsDays  int
)

func init() {
	snapshotsCmd.Flags().IntVarP(&snapshotsLimit, "limit", "l", config.DefaultHistoryLimit, "maximum number of snapshots to show")
	snapshotsShowCmd.Flags().StringVar(&snapshotsQuery, "query", "", "GJSON path to extract from the report")
	snapshotsCleanCmd.Flags().IntVar(&snapshotsDays, "days", 0, "override the retention period in days")

	snapshotsCmd.AddCommand(snapshotsShowCmd)
	snapshotsCmd.AddCommand(snapshotsPathCmd)
	snapshotsCmd.AddCommand(snapshotsCleanCmd)
	rootCmd.AddCommand(snapshotsCmd)
}

// getArchive returns the configured archive.
func getArchive() (*archive.Archive, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	a, err := openArchive(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open archive: %w", err)
	}
	return a, cfg, nil
}

// runSnapshots lists archived snapshots.
func runSnapshots(cmd *cobra.Command, args []string) error {
	a, _, err := getArchive()
	if err != nil {
		return err
	}

	site := ""
	if len(args) == 1 {
		site = args[0]
	}
	entries, err := a.List(site, snapshotsLimit)
	if err != nil {
		return fmt.Errorf("failed to list snapshots: %w", err)
	}

	if len(entries) == 0 {
		printInfo("No snapshots found.")
		return nil
	}

	writeSnapshots(cmd.OutOrStdout(), entries)
	printInfo("\nUse 'sitewatch snapshots show <id>' for the full report.")
	return nil
}

// writeSnapshots prints entries as a table.
func writeSnapshots(w io.Writer, entries []archive.Entry) {
	fmt.Fprintf(w, "\n%-48s  %-19s  %-5s  %-5s  %-5s  %-5s\n", "ID", "TIME", "NEW", "DEL", "CHG", "IGN")
	fmt.Fprintln(w, strings.Repeat("-", 96))
	for _, e := range entries {
		fmt.Fprintf(w, "%-48s  %-19s  %-5d  %-5d  %-5d  %-5d\n",
			truncateString(e.ID, 48),
			e.Timestamp.Local().Format("2006-01-02 15:04:05"),
			e.Summary.New, e.Summary.Deleted, e.Summary.Changed, e.Summary.Ignored,
		)
	}
	fmt.Fprintln(w, strings.Repeat("-", 96))
}

// runSnapshotsShow prints a snapshot's report or a query into it.
func runSnapshotsShow(cmd *cobra.Command, args []string) error {
	a, _, err := getArchive()
	if err != nil {
		return err
	}

	path, err := a.ReportPath(args[0])
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read report: %w", err)
	}

	out, err := queryReport(data, snapshotsQuery)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}

// queryReport returns the report, or the value at a GJSON path in it.
// Strings are printed unquoted and arrays of scalars one per line.
func queryReport(data []byte, query string) (string, error) {
	if query == "" {
		return strings.TrimRight(string(data), "\n"), nil
	}
	if !gjson.ValidBytes(data) {
		return "", fmt.Errorf("report is not valid JSON")
	}

	result := gjson.GetBytes(data, query)
	if !result.Exists() {
		return "", fmt.Errorf("no value at %q", query)
	}

	if result.IsArray() {
		var lines []string
		scalars := true
		result.ForEach(func(_, value gjson.Result) bool {
			if value.IsObject() || value.IsArray() {
				scalars = false
				return false
			}
			lines = append(lines, value.String())
			return true
		})
		if scalars {
			return strings.Join(lines, "\n"), nil
		}
	}
	if result.Type == gjson.String {
		return result.String(), nil
	}
	return result.Raw, nil
}

// runSnapshotsPath prints the path of a snapshot's diff page.
func runSnapshotsPath(cmd *cobra.Command, args []string) error {
	a, _, err := getArchive()
	if err != nil {
		return err
	}
	path, err := a.PagePath(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

// runSnapshotsClean removes snapshots older than the retention period.
func runSnapshotsClean(cmd *cobra.Command, args []string) error {
	a, cfg, err := getArchive()
	if err != nil {
		return err
	}

	days := cfg.Archive.RetentionDays
	if snapshotsDays > 0 {
		days = snapshotsDays
	}
	if days <= 0 {
		days = config.DefaultRetentionDays
	}

	printInfo("Removing snapshots older than %d days...", days)
	removed, err := a.Cleanup(days)
	if err != nil {
		return fmt.Errorf("failed to clean snapshots: %w", err)
	}
	printInfo("Removed %d snapshot(s).", removed)
	return nil
}
