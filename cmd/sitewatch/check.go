package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/sitewatch/pkg/sitewatch/mirror"
	"github.com/jamesainslie/sitewatch/pkg/sitewatch/notify"
	"github.com/jamesainslie/sitewatch/pkg/sitewatch/output"
	"github.com/jamesainslie/sitewatch/pkg/sitewatch/types"
)

var checkCmd = &cobra.Command{
	Use:   "check [site...]",
	Short: "Check sites for changes once",
	Long: `Mirror the named sites (or every configured site), compare each with its
previous capture and report the changes.

Sites are named by their configured name or, when unnamed, by the host of
their URL.

Output formats: ` + strings.Join(output.Available(), ", "),
	RunE: runCheck,
}

var (
	outputFormat string
	templateStr  string
)

func init() {
	checkCmd.Flags().StringVarP(&outputFormat, "output", "o", "pretty", "output format")
	checkCmd.Flags().StringVar(&templateStr, "template", "", "Go template for -o template")
	checkCmd.Flags().Bool("no-notify", false, "do not post to Slack")
	checkCmd.Flags().Bool("no-archive", false, "do not archive snapshots")

	_ = viper.BindPFlag("no_notify", checkCmd.Flags().Lookup("no-notify"))
	_ = viper.BindPFlag("no_archive", checkCmd.Flags().Lookup("no-archive"))

	rootCmd.AddCommand(checkCmd)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// runCheck checks the selected sites and prints a report for each.
func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	sites, err := cfg.Select(args)
	if err != nil {
		return err
	}
	if len(sites) == 0 {
		printInfo("No sites configured.")
		printInfo("Add sites to the config file, see 'sitewatch config path'.")
		return nil
	}

	formatter, err := newFormatter(outputFormat, templateStr, cfg.Slack.Mention)
	if err != nil {
		return err
	}

	lock, err := lockWorkDir(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	ctx, cancel := signalContext()
	defer cancel()

	s, err := newSession(ctx, cfg, checkOptions{
		noNotify:  viper.GetBool("no_notify"),
		noArchive: viper.GetBool("no_archive"),
	})
	if err != nil {
		return err
	}
	defer s.Close()

	reports, checkErr := s.checker.CheckAll(ctx, sites)
	if err := writeReports(cmd.OutOrStdout(), formatter, reports); err != nil {
		return err
	}

	var mirrorErr *mirror.MirrorError
	if errors.As(checkErr, &mirrorErr) && getVerbose() {
		fmt.Fprintln(os.Stderr, mirrorErr.Output)
	}
	return checkErr
}

// newFormatter returns the named formatter, configured with the template
// or the Slack mention where that applies.
func newFormatter(name, tmpl, mention string) (output.Formatter, error) {
	formatter, err := output.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w (available: %s)", err, strings.Join(output.Available(), ", "))
	}
	switch f := formatter.(type) {
	case *output.TemplateFormatter:
		if tmpl != "" {
			f.SetTemplate(tmpl)
		}
	case *output.SlackFormatter:
		f.Options = notify.FormatOptions{Mention: mention}
	}
	return formatter, nil
}

// writeReports formats every report to w.
func writeReports(w io.Writer, formatter output.Formatter, reports []*types.Report) error {
	for _, r := range reports {
		var buf bytes.Buffer
		if err := formatter.Format(&buf, r); err != nil {
			return fmt.Errorf("formatting report for %s: %w", r.Site, err)
		}
		if _, err := w.Write(buf.Bytes()); err != nil {
			return err
		}
	}
	return nil
}
