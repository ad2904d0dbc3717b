package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/sitewatch/pkg/sitewatch/config"
	"github.com/jamesainslie/sitewatch/pkg/sitewatch/logging"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "sitewatch",
		Short: "Watch websites for content changes",
		Long: `Sitewatch mirrors websites, compares every capture with the previous one
and reports new, deleted and changed files.

Changes are rendered as an HTML diff, archived, optionally uploaded to S3
and announced in Slack.

Examples:
  sitewatch check                 # Check every configured site once
  sitewatch check docs -o json    # Check one site, print the report as JSON
  sitewatch watch                 # Check all sites every interval
  sitewatch history docs          # Root digests of past runs
  sitewatch snapshots             # Archived snapshots
  sitewatch config init           # Create a default config file`,
		SilenceUsage:      true,
		PersistentPreRunE: initializeLogging,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logging.Close()
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/sitewatch/config.yaml)")
	rootCmd.PersistentFlags().IntP("workers", "w", 0, "override worker count (0=auto)")
	rootCmd.PersistentFlags().StringP("work-dir", "", "", "directory for clones and cached captures")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "minimal output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug output on stderr")

	_ = viper.BindPFlag("workers", rootCmd.PersistentFlags().Lookup("workers"))
	_ = viper.BindPFlag("work_dir", rootCmd.PersistentFlags().Lookup("work-dir"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig reads in config file and environment variables.
func initConfig() {
	if err := config.Read(viper.GetViper(), cfgFile); err != nil {
		printError("%v", err)
	}
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig decodes the configuration read by initConfig.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Decode(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// initializeLogging is the PersistentPreRunE hook. It sets up the log file
// from the logging section and mirrors debug output to stderr in verbose
// mode.
func initializeLogging(cmd *cobra.Command, args []string) error {
	var lc config.LoggingConfig
	if err := viper.UnmarshalKey("logging", &lc); err != nil {
		return fmt.Errorf("failed to read logging config: %w", err)
	}

	logPath, err := config.ExpandPath(lc.Path)
	if err != nil {
		return err
	}

	cfg := logging.Config{
		Level:      lc.Level,
		Path:       logPath,
		Rotation:   parseRotationConfig(lc.Rotation),
		Components: lc.Components,
	}
	if getVerbose() {
		cfg.ConsoleLevel = "debug"
	}

	if err := logging.Init(cfg); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	return nil
}

// parseRotationConfig converts the configured rotation into the logging
// package's form. An empty or invalid max_size leaves the writer default.
func parseRotationConfig(rc config.RotationConfig) logging.RotationConfig {
	var maxSize int64
	if rc.MaxSize != "" {
		if n, err := humanize.ParseBytes(rc.MaxSize); err == nil {
			maxSize = int64(n)
		}
	}
	return logging.RotationConfig{
		MaxSize:    maxSize,
		MaxAge:     rc.MaxAge,
		MaxBackups: rc.MaxBackups,
		Daily:      rc.Daily,
	}
}

// getVerbose returns true if verbose mode is enabled.
func getVerbose() bool {
	return viper.GetBool("verbose")
}

// getQuiet returns true if quiet mode is enabled.
func getQuiet() bool {
	return viper.GetBool("quiet")
}

// printInfo prints a message if quiet mode is not enabled.
func printInfo(format string, args ...interface{}) {
	if !getQuiet() {
		fmt.Printf(format+"\n", args...)
	}
}

// printVerbose prints a message if verbose mode is enabled.
func printVerbose(format string, args ...interface{}) {
	if getVerbose() && !getQuiet() {
		fmt.Printf(format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
