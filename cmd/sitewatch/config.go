package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/sitewatch/pkg/sitewatch/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage sitewatch configuration settings.

Configuration is loaded from:
  1. --config, when given
  2. $XDG_CONFIG_HOME/sitewatch/config.yaml (if set)
  3. ~/.config/sitewatch/config.yaml

Environment variables can override config file settings using the SITEWATCH_ prefix:
  SITEWATCH_WORKERS=8
  SITEWATCH_INTERVAL=30m
  SITEWATCH_SLACK_WEBHOOK_URL=https://hooks.slack.com/services/...`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the effective configuration, merged from all sources.`,
	RunE:  runConfigShow,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit configuration file",
	Long: `Open the configuration file in your default editor.

The editor is determined by:
  1. $VISUAL environment variable
  2. $EDITOR environment variable
  3. Falls back to 'vi'

If the config file doesn't exist, a default one will be created first.`,
	RunE: runConfigEdit,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default configuration file",
	Long:  `Create a default configuration file if one doesn't exist.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Long:  `Display the path to the configuration file.`,
	RunE:  runConfigPath,
}

// envOverrides are the variables reported by config show.
var envOverrides = []string{
	"SITEWATCH_WORK_DIR",
	"SITEWATCH_WORKERS",
	"SITEWATCH_INTERVAL",
	"SITEWATCH_MIRROR_BINARY",
	"SITEWATCH_MIRROR_TIMEOUT",
	"SITEWATCH_BEAUTIFY_ENABLED",
	"SITEWATCH_ARCHIVE_ENABLED",
	"SITEWATCH_ARCHIVE_PATH",
	"SITEWATCH_ARCHIVE_RETENTION_DAYS",
	"SITEWATCH_S3_BUCKET",
	"SITEWATCH_S3_REGION",
	"SITEWATCH_SLACK_WEBHOOK_URL",
	"SITEWATCH_SLACK_MENTION",
	"SITEWATCH_HISTORY_PATH",
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

// runConfigShow displays the current configuration.
func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if configFile := viper.ConfigFileUsed(); configFile != "" {
		fmt.Fprintf(w, "Config file: %s\n\n", configFile)
	} else {
		fmt.Fprintln(w, "Config file: (using defaults, no file found)")
		fmt.Fprintln(w)
	}

	if err := writeConfig(w, cfg); err != nil {
		return err
	}

	fmt.Fprintln(w, "\nEnvironment Overrides:")
	fmt.Fprintln(w, "----------------------")
	anyOverrides := false
	for _, name := range envOverrides {
		if val := os.Getenv(name); val != "" {
			if strings.HasSuffix(name, "WEBHOOK_URL") {
				val = "(set)"
			}
			fmt.Fprintf(w, "%s=%s\n", name, val)
			anyOverrides = true
		}
	}
	if !anyOverrides {
		fmt.Fprintln(w, "(none)")
	}

	return nil
}

// shownConfig is the YAML view of the configuration printed by config show.
type shownConfig struct {
	Sites    []config.Site `yaml:"sites"`
	WorkDir  string        `yaml:"work_dir"`
	Workers  int           `yaml:"workers"`
	Interval string        `yaml:"interval"`
	Mirror   struct {
		Binary  string   `yaml:"binary"`
		Args    []string `yaml:"args"`
		Timeout string   `yaml:"timeout"`
	} `yaml:"mirror"`
	Beautify struct {
		Enabled bool   `yaml:"enabled"`
		Binary  string `yaml:"binary"`
	} `yaml:"beautify"`
	Archive struct {
		Enabled       bool   `yaml:"enabled"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
		LinkBase      string `yaml:"link_base,omitempty"`
	} `yaml:"archive"`
	S3 struct {
		Bucket string `yaml:"bucket,omitempty"`
		Prefix string `yaml:"prefix,omitempty"`
		Region string `yaml:"region,omitempty"`
	} `yaml:"s3"`
	Slack struct {
		Webhook string `yaml:"webhook"`
		Mention string `yaml:"mention"`
	} `yaml:"slack"`
	History string `yaml:"history"`
}

// writeConfig prints cfg as YAML. The webhook URL is a secret and only its
// presence is shown.
func writeConfig(w io.Writer, cfg *config.Config) error {
	var out shownConfig
	out.Sites = cfg.Sites
	out.WorkDir = cfg.WorkDir
	out.Workers = cfg.Workers
	out.Interval = interval(cfg).String()
	out.Mirror.Binary = cfg.Mirror.Binary
	out.Mirror.Args = cfg.Mirror.Args
	out.Mirror.Timeout = cfg.Mirror.Timeout.String()
	out.Beautify.Enabled = cfg.Beautify.Enabled
	out.Beautify.Binary = cfg.Beautify.Binary
	out.Archive.Enabled = cfg.Archive.Enabled
	out.Archive.Path = cfg.Archive.Path
	out.Archive.RetentionDays = cfg.Archive.RetentionDays
	out.Archive.LinkBase = cfg.Archive.LinkBase
	out.S3.Bucket = cfg.S3.Bucket
	out.S3.Prefix = cfg.S3.Prefix
	out.S3.Region = cfg.S3.Region
	out.Slack.Webhook = "(not set)"
	if cfg.Slack.WebhookURL != "" {
		out.Slack.Webhook = "(set)"
	}
	out.Slack.Mention = cfg.Slack.Mention
	out.History = cfg.History.Path

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	return enc.Close()
}

// runConfigEdit opens the config file in an editor.
func runConfigEdit(cmd *cobra.Command, args []string) error {
	configPath, err := config.WriteDefault()
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	editor := os.Getenv("VISUAL")
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = "vi"
	}

	printVerbose("Opening %s with %s", configPath, editor)

	editorCmd := exec.Command(editor, configPath)
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr

	if err := editorCmd.Run(); err != nil {
		return fmt.Errorf("editor command failed: %w", err)
	}

	return nil
}

// runConfigInit creates a default config file.
func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath, err := config.ConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		printInfo("Config file already exists: %s", configPath)
		printInfo("Use 'sitewatch config edit' to modify it.")
		return nil
	}

	if _, err := config.WriteDefault(); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	printInfo("Created default config file: %s", configPath)
	return nil
}

// runConfigPath shows the config file path.
func runConfigPath(cmd *cobra.Command, args []string) error {
	configPath := viper.ConfigFileUsed()
	if configPath == "" {
		var err error
		configPath, err = config.ConfigPath()
		if err != nil {
			return fmt.Errorf("failed to get config path: %w", err)
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), configPath)

	if _, err := os.Stat(configPath); err == nil {
		printVerbose("File exists")
	} else if os.IsNotExist(err) {
		printVerbose("File does not exist (will use defaults)")
	}

	return nil
}
