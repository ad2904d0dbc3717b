package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// ErrUnknownSite is returned when a site name is not configured.
var ErrUnknownSite = errors.New("unknown site")

// Site is one watched website.
type Site struct {
	// Name identifies the site in history and archives. Empty uses the
	// URL host.
	Name string `mapstructure:"name" yaml:"name"`

	// URL is the address mirrored on every run.
	URL string `mapstructure:"url" yaml:"url"`

	// Ignore lists compare paths whose changes are reported as ignored.
	Ignore []string `mapstructure:"ignore" yaml:"ignore,omitempty"`
}

// Base returns the site base name used for the capture directories, the
// host part of the URL.
func (s Site) Base() (string, error) {
	u, err := url.Parse(s.URL)
	if err != nil {
		return "", fmt.Errorf("parsing url %q: %w", s.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("url %q: scheme must be http or https", s.URL)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("url %q: missing host", s.URL)
	}
	return u.Hostname(), nil
}

// DisplayName returns Name, falling back to the URL host.
func (s Site) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	if base, err := s.Base(); err == nil {
		return base
	}
	return s.URL
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Daily      bool   `mapstructure:"daily"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level"`
	Path       string            `mapstructure:"path"`
	Rotation   RotationConfig    `mapstructure:"rotation"`
	Components map[string]string `mapstructure:"components"`
}

// MirrorConfig configures the mirroring program.
type MirrorConfig struct {
	Binary  string        `mapstructure:"binary"`
	Args    []string      `mapstructure:"args"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// BeautifyConfig configures script beautifying of fresh clones.
type BeautifyConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Binary  string `mapstructure:"binary"`
}

// ArchiveConfig configures snapshot archiving.
type ArchiveConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Path          string `mapstructure:"path"`
	RetentionDays int    `mapstructure:"retention_days"`
	// LinkBase, when set, is the public URL under which Path is served.
	LinkBase string `mapstructure:"link_base"`
}

// S3Config configures publishing archives to S3. Publishing is disabled
// while Bucket is empty.
type S3Config struct {
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
	Region   string `mapstructure:"region"`
	Profile  string `mapstructure:"profile"`
	LinkBase string `mapstructure:"link_base"`
}

// SlackConfig configures chat notifications. Posting is disabled while
// WebhookURL is empty.
type SlackConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
	Mention    string `mapstructure:"mention"`
}

// HistoryConfig configures the run history store.
type HistoryConfig struct {
	Path string `mapstructure:"path"`
}

// Config represents the application configuration.
type Config struct {
	Sites    []Site         `mapstructure:"sites"`
	WorkDir  string         `mapstructure:"work_dir"`
	Workers  int            `mapstructure:"workers"`
	Interval time.Duration  `mapstructure:"interval"`
	Mirror   MirrorConfig   `mapstructure:"mirror"`
	Beautify BeautifyConfig `mapstructure:"beautify"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	S3       S3Config       `mapstructure:"s3"`
	Slack    SlackConfig    `mapstructure:"slack"`
	History  HistoryConfig  `mapstructure:"history"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// Load loads configuration from file and environment variables. An empty
// path searches the default locations:
//   - $XDG_CONFIG_HOME/sitewatch/config.yaml
//   - $HOME/.config/sitewatch/config.yaml
//
// Environment variables are prefixed with SITEWATCH_ (e.g., SITEWATCH_WORKERS).
func Load(path string) (*Config, error) {
	v := viper.New()
	if err := Read(v, path); err != nil {
		return nil, err
	}
	return Decode(v)
}

// Read points v at the config file, environment and defaults and reads the
// file. A missing file in the default locations is not an error.
func Read(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
			v.AddConfigPath(filepath.Join(xdgConfigHome, "sitewatch"))
		}
		if homeDir, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".config", "sitewatch"))
		}
	}

	v.SetEnvPrefix("SITEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return nil
}

// SetDefaults registers every default value on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("work_dir", filepath.Join(DataDir(), "work"))
	v.SetDefault("workers", 0)
	v.SetDefault("interval", DefaultInterval)

	v.SetDefault("mirror.binary", DefaultMirrorBinary)
	v.SetDefault("mirror.args", DefaultMirrorArgs)
	v.SetDefault("mirror.timeout", DefaultMirrorTimeout)

	v.SetDefault("beautify.enabled", true)
	v.SetDefault("beautify.binary", DefaultBeautifyBinary)

	v.SetDefault("archive.enabled", true)
	v.SetDefault("archive.path", filepath.Join(DataDir(), "archive"))
	v.SetDefault("archive.retention_days", DefaultRetentionDays)
	v.SetDefault("archive.link_base", "")

	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.prefix", "sitewatch")

	v.SetDefault("slack.webhook_url", "")
	v.SetDefault("slack.mention", DefaultMention)

	v.SetDefault("history.path", DefaultHistoryPath())

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "") // Empty means use DefaultLogPath
	v.SetDefault("logging.rotation.max_size", "10MB")
	v.SetDefault("logging.rotation.max_age", 30)
	v.SetDefault("logging.rotation.max_backups", 5)
	v.SetDefault("logging.rotation.daily", true)
	v.SetDefault("logging.components", map[string]string{
		"mirror":   "info",
		"pipeline": "info",
		"manifest": "info",
		"watcher":  "warn",
	})
}

// Decode unmarshals v into a Config, expands ~ in paths and validates the
// site list.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	for _, p := range []*string{&cfg.WorkDir, &cfg.Archive.Path, &cfg.History.Path, &cfg.Logging.Path} {
		expanded, err := ExpandPath(*p)
		if err != nil {
			return nil, err
		}
		*p = expanded
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that every site has a usable URL and a unique name.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Sites))
	for i, s := range c.Sites {
		if _, err := s.Base(); err != nil {
			return fmt.Errorf("sites[%d]: %w", i, err)
		}
		name := s.DisplayName()
		if seen[name] {
			return fmt.Errorf("sites[%d]: duplicate site name %q", i, name)
		}
		seen[name] = true
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	return nil
}

// Site returns the configured site with the given name.
func (c *Config) Site(name string) (Site, error) {
	for _, s := range c.Sites {
		if s.DisplayName() == name {
			return s, nil
		}
	}
	return Site{}, fmt.Errorf("%w: %s", ErrUnknownSite, name)
}

// Select returns the named sites in the given order, or every site when no
// names are given.
func (c *Config) Select(names []string) ([]Site, error) {
	if len(names) == 0 {
		return c.Sites, nil
	}
	sites := make([]Site, 0, len(names))
	for _, name := range names {
		s, err := c.Site(name)
		if err != nil {
			return nil, err
		}
		sites = append(sites, s)
	}
	return sites, nil
}

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, "sitewatch"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", "sitewatch"), nil
}

// ConfigPath returns the default config file path.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// WriteDefault writes a default config file if none exists and returns its
// path. An existing file is left untouched.
func WriteDefault() (string, error) {
	configPath, err := ConfigPath()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		return configPath, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to check config file: %w", err)
	}

	defaultConfig := fmt.Sprintf(`# sitewatch configuration

# Sites to mirror and compare on every run
sites:
  - name: example
    url: https://example.com/
    # Compare paths whose changes are reported as ignored
    ignore: []

# Where clones and cached captures are kept
work_dir: %s

# Hashing and rendering workers (0 = auto)
workers: 0

# Time between runs of 'sitewatch watch'
interval: %s

mirror:
  binary: %s
  timeout: %s

beautify:
  enabled: true
  binary: %s

archive:
  enabled: true
  path: %s
  retention_days: %d
  # Public URL under which the archive path is served (optional)
  link_base: ""

# Upload report.json and diff.html of every archive (optional)
s3:
  bucket: ""
  prefix: sitewatch
  region: ""
  profile: ""
  link_base: ""

slack:
  webhook_url: ""
  mention: "%s"

history:
  path: %s

logging:
  # Log level: debug, info, warn, error
  level: info
  # Log file path (empty means use default: $XDG_STATE_HOME/sitewatch/sitewatch.log)
  path: ""
  rotation:
    max_size: 10MB
    max_age: 30       # days
    max_backups: 5
    daily: true
  components:
    mirror: info
    pipeline: info
    manifest: info
    watcher: warn
`, filepath.Join(DataDir(), "work"), DefaultInterval, DefaultMirrorBinary, DefaultMirrorTimeout,
		DefaultBeautifyBinary, filepath.Join(DataDir(), "archive"), DefaultRetentionDays,
		DefaultMention, DefaultHistoryPath())

	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return "", fmt.Errorf("failed to write default config: %w", err)
	}
	return configPath, nil
}

// ExpandPath expands ~ in a path to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, path[1:]), nil
}

// DataDir returns $XDG_DATA_HOME/sitewatch/ for captures, archives and history.
func DataDir() string {
	return filepath.Join(xdg.DataHome, "sitewatch")
}

// StateDir returns $XDG_STATE_HOME/sitewatch/ for log files.
func StateDir() string {
	return filepath.Join(xdg.StateHome, "sitewatch")
}

// DefaultHistoryPath returns the default history database directory.
func DefaultHistoryPath() string {
	return filepath.Join(DataDir(), "history")
}
