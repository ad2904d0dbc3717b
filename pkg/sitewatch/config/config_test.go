package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	tempDir := t.TempDir()
	t.Setenv("HOME", tempDir)
	t.Setenv("XDG_CONFIG_HOME", "")
	return tempDir
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	p := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Empty(t, cfg.Sites)
	assert.Equal(t, 0, cfg.Workers)
	assert.Equal(t, DefaultInterval, cfg.Interval)
	assert.Equal(t, DefaultMirrorBinary, cfg.Mirror.Binary)
	assert.Equal(t, DefaultMirrorArgs, cfg.Mirror.Args)
	assert.Equal(t, DefaultMirrorTimeout, cfg.Mirror.Timeout)
	assert.True(t, cfg.Beautify.Enabled)
	assert.True(t, cfg.Archive.Enabled)
	assert.Equal(t, DefaultRetentionDays, cfg.Archive.RetentionDays)
	assert.Equal(t, DefaultMention, cfg.Slack.Mention)
	assert.Empty(t, cfg.Slack.WebhookURL)
	assert.Empty(t, cfg.S3.Bucket)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "10MB", cfg.Logging.Rotation.MaxSize)
	assert.Equal(t, filepath.Join(DataDir(), "work"), cfg.WorkDir)
}

func TestLoad_FromFile(t *testing.T) {
	home := isolate(t)
	writeConfig(t, filepath.Join(home, ".config", "sitewatch"), `
sites:
  - name: docs
    url: https://docs.example.com/start
    ignore:
      - sitemap.xml
      - js/build-id.js
  - url: http://blog.example.org:8080/
work_dir: ~/captures
workers: 6
interval: 15m
mirror:
  timeout: 2m
beautify:
  enabled: false
archive:
  retention_days: 7
  link_base: https://diffs.example.com
slack:
  webhook_url: https://hooks.slack.com/services/T/B/X
  mention: "<!here>"
`)

	cfg, err := Load("")
	require.NoError(t, err)

	require.Len(t, cfg.Sites, 2)
	assert.Equal(t, "docs", cfg.Sites[0].Name)
	assert.Equal(t, []string{"sitemap.xml", "js/build-id.js"}, cfg.Sites[0].Ignore)
	assert.Equal(t, "blog.example.org", cfg.Sites[1].DisplayName())

	assert.Equal(t, filepath.Join(home, "captures"), cfg.WorkDir)
	assert.Equal(t, 6, cfg.Workers)
	assert.Equal(t, 15*time.Minute, cfg.Interval)
	assert.Equal(t, 2*time.Minute, cfg.Mirror.Timeout)
	assert.Equal(t, DefaultMirrorBinary, cfg.Mirror.Binary)
	assert.False(t, cfg.Beautify.Enabled)
	assert.Equal(t, 7, cfg.Archive.RetentionDays)
	assert.Equal(t, "https://diffs.example.com", cfg.Archive.LinkBase)
	assert.Equal(t, "<!here>", cfg.Slack.Mention)
}

func TestLoad_XDGConfigHome(t *testing.T) {
	isolate(t)
	xdgHome := filepath.Join(t.TempDir(), "xdg-config")
	t.Setenv("XDG_CONFIG_HOME", xdgHome)
	writeConfig(t, filepath.Join(xdgHome, "sitewatch"), "workers: 3\n")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Workers)
}

func TestLoad_ExplicitPath(t *testing.T) {
	isolate(t)
	p := writeConfig(t, t.TempDir(), "interval: 5m\n")

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.Interval)
}

func TestLoad_EnvOverride(t *testing.T) {
	isolate(t)
	t.Setenv("SITEWATCH_WORKERS", "12")
	t.Setenv("SITEWATCH_SLACK_MENTION", "<!here>")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Workers)
	assert.Equal(t, "<!here>", cfg.Slack.Mention)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"malformed yaml", "sites: [unclosed\n"},
		{"ftp url", "sites:\n  - url: ftp://example.com/\n"},
		{"missing host", "sites:\n  - url: https:///path\n"},
		{"duplicate names", "sites:\n  - url: https://a.example.com/\n  - url: https://a.example.com/other\n"},
		{"negative workers", "workers: -1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			p := writeConfig(t, t.TempDir(), tt.content)

			_, err := Load(p)
			assert.Error(t, err)
		})
	}
}

func TestSiteBase(t *testing.T) {
	tests := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{"https://example.com/", "example.com", false},
		{"http://www.example.com:8080/a/b", "www.example.com", false},
		{"example.com", "", true},
		{"mailto:a@example.com", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, err := Site{URL: tt.url}.Base()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelect(t *testing.T) {
	cfg := &Config{Sites: []Site{
		{Name: "a", URL: "https://a.example.com/"},
		{URL: "https://b.example.com/"},
	}}

	all, err := cfg.Select(nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	some, err := cfg.Select([]string{"b.example.com", "a"})
	require.NoError(t, err)
	require.Len(t, some, 2)
	assert.Equal(t, "https://b.example.com/", some[0].URL)
	assert.Equal(t, "a", some[1].Name)

	_, err = cfg.Select([]string{"missing"})
	assert.True(t, errors.Is(err, ErrUnknownSite))
}

func TestWriteDefault(t *testing.T) {
	isolate(t)
	xdgHome := filepath.Join(t.TempDir(), "cfg")
	t.Setenv("XDG_CONFIG_HOME", xdgHome)

	p, err := WriteDefault()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(xdgHome, "sitewatch", "config.yaml"), p)

	cfg, err := Load("")
	require.NoError(t, err, "the default file must load")
	require.Len(t, cfg.Sites, 1)
	assert.Equal(t, "example", cfg.Sites[0].Name)

	require.NoError(t, os.WriteFile(p, []byte("workers: 2\n"), 0o644))
	_, err = WriteDefault()
	require.NoError(t, err)
	content, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "workers: 2\n", string(content), "existing file must not be overwritten")
}

func TestExpandPath(t *testing.T) {
	home := isolate(t)

	got, err := ExpandPath("~/x/y")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "x", "y"), got)

	got, err = ExpandPath("/abs")
	require.NoError(t, err)
	assert.Equal(t, "/abs", got)
}
