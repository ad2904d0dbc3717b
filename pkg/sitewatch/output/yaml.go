package output

import (
	"bytes"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/sitewatch/pkg/sitewatch/types"
)

// yamlOutput is a summary of a report. Manifests and rendered diffs are
// left out.
type yamlOutput struct {
	Site      string        `yaml:"site"`
	URL       string        `yaml:"url"`
	StartedAt time.Time     `yaml:"started_at"`
	Duration  time.Duration `yaml:"duration"`
	Baseline  bool          `yaml:"baseline"`
	Hashes    yamlHashes    `yaml:"root_hashes"`
	Changes   []Change      `yaml:"changes"`
	Summary   yamlSummary   `yaml:"summary"`
	Snapshot  string        `yaml:"snapshot,omitempty"`
	Location  string        `yaml:"location,omitempty"`
	Warnings  []string      `yaml:"warnings,omitempty"`
}

type yamlHashes struct {
	Cached string `yaml:"cached"`
	Cloned string `yaml:"cloned"`
}

type yamlSummary struct {
	New     int `yaml:"new"`
	Deleted int `yaml:"deleted"`
	Changed int `yaml:"changed"`
	Ignored int `yaml:"ignored"`
}

// YAMLFormatter formats a summary of the report as YAML.
type YAMLFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *YAMLFormatter) Format(w *bytes.Buffer, r *types.Report) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(f.buildOutput(r)); err != nil {
		return err
	}
	return encoder.Close()
}

func (f *YAMLFormatter) buildOutput(r *types.Report) yamlOutput {
	out := yamlOutput{
		Site:      r.Site,
		URL:       r.URL,
		StartedAt: r.StartedAt,
		Duration:  r.Duration,
		Baseline:  r.Baseline,
		Hashes:    yamlHashes{Cached: r.CachedRootHash, Cloned: r.ClonedRootHash},
		Changes:   Changes(r),
		Snapshot:  r.ArchiveID,
		Location:  r.Location,
		Warnings:  r.MirrorWarnings,
	}
	if out.Changes == nil {
		out.Changes = []Change{}
	}
	out.Summary.New, out.Summary.Deleted, out.Summary.Changed, out.Summary.Ignored = r.Counts()
	return out
}

func init() {
	Register("yaml", func() Formatter {
		return &YAMLFormatter{}
	})
}

// Ensure YAMLFormatter implements Formatter.
var _ Formatter = (*YAMLFormatter)(nil)
