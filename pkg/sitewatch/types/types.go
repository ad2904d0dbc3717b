// Package types provides the core data types for sitewatch: file records,
// manifests of captured site trees, and the change report produced by
// comparing two captures.
package types

import (
	"fmt"
	"time"
)

// Kind distinguishes file records from directory records.
type Kind int

// Record kinds.
const (
	KindFile Kind = iota
	KindDirectory
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	switch k {
	case KindFile, KindDirectory:
		return []byte(k.String()), nil
	default:
		return nil, fmt.Errorf("invalid kind %d", int(k))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "file":
		*k = KindFile
	case "directory":
		*k = KindDirectory
	default:
		return fmt.Errorf("invalid kind %q", string(text))
	}
	return nil
}

// FileRecord describes one captured file or directory.
type FileRecord struct {
	// FullPath is the absolute location of the captured file.
	FullPath string `json:"fullPath" yaml:"full_path"`

	// ComparePath is the path relative to the site-specific root. It is the
	// join key between two captures of the same site.
	ComparePath string `json:"comparePath" yaml:"compare_path"`

	// Hash is the hex-encoded content digest.
	Hash string `json:"hash" yaml:"hash"`

	// Kind is either a file or a directory.
	Kind Kind `json:"kind" yaml:"kind"`
}

// Manifest is the ordered list of records captured from one directory tree
// at one point in time. It is not modified after it has been built.
type Manifest []FileRecord

// Hashes returns the hashes of all records in manifest order.
func (m Manifest) Hashes() []string {
	hashes := make([]string, len(m))
	for i, r := range m {
		hashes[i] = r.Hash
	}
	return hashes
}

// ComparePaths returns the compare paths of all records in manifest order.
func (m Manifest) ComparePaths() []string {
	paths := make([]string, len(m))
	for i, r := range m {
		paths[i] = r.ComparePath
	}
	return paths
}

// Files returns only the file records of the manifest.
func (m Manifest) Files() Manifest {
	files := make(Manifest, 0, len(m))
	for _, r := range m {
		if r.Kind == KindFile {
			files = append(files, r)
		}
	}
	return files
}

// Report is the result of comparing a cached capture with a fresh clone.
// It is recomputed in full on every comparison.
type Report struct {
	// Site is the configured site name.
	Site string `json:"site" yaml:"site"`

	// URL is the mirrored address.
	URL string `json:"url" yaml:"url"`

	// StartedAt is when the check run began.
	StartedAt time.Time `json:"startedAt" yaml:"started_at"`

	// Duration is the wall time of the check run.
	Duration time.Duration `json:"duration" yaml:"duration"`

	// Baseline is set when no cached capture existed yet.
	Baseline bool `json:"baseline" yaml:"baseline"`

	CachedManifest Manifest `json:"cachedManifest" yaml:"cached_manifest"`
	ClonedManifest Manifest `json:"clonedManifest" yaml:"cloned_manifest"`
	CachedRootHash string   `json:"cachedRootHash" yaml:"cached_root_hash"`
	ClonedRootHash string   `json:"clonedRootHash" yaml:"cloned_root_hash"`

	NewFiles     []FileRecord `json:"newFiles" yaml:"new_files"`
	DeletedFiles []FileRecord `json:"deletedFiles" yaml:"deleted_files"`
	ChangedFiles []FileRecord `json:"changedFiles" yaml:"changed_files"`
	IgnoredFiles []FileRecord `json:"ignoredFiles" yaml:"ignored_files"`

	// HTMLDiffs holds one rendered fragment per changed file, in
	// ChangedFiles order.
	HTMLDiffs []string `json:"htmlDiffs" yaml:"html_diffs"`

	// MirrorWarnings lists the 404 responses tolerated during mirroring.
	MirrorWarnings []string `json:"mirrorWarnings,omitempty" yaml:"mirror_warnings,omitempty"`

	// ArchiveID identifies the snapshot written for this report, if any.
	ArchiveID string `json:"archiveId,omitempty" yaml:"archive_id,omitempty"`

	// Location is an optional external link to the archived diff.
	Location string `json:"location,omitempty" yaml:"location,omitempty"`

	// SlackMessage is the rendered chat notification, if any.
	SlackMessage string `json:"slackMessage,omitempty" yaml:"slack_message,omitempty"`
}

// HasChanges reports whether any path was added, removed or changed.
// Ignored paths do not count.
func (r *Report) HasChanges() bool {
	return len(r.NewFiles) > 0 || len(r.DeletedFiles) > 0 || len(r.ChangedFiles) > 0
}

// Counts returns the sizes of the four buckets.
func (r *Report) Counts() (added, removed, changed, ignored int) {
	return len(r.NewFiles), len(r.DeletedFiles), len(r.ChangedFiles), len(r.IgnoredFiles)
}
