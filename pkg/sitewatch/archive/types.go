// Package archive keeps timestamped snapshots of checks that found changes:
// copies of the cached and cloned captures, the report as JSON and the
// rendered HTML diff page.
package archive

import "time"

// Files written into every snapshot directory.
const (
	CacheDirName  = "cache"
	CloneDirName  = "clone"
	ReportFile    = "report.json"
	PageFile      = "diff.html"
	entryFile     = "entry.json"
	tmpFileSuffix = ".tmp"
)

// Entry describes one archived snapshot.
type Entry struct {
	ID        string    `json:"id"`
	Site      string    `json:"site"`
	URL       string    `json:"url"`
	Timestamp time.Time `json:"timestamp"`
	RootHash  string    `json:"root_hash"`
	Summary   Summary   `json:"summary"`

	// Dir is the snapshot directory. It is not persisted.
	Dir string `json:"-"`
}

// Summary holds the bucket sizes of the archived report.
type Summary struct {
	New     int `json:"new"`
	Deleted int `json:"deleted"`
	Changed int `json:"changed"`
	Ignored int `json:"ignored"`
}
