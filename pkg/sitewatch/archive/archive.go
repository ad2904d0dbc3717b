package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/charlievieth/fastwalk"
	"github.com/google/uuid"

	"github.com/jamesainslie/sitewatch/pkg/sitewatch/logging"
	"github.com/jamesainslie/sitewatch/pkg/sitewatch/render"
	"github.com/jamesainslie/sitewatch/pkg/sitewatch/types"
)

// ErrNotFound is returned when no snapshot has the requested ID.
var ErrNotFound = errors.New("snapshot not found")

// Archive manages snapshots below a root directory laid out as
// <root>/<site>/<id>/.
type Archive struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

// New creates an Archive rooted at dir. The directory is created on the
// first Save.
func New(dir string) (*Archive, error) {
	if dir == "" {
		return nil, errors.New("archive directory cannot be empty")
	}
	return &Archive{dir: dir, now: time.Now}, nil
}

// Dir returns the archive root.
func (a *Archive) Dir() string {
	return a.dir
}

// Save copies cacheDir and cloneDir into a new snapshot and writes the
// report and its HTML diff page. r.ArchiveID is set to the new ID.
func (a *Archive) Save(cacheDir, cloneDir string, r *types.Report) (*Entry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now().UTC()
	site := safeName(r.Site)
	entry := &Entry{
		ID:        generateID(site, now),
		Site:      r.Site,
		URL:       r.URL,
		Timestamp: now,
		RootHash:  r.ClonedRootHash,
	}
	entry.Summary.New, entry.Summary.Deleted, entry.Summary.Changed, entry.Summary.Ignored = r.Counts()
	entry.Dir = filepath.Join(a.dir, site, entry.ID)

	if err := os.MkdirAll(entry.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating snapshot directory: %w", err)
	}

	if err := copyTree(cacheDir, filepath.Join(entry.Dir, CacheDirName)); err != nil {
		_ = os.RemoveAll(entry.Dir)
		return nil, fmt.Errorf("copying cache: %w", err)
	}
	if err := copyTree(cloneDir, filepath.Join(entry.Dir, CloneDirName)); err != nil {
		_ = os.RemoveAll(entry.Dir)
		return nil, fmt.Errorf("copying clone: %w", err)
	}

	r.ArchiveID = entry.ID
	if err := writeFiles(entry, r); err != nil {
		_ = os.RemoveAll(entry.Dir)
		return nil, err
	}

	logging.Get("archive").Info("snapshot saved", "id", entry.ID, "dir", entry.Dir)
	return entry, nil
}

// WriteReport rewrites the report and page of an existing snapshot, for
// example after the report gained a Location.
func (a *Archive) WriteReport(id string, r *types.Report) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	entry, err := a.find(id)
	if err != nil {
		return err
	}
	return writeFiles(entry, r)
}

func writeFiles(entry *Entry, r *types.Report) error {
	report, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := writeAtomic(filepath.Join(entry.Dir, ReportFile), report); err != nil {
		return err
	}

	if err := writeAtomic(filepath.Join(entry.Dir, PageFile), []byte(render.Page(r.Site, r.HTMLDiffs))); err != nil {
		return err
	}

	meta, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}
	return writeAtomic(filepath.Join(entry.Dir, entryFile), meta)
}

// writeAtomic writes data to a temp file and renames it over path.
func writeAtomic(path string, data []byte) error {
	tmpPath := path + tmpFileSuffix
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// List returns snapshots sorted by timestamp descending (newest first).
// An empty site lists every site. If limit is 0 or negative, all entries
// are returned.
func (a *Archive) List(site string, limit int) ([]Entry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	entries, err := a.scan(site)
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Get retrieves a snapshot by ID.
func (a *Archive) Get(id string) (*Entry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.find(id)
}

// Report loads the report stored with a snapshot.
func (a *Archive) Report(id string) (*types.Report, error) {
	path, err := a.ReportPath(id)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}

	var r types.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}
	return &r, nil
}

// ReportPath returns the path of a snapshot's report.json.
func (a *Archive) ReportPath(id string) (string, error) {
	entry, err := a.Get(id)
	if err != nil {
		return "", err
	}
	return filepath.Join(entry.Dir, ReportFile), nil
}

// PagePath returns the path of a snapshot's diff.html.
func (a *Archive) PagePath(id string) (string, error) {
	entry, err := a.Get(id)
	if err != nil {
		return "", err
	}
	return filepath.Join(entry.Dir, PageFile), nil
}

// Cleanup removes snapshots older than retentionDays and returns how many
// were removed. A retention of zero or less keeps everything.
func (a *Archive) Cleanup(retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	entries, err := a.scan("")
	if err != nil {
		return 0, err
	}

	cutoff := a.now().AddDate(0, 0, -retentionDays)
	removed := 0
	for _, e := range entries {
		if !e.Timestamp.Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(e.Dir); err != nil {
			return removed, fmt.Errorf("removing snapshot %s: %w", e.ID, err)
		}
		removed++
	}

	if removed > 0 {
		logging.Get("archive").Info("snapshots removed", "count", removed, "retention_days", retentionDays)
	}
	return removed, nil
}

func (a *Archive) find(id string) (*Entry, error) {
	if id == "" {
		return nil, errors.New("snapshot ID cannot be empty")
	}

	entries, err := a.scan("")
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].ID == id {
			return &entries[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// scan reads the entry of every snapshot, skipping directories that do not
// hold a readable entry.
func (a *Archive) scan(site string) ([]Entry, error) {
	sites := []string{safeName(site)}
	if site == "" {
		dirs, err := os.ReadDir(a.dir)
		if err != nil {
			if os.IsNotExist(err) {
				return []Entry{}, nil
			}
			return nil, fmt.Errorf("failed to read archive directory: %w", err)
		}
		sites = sites[:0]
		for _, d := range dirs {
			if d.IsDir() {
				sites = append(sites, d.Name())
			}
		}
	}

	entries := []Entry{}
	for _, s := range sites {
		snapshots, err := os.ReadDir(filepath.Join(a.dir, s))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read site directory: %w", err)
		}
		for _, snap := range snapshots {
			if !snap.IsDir() {
				continue
			}
			dir := filepath.Join(a.dir, s, snap.Name())
			entry, err := readEntry(dir)
			if err != nil {
				continue
			}
			entries = append(entries, *entry)
		}
	}
	return entries, nil
}

func readEntry(dir string) (*Entry, error) {
	data, err := os.ReadFile(filepath.Join(dir, entryFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry: %w", err)
	}
	entry.Dir = dir
	return &entry, nil
}

// copyTree copies the regular files and directories below src into dst.
// Symlinks and special files are skipped.
func copyTree(src, dst string) error {
	conf := fastwalk.Config{Follow: false}

	return fastwalk.Walk(&conf, src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		switch {
		case d.IsDir():
			return os.MkdirAll(target, 0o755)
		case d.Type().IsRegular():
			return copyFile(path, target)
		default:
			return nil
		}
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	// Directory callbacks may still be running on other workers.
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// safeName maps a site name to a single path segment.
func safeName(site string) string {
	name := unsafeChars.ReplaceAllString(site, "-")
	if name == "" || name == "." || name == ".." {
		return "site"
	}
	return name
}

// generateID creates an ID like "example.com-2024-06-15T10-30-00-1b4e28ba".
func generateID(site string, now time.Time) string {
	return fmt.Sprintf("%s-%s-%s", site, now.Format("2006-01-02T15-04-05"), uuid.NewString()[:8])
}
