// Package differ compares two manifests of the same site and classifies every
// compare path as new, deleted, changed or ignored.
//
// Records are joined on ComparePath by exact string equality. When the old
// manifest holds more than one record for the same ComparePath, the first one
// is the match target. Duplicates in the new manifest are each classified.
//
// A directory hash is derived from its children, so a directory changes
// whenever anything beneath it does. Compare reports such a directory as
// ignored when every change beneath it was ignored.
package differ

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/jamesainslie/sitewatch/pkg/sitewatch/types"
)

// IgnoreList is a set of compare paths whose changes are reported as ignored.
type IgnoreList map[string]struct{}

// NewIgnoreList builds an IgnoreList from exact compare paths.
func NewIgnoreList(paths ...string) IgnoreList {
	l := make(IgnoreList, len(paths))
	for _, p := range paths {
		l[p] = struct{}{}
	}
	return l
}

// Contains reports whether path is on the list.
func (l IgnoreList) Contains(path string) bool {
	_, ok := l[path]
	return ok
}

// index maps each compare path to its first record in m.
func index(m types.Manifest) map[string]types.FileRecord {
	idx := make(map[string]types.FileRecord, len(m))
	for _, r := range m {
		if _, seen := idx[r.ComparePath]; !seen {
			idx[r.ComparePath] = r
		}
	}
	return idx
}

// Added returns the records of next whose compare path does not appear in prev.
func Added(prev, next types.Manifest) []types.FileRecord {
	return missingFrom(next, index(prev))
}

// Removed returns the records of prev whose compare path does not appear in next.
func Removed(prev, next types.Manifest) []types.FileRecord {
	return missingFrom(prev, index(next))
}

func missingFrom(m types.Manifest, other map[string]types.FileRecord) []types.FileRecord {
	out := []types.FileRecord{}
	for _, r := range m {
		if _, ok := other[r.ComparePath]; !ok {
			out = append(out, r)
		}
	}
	return out
}

// Changed returns the records of next that are present in prev with a
// different hash.
func Changed(prev, next types.Manifest) []types.FileRecord {
	old := index(prev)
	out := []types.FileRecord{}
	for _, r := range next {
		if o, ok := old[r.ComparePath]; ok && o.Hash != r.Hash {
			out = append(out, r)
		}
	}
	return out
}

// ApplyIgnore partitions changed records into those still reported as changed
// and those whose compare path is on the ignore list. Order is preserved.
func ApplyIgnore(changed []types.FileRecord, ignore IgnoreList) (kept, ignored []types.FileRecord) {
	kept = []types.FileRecord{}
	ignored = []types.FileRecord{}
	for _, r := range changed {
		if ignore.Contains(r.ComparePath) {
			ignored = append(ignored, r)
			continue
		}
		kept = append(kept, r)
	}
	return kept, ignored
}

// FoldDirectories moves changed directories into ignored when nothing beneath
// them was added, removed or changed outside the ignore list. Order is
// preserved and folded directories are appended to ignored.
func FoldDirectories(kept, ignored, added, removed []types.FileRecord) (changed, ignoredOut []types.FileRecord) {
	live := make(map[string]struct{})
	mark := func(path string) {
		for i := strings.LastIndexByte(path, '/'); i > 0; i = strings.LastIndexByte(path, '/') {
			path = path[:i]
			live[path] = struct{}{}
		}
	}
	for _, r := range added {
		mark(r.ComparePath)
	}
	for _, r := range removed {
		mark(r.ComparePath)
	}
	for _, r := range kept {
		if r.Kind != types.KindDirectory {
			mark(r.ComparePath)
		}
	}

	changed = []types.FileRecord{}
	ignoredOut = append([]types.FileRecord{}, ignored...)
	for _, r := range kept {
		if _, ok := live[r.ComparePath]; r.Kind == types.KindDirectory && !ok {
			ignoredOut = append(ignoredOut, r)
			continue
		}
		changed = append(changed, r)
	}
	return changed, ignoredOut
}

// RootDigest fingerprints the whole manifest. Hashes are sorted before they
// are concatenated, so the digest does not depend on traversal order.
func RootDigest(m types.Manifest) string {
	hashes := m.Hashes()
	sort.Strings(hashes)
	sum := sha256.Sum256([]byte(strings.Join(hashes, "")))
	return hex.EncodeToString(sum[:])
}

// Compare diffs prev against next and returns a fresh report with the
// manifests, root digests and all four buckets filled in.
func Compare(prev, next types.Manifest, ignore IgnoreList) *types.Report {
	added, removed := Added(prev, next), Removed(prev, next)
	changed, ignored := ApplyIgnore(Changed(prev, next), ignore)
	changed, ignored = FoldDirectories(changed, ignored, added, removed)
	return &types.Report{
		CachedManifest: prev,
		ClonedManifest: next,
		CachedRootHash: RootDigest(prev),
		ClonedRootHash: RootDigest(next),
		NewFiles:       added,
		DeletedFiles:   removed,
		ChangedFiles:   changed,
		IgnoredFiles:   ignored,
		HTMLDiffs:      []string{},
	}
}
