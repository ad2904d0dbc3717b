// Package manifest builds manifests of captured site trees. It walks a
// capture directory with fastwalk, hashes every file with a bounded worker
// group and derives each record's compare path from the capture root.
package manifest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/charlievieth/fastwalk"
	"golang.org/x/sync/errgroup"

	"github.com/jamesainslie/sitewatch/pkg/sitewatch/logging"
	"github.com/jamesainslie/sitewatch/pkg/sitewatch/types"
)

// Capture directory suffixes. A site's fresh mirror lives in
// "<siteBase>.clone" and the previous accepted capture in "<siteBase>.cache".
const (
	CloneSuffix = ".clone"
	CacheSuffix = ".cache"
)

// DefaultWorkers is used when Options.Workers is not positive.
const DefaultWorkers = 8

// ErrNotCaptureDir is returned when a root is not inside a capture directory.
var ErrNotCaptureDir = errors.New("not a capture directory")

// Options configures manifest building.
type Options struct {
	// Workers bounds the number of files hashed concurrently.
	Workers int
}

// CloneDir returns the clone directory for siteBase under workDir.
func CloneDir(workDir, siteBase string) string {
	return filepath.Join(workDir, siteBase+CloneSuffix)
}

// CacheDir returns the cache directory for siteBase under workDir.
func CacheDir(workDir, siteBase string) string {
	return filepath.Join(workDir, siteBase+CacheSuffix)
}

// ComparePath strips everything up to and including the first path segment
// named "<siteBase>.clone" or "<siteBase>.cache" and joins the rest with "/".
// A path without such a segment yields "".
func ComparePath(fullPath, siteBase string) string {
	segments := strings.Split(filepath.ToSlash(fullPath), "/")
	for i, seg := range segments {
		if seg == siteBase+CloneSuffix || seg == siteBase+CacheSuffix {
			return strings.Join(segments[i+1:], "/")
		}
	}
	return ""
}

// HashFile returns the hex-encoded sha256 of the file's content.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// entry is one walked path before hashing.
type entry struct {
	path  string
	isDir bool
	hash  string
}

// Build walks root and returns its manifest sorted by compare path.
// Files are hashed concurrently; a directory's hash covers the names and
// hashes of its children. The root directory itself is not part of the
// manifest. Any walk or read error aborts the build.
func Build(ctx context.Context, root, siteBase string, opts Options) (types.Manifest, error) {
	log := logging.Get("manifest")

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if ComparePath(filepath.Join(absRoot, "x"), siteBase) != "x" {
		return nil, fmt.Errorf("%w: %s", ErrNotCaptureDir, absRoot)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrNotCaptureDir, absRoot)
	}

	entries, err := walk(ctx, absRoot)
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", absRoot, err)
	}

	if err := hashFiles(ctx, entries, opts.Workers); err != nil {
		return nil, err
	}
	hashDirs(absRoot, entries)

	m := make(types.Manifest, 0, len(entries))
	for _, e := range entries {
		kind := types.KindFile
		if e.isDir {
			kind = types.KindDirectory
		}
		m = append(m, types.FileRecord{
			FullPath:    e.path,
			ComparePath: ComparePath(e.path, siteBase),
			Hash:        e.hash,
			Kind:        kind,
		})
	}
	sort.SliceStable(m, func(i, j int) bool {
		return m[i].ComparePath < m[j].ComparePath
	})

	log.Debug("manifest built", "root", absRoot, "records", len(m))
	return m, nil
}

// walk collects every directory and regular file below root.
func walk(ctx context.Context, root string) ([]*entry, error) {
	conf := fastwalk.Config{
		Follow: false,
	}

	var (
		mu      sync.Mutex
		entries []*entry
	)

	err := fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}

		var e *entry
		switch {
		case d.IsDir():
			e = &entry{path: path, isDir: true}
		case d.Type().IsRegular():
			e = &entry{path: path}
		default:
			// Symlinks and special files are not site content.
			return nil
		}

		mu.Lock()
		entries = append(entries, e)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// hashFiles fills in the hash of every file entry.
func hashFiles(ctx context.Context, entries []*entry, workers int) error {
	if workers < 1 {
		workers = DefaultWorkers
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, e := range entries {
		if e.isDir {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			sum, err := HashFile(e.path)
			if err != nil {
				return fmt.Errorf("hashing %s: %w", e.path, err)
			}
			e.hash = sum
			return nil
		})
	}

	return g.Wait()
}

// hashDirs computes directory hashes deepest first so every child hash is
// known before its parent is summed.
func hashDirs(root string, entries []*entry) {
	children := make(map[string][]*entry)
	var dirs []*entry
	for _, e := range entries {
		parent := filepath.Dir(e.path)
		children[parent] = append(children[parent], e)
		if e.isDir {
			dirs = append(dirs, e)
		}
	}

	sort.Slice(dirs, func(i, j int) bool {
		return depth(root, dirs[i].path) > depth(root, dirs[j].path)
	})

	for _, d := range dirs {
		d.hash = dirHash(children[d.path])
	}
}

func dirHash(children []*entry) string {
	lines := make([]string, len(children))
	for i, c := range children {
		lines[i] = filepath.Base(c.path) + "\x00" + c.hash + "\n"
	}
	sort.Strings(lines)

	h := sha256.New()
	for _, l := range lines {
		_, _ = io.WriteString(h, l)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func depth(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return 0
	}
	return strings.Count(filepath.ToSlash(rel), "/")
}
