// Package beautify normalizes the formatting of captured scripts so that
// minified and re-minified bundles diff line by line.
package beautify

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/charlievieth/fastwalk"
	"golang.org/x/sync/errgroup"

	"github.com/jamesainslie/sitewatch/pkg/sitewatch/command"
	"github.com/jamesainslie/sitewatch/pkg/sitewatch/logging"
)

// DefaultBinary is the beautifier program.
const DefaultBinary = "js-beautify"

// Beautifier rewrites script files in place.
type Beautifier struct {
	runner  command.Runner
	binary  string
	workers int
}

// New returns a Beautifier running binary through runner with at most
// workers concurrent processes.
func New(runner command.Runner, binary string, workers int) *Beautifier {
	if binary == "" {
		binary = DefaultBinary
	}
	if workers < 1 {
		workers = 1
	}
	return &Beautifier{runner: runner, binary: binary, workers: workers}
}

// File rewrites one script in place.
func (b *Beautifier) File(ctx context.Context, path string) error {
	if out, err := b.runner.Run(ctx, b.binary, "--replace", path); err != nil {
		return fmt.Errorf("beautifying %s: %w: %s", path, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Tree rewrites every *.js file below root. The first failure cancels the
// remaining work and is returned.
func (b *Beautifier) Tree(ctx context.Context, root string) (int, error) {
	scripts, err := Scripts(root)
	if err != nil {
		return 0, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for _, p := range scripts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return b.File(gctx, p)
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	logging.Get("beautify").Debug("scripts beautified", "root", root, "count", len(scripts))
	return len(scripts), nil
}

// Scripts returns every regular *.js file below root in lexical order.
func Scripts(root string) ([]string, error) {
	conf := fastwalk.Config{Follow: false}

	var (
		mu    sync.Mutex
		paths []string
	)
	err := fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && strings.EqualFold(filepath.Ext(path), ".js") {
			mu.Lock()
			paths = append(paths, path)
			mu.Unlock()
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}

	sort.Strings(paths)
	return paths, nil
}
