// Package pipeline runs a complete check of one site: mirror the site into
// a fresh clone, compare it with the cached capture, render and archive
// the differences, notify, record the run and promote the clone to be the
// new cache.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jamesainslie/sitewatch/pkg/sitewatch/archive"
	"github.com/jamesainslie/sitewatch/pkg/sitewatch/config"
	"github.com/jamesainslie/sitewatch/pkg/sitewatch/differ"
	"github.com/jamesainslie/sitewatch/pkg/sitewatch/history"
	"github.com/jamesainslie/sitewatch/pkg/sitewatch/logging"
	"github.com/jamesainslie/sitewatch/pkg/sitewatch/manifest"
	"github.com/jamesainslie/sitewatch/pkg/sitewatch/mirror"
	"github.com/jamesainslie/sitewatch/pkg/sitewatch/notify"
	"github.com/jamesainslie/sitewatch/pkg/sitewatch/publish"
	"github.com/jamesainslie/sitewatch/pkg/sitewatch/render"
	"github.com/jamesainslie/sitewatch/pkg/sitewatch/tuner"
	"github.com/jamesainslie/sitewatch/pkg/sitewatch/types"
)

// Mirrorer captures a URL into a directory.
type Mirrorer interface {
	Mirror(ctx context.Context, url, dir string) (*mirror.Result, error)
}

// Beautifier rewrites the scripts below root in place.
type Beautifier interface {
	Tree(ctx context.Context, root string) (int, error)
}

// Archiver stores snapshots of checks that found changes.
type Archiver interface {
	Save(cacheDir, cloneDir string, r *types.Report) (*archive.Entry, error)
	WriteReport(id string, r *types.Report) error
}

// HistoryStore records the outcome of every run.
type HistoryStore interface {
	Latest(site string) (*history.Record, error)
	Append(rec *history.Record) error
}

// Checker runs checks below a work directory. Only the mirror and the
// renderer are required; every other collaborator is skipped when unset.
type Checker struct {
	workDir    string
	mirror     Mirrorer
	renderer   render.Renderer
	beautifier Beautifier
	archive    Archiver
	publisher  publish.Publisher
	notifier   notify.Notifier
	history    HistoryStore
	format     notify.FormatOptions
	workers    tuner.OptimalConfig
	now        func() time.Time
}

// Option configures a Checker.
type Option func(*Checker)

// WithBeautifier beautifies scripts in every clone before hashing.
func WithBeautifier(b Beautifier) Option {
	return func(c *Checker) { c.beautifier = b }
}

// WithArchive saves a snapshot for every run with changes.
func WithArchive(a Archiver) Option {
	return func(c *Checker) { c.archive = a }
}

// WithPublisher publishes saved snapshots. It has no effect without an
// archive.
func WithPublisher(p publish.Publisher) Option {
	return func(c *Checker) { c.publisher = p }
}

// WithNotifier posts the chat message for every run with changes.
func WithNotifier(n notify.Notifier) Option {
	return func(c *Checker) { c.notifier = n }
}

// WithHistory records every run.
func WithHistory(h HistoryStore) Option {
	return func(c *Checker) { c.history = h }
}

// WithFormat sets the chat message options.
func WithFormat(opts notify.FormatOptions) Option {
	return func(c *Checker) { c.format = opts }
}

// WithWorkers sets the hashing and rendering pool sizes.
func WithWorkers(w tuner.OptimalConfig) Option {
	return func(c *Checker) { c.workers = w }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Checker) { c.now = now }
}

// New returns a Checker that keeps captures below workDir.
func New(workDir string, m Mirrorer, r render.Renderer, opts ...Option) *Checker {
	c := &Checker{
		workDir:  workDir,
		mirror:   m,
		renderer: r,
		workers:  tuner.Calculate(tuner.SystemResources{CPUCores: runtime.NumCPU()}),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check runs one complete check of site. Any error aborts the run and
// leaves the cached capture untouched. A mirror failure is returned as the
// *mirror.MirrorError itself.
func (c *Checker) Check(ctx context.Context, site config.Site) (*types.Report, error) {
	base, err := site.Base()
	if err != nil {
		return nil, err
	}
	name := site.DisplayName()
	log := logging.Get("pipeline").With("site", name)
	start := c.now()

	cloneDir := manifest.CloneDir(c.workDir, base)
	cacheDir := manifest.CacheDir(c.workDir, base)

	if err := os.RemoveAll(cloneDir); err != nil {
		return nil, fmt.Errorf("removing stale clone: %w", err)
	}
	if err := os.MkdirAll(cloneDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating clone directory: %w", err)
	}

	log.Info("mirroring", "url", site.URL)
	mirrored, err := c.mirror.Mirror(ctx, site.URL, cloneDir)
	if err != nil {
		return nil, err
	}

	if c.beautifier != nil {
		if _, err := c.beautifier.Tree(ctx, cloneDir); err != nil {
			return nil, fmt.Errorf("beautifying scripts: %w", err)
		}
	}

	baseline := false
	if _, err := os.Stat(cacheDir); errors.Is(err, os.ErrNotExist) {
		baseline = true
	} else if err != nil {
		return nil, fmt.Errorf("checking cache: %w", err)
	}

	cached, cloned, err := c.manifests(ctx, base, cacheDir, cloneDir, baseline)
	if err != nil {
		return nil, err
	}

	report := differ.Compare(cached, cloned, differ.NewIgnoreList(site.Ignore...))
	report.Site = name
	report.URL = site.URL
	report.StartedAt = start
	report.Baseline = baseline
	report.MirrorWarnings = mirrored.NotFound

	diffs, err := c.renderDiffs(ctx, report.ChangedFiles, cacheDir, cloneDir)
	if err != nil {
		return nil, err
	}
	report.HTMLDiffs = diffs

	if baseline {
		log.Info("baseline captured", "files", len(cloned))
	} else if report.HasChanges() {
		added, removed, changed, ignored := report.Counts()
		log.Info("changes detected", "new", added, "deleted", removed, "changed", changed, "ignored", ignored)
		if err := c.deliver(ctx, report, cacheDir, cloneDir); err != nil {
			return nil, err
		}
	} else {
		log.Info("no changes", "ignored", len(report.IgnoredFiles))
	}

	report.Duration = c.now().Sub(start)

	if err := c.record(report); err != nil {
		return nil, err
	}

	if err := promote(cloneDir, cacheDir); err != nil {
		return nil, err
	}

	return report, nil
}

// CheckAll checks every site in order. A failing site does not stop the
// others; the failures are joined into the returned error.
func (c *Checker) CheckAll(ctx context.Context, sites []config.Site) ([]*types.Report, error) {
	var (
		reports []*types.Report
		errs    []error
	)
	for _, site := range sites {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		report, err := c.Check(ctx, site)
		if err != nil {
			logging.Get("pipeline").Error("check failed", "site", site.DisplayName(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", site.DisplayName(), err))
			continue
		}
		reports = append(reports, report)
	}
	return reports, errors.Join(errs...)
}

// manifests builds the cached and cloned manifests concurrently. The
// cached manifest is empty for a baseline run.
func (c *Checker) manifests(ctx context.Context, base, cacheDir, cloneDir string, baseline bool) (cached, cloned types.Manifest, err error) {
	opts := manifest.Options{Workers: c.workers.HashWorkers}

	g, gctx := errgroup.WithContext(ctx)
	if !baseline {
		g.Go(func() error {
			m, err := manifest.Build(gctx, cacheDir, base, opts)
			if err != nil {
				return fmt.Errorf("building cache manifest: %w", err)
			}
			cached = m
			return nil
		})
	}
	g.Go(func() error {
		m, err := manifest.Build(gctx, cloneDir, base, opts)
		if err != nil {
			return fmt.Errorf("building clone manifest: %w", err)
		}
		cloned = m
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if cached == nil {
		cached = types.Manifest{}
	}
	return cached, cloned, nil
}

// renderDiffs renders one fragment per changed record. Directory records
// get an empty fragment so the result lines up with changed.
func (c *Checker) renderDiffs(ctx context.Context, changed []types.FileRecord, cacheDir, cloneDir string) ([]string, error) {
	diffs := make([]string, len(changed))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(c.workers.RenderWorkers, 1))
	for i, rec := range changed {
		if rec.Kind != types.KindFile {
			continue
		}
		g.Go(func() error {
			rel := filepath.FromSlash(rec.ComparePath)
			fragment, err := c.renderer.Render(gctx, filepath.Join(cacheDir, rel), filepath.Join(cloneDir, rel), rec.ComparePath)
			if err != nil {
				return fmt.Errorf("rendering diff of %s: %w", rec.ComparePath, err)
			}
			diffs[i] = fragment
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return diffs, nil
}

// deliver archives, publishes and announces a report with changes. The
// archived report is final before it is published, so uploaded copies carry
// the link and the message.
func (c *Checker) deliver(ctx context.Context, report *types.Report, cacheDir, cloneDir string) error {
	log := logging.Get("pipeline").With("site", report.Site)

	var entry *archive.Entry
	if c.archive != nil {
		var err error
		entry, err = c.archive.Save(cacheDir, cloneDir, report)
		if err != nil {
			return fmt.Errorf("archiving snapshot: %w", err)
		}
		if c.publisher != nil {
			report.Location = c.publisher.Location(entry)
		}
	}

	report.SlackMessage = notify.Format(report, c.format)

	if entry != nil {
		if err := c.archive.WriteReport(entry.ID, report); err != nil {
			return fmt.Errorf("updating archived report: %w", err)
		}
		if c.publisher != nil {
			if err := c.publisher.Publish(ctx, entry); err != nil {
				return fmt.Errorf("publishing snapshot: %w", err)
			}
		}
	}

	if c.notifier != nil {
		if err := c.notifier.Post(ctx, report.SlackMessage); err != nil {
			return fmt.Errorf("posting notification: %w", err)
		}
		log.Info("notification sent")
	}
	return nil
}

// record appends the run to the history store.
func (c *Checker) record(report *types.Report) error {
	if c.history == nil {
		return nil
	}

	rec := &history.Record{
		Site:       report.Site,
		Timestamp:  report.StartedAt,
		Duration:   report.Duration,
		RootDigest: report.ClonedRootHash,
		ArchiveID:  report.ArchiveID,
		Baseline:   report.Baseline,
	}
	rec.New, rec.Deleted, rec.Changed, rec.Ignored = report.Counts()

	prev, err := c.history.Latest(report.Site)
	switch {
	case err == nil:
		rec.PreviousDigest = prev.RootDigest
	case !errors.Is(err, history.ErrNotFound):
		return fmt.Errorf("reading history: %w", err)
	}

	if err := c.history.Append(rec); err != nil {
		return fmt.Errorf("recording history: %w", err)
	}
	return nil
}

// promote replaces the cache with the clone.
func promote(cloneDir, cacheDir string) error {
	if err := os.RemoveAll(cacheDir); err != nil {
		return fmt.Errorf("removing old cache: %w", err)
	}
	if err := os.Rename(cloneDir, cacheDir); err != nil {
		return fmt.Errorf("promoting clone: %w", err)
	}
	return nil
}
