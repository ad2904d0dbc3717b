package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/sitewatch/pkg/sitewatch/archive"
	"github.com/jamesainslie/sitewatch/pkg/sitewatch/config"
	"github.com/jamesainslie/sitewatch/pkg/sitewatch/history"
	"github.com/jamesainslie/sitewatch/pkg/sitewatch/mirror"
	"github.com/jamesainslie/sitewatch/pkg/sitewatch/notify"
	"github.com/jamesainslie/sitewatch/pkg/sitewatch/publish"
	"github.com/jamesainslie/sitewatch/pkg/sitewatch/render"
	"github.com/jamesainslie/sitewatch/pkg/sitewatch/tuner"
	"github.com/jamesainslie/sitewatch/pkg/sitewatch/types"
)

// fakeMirror writes pages into the target directory.
type fakeMirror struct {
	mu       sync.Mutex
	pages    map[string]string
	notFound []string
	err      error
	calls    int
}

func (m *fakeMirror) set(pages map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages = pages
}

func (m *fakeMirror) Mirror(_ context.Context, url, dir string) (*mirror.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	if m.err != nil {
		return nil, &mirror.MirrorError{URL: url, Output: "ERROR 500: Internal Server Error.", Err: m.err}
	}
	for rel, content := range m.pages {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			return nil, err
		}
	}
	return &mirror.Result{NotFound: m.notFound}, nil
}

type fakeNotifier struct {
	messages []string
	err      error
}

func (n *fakeNotifier) Post(_ context.Context, text string) error {
	if n.err != nil {
		return n.err
	}
	n.messages = append(n.messages, text)
	return nil
}

// capturePublisher records the archived report as it is at upload time.
type capturePublisher struct {
	publish.LinkPublisher
	uploaded []types.Report
}

func (p *capturePublisher) Publish(_ context.Context, entry *archive.Entry) error {
	data, err := os.ReadFile(filepath.Join(entry.Dir, archive.ReportFile))
	if err != nil {
		return err
	}
	var r types.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	p.uploaded = append(p.uploaded, r)
	return nil
}

type fakeBeautifier struct {
	roots []string
}

func (b *fakeBeautifier) Tree(_ context.Context, root string) (int, error) {
	b.roots = append(b.roots, root)
	return 0, nil
}

type harness struct {
	workDir  string
	mirror   *fakeMirror
	notifier *fakeNotifier
	archive  *archive.Archive
	history  *history.Store
	checker  *Checker
}

func newHarness(t *testing.T, extra ...Option) *harness {
	t.Helper()

	arch, err := archive.New(t.TempDir())
	require.NoError(t, err)

	store, err := history.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	h := &harness{
		workDir:  t.TempDir(),
		mirror:   &fakeMirror{},
		notifier: &fakeNotifier{},
		archive:  arch,
		history:  store,
	}

	opts := []Option{
		WithArchive(arch),
		WithPublisher(publish.LinkPublisher{Base: "https://diffs.example.com"}),
		WithNotifier(h.notifier),
		WithHistory(store),
		WithFormat(notify.FormatOptions{Mention: "<!here>"}),
		WithWorkers(tuner.OptimalConfig{HashWorkers: 2, RenderWorkers: 2, ProcessWorkers: 1}),
	}
	h.checker = New(h.workDir, h.mirror, render.NewHTMLRenderer(), append(opts, extra...)...)
	return h
}

var site = config.Site{
	Name:   "docs",
	URL:    "https://docs.example.com/",
	Ignore: []string{"sitemap.xml"},
}

var firstCapture = map[string]string{
	"index.html":   "<h1>Docs</h1>\n<p>Welcome</p>\n",
	"old.html":     "<p>retired</p>\n",
	"sitemap.xml":  "<urlset>1</urlset>\n",
	"css/site.css": "body { color: black; }\n",
}

var secondCapture = map[string]string{
	"index.html":   "<h1>Docs</h1>\n<p>Welcome back</p>\n",
	"new.html":     "<p>fresh</p>\n",
	"sitemap.xml":  "<urlset>2</urlset>\n",
	"css/site.css": "body { color: black; }\n",
}

func paths(records []types.FileRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ComparePath
	}
	return out
}

func TestCheck_Baseline(t *testing.T) {
	h := newHarness(t)
	h.mirror.set(firstCapture)

	report, err := h.checker.Check(context.Background(), site)
	require.NoError(t, err)

	assert.True(t, report.Baseline)
	assert.Equal(t, "docs", report.Site)
	assert.Empty(t, report.CachedManifest)
	assert.Len(t, report.NewFiles, 5, "four files and the css directory")
	assert.Empty(t, report.ArchiveID)
	assert.Empty(t, report.SlackMessage)
	assert.Empty(t, h.notifier.messages)

	entries, err := h.archive.List("", 0)
	require.NoError(t, err)
	assert.Empty(t, entries)

	assert.FileExists(t, filepath.Join(h.workDir, "docs.example.com.cache", "index.html"))
	assert.NoDirExists(t, filepath.Join(h.workDir, "docs.example.com.clone"))

	rec, err := h.history.Latest("docs")
	require.NoError(t, err)
	assert.True(t, rec.Baseline)
	assert.Equal(t, report.ClonedRootHash, rec.RootDigest)
	assert.Empty(t, rec.PreviousDigest)
}

func TestCheck_Changes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.mirror.set(firstCapture)
	first, err := h.checker.Check(ctx, site)
	require.NoError(t, err)

	h.mirror.set(secondCapture)
	report, err := h.checker.Check(ctx, site)
	require.NoError(t, err)

	assert.False(t, report.Baseline)
	assert.Equal(t, first.ClonedRootHash, report.CachedRootHash)
	assert.Equal(t, []string{"new.html"}, paths(report.NewFiles))
	assert.Equal(t, []string{"old.html"}, paths(report.DeletedFiles))
	assert.Equal(t, []string{"index.html"}, paths(report.ChangedFiles))
	assert.Equal(t, []string{"sitemap.xml"}, paths(report.IgnoredFiles))

	require.Len(t, report.HTMLDiffs, 1)
	assert.Contains(t, report.HTMLDiffs[0], "Welcome back")

	require.NotEmpty(t, report.ArchiveID)
	assert.Equal(t, "https://diffs.example.com/docs/"+report.ArchiveID+"/diff.html", report.Location)

	require.Len(t, h.notifier.messages, 1)
	assert.Equal(t, report.SlackMessage, h.notifier.messages[0])
	assert.True(t, strings.HasPrefix(report.SlackMessage, "<!here> "))
	assert.Contains(t, report.SlackMessage, "<"+report.Location+"|View diff>")

	archived, err := h.archive.Report(report.ArchiveID)
	require.NoError(t, err)
	assert.Equal(t, report.Location, archived.Location, "archived report is rewritten after publishing")
	assert.Equal(t, report.SlackMessage, archived.SlackMessage)

	content, err := os.ReadFile(filepath.Join(h.workDir, "docs.example.com.cache", "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "Welcome back", "clone is promoted to cache")
	assert.NoFileExists(t, filepath.Join(h.workDir, "docs.example.com.cache", "old.html"))

	records, err := h.history.List("docs", 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, first.ClonedRootHash, records[0].PreviousDigest)
	assert.Equal(t, report.ArchiveID, records[0].ArchiveID)
	assert.Equal(t, 1, records[0].Changed)
	assert.Equal(t, 1, records[0].Ignored)
}

func TestCheck_DirectoryFragments(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.mirror.set(firstCapture)
	_, err := h.checker.Check(ctx, site)
	require.NoError(t, err)

	changed := map[string]string{}
	for k, v := range firstCapture {
		changed[k] = v
	}
	changed["css/site.css"] = "body { color: red; }\n"
	h.mirror.set(changed)

	report, err := h.checker.Check(ctx, site)
	require.NoError(t, err)

	require.Equal(t, []string{"css", "css/site.css"}, paths(report.ChangedFiles))
	require.Len(t, report.HTMLDiffs, 2)
	assert.Empty(t, report.HTMLDiffs[0], "directories have no fragment")
	assert.Contains(t, report.HTMLDiffs[1], "color: red")
}

func TestCheck_NoChanges(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.mirror.set(firstCapture)
	_, err := h.checker.Check(ctx, site)
	require.NoError(t, err)

	unchanged := map[string]string{}
	for k, v := range firstCapture {
		unchanged[k] = v
	}
	unchanged["sitemap.xml"] = "<urlset>99</urlset>\n"
	h.mirror.set(unchanged)

	report, err := h.checker.Check(ctx, site)
	require.NoError(t, err)

	assert.False(t, report.HasChanges())
	assert.Equal(t, []string{"sitemap.xml"}, paths(report.IgnoredFiles))
	assert.Empty(t, report.ArchiveID)
	assert.Empty(t, h.notifier.messages)
}

func TestCheck_IgnoredNestedFileOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	scripts := config.Site{Name: "docs", URL: site.URL, Ignore: []string{"js/build.js"}}

	capture := map[string]string{
		"index.html":  "<h1>Docs</h1>\n",
		"js/app.js":   "var a = 1;\n",
		"js/build.js": "var build = 1;\n",
	}
	h.mirror.set(capture)
	_, err := h.checker.Check(ctx, scripts)
	require.NoError(t, err)

	rebuilt := map[string]string{}
	for k, v := range capture {
		rebuilt[k] = v
	}
	rebuilt["js/build.js"] = "var build = 2;\n"
	h.mirror.set(rebuilt)

	report, err := h.checker.Check(ctx, scripts)
	require.NoError(t, err)

	assert.Empty(t, report.ChangedFiles)
	assert.Empty(t, report.HTMLDiffs)
	assert.ElementsMatch(t, []string{"js/build.js", "js"}, paths(report.IgnoredFiles))
	assert.False(t, report.HasChanges())
	assert.Empty(t, report.ArchiveID)
	assert.Empty(t, h.notifier.messages)

	entries, err := h.archive.List("", 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCheck_PublishesFinalReport(t *testing.T) {
	pub := &capturePublisher{LinkPublisher: publish.LinkPublisher{Base: "https://diffs.example.com"}}
	h := newHarness(t, WithPublisher(pub))
	ctx := context.Background()

	h.mirror.set(firstCapture)
	_, err := h.checker.Check(ctx, site)
	require.NoError(t, err)
	assert.Empty(t, pub.uploaded, "baselines are not published")

	h.mirror.set(secondCapture)
	report, err := h.checker.Check(ctx, site)
	require.NoError(t, err)

	require.Len(t, pub.uploaded, 1)
	uploaded := pub.uploaded[0]
	assert.Equal(t, "https://diffs.example.com/docs/"+report.ArchiveID+"/diff.html", uploaded.Location)
	assert.Equal(t, report.Location, uploaded.Location)
	assert.Equal(t, report.SlackMessage, uploaded.SlackMessage)
	assert.NotEmpty(t, uploaded.SlackMessage)
}

func TestCheck_MirrorFailureKeepsCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.mirror.set(firstCapture)
	_, err := h.checker.Check(ctx, site)
	require.NoError(t, err)

	h.mirror.err = errors.New("exit status 8")
	_, err = h.checker.Check(ctx, site)
	require.Error(t, err)

	var mirrorErr *mirror.MirrorError
	require.True(t, errors.As(err, &mirrorErr))
	assert.Equal(t, site.URL, mirrorErr.URL)

	assert.FileExists(t, filepath.Join(h.workDir, "docs.example.com.cache", "old.html"))

	records, err := h.history.List("docs", 0)
	require.NoError(t, err)
	assert.Len(t, records, 1, "failed runs are not recorded")
}

func TestCheck_NotifyFailureKeepsCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.mirror.set(firstCapture)
	_, err := h.checker.Check(ctx, site)
	require.NoError(t, err)

	h.notifier.err = errors.New("webhook returned 500")
	h.mirror.set(secondCapture)
	_, err = h.checker.Check(ctx, site)
	require.ErrorContains(t, err, "posting notification")

	assert.FileExists(t, filepath.Join(h.workDir, "docs.example.com.cache", "old.html"))
}

func TestCheck_MirrorWarnings(t *testing.T) {
	h := newHarness(t)
	h.mirror.set(firstCapture)
	h.mirror.notFound = []string{"https://docs.example.com/missing.png"}

	report, err := h.checker.Check(context.Background(), site)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://docs.example.com/missing.png"}, report.MirrorWarnings)
}

func TestCheck_Beautifier(t *testing.T) {
	b := &fakeBeautifier{}
	h := newHarness(t, WithBeautifier(b))
	h.mirror.set(firstCapture)

	_, err := h.checker.Check(context.Background(), site)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(h.workDir, "docs.example.com.clone")}, b.roots)
}

func TestCheck_StaleCloneRemoved(t *testing.T) {
	h := newHarness(t)
	stale := filepath.Join(h.workDir, "docs.example.com.clone", "leftover.html")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0o755))
	require.NoError(t, os.WriteFile(stale, []byte("stale"), 0o644))

	h.mirror.set(firstCapture)
	report, err := h.checker.Check(context.Background(), site)
	require.NoError(t, err)
	assert.NotContains(t, paths(report.ClonedManifest), "leftover.html")
}

func TestCheck_WithoutCollaborators(t *testing.T) {
	workDir := t.TempDir()
	m := &fakeMirror{}
	c := New(workDir, m, render.NewHTMLRenderer())
	ctx := context.Background()

	m.set(firstCapture)
	_, err := c.Check(ctx, site)
	require.NoError(t, err)

	m.set(secondCapture)
	report, err := c.Check(ctx, site)
	require.NoError(t, err)
	assert.True(t, report.HasChanges())
	assert.Empty(t, report.ArchiveID)
	assert.Empty(t, report.Location)
	assert.NotEmpty(t, report.SlackMessage)
}

func TestCheckAll(t *testing.T) {
	h := newHarness(t)
	h.mirror.set(firstCapture)

	sites := []config.Site{
		{Name: "broken", URL: "ftp://example.com/"},
		site,
	}
	reports, err := h.checker.CheckAll(context.Background(), sites)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	require.Len(t, reports, 1)
	assert.Equal(t, "docs", reports[0].Site)
	assert.Equal(t, 1, h.mirror.calls)
}

func TestCheckAll_Cancelled(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reports, err := h.checker.CheckAll(ctx, []config.Site{site})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, reports)
	assert.Zero(t, h.mirror.calls)
}
