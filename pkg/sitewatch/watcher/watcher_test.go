package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// recorder collects the paths reported by Run.
type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) add(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

// waitFor polls until at least n paths were recorded or the deadline passes.
func (r *recorder) waitFor(n int, timeout time.Duration) []string {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if got := r.snapshot(); len(got) >= n {
			return got
		}
		time.Sleep(20 * time.Millisecond)
	}
	return r.snapshot()
}

func startWatcher(t *testing.T, debounce time.Duration, files ...string) (*Watcher, *recorder) {
	t.Helper()

	w, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })
	w.SetDebounce(debounce)

	for _, f := range files {
		if err := w.Watch(f); err != nil {
			t.Fatalf("Watch(%s) error = %v", f, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	rec := &recorder{}
	go w.Run(ctx, rec.add)

	// Give watcher time to start
	time.Sleep(100 * time.Millisecond)
	return w, rec
}

func TestWatch(t *testing.T) {
	w, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer w.Close()

	dir := t.TempDir()
	a := filepath.Join(dir, "a.yaml")
	b := filepath.Join(dir, "b.yaml")

	if err := w.Watch(a); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	if err := w.Watch(b); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	if err := w.Watch(a); err != nil {
		t.Fatalf("second Watch() error = %v", err)
	}

	if got := w.Files(); len(got) != 2 || got[0] != a || got[1] != b {
		t.Errorf("Files() = %v", got)
	}
	if w.dirs[dir] != 2 {
		t.Errorf("directory refcount = %d, want 2", w.dirs[dir])
	}

	w.Unwatch(a)
	if w.dirs[dir] != 1 {
		t.Errorf("directory refcount after Unwatch = %d, want 1", w.dirs[dir])
	}
	w.Unwatch(b)
	if _, ok := w.dirs[dir]; ok {
		t.Error("directory still watched after its last file was unwatched")
	}
}

func TestWatchMissingDirectory(t *testing.T) {
	w, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer w.Close()

	if err := w.Watch(filepath.Join(t.TempDir(), "missing", "config.yaml")); err == nil {
		t.Error("Watch() should fail when the directory does not exist")
	}
}

func TestRunDetectsWrite(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(file, []byte("workers: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, rec := startWatcher(t, 0, file)

	if err := os.WriteFile(file, []byte("workers: 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got := rec.waitFor(1, 2*time.Second)
	if len(got) == 0 || got[0] != file {
		t.Errorf("Run() reported %v, want %s", got, file)
	}
}

func TestRunDetectsAtomicReplace(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(file, []byte("workers: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, rec := startWatcher(t, 50*time.Millisecond, file)

	tmp := filepath.Join(dir, ".config.yaml.swp")
	if err := os.WriteFile(tmp, []byte("workers: 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, file); err != nil {
		t.Fatal(err)
	}

	got := rec.waitFor(1, 2*time.Second)
	if len(got) != 1 || got[0] != file {
		t.Errorf("Run() reported %v, want only %s", got, file)
	}
}

func TestRunIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")

	_, rec := startWatcher(t, 0, file)

	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	time.Sleep(300 * time.Millisecond)
	if got := rec.snapshot(); len(got) != 0 {
		t.Errorf("Run() reported unrelated files: %v", got)
	}
}

func TestRunDebounces(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")

	_, rec := startWatcher(t, 200*time.Millisecond, file)

	for i := 0; i < 5; i++ {
		if err := os.WriteFile(file, []byte{byte('0' + i)}, 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if got := rec.waitFor(1, 2*time.Second); len(got) != 1 {
		t.Fatalf("Run() reported %v, want one path", got)
	}
	time.Sleep(400 * time.Millisecond)
	if got := rec.snapshot(); len(got) != 1 {
		t.Errorf("burst reported %d times, want once", len(got))
	}
}

func TestRunContextCancellation(t *testing.T) {
	w, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		w.Run(ctx, nil)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("Run() did not return after context cancellation")
	}
}

func TestClose(t *testing.T) {
	w, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := w.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := w.Watch(filepath.Join(t.TempDir(), "config.yaml")); err != nil {
		t.Errorf("Watch() after Close() error = %v", err)
	}
	if len(w.Files()) != 0 {
		t.Error("Watch() after Close() should not track files")
	}
}
