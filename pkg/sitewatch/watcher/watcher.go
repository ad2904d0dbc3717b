// Package watcher reports changes to individual files, such as the
// configuration file of a running watch loop.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jamesainslie/sitewatch/pkg/sitewatch/logging"
)

// DefaultDebounce is how long the watcher waits for a burst of events on
// a file to settle before reporting it.
const DefaultDebounce = 250 * time.Millisecond

// relevantOps are the operations that can change a file's content.
const relevantOps = fsnotify.Create | fsnotify.Write | fsnotify.Rename | fsnotify.Remove

// Watcher watches files through their parent directories, so files that
// editors replace by renaming keep being watched.
type Watcher struct {
	watcher  *fsnotify.Watcher
	files    map[string]bool
	dirs     map[string]int
	debounce time.Duration
	mu       sync.RWMutex
	closed   bool
}

// New creates a new Watcher.
func New() (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		watcher:  fsw,
		files:    make(map[string]bool),
		dirs:     make(map[string]int),
		debounce: DefaultDebounce,
	}, nil
}

// SetDebounce sets the settle time. Zero reports every event immediately.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounce = d
}

// Watch starts watching a file. The file does not need to exist yet, but
// its directory does.
func (w *Watcher) Watch(file string) error {
	abs, err := filepath.Abs(file)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)

	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return &os.PathError{Op: "watch", Path: dir, Err: os.ErrInvalid}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || w.files[abs] {
		return nil
	}

	if w.dirs[dir] == 0 {
		if err := w.watcher.Add(dir); err != nil {
			logging.Get("watcher").Warn("failed to add watch", "path", dir, "error", err)
			return err
		}
	}
	w.dirs[dir]++
	w.files[abs] = true
	return nil
}

// Unwatch stops watching a file.
func (w *Watcher) Unwatch(file string) {
	abs, err := filepath.Abs(file)
	if err != nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || !w.files[abs] {
		return
	}
	delete(w.files, abs)

	dir := filepath.Dir(abs)
	w.dirs[dir]--
	if w.dirs[dir] <= 0 {
		_ = w.watcher.Remove(dir)
		delete(w.dirs, dir)
	}
}

// Files returns the watched files, sorted.
func (w *Watcher) Files() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	files := make([]string, 0, len(w.files))
	for f := range w.files {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

// Run starts the event loop. It blocks until the context is cancelled or
// the watcher is closed. onChange is called from the loop with the
// absolute path of every watched file that changed, once per burst.
func (w *Watcher) Run(ctx context.Context, onChange func(path string)) {
	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		pending = make(map[string]bool)
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	flush := func() {
		paths := make([]string, 0, len(pending))
		for p := range pending {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		clear(pending)
		for _, p := range paths {
			logging.Get("watcher").Debug("file changed", "path", p)
			if onChange != nil {
				onChange(p)
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			pending[filepath.Clean(event.Name)] = true

			w.mu.RLock()
			debounce := w.debounce
			w.mu.RUnlock()
			if debounce <= 0 {
				flush()
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			flush()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Get("watcher").Error("watcher error", "error", err)
		}
	}
}

// relevant reports whether event may have changed a watched file.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&relevantOps == 0 {
		return false
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.files[filepath.Clean(event.Name)]
}

// Close closes the watcher and releases resources.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	w.closed = true
	w.files = make(map[string]bool)
	w.dirs = make(map[string]int)
	return w.watcher.Close()
}
