package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nesall/ragd/internal/gitignore"
)

// Options configures a Watcher.
type Options struct {
	// DebounceWindow coalesces a burst of filesystem activity into a single
	// pulse on Changes().
	DebounceWindow time.Duration
	// PollInterval is how often the fallback fingerprint scan runs when
	// fsnotify is unavailable.
	PollInterval time.Duration
	// IgnorePatterns are extra gitignore-syntax patterns applied on top of
	// the watched tree's own .gitignore.
	IgnorePatterns []string
}

// DefaultOptions returns sensible defaults for interactive use.
func DefaultOptions() Options {
	return Options{
		DebounceWindow: 200 * time.Millisecond,
		PollInterval:   5 * time.Second,
	}
}

// WithDefaults fills zero-valued fields with DefaultOptions.
func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = d.DebounceWindow
	}
	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval
	}
	return o
}

// Watcher watches a single root path and reports a debounced "something
// changed" pulse. It is not safe to Start twice.
type Watcher struct {
	fsWatcher    *fsnotify.Watcher
	useFsnotify  bool
	pollInterval time.Duration
	debounce     time.Duration
	ignore       *gitignore.Matcher
	extraIgnore  []string

	changes chan struct{}
	errors  chan error
	stopCh  chan struct{}

	rootPath string

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// New creates a Watcher, preferring fsnotify and falling back to polling
// when the platform doesn't support inotify/kqueue/ReadDirectoryChangesW.
func New(opts Options) (*Watcher, error) {
	opts = opts.WithDefaults()

	w := &Watcher{
		pollInterval: opts.PollInterval,
		debounce:     opts.DebounceWindow,
		extraIgnore:  opts.IgnorePatterns,
		changes:      make(chan struct{}, 1),
		errors:       make(chan error, 10),
		stopCh:       make(chan struct{}),
	}

	if fsw, err := fsnotify.NewWatcher(); err == nil {
		w.fsWatcher = fsw
		w.useFsnotify = true
	}

	return w, nil
}

// Start resolves path, loads its .gitignore, and begins watching. The
// filesystem setup (initial fsnotify.Add walk or initial poll scan) runs
// synchronously so Start's error return is meaningful; the watch loop
// itself runs in the background and is stopped by ctx cancellation or by
// Stop.
func (w *Watcher) Start(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	w.rootPath = abs
	w.loadIgnore()

	if w.useFsnotify {
		if err := w.addRecursive(abs); err != nil {
			return fmt.Errorf("add directories to watcher: %w", err)
		}
		go w.runFsnotify(ctx)
		return nil
	}

	fp, err := fingerprint(abs, w.shouldIgnore)
	if err != nil {
		return fmt.Errorf("initial scan: %w", err)
	}
	go w.runPolling(ctx, fp)
	return nil
}

func (w *Watcher) runFsnotify(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleFsnotifyEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.emitError(err)
		}
	}
}

func (w *Watcher) handleFsnotifyEvent(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		// chmod-only events carry no content change
		return
	}

	relPath, err := filepath.Rel(w.rootPath, event.Name)
	if err != nil {
		relPath = event.Name
	}
	isDir := false
	if info, statErr := os.Stat(event.Name); statErr == nil {
		isDir = info.IsDir()
	}

	if w.shouldIgnore(relPath, isDir) {
		return
	}

	if event.Op&fsnotify.Create != 0 && isDir {
		_ = w.fsWatcher.Add(event.Name)
	}

	w.pulse()
}

func (w *Watcher) runPolling(ctx context.Context, last string) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			fp, err := fingerprint(w.rootPath, w.shouldIgnore)
			if err != nil {
				w.emitError(fmt.Errorf("poll scan: %w", err))
				continue
			}
			if fp != last {
				last = fp
				w.pulse()
			}
		}
	}
}

// pulse schedules a single coalesced wake after the debounce window. Calls
// arriving within the window collapse into the same pending timer.
func (w *Watcher) pulse() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	stopped := w.stopped
	w.mu.Unlock()
	if stopped {
		return
	}

	select {
	case w.changes <- struct{}{}:
	default:
		// a pulse is already pending consumption; nothing new to say
	}
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		relPath, _ := filepath.Rel(w.rootPath, path)
		if relPath == "." {
			return w.fsWatcher.Add(path)
		}
		if w.shouldIgnore(relPath, true) {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(path)
	})
}

func (w *Watcher) shouldIgnore(relPath string, isDir bool) bool {
	if relPath == "." || relPath == "" {
		return true
	}
	return w.ignore.Match(relPath, isDir)
}

func (w *Watcher) loadIgnore() {
	m := gitignore.NewWithExclusions(w.extraIgnore...)
	if err := m.AddFromFile(filepath.Join(w.rootPath, ".gitignore"), ""); err != nil {
		slog.Debug("no root .gitignore loaded", slog.String("path", w.rootPath), slog.String("error", err.Error()))
	}
	w.ignore = m
}

func (w *Watcher) emitError(err error) {
	w.mu.Lock()
	stopped := w.stopped
	w.mu.Unlock()
	if stopped {
		return
	}
	select {
	case w.errors <- err:
	default:
	}
}

// Stop releases underlying resources. Safe to call more than once.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	close(w.stopCh)
	if w.useFsnotify && w.fsWatcher != nil {
		_ = w.fsWatcher.Close()
	}
	close(w.changes)
	close(w.errors)
	return nil
}

// Changes delivers one pulse per debounced burst of filesystem activity.
// It never carries detail about what changed.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

// Errors delivers non-fatal errors encountered while watching.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}
