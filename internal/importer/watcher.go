package importer

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// Watcher re-imports manifests when they are created or written under its roots.
// Bursts of writes to one file are collapsed into a single import.
type Watcher struct {
	importer  *Importer
	roots     []string
	recursive bool
	debounce  time.Duration
	onImport  func(path string, res *Result, err error)
	logger    *zap.Logger // optional; when set, logs debug events

	mu       sync.Mutex
	fs       *fsnotify.Watcher
	pending  map[string]*time.Timer
	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatchLogger sets a logger for watcher events.
func WithWatchLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets how long a file must be quiet before it is imported.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// WithImportHook is called after every import the watcher runs.
func WithImportHook(fn func(path string, res *Result, err error)) WatcherOption {
	return func(w *Watcher) { w.onImport = fn }
}

// NewWatcher creates a watcher over roots. Missing roots are created on Start.
func NewWatcher(imp *Importer, roots []string, recursive bool, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		importer:  imp,
		roots:     roots,
		recursive: recursive,
		debounce:  defaultDebounce,
		pending:   make(map[string]*time.Timer),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. It returns once the roots are registered; events are handled
// until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for _, root := range w.roots {
		if err := os.MkdirAll(root, 0755); err != nil {
			_ = fsw.Close()
			return err
		}
		if err := w.addTree(fsw, root); err != nil {
			_ = fsw.Close()
			return err
		}
	}
	w.mu.Lock()
	w.fs = fsw
	w.mu.Unlock()
	if w.logger != nil {
		w.logger.Debug("manifest watcher started", zap.Strings("roots", w.roots), zap.Bool("recursive", w.recursive))
	}
	go w.run(ctx, fsw)
	return nil
}

func (w *Watcher) addTree(fsw *fsnotify.Watcher, root string) error {
	if !w.recursive {
		return fsw.Add(root)
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		return nil
	})
}

func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handle(ctx, fsw, ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			if w.logger != nil {
				w.logger.Debug("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handle(ctx context.Context, fsw *fsnotify.Watcher, ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}
	if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
		if w.recursive {
			if err := w.addTree(fsw, ev.Name); err != nil && w.logger != nil {
				w.logger.Debug("watcher failed to add directory", zap.String("path", ev.Name), zap.Error(err))
			}
			// Files may have landed before the directory was watched.
			go w.importTree(ctx, ev.Name)
		}
		return
	}
	if strings.HasPrefix(filepath.Base(ev.Name), "~$") || !w.importer.Accepts(ev.Name) {
		return
	}
	w.schedule(ctx, ev.Name)
}

func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.importOne(ctx, path)
	})
}

func (w *Watcher) importOne(ctx context.Context, path string) {
	res, err := w.importer.ImportFile(ctx, path)
	if w.logger != nil {
		if err != nil {
			w.logger.Warn("manifest import failed", zap.String("path", path), zap.Error(err))
		} else {
			w.logger.Info("manifest imported", zap.String("path", path), zap.Int("imported", res.Imported), zap.Int("skipped", res.Skipped))
		}
	}
	if w.onImport != nil {
		w.onImport(path, res, err)
	}
}

func (w *Watcher) importTree(ctx context.Context, dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !w.importer.Accepts(path) {
			return nil
		}
		w.importOne(ctx, path)
		return nil
	})
}

// Stop stops watching and drops imports that have not started yet.
func (w *Watcher) Stop() {
	w.mu.Lock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	fsw := w.fs
	w.fs = nil
	w.mu.Unlock()
	if fsw != nil {
		_ = fsw.Close()
	}
	w.stopOnce.Do(func() { close(w.done) })
}
