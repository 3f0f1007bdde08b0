package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher watches a directory tree recursively.
type Watcher struct {
	root   string
	config Config
	ignore *IgnorePatterns
	logger *zap.Logger

	fsw *fsnotify.Watcher

	mu     sync.Mutex
	dirs   map[string]bool
	closed bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the watcher's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// New watches root and every directory below it that is not ignored. The
// root's .gitignore, if any, extends config.Ignore.
func New(root string, config Config, opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrPathNotExist
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, ErrNotDirectory
	}

	if config.Debounce <= 0 {
		config.Debounce = DefaultConfig().Debounce
	}

	ignore := NewIgnorePatterns(config.Ignore...)
	if err := ignore.AddFromFile(filepath.Join(abs, ".gitignore")); err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:   abs,
		config: config,
		ignore: ignore,
		logger: zap.NewNop(),
		fsw:    fsw,
		dirs:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := w.addTree(abs); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	w.logger.Debug("watching workspace", zap.String("root", abs), zap.Int("dirs", len(w.dirs)))
	return w, nil
}

// Root returns the absolute watched root.
func (w *Watcher) Root() string {
	return w.root
}

// WatchedDirs returns the watched directories, sorted.
func (w *Watcher) WatchedDirs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	dirs := make([]string, 0, len(w.dirs))
	for d := range w.dirs {
		dirs = append(dirs, d)
	}
	slices.SortFunc(dirs, strings.Compare)
	return dirs
}

// Run delivers batches of relevant changes to fn until ctx is done or the
// watcher is closed. fn runs on Run's goroutine; events arriving while it
// runs are part of the next batch.
func (w *Watcher) Run(ctx context.Context, fn func(Batch)) error {
	timer := time.NewTimer(w.config.Debounce)
	timer.Stop()
	defer timer.Stop()

	var pending collector
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return ErrWatcherClosed
			}
			e, relevant := w.convert(ev)
			if !relevant {
				continue
			}
			pending.add(e)
			timer.Reset(w.config.Debounce)
			fire = timer.C

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return ErrWatcherClosed
			}
			w.logger.Warn("watch error", zap.Error(err))

		case <-fire:
			fire = nil
			if pending.empty() {
				continue
			}
			b := pending.flush()
			w.logger.Debug("changes", zap.Strings("paths", b.Paths))
			fn(b)
		}
	}
}

// Close stops watching. Run returns ErrWatcherClosed afterwards.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()
	return w.fsw.Close()
}

// convert filters an fsnotify event. New directories are watched as a side
// effect.
func (w *Watcher) convert(ev fsnotify.Event) (Event, bool) {
	op := convertOp(ev.Op)
	if op == 0 || op == OpChmod {
		return Event{}, false
	}

	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return Event{}, false
	}

	isDir := false
	if op.Has(OpCreate) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			isDir = true
		}
	}
	if w.ignore.Match(rel, isDir) {
		return Event{}, false
	}

	if isDir {
		if err := w.addTree(ev.Name); err != nil {
			w.logger.Warn("watch new directory", zap.String("dir", ev.Name), zap.Error(err))
		}
		return Event{}, false
	}

	w.mu.Lock()
	wasDir := w.dirs[ev.Name]
	if wasDir && (op.Has(OpRemove) || op.Has(OpRename)) {
		delete(w.dirs, ev.Name)
	}
	w.mu.Unlock()
	if wasDir || !w.config.relevant(ev.Name) {
		return Event{}, false
	}

	return Event{Path: ev.Name, Op: op}, true
}

// addTree watches dir and its subdirectories, skipping ignored ones.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if rel, err := filepath.Rel(w.root, path); err == nil && w.ignore.Match(rel, true) {
			return filepath.SkipDir
		}

		w.mu.Lock()
		defer w.mu.Unlock()
		if w.closed {
			return ErrWatcherClosed
		}
		if w.dirs[path] {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			return err
		}
		w.dirs[path] = true
		return nil
	})
}

// convertOp converts fsnotify.Op to watcher.Op.
func convertOp(fsOp fsnotify.Op) Op {
	var op Op
	if fsOp.Has(fsnotify.Create) {
		op |= OpCreate
	}
	if fsOp.Has(fsnotify.Write) {
		op |= OpWrite
	}
	if fsOp.Has(fsnotify.Remove) {
		op |= OpRemove
	}
	if fsOp.Has(fsnotify.Rename) {
		op |= OpRename
	}
	if fsOp.Has(fsnotify.Chmod) {
		op |= OpChmod
	}
	return op
}
