// Package watcher turns filesystem notifications under the vault into
// document store events for the reconciliation engine.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/herald/internal/reconcile"
	"github.com/starford/herald/internal/storage"
)

// DefaultRenameWindow is how long a Rename waits for the matching Create.
const DefaultRenameWindow = 200 * time.Millisecond

// Option configures a Watcher.
type Option func(*Watcher)

// WithRenameWindow sets the rename pairing window.
func WithRenameWindow(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.window = d
		}
	}
}

// Watcher watches every non-hidden directory of a vault.
type Watcher struct {
	store  *storage.FS
	window time.Duration
	logger *slog.Logger
}

// New creates a Watcher over the store root.
func New(store *storage.FS, logger *slog.Logger, opts ...Option) *Watcher {
	w := &Watcher{store: store, window: DefaultRenameWindow, logger: logger}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

type pendingRename struct {
	path     string
	deadline time.Time
}

// loop holds the state owned by one Watch call.
type loop struct {
	*Watcher
	fsw     *fsnotify.Watcher
	out     chan<- reconcile.Event
	dirs    map[string]struct{}
	pending []pendingRename
	timer   *time.Timer
	timerC  <-chan time.Time
}

// Watch emits events on out until ctx is cancelled. A Rename followed by a
// Create within the rename window becomes one Renamed event; a Rename left
// unpaired becomes Deleted. Moving or removing a directory emits Rescan.
func (w *Watcher) Watch(ctx context.Context, out chan<- reconcile.Event) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	l := &loop{Watcher: w, fsw: fsw, out: out, dirs: make(map[string]struct{})}
	if err := l.addDirs(w.store.Root()); err != nil {
		return err
	}
	w.logger.Info("watcher: started", slog.String("root", w.store.Root()), slog.Duration("rename_window", w.window))

	for {
		select {
		case <-ctx.Done():
			if l.timer != nil {
				l.timer.Stop()
			}
			w.logger.Info("watcher: stopped")
			return nil

		case now := <-l.timerC:
			if !l.expire(ctx, now) {
				return nil
			}

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !l.handle(ctx, ev) {
				return nil
			}

		case watchErr, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// handle processes one notification. It returns false once ctx is done.
func (l *loop) handle(ctx context.Context, ev fsnotify.Event) bool {
	abs := ev.Name

	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(abs); err == nil && info.IsDir() {
			if storage.IsHiddenDir(filepath.Base(abs)) {
				return true
			}
			if err := l.addDirs(abs); err != nil {
				l.logger.Warn("watcher: add new dir failed", slog.String("path", abs), slog.String("error", err.Error()))
			}
			return l.emitDir(ctx, abs)
		}
	}

	if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 && l.dropDir(abs) {
		l.logger.Debug("watcher: directory gone", slog.String("path", abs))
		return l.send(ctx, reconcile.Event{Kind: reconcile.Rescan})
	}

	if !storage.IsDocument(abs) {
		return true
	}
	rel, err := l.store.Identity(abs)
	if err != nil {
		return true
	}

	switch {
	case ev.Op&fsnotify.Create != 0:
		if l.dropPending(rel) {
			// Replaced in place, as editors do when saving through a backup.
			return l.send(ctx, reconcile.Event{Kind: reconcile.Upserted, Path: rel})
		}
		if old, ok := l.takePending(); ok {
			return l.send(ctx, reconcile.Event{Kind: reconcile.Renamed, OldPath: old, Path: rel})
		}
		return l.send(ctx, reconcile.Event{Kind: reconcile.Upserted, Path: rel})

	case ev.Op&fsnotify.Write != 0:
		return l.send(ctx, reconcile.Event{Kind: reconcile.Upserted, Path: rel})

	case ev.Op&fsnotify.Remove != 0:
		return l.send(ctx, reconcile.Event{Kind: reconcile.Deleted, Path: rel})

	case ev.Op&fsnotify.Rename != 0:
		// fsnotify reports the old path only; the new one arrives as Create.
		l.pending = append(l.pending, pendingRename{path: rel, deadline: time.Now().Add(l.window)})
		l.arm()
	}
	return true
}

// dropPending discards a pending rename of path itself.
func (l *loop) dropPending(path string) bool {
	for i, p := range l.pending {
		if p.path == path {
			l.pending = append(l.pending[:i], l.pending[i+1:]...)
			l.arm()
			return true
		}
	}
	return false
}

// takePending pops the oldest unpaired rename.
func (l *loop) takePending() (string, bool) {
	if len(l.pending) == 0 {
		return "", false
	}
	old := l.pending[0].path
	l.pending = l.pending[1:]
	l.arm()
	return old, true
}

// expire turns renames past their deadline into deletions.
func (l *loop) expire(ctx context.Context, now time.Time) bool {
	l.timerC = nil
	for len(l.pending) > 0 && !now.Before(l.pending[0].deadline) {
		old := l.pending[0].path
		l.pending = l.pending[1:]
		if !l.send(ctx, reconcile.Event{Kind: reconcile.Deleted, Path: old}) {
			return false
		}
	}
	l.arm()
	return true
}

// arm points the timer at the oldest pending deadline.
func (l *loop) arm() {
	if l.timer != nil {
		l.timer.Stop()
	}
	if len(l.pending) == 0 {
		l.timerC = nil
		return
	}
	d := time.Until(l.pending[0].deadline)
	if l.timer == nil {
		l.timer = time.NewTimer(d)
	} else {
		l.timer.Reset(d)
	}
	l.timerC = l.timer.C
}

func (l *loop) send(ctx context.Context, ev reconcile.Event) bool {
	l.logger.Debug("watcher: event", slog.String("kind", ev.Kind.String()), slog.String("path", ev.Path))
	select {
	case l.out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// emitDir reports every document already inside a newly created directory.
func (l *loop) emitDir(ctx context.Context, dir string) bool {
	ok := true
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if p != dir && storage.IsHiddenDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !storage.IsDocument(p) {
			return nil
		}
		rel, relErr := l.store.Identity(p)
		if relErr != nil {
			return nil
		}
		if !l.send(ctx, reconcile.Event{Kind: reconcile.Upserted, Path: rel}) {
			ok = false
			return filepath.SkipAll
		}
		return nil
	})
	return ok
}

// addDirs watches root and its non-hidden subdirectories.
func (l *loop) addDirs(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && storage.IsHiddenDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := l.fsw.Add(p); err != nil {
			return err
		}
		l.dirs[p] = struct{}{}
		return nil
	})
}

// dropDir forgets a watched directory and everything below it. It reports
// whether abs was being watched.
func (l *loop) dropDir(abs string) bool {
	if _, ok := l.dirs[abs]; !ok {
		return false
	}
	prefix := abs + string(filepath.Separator)
	for d := range l.dirs {
		if d == abs || strings.HasPrefix(d, prefix) {
			delete(l.dirs, d)
			_ = l.fsw.Remove(d)
		}
	}
	return true
}
