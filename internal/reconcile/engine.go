// Package reconcile keeps the tracking index consistent with the document
// store and the persisted snapshot.
//
// Two inputs drive it: full rescans (Start, Refresh) and individual store
// events (Handle, Run). A refresh requested while another is running returns
// immediately without scanning.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/starford/herald/internal/checksum"
	"github.com/starford/herald/internal/models"
	"github.com/starford/herald/internal/parser"
	"github.com/starford/herald/internal/snapshot"
	"github.com/starford/herald/internal/storage"
	"github.com/starford/herald/internal/tracking"
)

// Source is the read side of the document store.
type Source = storage.Provider

// ErrNotMerged is returned by writes to the snapshot after a startup merge
// failed. Saving then would replace persisted history with a partial index.
var ErrNotMerged = errors.New("reconcile: persisted snapshot not merged")

// Result summarises one full scan.
type Result struct {
	// Skipped is true when another refresh was already running.
	Skipped bool `json:"skipped"`
	Scanned int  `json:"scanned"`
	Tracked int  `json:"tracked"`
	Added   int  `json:"added"`
	Removed int  `json:"removed"`
	Failed  int  `json:"failed"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithNotifier registers a callback for index changes.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notify = n }
}

// WithRecorder registers a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// Engine merges live store state and persisted state into the tracking index.
type Engine struct {
	index    *tracking.Index
	source   Source
	snap     snapshot.Store
	logger   *slog.Logger
	notify   Notifier
	recorder Recorder

	// busy guards full scans; mu serialises mutation batches so a store
	// event never interleaves with a scan.
	busy atomic.Bool
	mu   sync.Mutex
	// unmerged is set while the last startup merge failed.
	unmerged atomic.Bool
}

// New creates an engine over the given index, store and snapshot.
func New(index *tracking.Index, source Source, snap snapshot.Store, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{index: index, source: source, snap: snap, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Index returns the tracking index the engine maintains.
func (e *Engine) Index() *tracking.Index { return e.index }

// Start rebuilds the index from the persisted snapshot and a fresh scan.
// Snapshot entries whose documents no longer carry publish: true are dropped.
// Until a Start succeeds after a failed one, nothing is persisted and the
// next Refresh retries the merge.
func (e *Engine) Start(ctx context.Context) (Result, error) {
	if !e.busy.CompareAndSwap(false, true) {
		return Result{Skipped: true}, nil
	}
	defer e.busy.Store(false)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.merge(ctx)
}

func (e *Engine) merge(ctx context.Context) (Result, error) {
	began := time.Now()
	snap, err := e.snap.Load(ctx)
	if err != nil {
		e.unmerged.Store(true)
		return Result{}, fmt.Errorf("reconcile: load snapshot: %w", err)
	}

	metas, err := e.source.List("")
	if err != nil {
		e.unmerged.Store(true)
		return Result{}, fmt.Errorf("reconcile: list store: %w", err)
	}

	var res Result
	seen := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		res.Scanned++
		rec, persisted := snap[m.Path]

		data, err := e.source.Read(m.Path)
		if err != nil {
			res.Failed++
			e.logger.Warn("reconcile: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			if persisted {
				// Keep the persisted record until the document can be read again.
				e.index.Restore(m.Path, nil, rec.ContentFingerprint, rec)
				seen[m.Path] = struct{}{}
			}
			continue
		}

		meta, fp := inspect(data)
		if !meta.Publish() {
			continue
		}
		seen[m.Path] = struct{}{}
		if persisted {
			e.index.Restore(m.Path, meta, fp, rec)
		} else if e.index.Upsert(m.Path, meta, fp) {
			res.Added++
			e.emit(ChangeTracked, m.Path)
		}
	}

	// Records applied from events while the snapshot was unavailable.
	for _, p := range e.index.Paths() {
		if _, ok := seen[p]; !ok {
			e.index.Remove(p)
			e.emit(ChangeUntracked, p)
		}
	}
	for p := range snap {
		if _, ok := seen[p]; !ok {
			res.Removed++
			e.logger.Debug("reconcile: dropped from snapshot", slog.String("path", p))
		}
	}

	e.unmerged.Store(false)
	res.Tracked = e.index.Len()
	e.observe(began)
	e.logger.Info("reconcile: startup merge complete",
		slog.Int("scanned", res.Scanned),
		slog.Int("tracked", res.Tracked),
		slog.Int("dropped", res.Removed),
		slog.Int("failed", res.Failed))
	return res, e.persist(ctx)
}

// Refresh rescans the whole store. Afterwards the tracked set equals the
// documents currently carrying publish: true, except that documents which
// could not be read keep their previous record.
func (e *Engine) Refresh(ctx context.Context) (Result, error) {
	if !e.busy.CompareAndSwap(false, true) {
		e.logger.Debug("reconcile: refresh already running")
		return Result{Skipped: true}, nil
	}
	defer e.busy.Store(false)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.unmerged.Load() {
		e.logger.Info("reconcile: retrying startup merge")
		return e.merge(ctx)
	}

	began := time.Now()
	metas, err := e.source.List("")
	if err != nil {
		return Result{}, fmt.Errorf("reconcile: list store: %w", err)
	}

	var res Result
	seen := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		res.Scanned++
		data, err := e.source.Read(m.Path)
		if err != nil {
			res.Failed++
			e.logger.Warn("reconcile: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			seen[m.Path] = struct{}{}
			continue
		}
		meta, fp := inspect(data)
		if !meta.Publish() {
			continue
		}
		seen[m.Path] = struct{}{}
		if e.index.Upsert(m.Path, meta, fp) {
			res.Added++
			e.emit(ChangeTracked, m.Path)
		}
	}

	for _, p := range e.index.Paths() {
		if _, ok := seen[p]; ok {
			continue
		}
		e.index.Remove(p)
		res.Removed++
		e.emit(ChangeUntracked, p)
	}

	res.Tracked = e.index.Len()
	e.observe(began)
	e.logger.Info("reconcile: refresh complete",
		slog.Int("scanned", res.Scanned),
		slog.Int("tracked", res.Tracked),
		slog.Int("added", res.Added),
		slog.Int("removed", res.Removed),
		slog.Int("failed", res.Failed))
	return res, e.persist(ctx)
}

// Handle applies one store event to the index and persists the result.
// A Rescan event runs Refresh.
func (e *Engine) Handle(ctx context.Context, ev Event) error {
	if ev.Kind == Rescan {
		_, err := e.Refresh(ctx)
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var changed bool
	var err error
	switch ev.Kind {
	case Upserted:
		changed, err = e.upsert(ev.Path)
	case Deleted:
		changed = e.untrack(ev.Path)
	case Renamed:
		changed, err = e.rename(ev.OldPath, ev.Path)
	default:
		return fmt.Errorf("reconcile: unknown event kind %v", ev.Kind)
	}

	if changed {
		if perr := e.persist(ctx); perr != nil {
			err = errors.Join(err, perr)
		}
	}
	return err
}

// Run applies events in delivery order until ctx is done or events closes.
// A failing event is logged and does not stop the loop.
func (e *Engine) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := e.Handle(ctx, ev); err != nil {
				e.logger.Warn("reconcile: event failed",
					slog.String("kind", ev.Kind.String()),
					slog.String("path", ev.Path),
					slog.String("error", err.Error()))
			}
		}
	}
}

// Update runs fn against the index as one mutation batch and persists the
// result. It never overlaps a scan or a store event.
func (e *Engine) Update(ctx context.Context, fn func(ix *tracking.Index)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.index)
	return e.persist(ctx)
}

// Persist writes the whole index to the snapshot store.
func (e *Engine) Persist(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.persist(ctx)
}

func (e *Engine) upsert(path string) (bool, error) {
	data, err := e.source.Read(path)
	if err != nil {
		return false, fmt.Errorf("reconcile: read %s: %w", path, err)
	}
	meta, fp := inspect(data)
	if !meta.Publish() {
		return e.untrack(path), nil
	}
	if e.index.Upsert(path, meta, fp) {
		e.emit(ChangeTracked, path)
	} else {
		e.emit(ChangeUpdated, path)
	}
	return true, nil
}

func (e *Engine) untrack(path string) bool {
	if !e.index.Remove(path) {
		return false
	}
	e.emit(ChangeUntracked, path)
	return true
}

func (e *Engine) rename(oldPath, newPath string) (bool, error) {
	if oldPath == newPath {
		return e.upsert(newPath)
	}
	data, err := e.source.Read(newPath)
	if err != nil {
		return e.untrack(oldPath), fmt.Errorf("reconcile: read %s: %w", newPath, err)
	}
	meta, fp := inspect(data)
	if !meta.Publish() {
		removedOld := e.untrack(oldPath)
		return e.untrack(newPath) || removedOld, nil
	}
	if e.index.Rename(oldPath, newPath, meta, fp) {
		e.emit(ChangeRenamed, newPath)
	} else {
		e.emit(ChangeTracked, newPath)
	}
	return true, nil
}

func (e *Engine) persist(ctx context.Context) error {
	if e.unmerged.Load() {
		e.logger.Warn("reconcile: snapshot not merged, skipping persist")
		return ErrNotMerged
	}
	if e.recorder != nil {
		e.recorder.SetTracked(e.index.Len())
	}
	if err := e.snap.Save(ctx, e.index.Snapshot()); err != nil {
		e.logger.Error("reconcile: persist snapshot failed", slog.String("error", err.Error()))
		return fmt.Errorf("reconcile: persist snapshot: %w", err)
	}
	return nil
}

func (e *Engine) emit(change, path string) {
	e.logger.Debug("reconcile: "+change, slog.String("path", path))
	if e.notify != nil {
		e.notify(change, path)
	}
}

func (e *Engine) observe(began time.Time) {
	if e.recorder != nil {
		e.recorder.ObserveReconcile(time.Since(began).Seconds())
	}
}

// inspect parses the header and fingerprints the full content.
func inspect(data []byte) (models.Metadata, string) {
	meta, _ := parser.Extract(data)
	return meta, checksum.Sum(data)
}
