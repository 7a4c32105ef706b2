// Package tracking holds the in-memory index of documents flagged for publishing.
package tracking

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/starford/herald/internal/checksum"
	"github.com/starford/herald/internal/models"
)

// Index maps document identity to its tracked record. Records are kept in
// insertion order so List is stable. Every method is atomic with respect to
// the others.
type Index struct {
	mu     sync.Mutex
	order  []string
	notes  map[string]*models.TrackedNote
	logger *slog.Logger
}

// New creates an empty index.
func New(logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		notes:  make(map[string]*models.TrackedNote),
		logger: logger,
	}
}

// Upsert creates the record for path if absent, otherwise refreshes its
// metadata and fingerprint and recomputes Modified. History is never reset.
// It reports whether a new record was created.
func (x *Index) Upsert(path string, meta models.Metadata, fingerprint string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	n, ok := x.notes[path]
	if !ok {
		n = &models.TrackedNote{Path: path}
		x.insert(n)
	}
	n.Metadata = meta.Clone()
	n.MetadataFingerprint = checksum.Metadata(meta)
	n.ContentFingerprint = fingerprint
	n.Modified = modified(n)
	return !ok
}

// Restore inserts a record carried over from a persisted snapshot. The
// fingerprint is the freshly computed one; rec supplies publication state.
func (x *Index) Restore(path string, meta models.Metadata, fingerprint string, rec models.SnapshotRecord) {
	x.mu.Lock()
	defer x.mu.Unlock()

	n, ok := x.notes[path]
	if !ok {
		n = &models.TrackedNote{Path: path}
		x.insert(n)
	}
	n.Metadata = meta.Clone()
	n.MetadataFingerprint = rec.MetadataFingerprint
	if meta != nil {
		n.MetadataFingerprint = checksum.Metadata(meta)
	}
	n.ContentFingerprint = fingerprint
	n.PublishedFingerprint = rec.ContentFingerprint
	n.LastPublishedAt = copyTime(rec.LastPublishedAt)
	n.History = trimHistory(append([]models.PublicationEvent(nil), rec.History...))
	n.Modified = modified(n)
}

// Rename moves the record at oldPath to newPath. The new record keeps
// LastPublishedAt and History but is always modified, since its remote path
// may differ. It reports whether oldPath was tracked.
func (x *Index) Rename(oldPath, newPath string, meta models.Metadata, fingerprint string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	old, ok := x.notes[oldPath]
	if ok {
		x.remove(oldPath)
	}

	n := &models.TrackedNote{Path: newPath}
	if prev, exists := x.notes[newPath]; exists {
		n = prev
	} else {
		x.insert(n)
	}
	if ok {
		n.LastPublishedAt = old.LastPublishedAt
		n.History = old.History
	}
	n.Metadata = meta.Clone()
	n.MetadataFingerprint = checksum.Metadata(meta)
	n.ContentFingerprint = fingerprint
	n.PublishedFingerprint = ""
	n.Modified = true
	return ok
}

// Remove deletes the record at path. Callers persist the change.
func (x *Index) Remove(path string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, ok := x.notes[path]; !ok {
		return false
	}
	x.remove(path)
	return true
}

// MarkPublished records a successful publish. Modified is cleared when the
// published fingerprint matches the note's current content. An absent path
// (publish raced with removal) is logged and ignored.
func (x *Index) MarkPublished(path string, ev models.PublicationEvent) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	n, ok := x.notes[path]
	if !ok {
		x.logger.Warn("tracking: mark published on untracked note", slog.String("path", path))
		return false
	}
	ts := ev.Timestamp
	n.LastPublishedAt = &ts
	n.PublishedFingerprint = n.ContentFingerprint
	if ev.Fingerprint != "" {
		n.PublishedFingerprint = ev.Fingerprint
	}
	n.Modified = modified(n)
	n.History = appendHistory(n.History, ev)
	return true
}

// RecordFailure appends a failed attempt to the note's history without
// touching its publication state.
func (x *Index) RecordFailure(path string, ev models.PublicationEvent) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	n, ok := x.notes[path]
	if !ok {
		x.logger.Warn("tracking: record failure on untracked note", slog.String("path", path))
		return false
	}
	n.History = appendHistory(n.History, ev)
	return true
}

// Get returns a copy of the record at path.
func (x *Index) Get(path string) (models.TrackedNote, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	n, ok := x.notes[path]
	if !ok {
		return models.TrackedNote{}, false
	}
	return n.Clone(), true
}

// Has reports whether path is tracked.
func (x *Index) Has(path string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	_, ok := x.notes[path]
	return ok
}

// List returns copies of the tracked records in insertion order.
func (x *Index) List(modifiedOnly bool) []models.TrackedNote {
	x.mu.Lock()
	defer x.mu.Unlock()
	out := make([]models.TrackedNote, 0, len(x.order))
	for _, p := range x.order {
		n := x.notes[p]
		if modifiedOnly && !n.Modified {
			continue
		}
		out = append(out, n.Clone())
	}
	return out
}

// Paths returns the tracked identities in insertion order.
func (x *Index) Paths() []string {
	x.mu.Lock()
	defer x.mu.Unlock()
	return slices.Clone(x.order)
}

// Len returns the number of tracked notes.
func (x *Index) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.order)
}

// Snapshot returns the durable form of every record.
func (x *Index) Snapshot() models.Snapshot {
	x.mu.Lock()
	defer x.mu.Unlock()
	out := make(models.Snapshot, len(x.notes))
	for p, n := range x.notes {
		c := n.Clone()
		out[p] = models.SnapshotRecord{
			ContentFingerprint:  c.PublishedFingerprint,
			LastPublishedAt:     c.LastPublishedAt,
			MetadataFingerprint: c.MetadataFingerprint,
			History:             c.History,
		}
	}
	return out
}

func (x *Index) insert(n *models.TrackedNote) {
	x.notes[n.Path] = n
	x.order = append(x.order, n.Path)
}

func (x *Index) remove(path string) {
	delete(x.notes, path)
	if i := slices.Index(x.order, path); i >= 0 {
		x.order = slices.Delete(x.order, i, i+1)
	}
}

// modified is true when the note was never published or its content differs
// from what the last publish acknowledged.
func modified(n *models.TrackedNote) bool {
	return n.LastPublishedAt == nil || n.ContentFingerprint != n.PublishedFingerprint
}

func appendHistory(h []models.PublicationEvent, ev models.PublicationEvent) []models.PublicationEvent {
	return trimHistory(append(h, ev))
}

func trimHistory(h []models.PublicationEvent) []models.PublicationEvent {
	if len(h) > models.MaxHistory {
		h = slices.Clone(h[len(h)-models.MaxHistory:])
	}
	return h
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	ts := *t
	return &ts
}
