package snapshot

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/starford/herald/internal/models"
)

// Store is the persistence contract the reconciliation engine depends on.
type Store interface {
	Load(ctx context.Context) (models.Snapshot, error)
	Save(ctx context.Context, snap models.Snapshot) error
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)

// timeLayout keeps nanoseconds and the zone offset so timestamps round-trip.
const timeLayout = time.RFC3339Nano

// Save replaces the whole persisted snapshot in one transaction.
// Last writer wins.
func (db *DB) Save(ctx context.Context, snap models.Snapshot) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("snapshot: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if _, err := tx.ExecContext(ctx, `DELETE FROM publication_events`); err != nil {
		return fmt.Errorf("snapshot: clear events: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tracked_notes`); err != nil {
		return fmt.Errorf("snapshot: clear notes: %w", err)
	}

	noteStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tracked_notes (path, content_fingerprint, metadata_fingerprint, last_published_at)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("snapshot: prepare note insert: %w", err)
	}
	defer noteStmt.Close()

	eventStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO publication_events
			(path, seq, attempt_id, timestamp, branch_name, status, commit_id, error_message, fingerprint)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("snapshot: prepare event insert: %w", err)
	}
	defer eventStmt.Close()

	for path, rec := range snap {
		var published sql.NullString
		if rec.LastPublishedAt != nil {
			published = sql.NullString{String: rec.LastPublishedAt.Format(timeLayout), Valid: true}
		}
		if _, err := noteStmt.ExecContext(ctx, path, rec.ContentFingerprint, rec.MetadataFingerprint, published); err != nil {
			return fmt.Errorf("snapshot: insert note %s: %w", path, err)
		}
		for seq, ev := range rec.History {
			if _, err := eventStmt.ExecContext(ctx, path, seq, ev.AttemptID, ev.Timestamp.Format(timeLayout),
				ev.BranchName, string(ev.Status), ev.CommitID, ev.ErrorMessage, ev.Fingerprint); err != nil {
				return fmt.Errorf("snapshot: insert event %s/%d: %w", path, seq, err)
			}
		}
	}

	return tx.Commit()
}

// Load reads the persisted snapshot. An empty database yields an empty snapshot.
func (db *DB) Load(ctx context.Context) (models.Snapshot, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT path, content_fingerprint, metadata_fingerprint, last_published_at
		FROM tracked_notes
	`)
	if err != nil {
		return nil, fmt.Errorf("snapshot: query notes: %w", err)
	}
	defer rows.Close()

	out := make(models.Snapshot)
	for rows.Next() {
		var (
			path      string
			rec       models.SnapshotRecord
			published sql.NullString
		)
		if err := rows.Scan(&path, &rec.ContentFingerprint, &rec.MetadataFingerprint, &published); err != nil {
			return nil, fmt.Errorf("snapshot: scan note: %w", err)
		}
		if published.Valid {
			ts, err := time.Parse(timeLayout, published.String)
			if err != nil {
				return nil, fmt.Errorf("snapshot: parse last_published_at for %s: %w", path, err)
			}
			rec.LastPublishedAt = &ts
		}
		out[path] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := db.loadEvents(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (db *DB) loadEvents(ctx context.Context, snap models.Snapshot) error {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT path, attempt_id, timestamp, branch_name, status, commit_id, error_message, fingerprint
		FROM publication_events
		ORDER BY path, seq
	`)
	if err != nil {
		return fmt.Errorf("snapshot: query events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			path, ts, status string
			ev               models.PublicationEvent
		)
		if err := rows.Scan(&path, &ev.AttemptID, &ts, &ev.BranchName, &status, &ev.CommitID, &ev.ErrorMessage, &ev.Fingerprint); err != nil {
			return fmt.Errorf("snapshot: scan event: %w", err)
		}
		parsed, err := time.Parse(timeLayout, ts)
		if err != nil {
			return fmt.Errorf("snapshot: parse event timestamp for %s: %w", path, err)
		}
		ev.Timestamp = parsed
		ev.Status = models.Status(status)

		rec, ok := snap[path]
		if !ok {
			continue
		}
		rec.History = append(rec.History, ev)
		snap[path] = rec
	}
	return rows.Err()
}
