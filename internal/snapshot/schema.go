// Package snapshot persists the tracking index to SQLite so tracking state
// survives restarts.
package snapshot

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS tracked_notes (
	path                 TEXT PRIMARY KEY,
	content_fingerprint  TEXT NOT NULL DEFAULT '',
	metadata_fingerprint TEXT NOT NULL DEFAULT '',
	last_published_at    TEXT
);

CREATE TABLE IF NOT EXISTS publication_events (
	path          TEXT    NOT NULL REFERENCES tracked_notes(path) ON DELETE CASCADE,
	seq           INTEGER NOT NULL,
	attempt_id    TEXT    NOT NULL DEFAULT '',
	timestamp     TEXT    NOT NULL,
	branch_name   TEXT    NOT NULL DEFAULT '',
	status        TEXT    NOT NULL,
	commit_id     TEXT    NOT NULL DEFAULT '',
	error_message TEXT    NOT NULL DEFAULT '',
	fingerprint   TEXT    NOT NULL DEFAULT '',
	PRIMARY KEY (path, seq)
);
`

// DB wraps a sql.DB holding the persisted snapshot.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("snapshot: open db: %w", err)
	}
	// One writer process; a single connection keeps writes serialised.
	conn.SetMaxOpenConns(1)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("snapshot: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("snapshot: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
