// Package testutil provides shared test helpers for setting up vaults and snapshot databases.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/herald/internal/snapshot"
	"github.com/starford/herald/internal/storage"
)

// TestDB creates a temporary snapshot database that is automatically cleaned up.
func TestDB(t *testing.T) *snapshot.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "herald-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := snapshot.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestVault creates a temporary vault directory with an FS store.
func TestVault(t *testing.T) (string, *storage.FS) {
	t.Helper()
	vaultDir := t.TempDir()
	store, err := storage.NewFS(vaultDir)
	if err != nil {
		t.Fatal(err)
	}
	return vaultDir, store
}

// WriteNote writes a document under the vault, creating parent directories.
func WriteNote(t *testing.T, vaultDir, rel, content string) {
	t.Helper()
	abs := filepath.Join(vaultDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// MoveNote renames a document inside the vault, creating the target directory.
func MoveNote(t *testing.T, vaultDir, oldRel, newRel string) {
	t.Helper()
	dst := filepath.Join(vaultDir, filepath.FromSlash(newRel))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(filepath.Join(vaultDir, filepath.FromSlash(oldRel)), dst); err != nil {
		t.Fatal(err)
	}
}

// RemoveNote deletes a document from the vault.
func RemoveNote(t *testing.T, vaultDir, rel string) {
	t.Helper()
	if err := os.Remove(filepath.Join(vaultDir, filepath.FromSlash(rel))); err != nil {
		t.Fatal(err)
	}
}

// Published returns a document body carrying publish: true.
func Published(body string) string {
	return "---\npublish: true\n---\n" + body
}

// Logger returns a logger that discards output.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
