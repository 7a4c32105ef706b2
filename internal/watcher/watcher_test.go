package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/herald/internal/reconcile"
	"github.com/starford/herald/internal/storage"
	"github.com/starford/herald/internal/testutil"
)

type collector struct {
	mu     sync.Mutex
	events []reconcile.Event
}

func (c *collector) has(want reconcile.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ev := range c.events {
		if ev == want {
			return true
		}
	}
	return false
}

func (c *collector) snapshot() []reconcile.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]reconcile.Event(nil), c.events...)
}

// startWatcher runs a watcher over a fresh vault and collects its events.
func startWatcher(t *testing.T, setup func(vaultDir string)) (string, *storage.FS, *collector) {
	t.Helper()
	vaultDir, store := testutil.TestVault(t)
	if setup != nil {
		setup(vaultDir)
	}

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan reconcile.Event, 64)
	c := &collector{}
	done := make(chan struct{})

	go func() {
		for ev := range out {
			c.mu.Lock()
			c.events = append(c.events, ev)
			c.mu.Unlock()
		}
	}()
	go func() {
		defer close(done)
		_ = New(store, testutil.Logger(), WithRenameWindow(150*time.Millisecond)).Watch(ctx, out)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		close(out)
	})

	time.Sleep(100 * time.Millisecond)
	return vaultDir, store, c
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestWatcher_NewFileUpserted(t *testing.T) {
	vaultDir, _, c := startWatcher(t, nil)

	_ = os.WriteFile(filepath.Join(vaultDir, "new.md"), []byte("# New"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return c.has(reconcile.Event{Kind: reconcile.Upserted, Path: "new.md"})
	}, "expected upserted new.md")
}

func TestWatcher_IgnoresNonDocuments(t *testing.T) {
	vaultDir, _, c := startWatcher(t, nil)

	_ = os.WriteFile(filepath.Join(vaultDir, "image.png"), []byte("png"), 0o644)
	_ = os.WriteFile(filepath.Join(vaultDir, "real.md"), []byte("x"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return c.has(reconcile.Event{Kind: reconcile.Upserted, Path: "real.md"})
	}, "expected upserted real.md")
	for _, ev := range c.snapshot() {
		if ev.Path == "image.png" {
			t.Errorf("unexpected event for non-document: %+v", ev)
		}
	}
}

func TestWatcher_NewDirWatched(t *testing.T) {
	vaultDir, _, c := startWatcher(t, nil)

	subDir := filepath.Join(vaultDir, "subdir")
	_ = os.MkdirAll(subDir, 0o755)
	time.Sleep(100 * time.Millisecond)
	_ = os.WriteFile(filepath.Join(subDir, "deep.md"), []byte("# Deep"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return c.has(reconcile.Event{Kind: reconcile.Upserted, Path: "subdir/deep.md"})
	}, "file in new subdir not reported")
}

func TestWatcher_DeleteReported(t *testing.T) {
	vaultDir, _, c := startWatcher(t, func(dir string) {
		testutil.WriteNote(t, dir, "del.md", "# Delete Me")
	})

	_ = os.Remove(filepath.Join(vaultDir, "del.md"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return c.has(reconcile.Event{Kind: reconcile.Deleted, Path: "del.md"})
	}, "expected deleted del.md")
}

func TestWatcher_RenamePaired(t *testing.T) {
	vaultDir, _, c := startWatcher(t, func(dir string) {
		testutil.WriteNote(t, dir, "old.md", "# Rename")
	})

	testutil.MoveNote(t, vaultDir, "old.md", "renamed.md")

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return c.has(reconcile.Event{Kind: reconcile.Renamed, OldPath: "old.md", Path: "renamed.md"})
	}, "expected renamed old.md -> renamed.md")
	if c.has(reconcile.Event{Kind: reconcile.Deleted, Path: "old.md"}) {
		t.Error("paired rename must not also report a deletion")
	}
}

func TestWatcher_SaveThroughBackupIsUpsert(t *testing.T) {
	vaultDir, _, c := startWatcher(t, func(dir string) {
		testutil.WriteNote(t, dir, "a.md", "# Same")
	})

	// Rename to a backup, then write a fresh file under the original name.
	if err := os.Rename(filepath.Join(vaultDir, "a.md"), filepath.Join(vaultDir, "a.md~")); err != nil {
		t.Fatal(err)
	}
	testutil.WriteNote(t, vaultDir, "a.md", "# Same")

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return c.has(reconcile.Event{Kind: reconcile.Upserted, Path: "a.md"})
	}, "expected upserted a.md")

	// Let the rename window lapse before checking nothing else was paired.
	time.Sleep(400 * time.Millisecond)
	for _, ev := range c.snapshot() {
		if ev.Kind == reconcile.Renamed || ev.Kind == reconcile.Deleted {
			t.Errorf("unexpected event %+v", ev)
		}
	}
}

func TestWatcher_RenameOutOfVaultIsDeletion(t *testing.T) {
	outside := t.TempDir()
	vaultDir, _, c := startWatcher(t, func(dir string) {
		testutil.WriteNote(t, dir, "leaving.md", "# Bye")
	})

	_ = os.Rename(filepath.Join(vaultDir, "leaving.md"), filepath.Join(outside, "leaving.md"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return c.has(reconcile.Event{Kind: reconcile.Deleted, Path: "leaving.md"})
	}, "unpaired rename should become a deletion")
}

func TestWatcher_DirectoryMoveRequestsRescan(t *testing.T) {
	vaultDir, _, c := startWatcher(t, func(dir string) {
		testutil.WriteNote(t, dir, "folder/a.md", "# A")
	})

	_ = os.Rename(filepath.Join(vaultDir, "folder"), filepath.Join(vaultDir, "moved"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return c.has(reconcile.Event{Kind: reconcile.Rescan}) &&
			c.has(reconcile.Event{Kind: reconcile.Upserted, Path: "moved/a.md"})
	}, "directory move should rescan and report moved contents")
}
