// Package testutil provides shared test helpers for setting up databases and file areas.
package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/starford/loopgrid/internal/models"
	"github.com/starford/loopgrid/internal/storage"
	"github.com/starford/loopgrid/internal/store"
)

// TestStore creates a temporary SQLite database that is automatically cleaned up.
func TestStore(t *testing.T) *store.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "loopgrid-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() {
		for _, suffix := range []string{"", "-wal", "-shm"} {
			os.Remove(dbFile.Name() + suffix)
		}
	})

	db, err := store.Open(context.Background(), dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestArea creates a temporary directory with a storage.Provider.
func TestArea(t *testing.T) (string, storage.Provider) {
	t.Helper()
	dir := t.TempDir()
	fs, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, fs
}

// SeedHabit inserts a habit and fails the test on error.
func SeedHabit(t *testing.T, db *store.DB, h models.Habit) *models.Habit {
	t.Helper()
	out, err := db.CreateHabit(context.Background(), h)
	if err != nil {
		t.Fatalf("seed habit: %v", err)
	}
	return out
}
