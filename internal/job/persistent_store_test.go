package job

import (
	"errors"
	"testing"
	"time"

	"github.com/walletscope/backend/internal/db"
)

func newTestDB(t *testing.T, dir string) *db.Store {
	t.Helper()
	dbStore, err := db.NewStore(dir)
	if err != nil {
		t.Fatalf("create db store: %v", err)
	}
	return dbStore
}

func TestPersistentStore_SaveAndGet(t *testing.T) {
	dbStore := newTestDB(t, t.TempDir())
	defer dbStore.Close()

	store := NewPersistentStore(dbStore)
	j := New([]string{"0xAAA", "0xBBB"})

	if err := store.Save(j); err != nil {
		t.Fatalf("save job: %v", err)
	}

	got, err := store.Get(j.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.ID != j.ID {
		t.Errorf("expected %s, got %s", j.ID, got.ID)
	}
	if got.Total != 2 {
		t.Errorf("expected total 2, got %d", got.Total)
	}
}

func TestPersistentStore_GetNotFound(t *testing.T) {
	dbStore := newTestDB(t, t.TempDir())
	defer dbStore.Close()

	store := NewPersistentStore(dbStore)
	_, err := store.Get("nonexistent")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPersistentStore_DurableAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	dbStore := newTestDB(t, dir)
	store := NewPersistentStore(dbStore)

	j := New([]string{"0xAAA"})
	j.Status = StatusCompleted
	j.Progress = 1
	if err := store.Save(j); err != nil {
		t.Fatalf("save job: %v", err)
	}
	if err := dbStore.Close(); err != nil {
		t.Fatalf("close db: %v", err)
	}

	dbStore2 := newTestDB(t, dir)
	defer dbStore2.Close()

	store2 := NewPersistentStore(dbStore2)
	got, err := store2.Get(j.ID)
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if got.Status != StatusCompleted || got.Progress != 1 {
		t.Errorf("record not equivalent after reopen: %+v", got)
	}
}

func TestPersistentStore_Cleanup(t *testing.T) {
	dbStore := newTestDB(t, t.TempDir())
	defer dbStore.Close()

	store := NewPersistentStore(dbStore)

	old := New([]string{"0xAAA"})
	old.Status = StatusCompleted
	done := time.Now().UTC().Add(-48 * time.Hour)
	old.CompletedAt = &done
	store.Save(old)

	recent := New([]string{"0xBBB"})
	recent.Status = StatusCompleted
	justDone := time.Now().UTC()
	recent.CompletedAt = &justDone
	store.Save(recent)

	active := New([]string{"0xCCC"})
	active.Status = StatusProcessing
	active.CreatedAt = time.Now().UTC().Add(-48 * time.Hour)
	store.Save(active)

	deleted, err := store.Cleanup(24 * time.Hour)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted, got %d", deleted)
	}

	if _, err := store.Get(old.ID); !errors.Is(err, ErrNotFound) {
		t.Error("expected old completed job to be removed")
	}
	if _, err := store.Get(recent.ID); err != nil {
		t.Errorf("recent completed job removed too early: %v", err)
	}
	if _, err := store.Get(active.ID); err != nil {
		t.Errorf("active job must never be cleaned up: %v", err)
	}
}
