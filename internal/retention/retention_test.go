package retention

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/walletscope/backend/internal/cluster"
	"github.com/walletscope/backend/internal/job"
)

func TestRunOnce(t *testing.T) {
	store := job.NewMemoryStore()

	old := job.New([]string{"0xAAA"})
	old.Status = job.StatusCompleted
	done := time.Now().UTC().Add(-2 * time.Hour)
	old.CompletedAt = &done
	store.Save(old)

	active := job.New([]string{"0xBBB"})
	active.Status = job.StatusProcessing
	store.Save(active)

	RunOnce(store, nil, time.Hour)

	if _, err := store.Get(old.ID); !errors.Is(err, job.ErrNotFound) {
		t.Error("expected old completed job removed")
	}
	if _, err := store.Get(active.ID); err != nil {
		t.Errorf("active job removed: %v", err)
	}
}

func TestRunOnce_ThroughManager(t *testing.T) {
	mgr := job.NewManager(job.DefaultManagerConfig(), job.NewMemoryStore(), nil,
		func(ctx context.Context, wallet string) (cluster.Result, error) {
			return cluster.Result{Wallet: wallet}, nil
		}, nil)

	j, err := mgr.Create([]string{"0xAAA"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, err := mgr.Get(j.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Status.Terminal() {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}

	time.Sleep(5 * time.Millisecond)
	RunOnce(mgr, nil, time.Millisecond)

	// The cleanup pass must reach the manager's cache, not just the store.
	if _, err := mgr.Get(j.ID); !errors.Is(err, job.ErrNotFound) {
		t.Errorf("expected cleaned-up job unknown to the manager, got %v", err)
	}
}

func TestStart_RejectsInvalidCron(t *testing.T) {
	store := job.NewMemoryStore()

	_, err := Start(context.Background(), store, nil, "not a cron", time.Hour)
	if err == nil {
		t.Error("expected error for invalid cron expression")
	}
}

func TestStart_DefaultCron(t *testing.T) {
	store := job.NewMemoryStore()

	cancel, err := Start(context.Background(), store, nil, "", time.Hour)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	cancel()
}
