package retention

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/hubdesk/internal/store"
)

func newStore(t *testing.T) store.Repository {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "retention.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func seedStale(t *testing.T, repo store.Repository, age time.Duration) string {
	t.Helper()
	ctx := context.Background()
	c, err := repo.CreateChat(ctx, "owner-a", "old")
	if err != nil {
		t.Fatalf("CreateChat failed: %v", err)
	}
	c.UpdatedAt = time.Now().Add(-age)
	if err := repo.SaveChat(ctx, c); err != nil {
		t.Fatalf("SaveChat failed: %v", err)
	}
	return c.ID
}

func TestSweepPurgesIdleChats(t *testing.T) {
	repo := newStore(t)
	staleID := seedStale(t, repo, 3*time.Hour)
	if _, err := repo.CreateChat(context.Background(), "owner-a", "fresh"); err != nil {
		t.Fatalf("CreateChat failed: %v", err)
	}

	var purged []string
	n := Sweep(context.Background(), repo, time.Hour, func(id string) { purged = append(purged, id) })
	if n != 1 || len(purged) != 1 || purged[0] != staleID {
		t.Fatalf("expected %s purged, got n=%d ids=%v", staleID, n, purged)
	}

	if n := Sweep(context.Background(), repo, time.Hour, nil); n != 0 {
		t.Fatalf("second sweep should find nothing, got %d", n)
	}
}

func TestStartWorkerRunsUntilCanceled(t *testing.T) {
	repo := newStore(t)
	staleID := seedStale(t, repo, 3*time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	done := make(chan struct{})
	var purged []string
	StartWorker(ctx, repo, time.Hour, 10*time.Millisecond, func(id string) {
		mu.Lock()
		defer mu.Unlock()
		purged = append(purged, id)
		if len(purged) == 1 {
			close(done)
		}
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not purge the idle chat")
	}

	mu.Lock()
	defer mu.Unlock()
	if purged[0] != staleID {
		t.Fatalf("unexpected purged chat %s", purged[0])
	}
}

func TestStartWorkerDisabled(t *testing.T) {
	repo := newStore(t)
	seedStale(t, repo, 3*time.Hour)

	StartWorker(context.Background(), repo, 0, time.Millisecond, func(string) {
		t.Error("disabled worker must not purge")
	})
	time.Sleep(20 * time.Millisecond)

	list, err := repo.ListChats(context.Background(), "owner-a")
	if err != nil || len(list) != 1 {
		t.Fatalf("expected chat kept, got %d, %v", len(list), err)
	}
}
