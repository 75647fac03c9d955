// Package retention purges chats that have been idle longer than a TTL.
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/hubdesk/internal/store"
)

// PurgeCallback is called for every chat removed by the worker.
type PurgeCallback func(chatID string)

// StartWorker runs a background goroutine that periodically deletes chats not
// updated within ttl. A non-positive ttl disables the worker.
func StartWorker(ctx context.Context, repo store.Repository, ttl, interval time.Duration, onPurge PurgeCallback) {
	if ttl <= 0 {
		slog.Info("Retention worker disabled")
		return
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Retention worker started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				Sweep(ctx, repo, ttl, onPurge)
			case <-ctx.Done():
				slog.Info("Retention worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// Sweep deletes idle chats once and returns how many were removed.
func Sweep(ctx context.Context, repo store.Repository, ttl time.Duration, onPurge PurgeCallback) int {
	ids, err := repo.DeleteIdleChats(ctx, ttl)
	if err != nil {
		if ctx.Err() != nil {
			slog.Debug("Retention sweep canceled", "error", err)
			return 0
		}
		slog.Error("Retention worker failed to delete idle chats", "error", err)
		return 0
	}
	if len(ids) == 0 {
		return 0
	}

	for _, id := range ids {
		if onPurge != nil {
			onPurge(id)
		}
	}
	slog.Info("Retention worker purged idle chats", "count", len(ids))
	return len(ids)
}
