package core

// scheduler.go provides background maintenance for the batch history.
//
// The pruner runs periodically and deletes batches (and their failure rows)
// that finished before the retention window. It is long-running and
// context-aware for graceful shutdown, and logs rather than fails when a
// single prune does not succeed.

import (
	"context"
	"log/slog"
	"time"

	"github.com/JonMunkholm/gemstock/internal/config"
)

// HistoryPruner deletes batch history older than a cutoff.
type HistoryPruner interface {
	PruneBatches(ctx context.Context, finishedBefore time.Time) (int64, error)
}

// RunHistoryPruner prunes history immediately, then every CheckInterval,
// until ctx is cancelled. It returns at once when Retention is zero.
func RunHistoryPruner(ctx context.Context, p HistoryPruner, cfg config.HistoryConfig) {
	if cfg.Retention <= 0 {
		return
	}
	slog.Info("history pruner started",
		"retention", cfg.Retention,
		"check_interval", cfg.CheckInterval,
	)

	pruneHistory(ctx, p, cfg.Retention, time.Now)

	ticker := time.NewTicker(cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("history pruner stopped")
			return
		case <-ticker.C:
			pruneHistory(ctx, p, cfg.Retention, time.Now)
		}
	}
}

// pruneHistory performs one prune cycle.
func pruneHistory(ctx context.Context, p HistoryPruner, retention time.Duration, now func() time.Time) {
	start := time.Now()
	cutoff := now().Add(-retention)

	pruned, err := p.PruneBatches(ctx, cutoff)
	if err != nil {
		slog.Error("history prune failed", "error", err)
		return
	}
	slog.Info("pruned batch history",
		"batches_pruned", pruned,
		"cutoff", cutoff.Format(time.RFC3339),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
