package session

import (
	"context"
	"log/slog"
	"time"
)

// Pruner is a Store that can drop stale sessions.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int, error)
}

// RunPruner removes sessions idle for longer than ttl every interval until ctx
// is done.
func RunPruner(ctx context.Context, p Pruner, ttl, interval time.Duration, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := p.Prune(ctx, now.Add(-ttl).UTC())
			if err != nil {
				logger.Error("session prune failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("pruned idle sessions", "count", n)
			}
		}
	}
}
