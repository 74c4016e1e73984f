package idempotency

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RunCleanup purges expired records every interval until ctx is cancelled. Each tick keeps
// deleting in batches of batchSize until a batch comes back short.
func RunCleanup(ctx context.Context, store Store, interval time.Duration, batchSize int, logger *zap.Logger) {
	if store == nil || interval <= 0 {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			removed, err := cleanupOnce(ctx, store, now, batchSize)
			if err != nil {
				logger.Warn("idempotency: cleanup failed", zap.Error(err), zap.Int("removed", removed))
				continue
			}
			if removed > 0 {
				logger.Debug("idempotency: cleanup completed", zap.Int("removed", removed))
			}
		}
	}
}

func cleanupOnce(ctx context.Context, store Store, now time.Time, batchSize int) (int, error) {
	total := 0
	for {
		removed, err := store.CleanupExpired(ctx, now, batchSize)
		total += removed
		if err != nil {
			return total, err
		}
		if removed < batchSize || ctx.Err() != nil {
			return total, nil
		}
	}
}
