package idempotency

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweep deletes expired records every interval, at most batch per pass, until ctx ends.
// Stores with native expiry (Redis) report zero removals and cost one no-op call per tick.
func Sweep(ctx context.Context, store Store, interval time.Duration, batch int, logger *zap.Logger) error {
	if interval <= 0 {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			sweepOnce(ctx, store, batch, logger)
		}
	}
}

func sweepOnce(ctx context.Context, store Store, batch int, logger *zap.Logger) int {
	passCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	removed, err := store.CleanupExpired(passCtx, time.Now().UTC(), batch)
	if err != nil {
		logger.Error("idempotency sweep failed", zap.Error(err))
		return 0
	}
	if removed > 0 {
		logger.Info("idempotency sweep removed records", zap.Int("count", removed))
	}
	return removed
}
