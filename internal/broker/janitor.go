package broker

import (
	"context"
	"time"
)

// RunSessionSweeper periodically removes stale sessions from backends
// without native expiry. It blocks until ctx is cancelled and is intended
// to run as its own goroutine.
func (b *Broker) RunSessionSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := b.store.SweepSessions(ctx, b.clock.Now(), b.cfg.SessionTTL)
			if err != nil {
				b.metrics.StoreError("sweep_sessions")
				b.logger.Error("session sweep failed", "err", err)
				continue
			}
			if n > 0 {
				b.metrics.SessionsSwept(n)
				b.logger.Info("stale sessions swept", "count", n)
			}
		}
	}
}
