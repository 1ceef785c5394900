package sync

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Coordinator runs periodic sync batches in the background. Because the
// engine coalesces concurrent calls, a user-triggered sync and a timer
// tick never double-upload a record.
type Coordinator struct {
	engine   *Engine
	interval time.Duration
}

// NewCoordinator creates a coordinator that syncs on the given
// interval.
func NewCoordinator(engine *Engine, interval time.Duration) *Coordinator {
	return &Coordinator{engine: engine, interval: interval}
}

// Run starts the coordinator loop. Lifecycle logging is the launcher's
// job.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.syncOnce(ctx)
		}
	}
}

func (c *Coordinator) syncOnce(ctx context.Context) {
	_, err := c.engine.SyncAll(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return // Graceful shutdown, don't log as error
		}
		if errors.Is(err, ErrUnreachable) {
			// Offline is an expected state for the station; the next
			// tick retries.
			slog.Info("background sync skipped, offline",
				"component", "sync",
				"worker", "sync-coordinator",
				"action", "sync_offline",
			)
			return
		}
		slog.Error("background sync failed",
			"component", "sync",
			"worker", "sync-coordinator",
			"action", "sync_failed",
			"error", err,
		)
	}
}
