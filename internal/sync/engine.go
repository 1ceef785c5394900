// Package sync reconciles the local durable queue against the remote
// record store: it pushes unsynced records at-least-once, marks
// confirmed ones synced, keeps failures retry-eligible, and prunes the
// queue only after a fully successful pass.
package sync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hyperengineering/weighbridge/internal/archive"
	"github.com/hyperengineering/weighbridge/internal/remote"
	"github.com/hyperengineering/weighbridge/internal/types"
)

var (
	// ErrUnreachable aborts a sync batch before any upload attempt.
	// All records remain untouched.
	ErrUnreachable = errors.New("remote store unreachable")
)

// Queue is the slice of the local durable queue the engine consumes.
type Queue interface {
	ListPending(ctx context.Context) ([]types.PendingRecord, error)
	MarkSynced(ctx context.Context, localID string) error
	MarkFailed(ctx context.Context, localID string, reason string) error
	RemoveSynced(ctx context.Context) (int64, error)
	Path() string
}

// Probe reports whether the network path to the remote store is usable.
// Queried once before each batch.
type Probe interface {
	Reachable(ctx context.Context) bool
}

// PingProbe adapts the remote client's health check into a probe.
type PingProbe struct {
	Store   remote.Store
	Timeout time.Duration
}

// Reachable pings the remote store within the probe timeout.
func (p *PingProbe) Reachable(ctx context.Context) bool {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.Store.Ping(pingCtx) == nil
}

// Engine runs sync batches. Concurrent SyncAll calls are coalesced: a
// call arriving while a batch is in flight is a no-op returning the
// prior report, so no record is ever uploaded twice concurrently.
type Engine struct {
	queue         Queue
	store         remote.Store
	probe         Probe
	archiver      archive.Uploader
	uploadTimeout time.Duration

	flight chan struct{}

	mu         sync.Mutex
	lastReport types.SyncReport
}

// NewEngine creates a sync engine. The archiver may be nil to skip
// archiving entirely.
func NewEngine(queue Queue, store remote.Store, probe Probe, archiver archive.Uploader, uploadTimeout time.Duration) *Engine {
	if uploadTimeout <= 0 {
		uploadTimeout = 10 * time.Second
	}
	e := &Engine{
		queue:         queue,
		store:         store,
		probe:         probe,
		archiver:      archiver,
		uploadTimeout: uploadTimeout,
		flight:        make(chan struct{}, 1),
	}
	e.flight <- struct{}{}
	return e
}

// SyncAll reconciles all pending records against the remote store and
// reports aggregate outcome. One record's failure never aborts the
// batch; only a connectivity precondition failure does. Cancellation is
// cooperative: the current record finishes, the next never starts.
func (e *Engine) SyncAll(ctx context.Context) (types.SyncReport, error) {
	select {
	case token := <-e.flight:
		defer func() { e.flight <- token }()
	default:
		// A batch is already in flight; coalesce instead of racing it.
		slog.Info("sync already in flight, returning prior report",
			"component", "sync",
			"action", "sync_coalesced",
		)
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.lastReport, nil
	}

	report, err := e.run(ctx)
	e.mu.Lock()
	e.lastReport = report
	e.mu.Unlock()
	return report, err
}

func (e *Engine) run(ctx context.Context) (types.SyncReport, error) {
	start := time.Now()
	report := types.SyncReport{BatchID: uuid.NewString()}

	if !e.probe.Reachable(ctx) {
		slog.Warn("sync aborted, remote unreachable",
			"component", "sync",
			"action", "sync_unreachable",
			"batch_id", report.BatchID,
		)
		return report, ErrUnreachable
	}

	pending, err := e.queue.ListPending(ctx)
	if err != nil {
		return report, err
	}
	report.Total = len(pending)

	if report.Total == 0 {
		slog.Info("sync complete, queue empty",
			"component", "sync",
			"action", "sync_complete",
			"batch_id", report.BatchID,
		)
		return report, nil
	}

	for _, record := range pending {
		// Cooperative cancellation between records: never leave a
		// record half-uploaded.
		if ctx.Err() != nil {
			break
		}

		if e.uploadRecord(ctx, report.BatchID, record) {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}

	if report.Succeeded == report.Total {
		e.archiveQueue(ctx, report.BatchID)

		pruned, err := e.queue.RemoveSynced(ctx)
		if err != nil {
			slog.Error("failed to prune synced records",
				"component", "sync",
				"action", "prune_failed",
				"batch_id", report.BatchID,
				"error", err,
			)
		} else {
			report.Pruned = true
			slog.Info("synced records pruned",
				"component", "sync",
				"action", "prune_complete",
				"batch_id", report.BatchID,
				"removed", pruned,
			)
		}
	}

	slog.Info("sync batch completed",
		"component", "sync",
		"action", "sync_complete",
		"batch_id", report.BatchID,
		"total", report.Total,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"pruned", report.Pruned,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return report, nil
}

// uploadRecord attempts one idempotent upload within a bounded timeout
// and applies the local state transition. Returns true on a confirmed
// synced record.
func (e *Engine) uploadRecord(ctx context.Context, batchID string, record types.PendingRecord) bool {
	uploadCtx, cancel := context.WithTimeout(ctx, e.uploadTimeout)
	defer cancel()

	if err := e.store.CreateRecord(uploadCtx, record); err != nil {
		slog.Warn("record upload failed",
			"component", "sync",
			"action", "upload_failed",
			"batch_id", batchID,
			"local_id", record.LocalID,
			"error", err,
		)
		if markErr := e.queue.MarkFailed(ctx, record.LocalID, err.Error()); markErr != nil {
			slog.Error("failed to mark record failed",
				"component", "sync",
				"action", "mark_failed_error",
				"local_id", record.LocalID,
				"error", markErr,
			)
		}
		return false
	}

	if err := e.queue.MarkSynced(ctx, record.LocalID); err != nil {
		// The remote has the record; the idempotency key dedupes the
		// retried upload on the next batch, so this is a failed record
		// locally, not a duplicate remotely.
		slog.Error("failed to mark record synced",
			"component", "sync",
			"action", "mark_synced_error",
			"local_id", record.LocalID,
			"error", err,
		)
		return false
	}

	slog.Info("record synced",
		"component", "sync",
		"action", "record_synced",
		"batch_id", batchID,
		"local_id", record.LocalID,
	)
	return true
}

// archiveQueue uploads a copy of the queue database before pruning.
// Failures are logged, never fatal, and never block the prune.
func (e *Engine) archiveQueue(ctx context.Context, batchID string) {
	if e.archiver == nil {
		return
	}
	if err := e.archiver.Upload(ctx, batchID, e.queue.Path()); err != nil {
		slog.Warn("queue archive upload failed",
			"component", "sync",
			"action", "archive_failed",
			"batch_id", batchID,
			"error", err,
		)
	}
}
