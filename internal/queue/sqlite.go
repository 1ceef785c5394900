// Package queue is the local durable queue: an append-only, crash-safe
// SQLite store of pending records. It is the single source of truth for
// a record until the remote store confirms it.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hyperengineering/weighbridge/internal/types"
)

// SQLiteQueue is the SQLite-backed pending record queue.
type SQLiteQueue struct {
	db   *sql.DB
	path string
}

// NewSQLiteQueue opens (or creates) the queue database. It enables WAL
// mode, applies pragmas, and runs migrations.
func NewSQLiteQueue(dbPath string) (*SQLiteQueue, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create queue directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open queue database: %w", err)
	}

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteQueue{db: db, path: dbPath}, nil
}

// enablePragmas sets SQLite pragmas for durability and safety.
func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (q *SQLiteQueue) Close() error {
	return q.db.Close()
}

// Path returns the on-disk path of the queue database.
func (q *SQLiteQueue) Path() string {
	return q.path
}

// Enqueue appends a record to durable storage. The insert runs in a
// transaction so a crashed process observes either the full record or
// nothing on reload.
func (q *SQLiteQueue) Enqueue(ctx context.Context, record types.PendingRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO pending_records (local_id, created_at, payload, sync_state, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, record.LocalID, record.CreatedAt.UTC().Format(time.RFC3339), string(payload), string(types.SyncStatePending), now)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// ListPending returns all records not yet confirmed by the remote
// store, oldest first. Failed records are retry-eligible and included.
func (q *SQLiteQueue) ListPending(ctx context.Context) ([]types.PendingRecord, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT payload, sync_state, failure_reason
		FROM pending_records
		WHERE sync_state IN ('pending', 'failed')
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query pending records: %w", err)
	}
	defer rows.Close()

	var records []types.PendingRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return records, nil
}

// Get returns a single record by local id.
func (q *SQLiteQueue) Get(ctx context.Context, localID string) (*types.PendingRecord, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT payload, sync_state, failure_reason
		FROM pending_records
		WHERE local_id = ?
	`, localID)

	record, err := scanRecord(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

// MarkSynced transitions a record to synced after the remote store
// acknowledged it. Only the sync engine calls this.
func (q *SQLiteQueue) MarkSynced(ctx context.Context, localID string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := q.db.ExecContext(ctx, `
		UPDATE pending_records
		SET sync_state = ?, failure_reason = NULL, synced_at = ?, updated_at = ?
		WHERE local_id = ?
	`, string(types.SyncStateSynced), now, now, localID)
	if err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}

	return requireRow(result)
}

// MarkFailed records a failed upload attempt. The record stays
// retry-eligible; failure is advisory, not terminal.
func (q *SQLiteQueue) MarkFailed(ctx context.Context, localID string, reason string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := q.db.ExecContext(ctx, `
		UPDATE pending_records
		SET sync_state = ?, failure_reason = ?, updated_at = ?
		WHERE local_id = ?
	`, string(types.SyncStateFailed), reason, now, localID)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}

	return requireRow(result)
}

// RemoveSynced prunes confirmed records. It is the only pruning
// operation and never touches pending or failed rows.
func (q *SQLiteQueue) RemoveSynced(ctx context.Context) (int64, error) {
	result, err := q.db.ExecContext(ctx, `
		DELETE FROM pending_records WHERE sync_state = ?
	`, string(types.SyncStateSynced))
	if err != nil {
		return 0, fmt.Errorf("remove synced: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return removed, nil
}

// CountByState returns the number of records per sync state.
func (q *SQLiteQueue) CountByState(ctx context.Context) (map[types.SyncState]int, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT sync_state, COUNT(*) FROM pending_records GROUP BY sync_state
	`)
	if err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}
	defer rows.Close()

	counts := make(map[types.SyncState]int)
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[types.SyncState(state)] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return counts, nil
}

// scanRecord decodes one row's JSON payload and overlays the columns
// the sync engine mutates in place.
func scanRecord(scanner interface{ Scan(...any) error }) (types.PendingRecord, error) {
	var payload string
	var state string
	var failureReason sql.NullString

	if err := scanner.Scan(&payload, &state, &failureReason); err != nil {
		return types.PendingRecord{}, err
	}

	var record types.PendingRecord
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		return types.PendingRecord{}, fmt.Errorf("parse record payload: %w", err)
	}

	record.SyncState = types.SyncState(state)
	if failureReason.Valid {
		record.FailureReason = failureReason.String
	}

	return record, nil
}

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
