package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ammobase/harvester/internal/lifecycle"
	"github.com/ammobase/harvester/internal/store"
	"github.com/ammobase/harvester/pkg/types"
)

// CreateExecution inserts a new PENDING execution.
func (s *Store) CreateExecution(ctx context.Context, exec types.Execution) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO executions (id, source_id, status, items_found, items_upserted, failure_message, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, exec.ID, exec.SourceID, string(exec.Status), exec.ItemsFound, exec.ItemsUpserted,
		exec.FailureMessage, exec.StartedAt)
	return err
}

// GetExecution fetches one execution by id.
func (s *Store) GetExecution(ctx context.Context, id string) (*types.Execution, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, source_id, status, items_found, items_upserted, failure_message, started_at, completed_at
		FROM executions WHERE id = $1
	`, id)
	var e types.Execution
	if err := row.Scan(&e.ID, &e.SourceID, &e.Status, &e.ItemsFound, &e.ItemsUpserted,
		&e.FailureMessage, &e.StartedAt, &e.CompletedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

// CompleteExecution transitions a PENDING execution to a terminal status.
// The WHERE clause enforces the state machine: a terminal execution is
// never moved again, so redelivered jobs cannot rewrite history.
func (s *Store) CompleteExecution(ctx context.Context, id string, status types.ExecutionStatus, itemsFound, itemsUpserted int, failureMessage string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE executions
		SET status = $2, items_found = $3, items_upserted = $4, failure_message = $5, completed_at = NOW()
		WHERE id = $1 AND status = $6
	`, id, string(status), itemsFound, itemsUpserted, failureMessage, string(types.ExecutionPending))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		cur, err := s.GetExecution(ctx, id)
		if err != nil {
			return err
		}
		if cur.Status == status {
			return nil // idempotent re-completion
		}
		if err := lifecycle.Transition(cur.Status, status); err != nil {
			return fmt.Errorf("execution %s: %w", id, err)
		}
		return fmt.Errorf("execution %s changed concurrently", id)
	}
	return nil
}

// RecentExecutions returns the most recent executions, newest first.
func (s *Store) RecentExecutions(ctx context.Context, limit int) ([]types.Execution, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, source_id, status, items_found, items_upserted, failure_message, started_at, completed_at
		FROM executions
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var execs []types.Execution
	for rows.Next() {
		var e types.Execution
		if err := rows.Scan(&e.ID, &e.SourceID, &e.Status, &e.ItemsFound, &e.ItemsUpserted,
			&e.FailureMessage, &e.StartedAt, &e.CompletedAt); err != nil {
			return nil, err
		}
		execs = append(execs, e)
	}
	return execs, rows.Err()
}

// AppendLog appends one audit trail entry. Entries are never updated.
func (s *Store) AppendLog(ctx context.Context, entry types.ExecutionLog) error {
	var metaJSON []byte
	if entry.Metadata != nil {
		var err error
		metaJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("marshal log metadata: %w", err)
		}
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO execution_logs (execution_id, level, event, message, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.ExecutionID, string(entry.Level), string(entry.Event), entry.Message, metaJSON, createdAt)
	return err
}
