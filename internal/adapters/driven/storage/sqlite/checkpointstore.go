package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/meridian-labs/radar-cli/internal/core/domain"
	"github.com/meridian-labs/radar-cli/internal/core/ports/driven"
)

// Window boundaries are stored as formatted strings so membership checks are
// exact regardless of driver time round-tripping.
const windowFormat = time.RFC3339

// checkpointStore implements driven.CheckpointStore.
type checkpointStore struct {
	store *Store
}

var _ driven.CheckpointStore = (*checkpointStore)(nil)

// IsComplete tests whether the window was previously marked complete under
// the same partition key.
func (s *checkpointStore) IsComplete(ctx context.Context, window domain.Window, partitionKey string) (bool, error) {
	var count int
	err := s.store.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM checkpoints
		WHERE window_start = ? AND window_end = ? AND partition_key = ?
	`, window.Start.UTC().Format(windowFormat), window.End.UTC().Format(windowFormat), partitionKey).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking checkpoint: %w", err)
	}
	return count > 0, nil
}

// MarkComplete appends a completed window. Checkpoints are append-only: a
// second mark for the same window is ignored.
func (s *checkpointStore) MarkComplete(ctx context.Context, window domain.Window, partitionKey string, itemCount int) error {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO checkpoints (window_start, window_end, partition_key, item_count, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(window_start, window_end, partition_key) DO NOTHING
	`, window.Start.UTC().Format(windowFormat), window.End.UTC().Format(windowFormat),
		partitionKey, itemCount, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("marking checkpoint: %w", err)
	}
	return nil
}

// List returns all recorded checkpoints, most recent window first.
func (s *checkpointStore) List(ctx context.Context) ([]domain.Checkpoint, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT window_start, window_end, partition_key, item_count, created_at
		FROM checkpoints
		ORDER BY window_end DESC, partition_key
	`)
	if err != nil {
		return nil, fmt.Errorf("querying checkpoints: %w", err)
	}
	defer rows.Close()

	var checkpoints []domain.Checkpoint //nolint:prealloc // size unknown from query
	for rows.Next() {
		var cp domain.Checkpoint
		var start, end string
		if err := rows.Scan(&start, &end, &cp.PartitionKey, &cp.ItemCount, &cp.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning checkpoint: %w", err)
		}

		cp.Window.Start, err = time.Parse(windowFormat, start)
		if err != nil {
			return nil, fmt.Errorf("parsing window start %q: %w", start, err)
		}
		cp.Window.End, err = time.Parse(windowFormat, end)
		if err != nil {
			return nil, fmt.Errorf("parsing window end %q: %w", end, err)
		}

		checkpoints = append(checkpoints, cp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating checkpoints: %w", err)
	}

	return checkpoints, nil
}
