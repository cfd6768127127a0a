package driven

import (
	"context"

	"github.com/meridian-labs/radar-cli/internal/core/domain"
)

// RecordStore is the durable keyed storage for per-record pipeline state.
// It is the source of truth for the record state machine.
type RecordStore interface {
	// UpsertBatch transactionally upserts records on the composite key,
	// merging with existing rows via domain.MergeRecords. Duplicate keys
	// within the batch are safe: last-write-within-batch wins before
	// conflict resolution with stored rows. Returns rows affected.
	UpsertBatch(ctx context.Context, records []domain.Record) (int, error)

	// SelectEligible returns records satisfying the stage's eligibility
	// predicate, ordered by priority (highest score, then stars) so partial
	// runs make the most valuable progress first.
	SelectEligible(ctx context.Context, stage domain.StageName, filter domain.SelectFilter, limit int) ([]domain.Record, error)

	// ApplyStageResult point-updates one record's pipeline fields. Fields
	// are only written when the stored value is still absent, so re-applying
	// the same result is a no-op in effect.
	ApplyStageResult(ctx context.Context, key domain.RecordKey, fields domain.StageFields) error

	// MarkAttemptFailed increments the enrichment attempt counter without
	// writing any success field.
	MarkAttemptFailed(ctx context.Context, key domain.RecordKey) error

	// Get fetches one record by key. Returns domain.ErrNotFound if absent.
	Get(ctx context.Context, key domain.RecordKey) (*domain.Record, error)

	// Stats reports total and per-stage-completed record counts.
	Stats(ctx context.Context) (*domain.Stats, error)
}

// CheckpointStore persists which historical windows of the bulk backfill
// have been fully fetched, so re-running skips completed windows.
// Checkpoint state is independent of the record store: a window is only
// marked complete after all its pages were written.
type CheckpointStore interface {
	// IsComplete tests whether the window was previously marked complete
	// under the same partition key.
	IsComplete(ctx context.Context, window domain.Window, partitionKey string) (bool, error)

	// MarkComplete appends a completed window, flushed to durable storage
	// immediately so a crash mid-run loses at most the in-flight window.
	MarkComplete(ctx context.Context, window domain.Window, partitionKey string, itemCount int) error

	// List returns all recorded checkpoints, most recent first.
	List(ctx context.Context) ([]domain.Checkpoint, error)
}

// FailureLog is the append-only diagnostic sink for per-record failures.
// It is write-only from the pipeline's point of view; logging failures must
// never abort the operation that triggered them.
type FailureLog interface {
	Append(entry domain.FailureEntry)
}
