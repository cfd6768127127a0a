package cli

import (
	"context"
	"time"

	"github.com/meridian-labs/radar-cli/internal/core/domain"
	"github.com/meridian-labs/radar-cli/internal/core/ports/driven"
)

// fakeRunner implements driving.PipelineRunner for command tests.
type fakeRunner struct {
	opts    domain.RunOptions
	summary *domain.RunSummary
	err     error
}

func (f *fakeRunner) Run(_ context.Context, opts domain.RunOptions) (*domain.RunSummary, error) {
	f.opts = opts
	return f.summary, f.err
}

// fakeRecords implements driven.RecordStore with canned responses.
type fakeRecords struct {
	stats   domain.Stats
	records map[domain.RecordKey]domain.Record
}

func (f *fakeRecords) UpsertBatch(_ context.Context, records []domain.Record) (int, error) {
	return len(records), nil
}

func (f *fakeRecords) SelectEligible(_ context.Context, _ domain.StageName, _ domain.SelectFilter, _ int) ([]domain.Record, error) {
	return nil, nil
}

func (f *fakeRecords) ApplyStageResult(_ context.Context, _ domain.RecordKey, _ domain.StageFields) error {
	return nil
}

func (f *fakeRecords) MarkAttemptFailed(_ context.Context, _ domain.RecordKey) error {
	return nil
}

func (f *fakeRecords) Get(_ context.Context, key domain.RecordKey) (*domain.Record, error) {
	record, ok := f.records[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &record, nil
}

func (f *fakeRecords) Stats(_ context.Context) (*domain.Stats, error) {
	stats := f.stats
	return &stats, nil
}

// fakeCheckpoints implements driven.CheckpointStore.
type fakeCheckpoints struct {
	checkpoints []domain.Checkpoint
}

func (f *fakeCheckpoints) IsComplete(_ context.Context, _ domain.Window, _ string) (bool, error) {
	return false, nil
}

func (f *fakeCheckpoints) MarkComplete(_ context.Context, _ domain.Window, _ string, _ int) error {
	return nil
}

func (f *fakeCheckpoints) List(_ context.Context) ([]domain.Checkpoint, error) {
	return f.checkpoints, nil
}

// fakeVectors implements driven.VectorIndex.
type fakeVectors struct {
	hits []driven.VectorHit
}

func (f *fakeVectors) Add(_ context.Context, _ domain.RecordKey, _ []float32) error {
	return nil
}

func (f *fakeVectors) AddBatch(_ context.Context, _ []domain.RecordKey, _ [][]float32) error {
	return nil
}

func (f *fakeVectors) Search(_ context.Context, _ []float32, _ int) ([]driven.VectorHit, error) {
	return f.hits, nil
}

func (f *fakeVectors) Close() error { return nil }

// fakeEmbedder implements driven.EmbeddingService.
type fakeEmbedder struct{}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

func (f *fakeEmbedder) Dimensions() int { return 2 }

func (f *fakeEmbedder) Classify(_ error) domain.ErrorKind { return domain.KindTransient }

func (f *fakeEmbedder) Close() error { return nil }

// swapServices installs fakes and returns a restore func. ensureApp sees a
// non-nil pipeline and skips real wiring.
func swapServices(runner *fakeRunner) func() {
	oldPipeline, oldRecords, oldCheckpoints := pipeline, records, checkpoints
	oldVectors, oldEmbedder := vectors, embedder

	pipeline = runner
	records = &fakeRecords{}
	checkpoints = &fakeCheckpoints{}
	vectors = &fakeVectors{}
	embedder = &fakeEmbedder{}

	return func() {
		pipeline, records, checkpoints = oldPipeline, oldRecords, oldCheckpoints
		vectors, embedder = oldVectors, oldEmbedder
	}
}

func sampleSummary() *domain.RunSummary {
	started := time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)
	return &domain.RunSummary{
		RunID:    "run-test",
		Started:  started,
		Finished: started.Add(90 * time.Second),
		Outcomes: map[domain.StageName]domain.StageOutcome{
			domain.StageImport: {Stage: domain.StageImport, Processed: 12},
			domain.StageScore:  {Stage: domain.StageScore, Processed: 10, Failed: 2},
		},
	}
}
