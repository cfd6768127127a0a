package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-labs/radar-cli/internal/adapters/driven/storage/memory"
	"github.com/meridian-labs/radar-cli/internal/core/domain"
)

func floatPtr(f float64) *float64 { return &f }

// memFailureLog collects failure entries for assertions.
type memFailureLog struct {
	mu      sync.Mutex
	entries []domain.FailureEntry
}

func (l *memFailureLog) Append(entry domain.FailureEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

func (l *memFailureLog) all() []domain.FailureEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.FailureEntry(nil), l.entries...)
}

func seedRecords(t *testing.T, store *memory.RecordStore, n int) {
	t.Helper()
	var batch []domain.Record
	for i := 1; i <= n; i++ {
		batch = append(batch, domain.Record{
			ExternalID:      fmt.Sprintf("%d", i),
			Source:          "github",
			Title:           fmt.Sprintf("repo-%d", i),
			Author:          "alice",
			Stars:           i,
			Description:     "a description long enough to score",
			OriginCreatedAt: time.Now().UTC(),
		})
	}
	_, err := store.UpsertBatch(context.Background(), batch)
	require.NoError(t, err)
}

func scoringDef(transform func(ctx context.Context, rec domain.Record) (*domain.StageFields, error)) StageDefinition {
	return StageDefinition{
		Name:      domain.StageScore,
		GroupSize: 4,
		OnFailure: LeaveUntouched,
		Classify:  classifyAs(domain.KindTransient),
		Transform: transform,
	}
}

func TestStageRunner_ProcessesAllEligible(t *testing.T) {
	store := memory.NewRecordStore()
	seedRecords(t, store, 25)

	e, _ := newTestExecutor(ExecutorConfig{})
	runner := NewStageRunner(store, e, nil, "run-1")

	var mu sync.Mutex
	calls := map[string]int{}

	outcome, err := runner.Run(context.Background(), scoringDef(
		func(_ context.Context, rec domain.Record) (*domain.StageFields, error) {
			mu.Lock()
			calls[rec.ExternalID]++
			mu.Unlock()
			score := 0.5
			now := time.Now().UTC()
			return &domain.StageFields{RelevanceScore: &score, ScoredAt: &now}, nil
		}))
	require.NoError(t, err)
	assert.Equal(t, 25, outcome.Processed)
	assert.Zero(t, outcome.Failed)
	assert.Len(t, calls, 25)
	for id, n := range calls {
		assert.Equal(t, 1, n, "record %s transformed more than once", id)
	}

	// Everything scored: nothing is eligible any more.
	left, err := store.SelectEligible(context.Background(), domain.StageScore, domain.SelectFilter{}, 0)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestStageRunner_RateLimitedRecordEventuallySucceeds(t *testing.T) {
	store := memory.NewRecordStore()
	seedRecords(t, store, 10)

	cooldown := 30 * time.Second
	e, sleeps := newTestExecutor(ExecutorConfig{Cooldown: cooldown})
	runner := NewStageRunner(store, e, nil, "run-1")
	runner.sleep = func(context.Context, time.Duration) error { return nil }

	var mu sync.Mutex
	failures := 0

	def := scoringDef(func(_ context.Context, rec domain.Record) (*domain.StageFields, error) {
		if rec.ExternalID == "3" {
			mu.Lock()
			done := failures >= 2
			if !done {
				failures++
			}
			mu.Unlock()
			if !done {
				return nil, &domain.RateLimitError{}
			}
		}
		score := 0.5
		return &domain.StageFields{RelevanceScore: &score}, nil
	})
	def.GroupSize = 1 // Deterministic sleep accounting.
	def.Classify = func(err error) domain.ErrorKind {
		if domain.IsRateLimited(err) {
			return domain.KindRateLimited
		}
		return domain.KindTransient
	}

	outcome, err := runner.Run(context.Background(), def)
	require.NoError(t, err)
	assert.Equal(t, 10, outcome.Processed, "all 10 records succeed in the end")
	assert.Zero(t, outcome.Failed)

	// The executor paused for the cooldown exactly twice, both for call 3.
	assert.Equal(t, []time.Duration{cooldown, cooldown}, *sleeps)
}

func TestStageRunner_LeaveUntouchedKeepsRecordEligible(t *testing.T) {
	store := memory.NewRecordStore()
	seedRecords(t, store, 3)

	e, _ := newTestExecutor(ExecutorConfig{MaxAttempts: 2})
	failures := &memFailureLog{}
	runner := NewStageRunner(store, e, failures, "run-1")

	outcome, err := runner.Run(context.Background(), scoringDef(
		func(_ context.Context, rec domain.Record) (*domain.StageFields, error) {
			if rec.ExternalID == "2" {
				return nil, fmt.Errorf("timeout")
			}
			score := 0.5
			return &domain.StageFields{RelevanceScore: &score}, nil
		}))
	require.NoError(t, err, "per-record failures never escape the runner")
	assert.Equal(t, 2, outcome.Processed)
	assert.Equal(t, 1, outcome.Failed)

	// The failed record's fields stayed null, so it is eligible next run.
	left, err := store.SelectEligible(context.Background(), domain.StageScore, domain.SelectFilter{}, 0)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "2", left[0].ExternalID)

	entries := failures.all()
	require.Len(t, entries, 1)
	assert.Equal(t, "2", entries[0].ExternalID)
	assert.Equal(t, "run-1", entries[0].RunID)
}

func TestStageRunner_CountAttemptRetires(t *testing.T) {
	store := memory.NewRecordStore()
	rec := domain.Record{
		ExternalID: "1", Source: "github", Title: "repo-1",
		RelevanceScore: floatPtr(0.9),
	}
	_, err := store.UpsertBatch(context.Background(), []domain.Record{rec})
	require.NoError(t, err)

	e, _ := newTestExecutor(ExecutorConfig{})
	runner := NewStageRunner(store, e, nil, "run-1")

	def := StageDefinition{
		Name:      domain.StageEnrich,
		Filter:    domain.SelectFilter{ScoreThreshold: 0.7, MaxAttempts: 3},
		OnFailure: CountAttempt,
		Classify:  classifyAs(domain.KindFatal),
		Transform: func(context.Context, domain.Record) (*domain.StageFields, error) {
			return nil, domain.NewMalformedResponse("not json")
		},
	}

	// Three failed runs exhaust the attempt ceiling.
	for i := 1; i <= 3; i++ {
		outcome, rErr := runner.Run(context.Background(), def)
		require.NoError(t, rErr)
		assert.Equal(t, 1, outcome.Failed, "run %d", i)

		stored, gErr := store.Get(context.Background(), rec.Key())
		require.NoError(t, gErr)
		assert.Equal(t, i, stored.EnrichAttempts)

		runner = NewStageRunner(store, e, nil, fmt.Sprintf("run-%d", i+1))
	}

	// Retired: excluded from eligibility even though summary is still null.
	outcome, err := runner.Run(context.Background(), def)
	require.NoError(t, err)
	assert.Zero(t, outcome.Failed)
	assert.Zero(t, outcome.Processed)
}

func TestStageRunner_MalformedResponseRecordedWithRawPayload(t *testing.T) {
	store := memory.NewRecordStore()
	seedRecords(t, store, 1)

	e, _ := newTestExecutor(ExecutorConfig{})
	failures := &memFailureLog{}
	runner := NewStageRunner(store, e, failures, "run-1")

	def := scoringDef(func(context.Context, domain.Record) (*domain.StageFields, error) {
		return nil, domain.NewMalformedResponse(`I think the score is about 0.8`)
	})
	def.Classify = classifyAs(domain.KindFatal)

	_, err := runner.Run(context.Background(), def)
	require.NoError(t, err)

	entries := failures.all()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].RawResponse, "0.8")
}

func TestStageRunner_InterruptedRunNotCountedAsAttempt(t *testing.T) {
	store := memory.NewRecordStore()
	rec := domain.Record{
		ExternalID: "1", Source: "github",
		RelevanceScore: floatPtr(0.9),
	}
	_, err := store.UpsertBatch(context.Background(), []domain.Record{rec})
	require.NoError(t, err)

	e, _ := newTestExecutor(ExecutorConfig{})
	runner := NewStageRunner(store, e, nil, "run-1")

	ctx, cancel := context.WithCancel(context.Background())

	def := StageDefinition{
		Name:      domain.StageEnrich,
		Filter:    domain.SelectFilter{ScoreThreshold: 0.7, MaxAttempts: 3},
		OnFailure: CountAttempt,
		Classify:  classifyAs(domain.KindTransient),
		Transform: func(ctx context.Context, _ domain.Record) (*domain.StageFields, error) {
			cancel()
			return nil, ctx.Err()
		},
	}

	_, err = runner.Run(ctx, def)
	assert.Error(t, err)

	stored, gErr := store.Get(context.Background(), rec.Key())
	require.NoError(t, gErr)
	assert.Zero(t, stored.EnrichAttempts, "an interrupted call is not a completed attempt")
}

func TestStageRunner_FailuresDoNotStarveLowerPriority(t *testing.T) {
	store := memory.NewRecordStore()
	seedRecords(t, store, 5)

	e, _ := newTestExecutor(ExecutorConfig{MaxAttempts: 1})
	runner := NewStageRunner(store, e, nil, "run-1")

	// The three highest-priority records keep failing, so every fixed-size
	// pull would return only them; the widened pull must still reach the
	// records ranked below.
	def := scoringDef(func(_ context.Context, rec domain.Record) (*domain.StageFields, error) {
		if rec.Stars >= 3 {
			return nil, fmt.Errorf("provider rejected %s", rec.ExternalID)
		}
		score := 0.4
		now := time.Now().UTC()
		return &domain.StageFields{RelevanceScore: &score, ScoredAt: &now}, nil
	})
	def.BatchSize = 3

	outcome, err := runner.Run(context.Background(), def)
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.Processed)
	assert.Equal(t, 3, outcome.Failed)

	left, err := store.SelectEligible(context.Background(), domain.StageScore, domain.SelectFilter{}, 0)
	require.NoError(t, err)
	assert.Len(t, left, 3, "only the failed records stay eligible")
}
