package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-labs/radar-cli/internal/adapters/driven/storage/memory"
	"github.com/meridian-labs/radar-cli/internal/core/domain"
	"github.com/meridian-labs/radar-cli/internal/core/ports/driven"
	"github.com/meridian-labs/radar-cli/internal/logger"
)

// fakeBulkSource serves canned windows and can fail specific ones.
type fakeBulkSource struct {
	mu        sync.Mutex
	fetches   map[string]int // window string -> fetch count
	failWhile map[string]bool
	capCount  int // TotalCount to report, 0 means len(records)
	perWindow int // records per window
}

func newFakeBulkSource(perWindow int) *fakeBulkSource {
	return &fakeBulkSource{
		fetches:   make(map[string]int),
		failWhile: make(map[string]bool),
		perWindow: perWindow,
	}
}

func (f *fakeBulkSource) SearchWindow(_ context.Context, window domain.Window, partition string) (*driven.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := window.String() + "|" + partition
	f.fetches[key]++
	if f.failWhile[key] {
		return nil, errors.New("connection reset")
	}

	records := make([]domain.Record, 0, f.perWindow)
	for i := 0; i < f.perWindow; i++ {
		records = append(records, domain.Record{
			ExternalID:      fmt.Sprintf("%s-%s-%d", window, partition, i),
			Source:          "github",
			Title:           "repo",
			OriginCreatedAt: window.Start,
		})
	}
	total := f.capCount
	if total == 0 {
		total = len(records)
	}
	return &driven.SearchResult{Records: records, TotalCount: total}, nil
}

func (f *fakeBulkSource) Classify(error) domain.ErrorKind {
	return domain.KindTransient
}

func (f *fakeBulkSource) fetchCount(window domain.Window, partition string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[window.String()+"|"+partition]
}

func newTestBackfill(source driven.BulkSource, records driven.RecordStore, checkpoints driven.CheckpointStore, cfg BackfillConfig) *Backfill {
	e, _ := newTestExecutor(ExecutorConfig{MaxAttempts: 2})
	b := NewBackfill(source, records, checkpoints, e, cfg)
	b.now = func() time.Time { return time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC) }
	b.sleep = func(context.Context, time.Duration) error { return nil }
	return b
}

func TestBackfill_FetchesAllWindows(t *testing.T) {
	source := newFakeBulkSource(3)
	records := memory.NewRecordStore()
	checkpoints := memory.NewCheckpointStore()

	b := newTestBackfill(source, records, checkpoints, BackfillConfig{
		LookbackDays: 28, ChunkDays: 7, Partitions: []string{"go"},
	})

	outcome, err := b.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 12, outcome.Processed, "4 windows x 3 records")
	assert.Zero(t, outcome.Failed)

	list, err := checkpoints.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 4)
}

func TestBackfill_SkipsCompletedWindows(t *testing.T) {
	source := newFakeBulkSource(3)
	records := memory.NewRecordStore()
	checkpoints := memory.NewCheckpointStore()

	cfg := BackfillConfig{LookbackDays: 28, ChunkDays: 7, Partitions: []string{"go"}}
	b := newTestBackfill(source, records, checkpoints, cfg)

	_, err := b.Run(context.Background(), 0)
	require.NoError(t, err)

	// Second invocation fetches nothing: every window is checkpointed.
	outcome, err := b.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, outcome.Processed)

	windows := domain.GenerateWindows(time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC), 28, 7)
	for _, w := range windows {
		assert.Equal(t, 1, source.fetchCount(w, "go"), "window %s fetched more than once", w)
	}
}

func TestBackfill_InterruptedWindowRefetchedInFull(t *testing.T) {
	source := newFakeBulkSource(3)
	records := memory.NewRecordStore()
	checkpoints := memory.NewCheckpointStore()

	cfg := BackfillConfig{LookbackDays: 21, ChunkDays: 7, Partitions: []string{"go"}}
	windows := domain.GenerateWindows(time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC), 21, 7)
	require.Len(t, windows, 3)

	// The middle window dies before its checkpoint is written.
	crashed := windows[1]
	source.failWhile[crashed.String()+"|go"] = true

	b := newTestBackfill(source, records, checkpoints, cfg)
	outcome, err := b.Run(context.Background(), 0)
	require.NoError(t, err, "a failed window is not a fatal run error")
	assert.Equal(t, 1, outcome.Failed)
	assert.Equal(t, 6, outcome.Processed, "the two healthy windows landed")

	done, err := checkpoints.IsComplete(context.Background(), crashed, "go")
	require.NoError(t, err)
	assert.False(t, done, "no checkpoint for the interrupted window")

	// Restart: only the crashed window is refetched.
	source.failWhile[crashed.String()+"|go"] = false
	before := source.fetchCount(windows[0], "go")

	outcome, err = b.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 3, outcome.Processed, "only the crashed window's records")
	assert.Equal(t, before, source.fetchCount(windows[0], "go"), "earlier window not refetched")
}

func TestBackfill_PartitionsCheckpointIndependently(t *testing.T) {
	source := newFakeBulkSource(2)
	records := memory.NewRecordStore()
	checkpoints := memory.NewCheckpointStore()

	b := newTestBackfill(source, records, checkpoints, BackfillConfig{
		LookbackDays: 7, ChunkDays: 7, Partitions: []string{"go", "rust"},
	})

	outcome, err := b.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 4, outcome.Processed, "1 window x 2 partitions x 2 records")

	list, err := checkpoints.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestBackfill_WarnsAtResultCap(t *testing.T) {
	source := newFakeBulkSource(2)
	source.capCount = domain.ResultCap
	records := memory.NewRecordStore()
	checkpoints := memory.NewCheckpointStore()

	var buf bytes.Buffer
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(os.Stderr) })

	b := newTestBackfill(source, records, checkpoints, BackfillConfig{
		LookbackDays: 7, ChunkDays: 7,
	})

	outcome, err := b.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.Processed, "partial results are accepted")
	assert.Contains(t, buf.String(), "result cap", "cap overrun is flagged, never silent")

	// The window is still checkpointed: it is not retried automatically.
	list, err := checkpoints.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestBackfill_LookbackOverride(t *testing.T) {
	source := newFakeBulkSource(1)
	records := memory.NewRecordStore()
	checkpoints := memory.NewCheckpointStore()

	b := newTestBackfill(source, records, checkpoints, BackfillConfig{
		LookbackDays: 365, ChunkDays: 7,
	})

	// The run flag restricts lookback to a single week.
	outcome, err := b.Run(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Processed)
}
