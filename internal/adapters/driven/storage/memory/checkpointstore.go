package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/meridian-labs/radar-cli/internal/core/domain"
	"github.com/meridian-labs/radar-cli/internal/core/ports/driven"
)

// Ensure CheckpointStore implements the interface.
var _ driven.CheckpointStore = (*CheckpointStore)(nil)

// CheckpointStore is an in-memory checkpoint store.
type CheckpointStore struct {
	mu         sync.RWMutex
	completed  map[checkpointKey]domain.Checkpoint
	appendSeen []checkpointKey
}

type checkpointKey struct {
	window    string
	partition string
}

// NewCheckpointStore creates an empty in-memory checkpoint store.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{completed: make(map[checkpointKey]domain.Checkpoint)}
}

// IsComplete tests window membership under the given partition key.
func (s *CheckpointStore) IsComplete(_ context.Context, window domain.Window, partitionKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.completed[checkpointKey{window.String(), partitionKey}]
	return ok, nil
}

// MarkComplete appends a completed window. Append-only: re-marking an
// existing window keeps the original entry.
func (s *CheckpointStore) MarkComplete(_ context.Context, window domain.Window, partitionKey string, itemCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := checkpointKey{window.String(), partitionKey}
	if _, ok := s.completed[key]; ok {
		return nil
	}
	s.completed[key] = domain.Checkpoint{
		Window:       window,
		PartitionKey: partitionKey,
		ItemCount:    itemCount,
		CreatedAt:    time.Now().UTC(),
	}
	s.appendSeen = append(s.appendSeen, key)
	return nil
}

// List returns all checkpoints, most recently appended first.
func (s *CheckpointStore) List(_ context.Context) ([]domain.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Checkpoint, 0, len(s.appendSeen))
	for i := len(s.appendSeen) - 1; i >= 0; i-- {
		out = append(out, s.completed[s.appendSeen[i]])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
