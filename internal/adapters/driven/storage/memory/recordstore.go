// Package memory provides in-memory implementations of the storage ports.
// They mirror the sqlite adapter's semantics and are used by service tests
// that need an isolated store per test.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/meridian-labs/radar-cli/internal/core/domain"
	"github.com/meridian-labs/radar-cli/internal/core/ports/driven"
)

// Ensure RecordStore implements the interface.
var _ driven.RecordStore = (*RecordStore)(nil)

// RecordStore is an in-memory record store.
type RecordStore struct {
	mu      sync.RWMutex
	records map[domain.RecordKey]domain.Record
}

// NewRecordStore creates an empty in-memory record store.
func NewRecordStore() *RecordStore {
	return &RecordStore{records: make(map[domain.RecordKey]domain.Record)}
}

// UpsertBatch merges records into the store. Duplicate keys within the
// batch collapse last-write-wins before merging with stored rows.
func (s *RecordStore) UpsertBatch(_ context.Context, records []domain.Record) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Collapse in-batch duplicates first.
	collapsed := make(map[domain.RecordKey]domain.Record, len(records))
	order := make([]domain.RecordKey, 0, len(records))
	for _, rec := range records {
		if _, seen := collapsed[rec.Key()]; !seen {
			order = append(order, rec.Key())
		}
		collapsed[rec.Key()] = rec
	}

	for _, key := range order {
		incoming := collapsed[key]
		if existing, ok := s.records[key]; ok {
			s.records[key] = domain.MergeRecords(existing, incoming)
		} else {
			s.records[key] = incoming
		}
	}
	return len(order), nil
}

// SelectEligible filters records by the stage's eligibility predicate and
// orders them by priority: relevance score, then stars, descending.
func (s *RecordStore) SelectEligible(_ context.Context, stage domain.StageName, filter domain.SelectFilter, limit int) ([]domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := filter.Now
	if now.IsZero() {
		now = time.Now()
	}

	var out []domain.Record
	for _, rec := range s.records {
		if !sourceAllowed(rec.Source, filter.Sources) {
			continue
		}
		if !eligible(&rec, stage, filter, now) {
			continue
		}
		out = append(out, cloneRecord(rec))
	}

	sort.Slice(out, func(i, j int) bool {
		si, sj := scoreOf(&out[i]), scoreOf(&out[j])
		if si != sj {
			return si > sj
		}
		if out[i].Stars != out[j].Stars {
			return out[i].Stars > out[j].Stars
		}
		return out[i].Key().String() < out[j].Key().String()
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ApplyStageResult writes fields that are still absent on the stored
// record, so re-applying the same result has no further effect.
func (s *RecordStore) ApplyStageResult(_ context.Context, key domain.RecordKey, fields domain.StageFields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return domain.ErrNotFound
	}

	if fields.Description != nil && len(*fields.Description) > len(rec.Description) {
		rec.Description = *fields.Description
	}
	if fields.RelevanceScore != nil && rec.RelevanceScore == nil {
		rec.RelevanceScore = fields.RelevanceScore
		rec.ScoredAt = fields.ScoredAt
	}
	if fields.MatchedCategory != nil && rec.MatchedCategory == "" {
		rec.MatchedCategory = *fields.MatchedCategory
	}
	if fields.Summary != nil && rec.Summary == "" {
		rec.Summary = *fields.Summary
	}
	if fields.SummaryLocalized != nil && rec.SummaryLocalized == "" {
		rec.SummaryLocalized = *fields.SummaryLocalized
	}
	if fields.EmbeddedAt != nil && rec.EmbeddedAt == nil {
		rec.EmbeddedAt = fields.EmbeddedAt
	}
	if fields.SentChannel != nil && fields.SentAt != nil {
		if rec.SentAt == nil {
			rec.SentAt = make(map[string]time.Time)
		}
		if _, sent := rec.SentAt[*fields.SentChannel]; !sent {
			rec.SentAt[*fields.SentChannel] = *fields.SentAt
		}
	}

	s.records[key] = rec
	return nil
}

// MarkAttemptFailed increments the enrichment attempt counter.
func (s *RecordStore) MarkAttemptFailed(_ context.Context, key domain.RecordKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return domain.ErrNotFound
	}
	rec.EnrichAttempts++
	s.records[key] = rec
	return nil
}

// Get fetches one record by key.
func (s *RecordStore) Get(_ context.Context, key domain.RecordKey) (*domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := cloneRecord(rec)
	return &clone, nil
}

// Stats reports record counts.
func (s *RecordStore) Stats(_ context.Context) (*domain.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &domain.Stats{Sent: make(map[string]int)}
	for _, rec := range s.records {
		stats.Total++
		switch domain.DeriveStage(&rec) {
		case domain.StageScored:
			stats.Scored++
		case domain.StageEnriched:
			stats.Enriched++
		case domain.StageEmbedded:
			stats.Embedded++
		}
		if rec.Summary == "" && rec.EnrichAttempts > 0 && rec.RelevanceScore != nil {
			stats.Retired++
		}
		for channel := range rec.SentAt {
			stats.Sent[channel]++
		}
	}
	return stats, nil
}

// eligible evaluates the stage predicate for one record.
func eligible(rec *domain.Record, stage domain.StageName, filter domain.SelectFilter, now time.Time) bool {
	switch stage {
	case domain.StageContent:
		return domain.DeriveStage(rec) == domain.StageFetched && len(rec.Description) < filter.MinDescription
	case domain.StageScore:
		return domain.EligibleForScore(rec)
	case domain.StageEnrich:
		return domain.EligibleForEnrich(rec, filter.ScoreThreshold, filter.MaxAttempts)
	case domain.StageEmbed:
		return domain.EligibleForEmbed(rec)
	case domain.StageExport:
		return rec.Summary != ""
	case domain.StageNotify:
		return domain.EligibleForChannel(rec, filter.Channel, filter.ChannelFloor, filter.Recency, now)
	default:
		return false
	}
}

func sourceAllowed(source string, sources []string) bool {
	if len(sources) == 0 {
		return true
	}
	for _, s := range sources {
		if s == source {
			return true
		}
	}
	return false
}

func scoreOf(rec *domain.Record) float64 {
	if rec.RelevanceScore == nil {
		return 0
	}
	return *rec.RelevanceScore
}

func cloneRecord(rec domain.Record) domain.Record {
	clone := rec
	if rec.SentAt != nil {
		clone.SentAt = make(map[string]time.Time, len(rec.SentAt))
		for k, v := range rec.SentAt {
			clone.SentAt[k] = v
		}
	}
	if rec.RelevanceScore != nil {
		v := *rec.RelevanceScore
		clone.RelevanceScore = &v
	}
	return clone
}
