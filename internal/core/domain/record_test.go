package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func floatPtr(f float64) *float64 { return &f }

func timePtr(t time.Time) *time.Time { return &t }

func TestDeriveStage(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name   string
		record Record
		want   Stage
	}{
		{
			name:   "no pipeline fields",
			record: Record{ExternalID: "1", Source: "github"},
			want:   StageFetched,
		},
		{
			name:   "scored only",
			record: Record{RelevanceScore: floatPtr(0.8), ScoredAt: timePtr(now)},
			want:   StageScored,
		},
		{
			name:   "summary present",
			record: Record{RelevanceScore: floatPtr(0.8), Summary: "a summary"},
			want:   StageEnriched,
		},
		{
			name: "embedded",
			record: Record{
				RelevanceScore: floatPtr(0.8),
				Summary:        "a summary",
				EmbeddedAt:     timePtr(now),
			},
			want: StageEmbedded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveStage(&tt.record))
		})
	}
}

func TestEligibleForScore(t *testing.T) {
	assert.True(t, EligibleForScore(&Record{ExternalID: "1"}))
	assert.False(t, EligibleForScore(&Record{RelevanceScore: floatPtr(0.1)}))
}

func TestEligibleForEnrich(t *testing.T) {
	tests := []struct {
		name   string
		record Record
		want   bool
	}{
		{
			name:   "above threshold",
			record: Record{RelevanceScore: floatPtr(0.9)},
			want:   true,
		},
		{
			name:   "exactly at threshold is eligible",
			record: Record{RelevanceScore: floatPtr(0.7)},
			want:   true,
		},
		{
			name:   "below threshold",
			record: Record{RelevanceScore: floatPtr(0.69)},
			want:   false,
		},
		{
			name:   "not scored yet",
			record: Record{},
			want:   false,
		},
		{
			name:   "already summarised",
			record: Record{RelevanceScore: floatPtr(0.9), Summary: "done"},
			want:   false,
		},
		{
			name:   "attempt ceiling exhausted",
			record: Record{RelevanceScore: floatPtr(0.9), EnrichAttempts: 3},
			want:   false,
		},
		{
			name:   "one attempt left",
			record: Record{RelevanceScore: floatPtr(0.9), EnrichAttempts: 2},
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EligibleForEnrich(&tt.record, 0.7, 3))
		})
	}
}

func TestEligibleForChannel(t *testing.T) {
	now := time.Now()
	recent := now.Add(-24 * time.Hour)
	stale := now.Add(-96 * time.Hour)
	recency := 72 * time.Hour

	base := Record{
		RelevanceScore:  floatPtr(0.9),
		Summary:         "a summary",
		OriginCreatedAt: recent,
	}

	t.Run("eligible", func(t *testing.T) {
		r := base
		assert.True(t, EligibleForChannel(&r, "telegram", 0.8, recency, now))
	})

	t.Run("no summary", func(t *testing.T) {
		r := base
		r.Summary = ""
		assert.False(t, EligibleForChannel(&r, "telegram", 0.8, recency, now))
	})

	t.Run("below channel floor", func(t *testing.T) {
		r := base
		r.RelevanceScore = floatPtr(0.5)
		assert.False(t, EligibleForChannel(&r, "telegram", 0.8, recency, now))
	})

	t.Run("outside recency window", func(t *testing.T) {
		r := base
		r.OriginCreatedAt = stale
		assert.False(t, EligibleForChannel(&r, "telegram", 0.8, recency, now))
	})

	t.Run("already sent on this channel", func(t *testing.T) {
		r := base
		r.SentAt = map[string]time.Time{"telegram": now}
		assert.False(t, EligibleForChannel(&r, "telegram", 0.8, recency, now))
	})

	t.Run("sent on another channel only", func(t *testing.T) {
		r := base
		r.SentAt = map[string]time.Time{"slack": now}
		assert.True(t, EligibleForChannel(&r, "telegram", 0.8, recency, now))
	})
}

func TestMergeRecords_OriginFacts(t *testing.T) {
	existing := Record{
		ExternalID:  "1",
		Source:      "github",
		Author:      "alice",
		Title:       "radar",
		Stars:       10,
		Description: "",
	}
	incoming := existing
	incoming.Description = "longer text"
	incoming.Stars = 25

	merged := MergeRecords(existing, incoming)
	assert.Equal(t, "longer text", merged.Description)
	assert.Equal(t, 25, merged.Stars)
}

func TestMergeRecords_ShorterDescriptionNeverWins(t *testing.T) {
	existing := Record{Description: "a long existing description"}
	incoming := Record{Description: "short"}

	merged := MergeRecords(existing, incoming)
	assert.Equal(t, "a long existing description", merged.Description)
}

func TestMergeRecords_PipelineFieldsFirstWriteWins(t *testing.T) {
	now := time.Now()
	existing := Record{
		RelevanceScore: floatPtr(0.8),
		ScoredAt:       timePtr(now),
		Summary:        "human-reviewed summary",
	}
	incoming := Record{
		RelevanceScore: floatPtr(0.1),
		Summary:        "re-fetched summary",
	}

	merged := MergeRecords(existing, incoming)
	assert.Equal(t, 0.8, *merged.RelevanceScore)
	assert.Equal(t, "human-reviewed summary", merged.Summary)
}

func TestMergeRecords_FillsAbsentPipelineFields(t *testing.T) {
	existing := Record{ExternalID: "1", Source: "github"}
	incoming := Record{RelevanceScore: floatPtr(0.6), MatchedCategory: "devtools"}

	merged := MergeRecords(existing, incoming)
	assert.Equal(t, 0.6, *merged.RelevanceScore)
	assert.Equal(t, "devtools", merged.MatchedCategory)
}

func TestMergeRecords_EmptyIncomingNeverErases(t *testing.T) {
	existing := Record{
		Author: "alice",
		Title:  "radar",
		URL:    "https://example.com/radar",
	}
	incoming := Record{}

	merged := MergeRecords(existing, incoming)
	assert.Equal(t, "alice", merged.Author)
	assert.Equal(t, "radar", merged.Title)
	assert.Equal(t, "https://example.com/radar", merged.URL)
}
