package domain

import (
	"fmt"
	"time"
)

// RecordKey is the composite identity of a record. External IDs are only
// unique per origin, so two origins may reuse the same numbering.
type RecordKey struct {
	ExternalID string
	Source     string
}

// String returns the canonical "source/external-id" form used in logs.
func (k RecordKey) String() string {
	return fmt.Sprintf("%s/%s", k.Source, k.ExternalID)
}

// Record is one ingested repository. Origin facts are immutable once set;
// the nullable pipeline fields each mark a stage boundary. There is no
// separate status column: the lifecycle stage is derived from which fields
// are non-null (see DeriveStage).
type Record struct {
	// Origin facts.
	ExternalID      string
	Source          string
	Author          string
	Title           string
	Stars           int
	Description     string
	URL             string
	OriginCreatedAt time.Time

	// Pipeline fields, each nullable.
	RelevanceScore   *float64
	MatchedCategory  string
	Summary          string
	SummaryLocalized string
	ScoredAt         *time.Time
	EmbeddedAt       *time.Time
	EnrichAttempts   int

	// SentAt maps a notification channel name to the time the record was
	// delivered on that channel. Nil or missing means not yet sent.
	SentAt map[string]time.Time
}

// Key returns the composite identity of the record.
func (r *Record) Key() RecordKey {
	return RecordKey{ExternalID: r.ExternalID, Source: r.Source}
}

// Stage is the derived lifecycle position of a record.
type Stage int

const (
	// StageFetched means the record has origin facts only.
	StageFetched Stage = iota
	// StageScored means the record has a relevance score.
	StageScored
	// StageEnriched means the record has a summary.
	StageEnriched
	// StageEmbedded means the record's summary has been vectorised.
	StageEmbedded
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageFetched:
		return "fetched"
	case StageScored:
		return "scored"
	case StageEnriched:
		return "enriched"
	case StageEmbedded:
		return "embedded"
	default:
		return "unknown"
	}
}

// DeriveStage computes the lifecycle stage of a record from its stored
// fields. Every eligibility predicate goes through this function so the
// null-field semantics live in exactly one place.
func DeriveStage(r *Record) Stage {
	switch {
	case r.EmbeddedAt != nil:
		return StageEmbedded
	case r.Summary != "":
		return StageEnriched
	case r.RelevanceScore != nil:
		return StageScored
	default:
		return StageFetched
	}
}

// EligibleForScore reports whether the record still needs relevance scoring.
func EligibleForScore(r *Record) bool {
	return DeriveStage(r) == StageFetched
}

// EligibleForEnrich reports whether the record qualifies for summarisation.
// The threshold comparison is inclusive. Records that exhausted the attempt
// ceiling are permanently retired from this stage.
func EligibleForEnrich(r *Record, threshold float64, maxAttempts int) bool {
	if DeriveStage(r) != StageScored {
		return false
	}
	if *r.RelevanceScore < threshold {
		return false
	}
	return r.EnrichAttempts < maxAttempts
}

// EligibleForEmbed reports whether the record has a summary awaiting
// vectorisation.
func EligibleForEmbed(r *Record) bool {
	return DeriveStage(r) == StageEnriched
}

// EligibleForChannel reports whether the record qualifies for delivery on
// the named notification channel: it has a summary, meets the channel's
// score floor, was created within the recency window ending at now, and has
// not already been sent on that channel.
func EligibleForChannel(r *Record, channel string, floor float64, recency time.Duration, now time.Time) bool {
	if r.Summary == "" {
		return false
	}
	if r.RelevanceScore == nil || *r.RelevanceScore < floor {
		return false
	}
	if r.OriginCreatedAt.Before(now.Add(-recency)) {
		return false
	}
	if _, sent := r.SentAt[channel]; sent {
		return false
	}
	return true
}

// MergeRecords reconciles a re-ingested record with its stored counterpart
// and returns the merged result. Origin facts from the incoming record win
// only when they are better: a longer description replaces a shorter one,
// empty incoming values never erase stored ones, and the star count follows
// the fresher fetch. Pipeline fields are first-write-wins: once scored or
// summarised, a re-fetch never clobbers the stored value.
func MergeRecords(existing, incoming Record) Record {
	merged := existing

	if incoming.Author != "" {
		merged.Author = incoming.Author
	}
	if incoming.Title != "" {
		merged.Title = incoming.Title
	}
	if incoming.URL != "" {
		merged.URL = incoming.URL
	}
	if len(incoming.Description) > len(existing.Description) {
		merged.Description = incoming.Description
	}
	if incoming.Stars > 0 {
		merged.Stars = incoming.Stars
	}
	if merged.OriginCreatedAt.IsZero() {
		merged.OriginCreatedAt = incoming.OriginCreatedAt
	}

	if merged.RelevanceScore == nil {
		merged.RelevanceScore = incoming.RelevanceScore
		merged.ScoredAt = incoming.ScoredAt
	}
	if merged.MatchedCategory == "" {
		merged.MatchedCategory = incoming.MatchedCategory
	}
	if merged.Summary == "" {
		merged.Summary = incoming.Summary
	}
	if merged.SummaryLocalized == "" {
		merged.SummaryLocalized = incoming.SummaryLocalized
	}
	if merged.EmbeddedAt == nil {
		merged.EmbeddedAt = incoming.EmbeddedAt
	}
	if incoming.EnrichAttempts > merged.EnrichAttempts {
		merged.EnrichAttempts = incoming.EnrichAttempts
	}

	return merged
}

// StageFields carries the output of one stage for one record. Only non-nil
// fields are applied, and a field is only ever written when the stored value
// is still absent, which makes re-applying the same result a no-op.
type StageFields struct {
	// Description is the one origin fact a stage may improve: it is applied
	// only when longer than the stored value.
	Description *string

	RelevanceScore   *float64
	MatchedCategory  *string
	Summary          *string
	SummaryLocalized *string
	ScoredAt         *time.Time
	EmbeddedAt       *time.Time

	// SentChannel marks delivery on a notification channel at SentAt.
	SentChannel *string
	SentAt      *time.Time
}
