package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/meridian-labs/radar-cli/internal/core/domain"
	"github.com/meridian-labs/radar-cli/internal/core/ports/driven"
)

// recordColumns is the scan order shared by every record query.
const recordColumns = "source, external_id, author, title, stars, description, url, " +
	"origin_created_at, relevance_score, matched_category, summary, summary_localized, " +
	"scored_at, embedded_at, enrich_attempts"

// recordStore implements driven.RecordStore.
type recordStore struct {
	store *Store
}

var _ driven.RecordStore = (*recordStore)(nil)

// UpsertBatch transactionally merges records into the store. Each incoming
// record is reconciled with the stored row via domain.MergeRecords before
// being written back, so re-ingesting never clobbers pipeline fields.
func (s *recordStore) UpsertBatch(ctx context.Context, records []domain.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	// Collapse in-batch duplicates first: last write within the batch wins.
	collapsed := make(map[domain.RecordKey]domain.Record, len(records))
	order := make([]domain.RecordKey, 0, len(records))
	for _, rec := range records {
		if _, seen := collapsed[rec.Key()]; !seen {
			order = append(order, rec.Key())
		}
		collapsed[rec.Key()] = rec
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (source, external_id, author, title, stars, description, url,
			origin_created_at, relevance_score, matched_category, summary, summary_localized,
			scored_at, embedded_at, enrich_attempts, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source, external_id) DO UPDATE SET
			author = excluded.author,
			title = excluded.title,
			stars = excluded.stars,
			description = excluded.description,
			url = excluded.url,
			origin_created_at = excluded.origin_created_at,
			relevance_score = excluded.relevance_score,
			matched_category = excluded.matched_category,
			summary = excluded.summary,
			summary_localized = excluded.summary_localized,
			scored_at = excluded.scored_at,
			embedded_at = excluded.embedded_at,
			enrich_attempts = excluded.enrich_attempts,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return 0, fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, key := range order {
		merged := collapsed[key]

		existing, err := getRecordTx(ctx, tx, key)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return 0, err
		}
		if existing != nil {
			merged = domain.MergeRecords(*existing, merged)
		}

		if _, err := stmt.ExecContext(ctx,
			merged.Source, merged.ExternalID, merged.Author, merged.Title, merged.Stars,
			merged.Description, merged.URL, nullTime(timePtrOf(merged.OriginCreatedAt)),
			nullFloat(merged.RelevanceScore), merged.MatchedCategory, merged.Summary,
			merged.SummaryLocalized, nullTime(merged.ScoredAt), nullTime(merged.EmbeddedAt),
			merged.EnrichAttempts, now); err != nil {
			return 0, fmt.Errorf("upserting record %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return len(order), nil
}

// SelectEligible builds the stage's eligibility predicate as SQL and returns
// matching records ordered by priority: relevance score, then stars,
// descending.
func (s *recordStore) SelectEligible(ctx context.Context, stage domain.StageName, filter domain.SelectFilter, limit int) ([]domain.Record, error) {
	now := filter.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	q := sq.Select(recordColumns).From("records")

	if len(filter.Sources) > 0 {
		q = q.Where(sq.Eq{"source": filter.Sources})
	}

	switch stage {
	case domain.StageContent:
		q = q.Where("relevance_score IS NULL AND summary = '' AND embedded_at IS NULL").
			Where(sq.Expr("length(description) < ?", filter.MinDescription))
	case domain.StageScore:
		q = q.Where("relevance_score IS NULL AND summary = '' AND embedded_at IS NULL")
	case domain.StageEnrich:
		q = q.Where("relevance_score IS NOT NULL AND summary = '' AND embedded_at IS NULL").
			Where(sq.GtOrEq{"relevance_score": filter.ScoreThreshold}).
			Where(sq.Lt{"enrich_attempts": filter.MaxAttempts})
	case domain.StageEmbed:
		q = q.Where("summary != '' AND embedded_at IS NULL")
	case domain.StageExport:
		q = q.Where("summary != ''")
	case domain.StageNotify:
		q = q.Where("summary != ''").
			Where(sq.GtOrEq{"relevance_score": filter.ChannelFloor}).
			Where(sq.GtOrEq{"origin_created_at": now.Add(-filter.Recency)}).
			Where(sq.Expr(`NOT EXISTS (
				SELECT 1 FROM sends
				WHERE sends.source = records.source
				  AND sends.external_id = records.external_id
				  AND sends.channel = ?)`, filter.Channel))
	default:
		return nil, nil
	}

	q = q.OrderBy("COALESCE(relevance_score, 0) DESC", "stars DESC", "source", "external_id")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building eligibility query: %w", err)
	}

	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying eligible records: %w", err)
	}
	defer rows.Close()

	var records []domain.Record //nolint:prealloc // size unknown from query
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}

	return records, nil
}

// ApplyStageResult point-updates one record's pipeline fields. Every SET
// expression guards on the stored value still being absent, so re-applying
// the same result is a no-op.
func (s *recordStore) ApplyStageResult(ctx context.Context, key domain.RecordKey, fields domain.StageFields) error {
	q := sq.Update("records").Set("updated_at", time.Now().UTC())

	if fields.Description != nil {
		q = q.Set("description", sq.Expr(
			"CASE WHEN length(description) < length(?) THEN ? ELSE description END",
			*fields.Description, *fields.Description))
	}
	if fields.RelevanceScore != nil {
		q = q.Set("relevance_score", sq.Expr("COALESCE(relevance_score, ?)", *fields.RelevanceScore))
		if fields.ScoredAt != nil {
			// SET expressions see the pre-update row, so this guard matches
			// the relevance_score one above.
			q = q.Set("scored_at", sq.Expr(
				"CASE WHEN relevance_score IS NULL THEN ? ELSE scored_at END", *fields.ScoredAt))
		}
	}
	if fields.MatchedCategory != nil {
		q = q.Set("matched_category", sq.Expr(
			"CASE WHEN matched_category = '' THEN ? ELSE matched_category END", *fields.MatchedCategory))
	}
	if fields.Summary != nil {
		q = q.Set("summary", sq.Expr(
			"CASE WHEN summary = '' THEN ? ELSE summary END", *fields.Summary))
	}
	if fields.SummaryLocalized != nil {
		q = q.Set("summary_localized", sq.Expr(
			"CASE WHEN summary_localized = '' THEN ? ELSE summary_localized END", *fields.SummaryLocalized))
	}
	if fields.EmbeddedAt != nil {
		q = q.Set("embedded_at", sq.Expr("COALESCE(embedded_at, ?)", *fields.EmbeddedAt))
	}

	q = q.Where(sq.Eq{"source": key.Source, "external_id": key.ExternalID})

	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("building stage update: %w", err)
	}

	res, err := s.store.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("applying stage result for %s: %w", key, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking stage update for %s: %w", key, err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}

	if fields.SentChannel != nil && fields.SentAt != nil {
		_, err := s.store.db.ExecContext(ctx, `
			INSERT INTO sends (source, external_id, channel, sent_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(source, external_id, channel) DO NOTHING
		`, key.Source, key.ExternalID, *fields.SentChannel, *fields.SentAt)
		if err != nil {
			return fmt.Errorf("recording send for %s: %w", key, err)
		}
	}

	return nil
}

// MarkAttemptFailed increments the enrichment attempt counter.
func (s *recordStore) MarkAttemptFailed(ctx context.Context, key domain.RecordKey) error {
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE records
		SET enrich_attempts = enrich_attempts + 1, updated_at = ?
		WHERE source = ? AND external_id = ?
	`, time.Now().UTC(), key.Source, key.ExternalID)
	if err != nil {
		return fmt.Errorf("marking attempt for %s: %w", key, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking attempt update for %s: %w", key, err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Get fetches one record by key, including its per-channel send times.
func (s *recordStore) Get(ctx context.Context, key domain.RecordKey) (*domain.Record, error) {
	row := s.store.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM records WHERE source = ? AND external_id = ?",
		key.Source, key.ExternalID)

	rec, err := scanRecord(row)
	if err != nil {
		return nil, err
	}

	rows, err := s.store.db.QueryContext(ctx,
		"SELECT channel, sent_at FROM sends WHERE source = ? AND external_id = ?",
		key.Source, key.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("querying sends for %s: %w", key, err)
	}
	defer rows.Close()

	for rows.Next() {
		var channel string
		var sentAt time.Time
		if err := rows.Scan(&channel, &sentAt); err != nil {
			return nil, fmt.Errorf("scanning send: %w", err)
		}
		if rec.SentAt == nil {
			rec.SentAt = make(map[string]time.Time)
		}
		rec.SentAt[channel] = sentAt
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sends: %w", err)
	}

	return rec, nil
}

// Stats reports total and per-stage-completed record counts.
func (s *recordStore) Stats(ctx context.Context) (*domain.Stats, error) {
	stats := &domain.Stats{Sent: make(map[string]int)}

	row := s.store.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN relevance_score IS NOT NULL AND summary = '' AND embedded_at IS NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN summary != '' AND embedded_at IS NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN embedded_at IS NOT NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN summary = '' AND relevance_score IS NOT NULL AND enrich_attempts > 0 THEN 1 ELSE 0 END), 0)
		FROM records
	`)
	if err := row.Scan(&stats.Total, &stats.Scored, &stats.Enriched, &stats.Embedded, &stats.Retired); err != nil {
		return nil, fmt.Errorf("scanning stats: %w", err)
	}

	rows, err := s.store.db.QueryContext(ctx, "SELECT channel, COUNT(*) FROM sends GROUP BY channel")
	if err != nil {
		return nil, fmt.Errorf("querying send stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var channel string
		var count int
		if err := rows.Scan(&channel, &count); err != nil {
			return nil, fmt.Errorf("scanning send stats: %w", err)
		}
		stats.Sent[channel] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating send stats: %w", err)
	}

	return stats, nil
}

// getRecordTx reads a record inside a transaction, without its sends.
func getRecordTx(ctx context.Context, tx *sql.Tx, key domain.RecordKey) (*domain.Record, error) {
	row := tx.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM records WHERE source = ? AND external_id = ?",
		key.Source, key.ExternalID)
	return scanRecord(row)
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord scans one record row in recordColumns order.
func scanRecord(row rowScanner) (*domain.Record, error) {
	var rec domain.Record
	var originCreatedAt, scoredAt, embeddedAt sql.NullTime
	var relevanceScore sql.NullFloat64

	if err := row.Scan(&rec.Source, &rec.ExternalID, &rec.Author, &rec.Title, &rec.Stars,
		&rec.Description, &rec.URL, &originCreatedAt, &relevanceScore, &rec.MatchedCategory,
		&rec.Summary, &rec.SummaryLocalized, &scoredAt, &embeddedAt, &rec.EnrichAttempts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning record: %w", err)
	}

	if originCreatedAt.Valid {
		rec.OriginCreatedAt = originCreatedAt.Time
	}
	if relevanceScore.Valid {
		rec.RelevanceScore = &relevanceScore.Float64
	}
	if scoredAt.Valid {
		rec.ScoredAt = &scoredAt.Time
	}
	if embeddedAt.Valid {
		rec.EmbeddedAt = &embeddedAt.Time
	}

	return &rec, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func timePtrOf(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
