package sqlite

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/meridian-labs/radar-cli/internal/core/domain"
	"github.com/meridian-labs/radar-cli/internal/core/ports/driven"
)

// vectorIndex implements driven.VectorIndex on top of the vectors table.
// Embeddings are stored as little-endian float32 BLOBs and searched with a
// full scan; at radar scale (thousands of records) that stays well under a
// millisecond.
type vectorIndex struct {
	store *Store
}

var _ driven.VectorIndex = (*vectorIndex)(nil)

// Add inserts or replaces the vector for a record.
func (v *vectorIndex) Add(ctx context.Context, key domain.RecordKey, embedding []float32) error {
	if len(embedding) == 0 {
		return domain.ErrInvalidInput
	}

	_, err := v.store.db.ExecContext(ctx, `
		INSERT INTO vectors (source, external_id, embedding)
		VALUES (?, ?, ?)
		ON CONFLICT(source, external_id) DO UPDATE SET
			embedding = excluded.embedding
	`, key.Source, key.ExternalID, float32SliceToBytes(embedding))
	if err != nil {
		return fmt.Errorf("saving vector for %s: %w", key, err)
	}
	return nil
}

// AddBatch inserts vectors for several records in one transaction.
func (v *vectorIndex) AddBatch(ctx context.Context, keys []domain.RecordKey, embeddings [][]float32) error {
	if len(keys) != len(embeddings) {
		return domain.ErrInvalidInput
	}

	tx, err := v.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO vectors (source, external_id, embedding)
		VALUES (?, ?, ?)
		ON CONFLICT(source, external_id) DO UPDATE SET
			embedding = excluded.embedding
	`)
	if err != nil {
		return fmt.Errorf("preparing vector insert: %w", err)
	}
	defer stmt.Close()

	for i, key := range keys {
		if len(embeddings[i]) == 0 {
			return domain.ErrInvalidInput
		}
		if _, err := stmt.ExecContext(ctx, key.Source, key.ExternalID,
			float32SliceToBytes(embeddings[i])); err != nil {
			return fmt.Errorf("saving vector for %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Search finds the k nearest neighbours to the query vector by cosine
// similarity.
func (v *vectorIndex) Search(ctx context.Context, query []float32, k int) ([]driven.VectorHit, error) {
	if len(query) == 0 || k <= 0 {
		return nil, domain.ErrInvalidInput
	}

	rows, err := v.store.db.QueryContext(ctx, "SELECT source, external_id, embedding FROM vectors")
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	var hits []driven.VectorHit
	for rows.Next() {
		var key domain.RecordKey
		var blob []byte
		if err := rows.Scan(&key.Source, &key.ExternalID, &blob); err != nil {
			return nil, fmt.Errorf("scanning vector: %w", err)
		}

		similarity, ok := cosineSimilarity(query, bytesToFloat32Slice(blob))
		if !ok {
			continue // Dimension mismatch or zero vector.
		}
		hits = append(hits, driven.VectorHit{Key: key, Similarity: similarity})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating vectors: %w", err)
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].Key.String() < hits[j].Key.String()
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Close is a no-op: the underlying connection is owned by the Store.
func (v *vectorIndex) Close() error {
	return nil
}

// cosineSimilarity returns the cosine of the angle between a and b. The
// second return is false when the vectors differ in dimension or either has
// zero magnitude.
func cosineSimilarity(a, b []float32) (float64, bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), true
}
