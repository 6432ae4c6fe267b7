package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/veritasgrid/triagecore/internal/domain"
)

// upsertVector keeps at most one Vector per doc_id in the active index by
// upserting on the doc_id unique constraint.
func upsertVector(ctx context.Context, tx pgx.Tx, v domain.Vector) error {
	id := v.ID
	if id == "" {
		id = uuid.NewString()
	}
	metadata, err := marshalMap(v.Metadata)
	if err != nil {
		return fmt.Errorf("store: marshal vector metadata: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO vectors (id, doc_id, embedding_id, external_id, metadata)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (doc_id) DO UPDATE SET
			embedding_id = EXCLUDED.embedding_id,
			external_id = EXCLUDED.external_id,
			metadata = EXCLUDED.metadata`,
		id, v.DocID, v.EmbeddingID, v.ExternalID, metadata)
	if err != nil {
		return fmt.Errorf("store: upsert vector for doc %s: %w", v.DocID, err)
	}
	return nil
}

// VectorForDoc fetches the Vector row for a document, used by admin/debug
// tooling and tests asserting that every scam-labeled item has a vector.
func (s *Store) VectorForDoc(ctx context.Context, docID string) (domain.Vector, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, doc_id, embedding_id, external_id, metadata FROM vectors WHERE doc_id = $1`, docID)
	var v domain.Vector
	var metadataRaw []byte
	if err := row.Scan(&v.ID, &v.DocID, &v.EmbeddingID, &v.ExternalID, &metadataRaw); err != nil {
		return domain.Vector{}, fmt.Errorf("store: load vector for doc %s: %w", docID, mapErr(err))
	}
	var err error
	if v.Metadata, err = unmarshalMap(metadataRaw); err != nil {
		return domain.Vector{}, fmt.Errorf("store: unmarshal vector metadata: %w", err)
	}
	return v, nil
}
