package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/veritasgrid/triagecore/internal/domain"
)

// ActiveModelVersion loads the single row flagged is_active. There is at
// most one such row by construction
// (ActivateModelVersion flips the flag inside a transaction).
func (s *Store) ActiveModelVersion(ctx context.Context) (domain.ModelVersion, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, classifier_version, embedding_model, embedding_dim, llm_version, thresholds, is_active, created_at
		FROM model_versions WHERE is_active = true LIMIT 1`)
	var mv domain.ModelVersion
	var thresholdsRaw []byte
	err := row.Scan(&mv.ID, &mv.ClassifierVersion, &mv.EmbeddingModel, &mv.EmbeddingDim, &mv.LLMVersion,
		&thresholdsRaw, &mv.IsActive, &mv.CreatedAt)
	if err != nil {
		return domain.ModelVersion{}, fmt.Errorf("store: load active model version: %w", mapErr(err))
	}
	if err := json.Unmarshal(thresholdsRaw, &mv.Thresholds); err != nil {
		return domain.ModelVersion{}, fmt.Errorf("store: unmarshal thresholds: %w", err)
	}
	return mv, nil
}

// ActivateModelVersion inserts a new ModelVersion row and flips is_active,
// leaving every prior row inactive. Activations form a history, never
// in-place edits — this never mutates a previously active row's other
// fields, only its is_active flag.
func (s *Store) ActivateModelVersion(ctx context.Context, mv domain.ModelVersion) (domain.ModelVersion, error) {
	if mv.ID == "" {
		mv.ID = uuid.NewString()
	}
	thresholds, err := json.Marshal(mv.Thresholds)
	if err != nil {
		return domain.ModelVersion{}, fmt.Errorf("store: marshal thresholds: %w", err)
	}

	createdAt := now()
	err = s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE model_versions SET is_active = false WHERE is_active = true`); err != nil {
			return fmt.Errorf("store: deactivate prior model versions: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO model_versions (id, classifier_version, embedding_model, embedding_dim, llm_version, thresholds, is_active, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,true,$7)`,
			mv.ID, mv.ClassifierVersion, mv.EmbeddingModel, mv.EmbeddingDim, mv.LLMVersion, thresholds, createdAt); err != nil {
			return fmt.Errorf("store: insert model version: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.ModelVersion{}, err
	}
	mv.IsActive = true
	mv.CreatedAt = createdAt
	return mv, nil
}
