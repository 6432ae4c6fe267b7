// Package store is the Postgres-backed persistence layer. User lookups go
// through the generic pkg/repo seam; the other tables use direct SQL, and
// every write that must
// commit across tables (routing a classified item, applying a review
// action) is an explicit pgx transaction here instead, since that seam is
// single-table by design.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veritasgrid/triagecore/internal/domain"
)

// Store wraps a pgxpool.Pool and implements every persistence seam the
// pipeline stages declare (audit.Store, enrich.ItemStore, classify.Store,
// review.Store, etc.) against the tables in migrations/.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an established connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool exposes the underlying pool for callers (e.g. health checks) that
// need it directly.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

func marshalMap(m map[string]string) ([]byte, error) {
	if m == nil {
		m = map[string]string{}
	}
	return json.Marshal(m)
}

func unmarshalMap(raw []byte) (map[string]string, error) {
	if len(raw) == 0 {
		return map[string]string{}, nil
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func marshalAny(m map[string]any) ([]byte, error) {
	if m == nil {
		m = map[string]any{}
	}
	return json.Marshal(m)
}

func unmarshalAny(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func marshalStrings(ss []string) ([]byte, error) {
	if ss == nil {
		ss = []string{}
	}
	return json.Marshal(ss)
}

func unmarshalStrings(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return []string{}, nil
	}
	var ss []string
	if err := json.Unmarshal(raw, &ss); err != nil {
		return nil, err
	}
	return ss, nil
}

// withTx runs fn inside a single transaction, committing on success and
// rolling back on any error including a panic recovered by pgx itself.
func (s *Store) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op once committed

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

func scanCrawledItem(row pgx.Row) (domain.CrawledItem, error) {
	var (
		item           domain.CrawledItem
		classifierScore *float64
		imageHashesRaw []byte
		whoisRaw       []byte
		metadataRaw    []byte
	)
	err := row.Scan(
		&item.ID, &item.URL, &item.Domain, &item.RawHTMLPath, &item.ScreenshotPath,
		&item.CleanText, &item.Language, &item.LangConfidence, &item.Translit,
		&item.HeuristicScore, &classifierScore, &item.Label,
		&imageHashesRaw, &whoisRaw, &metadataRaw, &item.IngestedAt,
	)
	if err != nil {
		return domain.CrawledItem{}, mapErr(err)
	}
	item.ClassifierScore = classifierScore
	if item.ImageHashes, err = unmarshalStrings(imageHashesRaw); err != nil {
		return domain.CrawledItem{}, fmt.Errorf("store: unmarshal image_hashes: %w", err)
	}
	if item.WhoisData, err = unmarshalMap(whoisRaw); err != nil {
		return domain.CrawledItem{}, fmt.Errorf("store: unmarshal whois_data: %w", err)
	}
	if item.Metadata, err = unmarshalMap(metadataRaw); err != nil {
		return domain.CrawledItem{}, fmt.Errorf("store: unmarshal metadata: %w", err)
	}
	return item, nil
}

func mapErr(err error) error {
	if err == pgx.ErrNoRows {
		return domain.ErrNotFound
	}
	return err
}

// now is overridable in tests.
var now = func() time.Time { return time.Now().UTC() }
