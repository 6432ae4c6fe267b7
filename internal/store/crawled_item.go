package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/veritasgrid/triagecore/internal/domain"
)

const crawledItemColumns = `id, url, domain, raw_html_path, screenshot_path, clean_text, language,
	lang_confidence, translit, heuristic_score, classifier_score, label,
	image_hashes, whois_data, metadata, ingested_at`

// InsertCrawledItem implements enrich.ItemStore: enrichment writes exactly
// one CrawledItem row per message. Re-enrichment of the same URL is
// idempotent via an upsert keyed by url — the most recent contents stay
// canonical, and no second row ever appears.
func (s *Store) InsertCrawledItem(ctx context.Context, item domain.CrawledItem) (domain.CrawledItem, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	imageHashes, err := marshalStrings(item.ImageHashes)
	if err != nil {
		return domain.CrawledItem{}, fmt.Errorf("store: marshal image_hashes: %w", err)
	}
	whois, err := marshalMap(item.WhoisData)
	if err != nil {
		return domain.CrawledItem{}, fmt.Errorf("store: marshal whois_data: %w", err)
	}
	metadata, err := marshalMap(item.Metadata)
	if err != nil {
		return domain.CrawledItem{}, fmt.Errorf("store: marshal metadata: %w", err)
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO crawled_items (id, url, domain, raw_html_path, screenshot_path, clean_text,
			language, lang_confidence, translit, heuristic_score, classifier_score, label,
			image_hashes, whois_data, metadata, ingested_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (url) DO UPDATE SET
			domain = EXCLUDED.domain,
			raw_html_path = EXCLUDED.raw_html_path,
			screenshot_path = EXCLUDED.screenshot_path,
			clean_text = EXCLUDED.clean_text,
			language = EXCLUDED.language,
			lang_confidence = EXCLUDED.lang_confidence,
			translit = EXCLUDED.translit,
			heuristic_score = EXCLUDED.heuristic_score,
			image_hashes = EXCLUDED.image_hashes,
			whois_data = EXCLUDED.whois_data,
			metadata = EXCLUDED.metadata,
			ingested_at = EXCLUDED.ingested_at
		RETURNING `+crawledItemColumns,
		item.ID, item.URL, item.Domain, item.RawHTMLPath, item.ScreenshotPath, item.CleanText,
		item.Language, item.LangConfidence, item.Translit, item.HeuristicScore, item.ClassifierScore,
		item.Label, imageHashes, whois, metadata, item.IngestedAt,
	)
	stored, err := scanCrawledItem(row)
	if err != nil {
		return domain.CrawledItem{}, fmt.Errorf("store: insert crawled item: %w", mapErr(err))
	}
	return stored, nil
}

// LoadCrawledItemByURL implements classify.Store's lookup by url.
func (s *Store) LoadCrawledItemByURL(ctx context.Context, url string) (domain.CrawledItem, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+crawledItemColumns+` FROM crawled_items WHERE url = $1`, url)
	item, err := scanCrawledItem(row)
	if err != nil {
		return domain.CrawledItem{}, fmt.Errorf("store: load crawled item by url %s: %w", url, mapErr(err))
	}
	return item, nil
}

// LoadCrawledItem implements review.ItemLoader, fetching by primary key.
func (s *Store) LoadCrawledItem(ctx context.Context, id string) (domain.CrawledItem, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+crawledItemColumns+` FROM crawled_items WHERE id = $1`, id)
	item, err := scanCrawledItem(row)
	if err != nil {
		return domain.CrawledItem{}, fmt.Errorf("store: load crawled item %s: %w", id, mapErr(err))
	}
	return item, nil
}

// RouteScam implements classify.Store: atomically updates the item's
// label/score and writes the Vector row in one transaction.
func (s *Store) RouteScam(ctx context.Context, item domain.CrawledItem, vector domain.Vector) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			UPDATE crawled_items SET label = $1, classifier_score = $2 WHERE id = $3`,
			domain.LabelScam, item.ClassifierScore, item.ID); err != nil {
			return fmt.Errorf("store: update crawled item label: %w", err)
		}
		if err := upsertVector(ctx, tx, vector); err != nil {
			return err
		}
		return nil
	})
}

// RouteReview implements classify.Store: atomically updates the item's
// label/score and inserts a pending ReviewQueueEntry in one transaction.
func (s *Store) RouteReview(ctx context.Context, item domain.CrawledItem, entry domain.ReviewQueueEntry) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			UPDATE crawled_items SET label = $1, classifier_score = $2 WHERE id = $3`,
			domain.LabelNeedsReview, item.ClassifierScore, item.ID); err != nil {
			return fmt.Errorf("store: update crawled item label: %w", err)
		}
		id := entry.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO review_queue (id, doc_id, assigned_to, status, priority, note, created_at, updated_at)
			VALUES ($1, $2, NULL, $3, $4, $5, $6, $6)`,
			id, item.ID, domain.ReviewPending, entry.Priority, entry.Note, now()); err != nil {
			return fmt.Errorf("store: insert review entry: %w", err)
		}
		return nil
	})
}

// RouteBenign implements classify.Store: the benign route never writes a
// vector.
func (s *Store) RouteBenign(ctx context.Context, item domain.CrawledItem) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE crawled_items SET label = $1, classifier_score = $2 WHERE id = $3`,
		domain.LabelBenign, item.ClassifierScore, item.ID)
	if err != nil {
		return fmt.Errorf("store: update crawled item label: %w", err)
	}
	return nil
}

// ActiveThresholds implements classify.Store by delegating to the
// ModelVersion lookup.
func (s *Store) ActiveThresholds(ctx context.Context) (domain.Thresholds, error) {
	mv, err := s.ActiveModelVersion(ctx)
	if err != nil {
		return domain.Thresholds{}, err
	}
	return mv.Thresholds, nil
}
