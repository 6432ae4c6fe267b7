package store

import (
	"fmt"

	"context"

	"github.com/jackc/pgx/v5"

	"github.com/veritasgrid/triagecore/internal/domain"
	"github.com/veritasgrid/triagecore/internal/review"
)

const reviewColumns = `id, doc_id, assigned_to, status, priority, note, created_at, updated_at`

func scanReviewEntry(row pgx.Row) (domain.ReviewQueueEntry, error) {
	var e domain.ReviewQueueEntry
	var assignedTo *string
	err := row.Scan(&e.ID, &e.DocID, &assignedTo, &e.Status, &e.Priority, &e.Note, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return domain.ReviewQueueEntry{}, mapErr(err)
	}
	if assignedTo != nil {
		e.AssignedTo = *assignedTo
	}
	return e, nil
}

// GetReviewEntry implements review.Store.
func (s *Store) GetReviewEntry(ctx context.Context, id string) (domain.ReviewQueueEntry, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+reviewColumns+` FROM review_queue WHERE id = $1`, id)
	entry, err := scanReviewEntry(row)
	if err != nil {
		return domain.ReviewQueueEntry{}, fmt.Errorf("store: load review entry %s: %w", id, err)
	}
	return entry, nil
}

// Assign implements review.Store's compare-and-set transition from pending
// to in_review. The WHERE clause's status='pending' check and the
// UPDATE happen atomically in one statement, so two concurrent callers can
// race the database and exactly one UPDATE matches a row — the loser's
// RowsAffected is 0 and it receives domain.ErrConflict.
func (s *Store) Assign(ctx context.Context, id, reviewerID string) (domain.ReviewQueueEntry, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE review_queue SET assigned_to = $1, status = $2, updated_at = $3
		WHERE id = $4 AND status = $5`,
		reviewerID, domain.ReviewInReview, now(), id, domain.ReviewPending)
	if err != nil {
		return domain.ReviewQueueEntry{}, fmt.Errorf("store: assign %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ReviewQueueEntry{}, fmt.Errorf("store: assign %s: %w", id, domain.ErrConflict)
	}
	return s.GetReviewEntry(ctx, id)
}

// ApplyApprove implements review.Store: atomically transitions the entry to
// approved, sets the item's label to scam, and upserts the Vector row
// in one transaction. Approval fires from pending as well as in_review —
// a reviewer may approve straight off the queue without claiming the entry
// first — and the status guard in the UPDATE makes this the same
// single-writer-wins compare-and-set Assign uses: two reviewers racing the
// same entry leave exactly one approved row, one ErrConflict, and one
// vector upsert.
func (s *Store) ApplyApprove(ctx context.Context, entryID string, vector domain.Vector) (domain.ReviewQueueEntry, domain.CrawledItem, error) {
	var entry domain.ReviewQueueEntry
	var item domain.CrawledItem
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE review_queue SET status = $1, updated_at = $2
			WHERE id = $3 AND status IN ($4, $5)`,
			domain.ReviewApproved, now(), entryID, domain.ReviewPending, domain.ReviewInReview)
		if err != nil {
			return fmt.Errorf("store: approve %s: %w", entryID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("store: approve %s: %w", entryID, domain.ErrConflict)
		}

		row := tx.QueryRow(ctx, `SELECT `+reviewColumns+` FROM review_queue WHERE id = $1`, entryID)
		entry, err = scanReviewEntry(row)
		if err != nil {
			return fmt.Errorf("store: reload review entry %s: %w", entryID, err)
		}

		if _, err := tx.Exec(ctx, `UPDATE crawled_items SET label = $1 WHERE id = $2`, domain.LabelScam, entry.DocID); err != nil {
			return fmt.Errorf("store: update crawled item label: %w", err)
		}
		if err := upsertVector(ctx, tx, vector); err != nil {
			return err
		}

		itemRow := tx.QueryRow(ctx, `SELECT `+crawledItemColumns+` FROM crawled_items WHERE id = $1`, entry.DocID)
		item, err = scanCrawledItem(itemRow)
		if err != nil {
			return fmt.Errorf("store: reload crawled item %s: %w", entry.DocID, err)
		}
		return nil
	})
	if err != nil {
		return domain.ReviewQueueEntry{}, domain.CrawledItem{}, err
	}
	return entry, item, nil
}

// ApplyReject implements review.Store: atomically sets status=rejected and
// label=benign.
func (s *Store) ApplyReject(ctx context.Context, entryID string) (domain.ReviewQueueEntry, domain.CrawledItem, error) {
	var entry domain.ReviewQueueEntry
	var item domain.CrawledItem
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE review_queue SET status = $1, updated_at = $2
			WHERE id = $3 AND status = $4`,
			domain.ReviewRejected, now(), entryID, domain.ReviewInReview)
		if err != nil {
			return fmt.Errorf("store: reject %s: %w", entryID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("store: reject %s: %w", entryID, domain.ErrConflict)
		}

		row := tx.QueryRow(ctx, `SELECT `+reviewColumns+` FROM review_queue WHERE id = $1`, entryID)
		entry, err = scanReviewEntry(row)
		if err != nil {
			return fmt.Errorf("store: reload review entry %s: %w", entryID, err)
		}

		if _, err := tx.Exec(ctx, `UPDATE crawled_items SET label = $1 WHERE id = $2`, domain.LabelBenign, entry.DocID); err != nil {
			return fmt.Errorf("store: update crawled item label: %w", err)
		}

		itemRow := tx.QueryRow(ctx, `SELECT `+crawledItemColumns+` FROM crawled_items WHERE id = $1`, entry.DocID)
		item, err = scanCrawledItem(itemRow)
		if err != nil {
			return fmt.Errorf("store: reload crawled item %s: %w", entry.DocID, err)
		}
		return nil
	})
	if err != nil {
		return domain.ReviewQueueEntry{}, domain.CrawledItem{}, err
	}
	return entry, item, nil
}

// ApplyEscalate implements review.Store: raises priority to 10 and sets
// status escalated. Like approve (and unlike reject), escalation is allowed
// straight from pending: the status guard admits pending and in_review.
func (s *Store) ApplyEscalate(ctx context.Context, entryID string) (domain.ReviewQueueEntry, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE review_queue SET status = $1, priority = 10, updated_at = $2
		WHERE id = $3 AND status IN ($4, $5)`,
		domain.ReviewEscalated, now(), entryID, domain.ReviewPending, domain.ReviewInReview)
	if err != nil {
		return domain.ReviewQueueEntry{}, fmt.Errorf("store: escalate %s: %w", entryID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ReviewQueueEntry{}, fmt.Errorf("store: escalate %s: %w", entryID, domain.ErrConflict)
	}
	return s.GetReviewEntry(ctx, entryID)
}

// ListReviewQueue implements review.Lister: ordered by priority desc then
// created_at asc (Glossary: "Review queue"), paginated by the keyset cursor
// in after rather than OFFSET, so a concurrent insert elsewhere in the queue
// never shifts which row a given cursor resumes from.
func (s *Store) ListReviewQueue(ctx context.Context, status domain.ReviewStatus, limit int, after review.Cursor) ([]domain.ReviewQueueEntry, error) {
	hasCursor := after.ID != ""

	var rows pgx.Rows
	var err error
	switch {
	case status == "" && !hasCursor:
		rows, err = s.pool.Query(ctx, `
			SELECT `+reviewColumns+` FROM review_queue
			ORDER BY priority DESC, created_at ASC, id ASC LIMIT $1`, nonZeroLimit(limit))
	case status == "" && hasCursor:
		rows, err = s.pool.Query(ctx, `
			SELECT `+reviewColumns+` FROM review_queue
			WHERE priority < $1
			   OR (priority = $1 AND created_at > $2)
			   OR (priority = $1 AND created_at = $2 AND id > $3)
			ORDER BY priority DESC, created_at ASC, id ASC LIMIT $4`,
			after.Priority, after.CreatedAt, after.ID, nonZeroLimit(limit))
	case status != "" && !hasCursor:
		rows, err = s.pool.Query(ctx, `
			SELECT `+reviewColumns+` FROM review_queue WHERE status = $1
			ORDER BY priority DESC, created_at ASC, id ASC LIMIT $2`, status, nonZeroLimit(limit))
	default:
		rows, err = s.pool.Query(ctx, `
			SELECT `+reviewColumns+` FROM review_queue
			WHERE status = $1
			  AND (priority < $2
			   OR (priority = $2 AND created_at > $3)
			   OR (priority = $2 AND created_at = $3 AND id > $4))
			ORDER BY priority DESC, created_at ASC, id ASC LIMIT $5`,
			status, after.Priority, after.CreatedAt, after.ID, nonZeroLimit(limit))
	}
	if err != nil {
		return nil, fmt.Errorf("store: list review queue: %w", err)
	}
	defer rows.Close()

	var out []domain.ReviewQueueEntry
	for rows.Next() {
		e, err := scanReviewEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan review entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Stats implements review.Store: per-status counts plus
// "assigned to me and active".
func (s *Store) Stats(ctx context.Context, reviewerID string) (review.Stats, error) {
	var stats review.Stats
	rows, err := s.pool.Query(ctx, `SELECT status, count(*) FROM review_queue GROUP BY status`)
	if err != nil {
		return review.Stats{}, fmt.Errorf("store: review stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status domain.ReviewStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return review.Stats{}, fmt.Errorf("store: scan review stats: %w", err)
		}
		switch status {
		case domain.ReviewPending:
			stats.Pending = count
		case domain.ReviewInReview:
			stats.InReview = count
		case domain.ReviewApproved:
			stats.Approved = count
		case domain.ReviewRejected:
			stats.Rejected = count
		case domain.ReviewEscalated:
			stats.Escalated = count
		}
	}
	if err := rows.Err(); err != nil {
		return review.Stats{}, err
	}

	if reviewerID != "" {
		row := s.pool.QueryRow(ctx, `
			SELECT count(*) FROM review_queue WHERE assigned_to = $1 AND status = $2`,
			reviewerID, domain.ReviewInReview)
		if err := row.Scan(&stats.AssignedActive); err != nil {
			return review.Stats{}, fmt.Errorf("store: scan assigned-active: %w", err)
		}
	}
	return stats, nil
}

func nonZeroLimit(v int) int {
	if v <= 0 {
		return 50
	}
	return v
}
