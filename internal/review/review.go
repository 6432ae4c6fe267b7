// Package review implements the human review state machine:
// assignment, single-reviewer ownership enforced by compare-and-set, and
// the feedback loop that writes approved items back into the vector index.
package review

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/veritasgrid/triagecore/internal/domain"
	"github.com/veritasgrid/triagecore/pkg/metrics"
)

// Embedder turns an approved item's clean text into the fixed-dimension
// vector the active model produces (same capability classify.Embedder
// describes, narrowed to what review needs).
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex is the seam into the vector index an approve action needs.
type VectorIndex interface {
	Insert(ctx context.Context, docID string, vector []float32, metadata map[string]string) (externalID string, err error)
}

// Store is the persistence seam the state machine needs: the review
// entry's update commits together with the crawled item's, plus the
// vector upsert on approve. Assign and Act must both enforce single-winner
// compare-and-set semantics on the status column.
type Store interface {
	GetReviewEntry(ctx context.Context, id string) (domain.ReviewQueueEntry, error)
	// Assign atomically transitions pending -> in_review, failing with
	// domain.ErrConflict if the entry is not currently pending (already
	// assigned or already transitioned further).
	Assign(ctx context.Context, id string, reviewerID string) (domain.ReviewQueueEntry, error)
	// ApplyApprove atomically: sets entry.status=approved, crawled
	// item.label=scam, and upserts a Vector row referencing it. Fails with
	// domain.ErrConflict unless entry.status is pending or in_review, and
	// exactly one of two racing callers wins.
	ApplyApprove(ctx context.Context, entryID string, vector domain.Vector) (domain.ReviewQueueEntry, domain.CrawledItem, error)
	// ApplyReject atomically: sets entry.status=rejected, item.label=benign.
	ApplyReject(ctx context.Context, entryID string) (domain.ReviewQueueEntry, domain.CrawledItem, error)
	// ApplyEscalate atomically: sets entry.status=escalated, priority=10.
	ApplyEscalate(ctx context.Context, entryID string) (domain.ReviewQueueEntry, error)
	// Stats returns per-status counts plus the count assigned to reviewerID
	// and still active (in_review).
	Stats(ctx context.Context, reviewerID string) (Stats, error)
}

// Stats is the per-status count response, plus the caller's own active
// assignment count.
type Stats struct {
	Pending        int
	InReview       int
	Approved       int
	Rejected       int
	Escalated      int
	AssignedActive int
}

// EventPublisher is the seam into the event bus.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload map[string]any) error
}

// AuditAppender is the seam into the audit log.
type AuditAppender interface {
	Append(ctx context.Context, eventType string, payload map[string]any) (string, error)
}

// Deps holds the state machine's external dependencies.
type Deps struct {
	Store    Store
	Embedder Embedder
	Index    VectorIndex
	Events   EventPublisher
	Audit    AuditAppender
	Logger   *slog.Logger
	Metrics  *metrics.Registry
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// countAction records one action outcome, labeled so a dashboard can
// tell approve/reject/escalate rates apart without scraping the audit log.
func (d Deps) countAction(action domain.ReviewAction) {
	if d.Metrics == nil {
		return
	}
	name := metrics.WithLabels("triagecore_review_actions_total", "action", string(action))
	d.Metrics.Counter(name, "Review queue actions applied, by action").Inc()
}

// Assign transitions a ReviewQueueEntry from pending to in_review,
// assigning it to reviewerID. Two reviewers racing on the same
// entry see exactly one success; the other receives domain.ErrConflict.
func Assign(ctx context.Context, deps Deps, reviewID, reviewerID string) (domain.ReviewQueueEntry, error) {
	entry, err := deps.Store.Assign(ctx, reviewID, reviewerID)
	if err != nil {
		return domain.ReviewQueueEntry{}, fmt.Errorf("review: assign %s: %w", reviewID, err)
	}
	deps.emit(ctx, "review:assigned", map[string]any{"review_id": reviewID, "reviewer_id": reviewerID})
	return entry, nil
}

// Act applies one of {approve, reject, escalate} to a review entry.
// approve and escalate fire from pending as well as in_review; reject
// requires the entry to have been claimed first. approve triggers the
// feedback loop: the item is embedded and upserted into the vector index
// in the same commit as the label change.
func Act(ctx context.Context, deps Deps, reviewID string, action domain.ReviewAction, note string) (domain.ReviewQueueEntry, error) {
	if err := domain.ValidateReviewAction(action); err != nil {
		return domain.ReviewQueueEntry{}, fmt.Errorf("review: %w", err)
	}

	switch action {
	case domain.ActionApprove:
		return actApprove(ctx, deps, reviewID, note)
	case domain.ActionReject:
		return actReject(ctx, deps, reviewID, note)
	default:
		return actEscalate(ctx, deps, reviewID, note)
	}
}

func actApprove(ctx context.Context, deps Deps, reviewID, note string) (domain.ReviewQueueEntry, error) {
	entry, err := deps.Store.GetReviewEntry(ctx, reviewID)
	if err != nil {
		return domain.ReviewQueueEntry{}, fmt.Errorf("review: load %s: %w", reviewID, err)
	}
	// Cheap pre-check only; the store's status-guarded UPDATE is what
	// actually decides a race between two approvers.
	if entry.Status != domain.ReviewPending && entry.Status != domain.ReviewInReview {
		return domain.ReviewQueueEntry{}, fmt.Errorf("review: approve %s: %w", reviewID, domain.ErrConflict)
	}

	item, err := deps.itemFor(ctx, entry)
	if err != nil {
		return domain.ReviewQueueEntry{}, err
	}

	vec, err := deps.Embedder.Embed(ctx, item.CleanText)
	if err != nil {
		return domain.ReviewQueueEntry{}, fmt.Errorf("review: embed %s: %w", entry.DocID, err)
	}
	extID, err := deps.Index.Insert(ctx, entry.DocID, vec, map[string]string{
		"url": item.URL, "domain": item.Domain, "language": string(item.Language),
	})
	if err != nil {
		return domain.ReviewQueueEntry{}, fmt.Errorf("review: vector insert %s: %w", entry.DocID, err)
	}

	updated, _, err := deps.Store.ApplyApprove(ctx, reviewID, domain.Vector{
		ID: extID, DocID: entry.DocID, EmbeddingID: extID, ExternalID: extID,
	})
	if err != nil {
		return domain.ReviewQueueEntry{}, fmt.Errorf("review: approve %s: %w", reviewID, err)
	}

	deps.audit(ctx, "review_action", reviewID, string(domain.ActionApprove), note)
	deps.countAction(domain.ActionApprove)
	deps.emit(ctx, "review:approved", map[string]any{"review_id": reviewID, "doc_id": entry.DocID})
	return updated, nil
}

func actReject(ctx context.Context, deps Deps, reviewID, note string) (domain.ReviewQueueEntry, error) {
	entry, err := deps.Store.GetReviewEntry(ctx, reviewID)
	if err != nil {
		return domain.ReviewQueueEntry{}, fmt.Errorf("review: load %s: %w", reviewID, err)
	}
	if entry.Status != domain.ReviewInReview {
		return domain.ReviewQueueEntry{}, fmt.Errorf("review: reject %s: %w", reviewID, domain.ErrConflict)
	}

	updated, _, err := deps.Store.ApplyReject(ctx, reviewID)
	if err != nil {
		return domain.ReviewQueueEntry{}, fmt.Errorf("review: reject %s: %w", reviewID, err)
	}

	deps.audit(ctx, "review_action", reviewID, string(domain.ActionReject), note)
	deps.countAction(domain.ActionReject)
	deps.emit(ctx, "review:rejected", map[string]any{"review_id": reviewID, "doc_id": entry.DocID})
	return updated, nil
}

func actEscalate(ctx context.Context, deps Deps, reviewID, note string) (domain.ReviewQueueEntry, error) {
	entry, err := deps.Store.GetReviewEntry(ctx, reviewID)
	if err != nil {
		return domain.ReviewQueueEntry{}, fmt.Errorf("review: load %s: %w", reviewID, err)
	}
	if entry.Status != domain.ReviewInReview && entry.Status != domain.ReviewPending {
		return domain.ReviewQueueEntry{}, fmt.Errorf("review: escalate %s: %w", reviewID, domain.ErrConflict)
	}

	updated, err := deps.Store.ApplyEscalate(ctx, reviewID)
	if err != nil {
		return domain.ReviewQueueEntry{}, fmt.Errorf("review: escalate %s: %w", reviewID, err)
	}

	deps.audit(ctx, "review_action", reviewID, string(domain.ActionEscalate), note)
	deps.countAction(domain.ActionEscalate)
	deps.emit(ctx, "review:escalated", map[string]any{"review_id": reviewID, "doc_id": entry.DocID})
	return updated, nil
}

// itemFor loads the CrawledItem a review entry references. It is defined
// on Deps so it can be grounded on the same Store without widening the
// Store interface beyond what the state machine calls for; store implementations
// satisfy it via their CrawledItem accessor.
func (d Deps) itemFor(ctx context.Context, entry domain.ReviewQueueEntry) (domain.CrawledItem, error) {
	loader, ok := d.Store.(ItemLoader)
	if !ok {
		return domain.CrawledItem{}, fmt.Errorf("review: store does not support item lookup")
	}
	return loader.LoadCrawledItem(ctx, entry.DocID)
}

// ItemLoader is an optional Store capability used by approve to fetch the
// referenced CrawledItem's clean text for embedding.
type ItemLoader interface {
	LoadCrawledItem(ctx context.Context, id string) (domain.CrawledItem, error)
}

func (d Deps) audit(ctx context.Context, eventType, reviewID, action, note string) {
	if d.Audit == nil {
		return
	}
	if _, err := d.Audit.Append(ctx, eventType, map[string]any{
		"review_id": reviewID, "action": action, "note": note,
	}); err != nil {
		d.logger().Error("review: audit append failed", "review_id", reviewID, "err", err)
	}
}

func (d Deps) emit(ctx context.Context, eventType string, payload map[string]any) {
	if d.Events == nil {
		return
	}
	if err := d.Events.Publish(ctx, eventType, payload); err != nil {
		d.logger().Warn("review: event publish failed", "event_type", eventType, "err", err)
	}
}

// Cursor is a keyset pagination marker over the priority-desc/created_at-asc
// ordering of the review queue. Plain offset pagination drifts under
// concurrent inserts: a new
// pending entry lands ahead of the caller's offset and shifts every row
// behind it, so page 2 silently repeats or skips items. A keyset cursor
// pins the page boundary to the last row actually returned instead of a
// position in the result set, so it survives inserts anywhere else in the
// queue.
type Cursor struct {
	Priority  int       `json:"p"`
	CreatedAt time.Time `json:"t"`
	ID        string    `json:"id"`
}

// CursorOf builds the opaque cursor for the page that ends at entry.
func CursorOf(entry domain.ReviewQueueEntry) string {
	raw, _ := json.Marshal(Cursor{Priority: entry.Priority, CreatedAt: entry.CreatedAt, ID: entry.ID})
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeCursor parses an opaque cursor produced by CursorOf. An empty string
// decodes to the zero Cursor, meaning "start from the first page".
func DecodeCursor(s string) (Cursor, error) {
	var c Cursor
	if s == "" {
		return c, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, fmt.Errorf("review: decode cursor: %w", err)
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return Cursor{}, fmt.Errorf("review: decode cursor: %w", err)
	}
	return c, nil
}

// List returns review entries ordered by priority desc, then created_at asc
// (Glossary: "Review queue"). It delegates to an optional Store capability
// since pagination belongs to the persistence layer, not this package.
// after is the zero Cursor for the first page, or the cursor returned
// alongside the previous page's last entry.
type Lister interface {
	ListReviewQueue(ctx context.Context, status domain.ReviewStatus, limit int, after Cursor) ([]domain.ReviewQueueEntry, error)
}

func List(ctx context.Context, deps Deps, status domain.ReviewStatus, limit int, after Cursor) ([]domain.ReviewQueueEntry, error) {
	lister, ok := deps.Store.(Lister)
	if !ok {
		return nil, fmt.Errorf("review: store does not support listing")
	}
	return lister.ListReviewQueue(ctx, status, limit, after)
}

// GetStats returns the per-status counts for the dashboard.
func GetStats(ctx context.Context, deps Deps, reviewerID string) (Stats, error) {
	return deps.Store.Stats(ctx, reviewerID)
}
