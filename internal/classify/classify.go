// Package classify implements the classification and routing stage: it
// scores each enriched document, picks one of three routes, and
// persists the routing atomically per document.
package classify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/veritasgrid/triagecore/internal/domain"
)

// reviewPriorityHigh/Low are the routing table's fixed priorities.
const (
	reviewPriorityHigh = 5
	reviewPriorityLow  = 3

	scamThresholdFloor = 0.6
	fallbackScore      = 0.5
)

// Scorer is the classifier capability — an LLM-backed numeric scorer in
// the reference deployment, any real classifier in production. Score always returns
// a value in [0,1]; callers never see the underlying provider.
type Scorer interface {
	Score(ctx context.Context, text string, lang domain.Language) (float64, error)
}

// Embedder turns clean text into the fixed-dimension vector the active
// ModelVersion's embedding model produces.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex is the narrow seam classify needs from internal/vectorindex.
type VectorIndex interface {
	Insert(ctx context.Context, docID string, vector []float32, metadata map[string]string) (string, error)
}

// Store is the persistence seam for the stage's atomic per-document
// routing writes: the item's label/score update commits together with the
// Vector insert (scam) or the ReviewQueueEntry insert (review).
type Store interface {
	LoadCrawledItemByURL(ctx context.Context, url string) (domain.CrawledItem, error)
	ActiveThresholds(ctx context.Context) (domain.Thresholds, error)
	RouteScam(ctx context.Context, item domain.CrawledItem, vector domain.Vector) error
	RouteReview(ctx context.Context, item domain.CrawledItem, entry domain.ReviewQueueEntry) error
	RouteBenign(ctx context.Context, item domain.CrawledItem) error
}

// EventPublisher is the narrow seam into the event bus this stage needs.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload map[string]any) error
}

// AuditAppender is the narrow seam into the audit log this stage needs.
type AuditAppender interface {
	Append(ctx context.Context, eventType string, payload map[string]any) (string, error)
}

// Deps holds the stage's external dependencies.
type Deps struct {
	Scorer    Scorer
	Embedder  Embedder
	Index     VectorIndex
	Store     Store
	Events    EventPublisher
	Audit     AuditAppender
	Logger    *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// Route is the routing outcome for one document.
type Route string

const (
	RouteScam   Route = "scam"
	RouteReview Route = "review"
	RouteBenign Route = "benign"
)

// Decide applies the routing table to a classifier score and the
// active per-language threshold.
func Decide(score float64, threshold float64) (Route, int) {
	switch {
	case score >= threshold:
		return RouteScam, 0
	case score >= scamThresholdFloor:
		if score > 0.8 {
			return RouteReview, reviewPriorityHigh
		}
		return RouteReview, reviewPriorityLow
	default:
		return RouteBenign, 0
	}
}

// Process handles one ingest.queue message end to end:
// load the item, score it, decide a route, write it atomically, and emit
// the corresponding event. Scoring failures yield the documented 0.5
// fallback rather than aborting; persistence failures are fatal for
// the message and surface a check_error audit.
func Process(ctx context.Context, deps Deps, msg domain.IngestMessage) error {
	item, err := deps.Store.LoadCrawledItemByURL(ctx, msg.URL)
	if err != nil {
		return fmt.Errorf("classify: load crawled item %s: %w", msg.URL, err)
	}

	score, err := deps.Scorer.Score(ctx, item.CleanText, item.Language)
	if err != nil {
		deps.logger().Warn("classify: scorer failed, using fallback", "url", msg.URL, "err", err)
		score = fallbackScore
	}

	thresholds, err := deps.Store.ActiveThresholds(ctx)
	if err != nil {
		return fmt.Errorf("classify: load active thresholds: %w", err)
	}
	threshold := thresholds.For(item.Language)

	route, priority := Decide(score, threshold)
	item.ClassifierScore = &score

	switch route {
	case RouteScam:
		item.Label = domain.LabelScam
		vec, err := deps.Embedder.Embed(ctx, item.CleanText)
		if err != nil {
			return deps.fail(ctx, msg, item, "embed", err)
		}
		extID, err := deps.Index.Insert(ctx, item.ID, vec, map[string]string{
			"url": item.URL, "domain": item.Domain, "language": string(item.Language),
		})
		if err != nil {
			return deps.fail(ctx, msg, item, "vector_insert", err)
		}
		vector := domain.Vector{ID: extID, DocID: item.ID, EmbeddingID: extID, ExternalID: extID}
		if err := deps.Store.RouteScam(ctx, item, vector); err != nil {
			return deps.fail(ctx, msg, item, "persist", err)
		}
		return deps.emit(ctx, "ingest:completed", map[string]any{"doc_id": item.ID, "url": item.URL, "label": string(item.Label)})

	case RouteReview:
		item.Label = domain.LabelNeedsReview
		entry := domain.ReviewQueueEntry{ID: "", DocID: item.ID, Status: domain.ReviewPending, Priority: priority}
		if err := deps.Store.RouteReview(ctx, item, entry); err != nil {
			return deps.fail(ctx, msg, item, "persist", err)
		}
		return deps.emit(ctx, "review:queued", map[string]any{"doc_id": item.ID, "url": item.URL, "priority": priority})

	default:
		item.Label = domain.LabelBenign
		if err := deps.Store.RouteBenign(ctx, item); err != nil {
			return deps.fail(ctx, msg, item, "persist", err)
		}
		return nil
	}
}

// fail records a check_error audit and returns the wrapped
// error so the broker consumer negative-acks without requeue.
func (d Deps) fail(ctx context.Context, msg domain.IngestMessage, item domain.CrawledItem, stage string, cause error) error {
	if d.Audit != nil {
		_, _ = d.Audit.Append(ctx, "check_error", map[string]any{
			"url": msg.URL, "doc_id": item.ID, "stage": stage, "error": cause.Error(),
		})
	}
	return fmt.Errorf("classify: %s failed for %s: %w", stage, msg.URL, cause)
}

func (d Deps) emit(ctx context.Context, eventType string, payload map[string]any) error {
	if d.Events == nil {
		return nil
	}
	if err := d.Events.Publish(ctx, eventType, payload); err != nil {
		d.logger().Warn("classify: event publish failed", "event_type", eventType, "err", err)
	}
	return nil
}
