// Package check implements the check pipeline: the synchronous
// claim-verification RPC that detects language, embeds the claim, retrieves
// nearest-neighbor evidence, and synthesizes a structured verdict (with a
// deterministic fallback) via the LLM capability.
package check

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/veritasgrid/triagecore/internal/domain"
	"github.com/veritasgrid/triagecore/internal/enrich"
	"github.com/veritasgrid/triagecore/internal/llm"
	"github.com/veritasgrid/triagecore/pkg/metrics"
)

// topK bounds how many evidence items are retrieved and shown to the LLM.
const topK = 6

// Embedder turns claim text into the active model's fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Hit is the narrow shape check needs from a vector search result.
type Hit struct {
	ExternalID string
	DocID      string
	Distance   float64
	Metadata   map[string]string
}

// VectorIndex is the seam into the vector index.
type VectorIndex interface {
	Search(ctx context.Context, query []float32, topK int, filter map[string]string) ([]Hit, error)
}

// Verdicter is the seam into the LLM Selector, narrowed to the two calls
// this pipeline makes.
type Verdicter interface {
	Verdict(ctx context.Context, claim string, lang domain.Language, evidence []domain.Evidence) llm.StructuredVerdict
	Lesson(ctx context.Context, claim string, verdict llm.StructuredVerdict, lang domain.Language, evidence []domain.Evidence) llm.Lesson
}

// AuditAppender is the seam into the audit log.
type AuditAppender interface {
	Append(ctx context.Context, eventType string, payload map[string]any) (string, error)
}

// EventPublisher is the optional seam into the event bus for the
// check:completed event — optional because the synchronous check RPC has no
// hard dependency on delivery succeeding; a nil Events is simply skipped.
type EventPublisher interface {
	CheckCompleted(ctx context.Context, payload map[string]any) error
}

// Deps holds the pipeline's external dependencies, injected by the
// entrypoint rather than reached for as process globals.
type Deps struct {
	Embedder Embedder
	Index    VectorIndex
	LLM      Verdicter
	Audit    AuditAppender
	Events   EventPublisher
	Logger   *slog.Logger
	Clock    func() time.Time
	NewID    func() string
	Metrics  *metrics.Registry
}

func (d Deps) metrics() *metrics.Registry {
	if d.Metrics != nil {
		return d.Metrics
	}
	return metrics.New()
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d Deps) clock() func() time.Time {
	if d.Clock != nil {
		return d.Clock
	}
	return time.Now
}

func (d Deps) newID() string {
	if d.NewID != nil {
		return d.NewID()
	}
	return uuid.NewString()
}

// Run executes the full check sequence. Validation (InvalidInput) must
// have already been checked by the caller (domain.ValidateCheckRequest);
// Run itself never returns an error — every downstream failure degrades
// into the documented fallback response.
func Run(ctx context.Context, deps Deps, req domain.CheckRequest) domain.CheckResponse {
	start := deps.clock()()
	requestID := deps.newID()
	defer deps.metrics().Time("triagecore_check_latency_seconds", "check pipeline end-to-end latency")()

	lang := req.Language
	var langDetected domain.Language
	if lang == domain.LangAuto || lang == "" {
		detected := enrich.Detect(req.ClaimText)
		lang = detected.Language
		langDetected = detected.Language
	} else {
		langDetected = lang
	}

	vector, err := deps.Embedder.Embed(ctx, req.ClaimText)
	if err != nil {
		deps.logger().Warn("check: embed failed, proceeding without evidence", "request_id", requestID, "err", err)
	}

	var evidence []domain.Evidence
	var retrievedIDs []string
	if err == nil {
		hits, searchErr := deps.Index.Search(ctx, vector, topK, nil)
		if searchErr != nil {
			deps.logger().Warn("check: vector search failed, proceeding without evidence", "request_id", requestID, "err", searchErr)
		} else {
			evidence, retrievedIDs = toEvidence(hits)
		}
	}

	verdict := deps.LLM.Verdict(ctx, req.ClaimText, lang, evidence)
	deps.metrics().Counter(metrics.WithLabels("triagecore_check_verdicts_total", "verdict", string(verdict.Verdict)), "check verdicts by outcome").Inc()

	var miniLesson *llm.Lesson
	if verdict.Verdict == domain.VerdictFalse || verdict.Verdict == domain.VerdictMisleading {
		lesson := deps.LLM.Lesson(ctx, req.ClaimText, verdict, lang, evidence)
		miniLesson = &lesson
	}

	latency := deps.clock()().Sub(start)

	if deps.Audit != nil {
		payload := map[string]any{
			"request_id":  requestID,
			"language":    string(lang),
			"verdict":     string(verdict.Verdict),
			"trust_score": verdict.TrustScore,
			"latency_ms":  latency.Milliseconds(),
		}
		if req.UserID != "" {
			payload["user_id"] = req.UserID
		}
		if _, auditErr := deps.Audit.Append(ctx, "check", payload); auditErr != nil {
			deps.logger().Error("check: audit append failed", "request_id", requestID, "err", auditErr)
		}
	}

	if deps.Events != nil {
		if err := deps.Events.CheckCompleted(ctx, map[string]any{
			"request_id": requestID, "language": string(lang), "verdict": string(verdict.Verdict),
		}); err != nil {
			deps.logger().Warn("check: event publish failed", "request_id", requestID, "err", err)
		}
	}

	resp := domain.CheckResponse{
		RequestID:        requestID,
		Verdict:          verdict.Verdict,
		TrustScore:       verdict.TrustScore,
		Confidence:       verdict.Confidence,
		Reasons:          verdict.Reasons,
		EvidenceList:     verdict.EvidenceList,
		RetrievedIDs:     retrievedIDs,
		LatencyMS:        latency.Milliseconds(),
		LanguageDetected: langDetected,
	}
	if miniLesson != nil {
		resp.MiniLesson = &domain.MiniLesson{
			Text: miniLesson.MiniLesson,
			Tips: miniLesson.Tips,
			Quiz: miniLesson.Quiz,
		}
	}
	return resp
}

// toEvidence converts vector-search hits into the ordered Evidence list
// shown to the LLM; retrieved_ids is exactly that list, in the same order.
func toEvidence(hits []Hit) ([]domain.Evidence, []string) {
	evidence := make([]domain.Evidence, 0, len(hits))
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ev := domain.Evidence{
			ID:       h.DocID,
			URL:      h.Metadata["url"],
			Title:    h.Metadata["domain"],
			Snippet:  h.Metadata["snippet"],
			Language: h.Metadata["language"],
			Distance: h.Distance,
		}
		evidence = append(evidence, ev)
		ids = append(ids, h.DocID)
	}
	return evidence, ids
}

// ValidateAndRun validates the request before handing off to Run; an
// invalid request never reaches the audit log or the LLM, and is never
// masked as success.
func ValidateAndRun(ctx context.Context, deps Deps, req domain.CheckRequest) (domain.CheckResponse, error) {
	if err := domain.ValidateCheckRequest(req); err != nil {
		return domain.CheckResponse{}, fmt.Errorf("check: %w", err)
	}
	return Run(ctx, deps, req), nil
}
