package check

import (
	"context"
	"testing"
	"time"

	"github.com/veritasgrid/triagecore/internal/domain"
	"github.com/veritasgrid/triagecore/internal/llm"
)

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vector, f.err
}

type fakeIndex struct {
	hits []Hit
	err  error
}

func (f fakeIndex) Search(ctx context.Context, query []float32, topK int, filter map[string]string) ([]Hit, error) {
	if f.err != nil {
		return nil, f.err
	}
	if topK < len(f.hits) {
		return f.hits[:topK], nil
	}
	return f.hits, nil
}

type fakeVerdicter struct {
	verdict llm.StructuredVerdict
	lesson  llm.Lesson
}

func (f fakeVerdicter) Verdict(ctx context.Context, claim string, lang domain.Language, evidence []domain.Evidence) llm.StructuredVerdict {
	return f.verdict
}

func (f fakeVerdicter) Lesson(ctx context.Context, claim string, verdict llm.StructuredVerdict, lang domain.Language, evidence []domain.Evidence) llm.Lesson {
	return f.lesson
}

type fakeAuditor struct {
	appended []string
}

func (a *fakeAuditor) Append(ctx context.Context, eventType string, payload map[string]any) (string, error) {
	a.appended = append(a.appended, eventType)
	return "audit-1", nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestRunReturnsVerdictAndRetrievedIDs(t *testing.T) {
	hits := []Hit{
		{ExternalID: "e1", DocID: "doc-1", Distance: 0.1, Metadata: map[string]string{"url": "http://a.com"}},
		{ExternalID: "e2", DocID: "doc-2", Distance: 0.2, Metadata: map[string]string{"url": "http://b.com"}},
	}
	audit := &fakeAuditor{}
	deps := Deps{
		Embedder: fakeEmbedder{vector: []float32{0.1, 0.2}},
		Index:    fakeIndex{hits: hits},
		LLM: fakeVerdicter{verdict: llm.StructuredVerdict{
			Verdict: domain.VerdictFalse, TrustScore: 10, Confidence: 70,
			Reasons: []string{"scam pattern"}, EvidenceList: []string{"doc-1"},
		}},
		Audit: audit,
		Clock: fixedClock(time.Unix(0, 0)),
		NewID: func() string { return "req-1" },
	}

	resp := Run(context.Background(), deps, domain.CheckRequest{ClaimText: "send me money now", Language: domain.LangEnglish})

	if resp.RequestID != "req-1" {
		t.Fatalf("request id = %q", resp.RequestID)
	}
	if resp.Verdict != domain.VerdictFalse {
		t.Fatalf("verdict = %q", resp.Verdict)
	}
	if len(resp.RetrievedIDs) != 2 || resp.RetrievedIDs[0] != "doc-1" || resp.RetrievedIDs[1] != "doc-2" {
		t.Fatalf("retrieved ids = %v, want [doc-1 doc-2] in order", resp.RetrievedIDs)
	}
	if resp.MiniLesson == nil {
		t.Fatalf("expected mini lesson for FALSE verdict")
	}
	if len(audit.appended) != 1 || audit.appended[0] != "check" {
		t.Fatalf("expected one check audit event, got %v", audit.appended)
	}
}

func TestRunSkipsMiniLessonForTrueVerdict(t *testing.T) {
	deps := Deps{
		Embedder: fakeEmbedder{vector: []float32{0.1}},
		Index:    fakeIndex{},
		LLM:      fakeVerdicter{verdict: llm.StructuredVerdict{Verdict: domain.VerdictTrue, TrustScore: 90, Confidence: 90}},
	}
	resp := Run(context.Background(), deps, domain.CheckRequest{ClaimText: "the sky is blue", Language: domain.LangEnglish})
	if resp.MiniLesson != nil {
		t.Fatalf("did not expect a mini lesson for TRUE verdict, got %+v", resp.MiniLesson)
	}
}

func TestRunDetectsLanguageWhenAuto(t *testing.T) {
	deps := Deps{
		Embedder: fakeEmbedder{vector: []float32{0.1}},
		Index:    fakeIndex{},
		LLM:      fakeVerdicter{verdict: llm.StructuredVerdict{Verdict: domain.VerdictUnverified}},
	}
	resp := Run(context.Background(), deps, domain.CheckRequest{ClaimText: "तत्काल भेजें", Language: domain.LangAuto})
	if resp.LanguageDetected != domain.LangHindi {
		t.Fatalf("language_detected = %q, want hi", resp.LanguageDetected)
	}
}

func TestRunDegradesGracefullyWhenEmbedFails(t *testing.T) {
	deps := Deps{
		Embedder: fakeEmbedder{err: context.DeadlineExceeded},
		Index:    fakeIndex{hits: []Hit{{DocID: "doc-1"}}},
		LLM:      fakeVerdicter{verdict: llm.FallbackVerdict()},
	}
	resp := Run(context.Background(), deps, domain.CheckRequest{ClaimText: "claim", Language: domain.LangEnglish})
	if len(resp.RetrievedIDs) != 0 {
		t.Fatalf("expected no retrieved ids when embed fails, got %v", resp.RetrievedIDs)
	}
	if resp.Verdict != domain.VerdictUnverified {
		t.Fatalf("verdict = %q, want UNVERIFIED fallback", resp.Verdict)
	}
}

func TestRunDegradesGracefullyWhenSearchFails(t *testing.T) {
	deps := Deps{
		Embedder: fakeEmbedder{vector: []float32{0.1}},
		Index:    fakeIndex{err: context.DeadlineExceeded},
		LLM:      fakeVerdicter{verdict: llm.FallbackVerdict()},
	}
	resp := Run(context.Background(), deps, domain.CheckRequest{ClaimText: "claim", Language: domain.LangEnglish})
	if len(resp.RetrievedIDs) != 0 {
		t.Fatalf("expected no retrieved ids when search fails, got %v", resp.RetrievedIDs)
	}
}

func TestValidateAndRunRejectsEmptyClaim(t *testing.T) {
	deps := Deps{
		Embedder: fakeEmbedder{vector: []float32{0.1}},
		Index:    fakeIndex{},
		LLM:      fakeVerdicter{},
		Audit:    &fakeAuditor{},
	}
	_, err := ValidateAndRun(context.Background(), deps, domain.CheckRequest{ClaimText: "", Language: domain.LangEnglish})
	if err == nil {
		t.Fatalf("expected InvalidInput error for empty claim")
	}
	if auditor, ok := deps.Audit.(*fakeAuditor); ok && len(auditor.appended) != 0 {
		t.Fatalf("invalid input must never reach the audit log, got %v", auditor.appended)
	}
}

func TestRunRespectsTopKCapOfSix(t *testing.T) {
	hits := make([]Hit, 10)
	for i := range hits {
		hits[i] = Hit{DocID: "doc"}
	}
	deps := Deps{
		Embedder: fakeEmbedder{vector: []float32{0.1}},
		Index:    fakeIndex{hits: hits},
		LLM:      fakeVerdicter{verdict: llm.StructuredVerdict{Verdict: domain.VerdictUnverified}},
	}
	resp := Run(context.Background(), deps, domain.CheckRequest{ClaimText: "claim", Language: domain.LangEnglish})
	if len(resp.RetrievedIDs) > 6 {
		t.Fatalf("retrieved_ids length = %d, want <= 6", len(resp.RetrievedIDs))
	}
}
