package classify

import (
	"context"
	"errors"
	"testing"

	"github.com/veritasgrid/triagecore/internal/domain"
)

func TestDecide(t *testing.T) {
	cases := []struct {
		name         string
		score        float64
		threshold    float64
		wantRoute    Route
		wantPriority int
	}{
		{"above threshold is scam", 0.95, 0.92, RouteScam, 0},
		{"exactly threshold is scam", 0.92, 0.92, RouteScam, 0},
		{"high review band gets priority 5", 0.85, 0.92, RouteReview, reviewPriorityHigh},
		{"low review band gets priority 3", 0.65, 0.92, RouteReview, reviewPriorityLow},
		{"exactly 0.6 floor is review", 0.6, 0.92, RouteReview, reviewPriorityLow},
		{"exactly 0.8 boundary is low priority", 0.8, 0.92, RouteReview, reviewPriorityLow},
		{"below floor is benign", 0.59, 0.92, RouteBenign, 0},
		{"zero score is benign", 0, 0.9, RouteBenign, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			route, priority := Decide(tc.score, tc.threshold)
			if route != tc.wantRoute {
				t.Fatalf("route = %v, want %v", route, tc.wantRoute)
			}
			if priority != tc.wantPriority {
				t.Fatalf("priority = %v, want %v", priority, tc.wantPriority)
			}
		})
	}
}

type fakeScorer struct {
	score float64
	err   error
}

func (f fakeScorer) Score(_ context.Context, _ string, _ domain.Language) (float64, error) {
	return f.score, f.err
}

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) { return f.vec, f.err }

type fakeIndex struct {
	inserted bool
	err      error
}

func (f *fakeIndex) Insert(_ context.Context, _ string, _ []float32, _ map[string]string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.inserted = true
	return "ext-1", nil
}

type fakeStore struct {
	item       domain.CrawledItem
	thresholds domain.Thresholds
	loadErr    error

	scamCalls   int
	reviewCalls int
	benignCalls int
	routeErr    error
}

func (f *fakeStore) LoadCrawledItemByURL(_ context.Context, _ string) (domain.CrawledItem, error) {
	return f.item, f.loadErr
}
func (f *fakeStore) ActiveThresholds(_ context.Context) (domain.Thresholds, error) {
	return f.thresholds, nil
}
func (f *fakeStore) RouteScam(_ context.Context, _ domain.CrawledItem, _ domain.Vector) error {
	f.scamCalls++
	return f.routeErr
}
func (f *fakeStore) RouteReview(_ context.Context, _ domain.CrawledItem, _ domain.ReviewQueueEntry) error {
	f.reviewCalls++
	return f.routeErr
}
func (f *fakeStore) RouteBenign(_ context.Context, _ domain.CrawledItem) error {
	f.benignCalls++
	return f.routeErr
}

type fakeEvents struct {
	published []string
}

func (f *fakeEvents) Publish(_ context.Context, eventType string, _ map[string]any) error {
	f.published = append(f.published, eventType)
	return nil
}

type fakeAudit struct {
	events []string
}

func (f *fakeAudit) Append(_ context.Context, eventType string, _ map[string]any) (string, error) {
	f.events = append(f.events, eventType)
	return "audit-1", nil
}

func TestProcessRoutesScamAtoOrAboveThreshold(t *testing.T) {
	store := &fakeStore{
		item:       domain.CrawledItem{ID: "doc-1", URL: "https://x", Language: domain.LangEnglish},
		thresholds: domain.DefaultThresholds,
	}
	index := &fakeIndex{}
	events := &fakeEvents{}
	deps := Deps{
		Scorer:   fakeScorer{score: 0.95},
		Embedder: fakeEmbedder{vec: []float32{0.1, 0.2}},
		Index:    index,
		Store:    store,
		Events:   events,
	}

	if err := Process(context.Background(), deps, domain.IngestMessage{URL: "https://x"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.scamCalls != 1 {
		t.Fatalf("expected 1 scam route write, got %d", store.scamCalls)
	}
	if !index.inserted {
		t.Fatal("expected vector insert on scam route")
	}
	if len(events.published) != 1 || events.published[0] != "ingest:completed" {
		t.Fatalf("expected ingest:completed event, got %v", events.published)
	}
}

func TestProcessRoutesReviewInMiddleBand(t *testing.T) {
	store := &fakeStore{
		item:       domain.CrawledItem{ID: "doc-2", URL: "https://y", Language: domain.LangEnglish},
		thresholds: domain.DefaultThresholds,
	}
	events := &fakeEvents{}
	deps := Deps{
		Scorer: fakeScorer{score: 0.7},
		Store:  store,
		Events: events,
	}

	if err := Process(context.Background(), deps, domain.IngestMessage{URL: "https://y"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.reviewCalls != 1 {
		t.Fatalf("expected 1 review route write, got %d", store.reviewCalls)
	}
	if len(events.published) != 1 || events.published[0] != "review:queued" {
		t.Fatalf("expected review:queued event, got %v", events.published)
	}
}

func TestProcessRoutesBenignBelowFloor(t *testing.T) {
	store := &fakeStore{
		item:       domain.CrawledItem{ID: "doc-3", URL: "https://z", Language: domain.LangEnglish},
		thresholds: domain.DefaultThresholds,
	}
	deps := Deps{Scorer: fakeScorer{score: 0.1}, Store: store}

	if err := Process(context.Background(), deps, domain.IngestMessage{URL: "https://z"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.benignCalls != 1 {
		t.Fatalf("expected 1 benign route write, got %d", store.benignCalls)
	}
}

func TestProcessFallsBackToDefaultScoreOnScorerError(t *testing.T) {
	store := &fakeStore{
		item:       domain.CrawledItem{ID: "doc-4", URL: "https://w", Language: domain.LangEnglish},
		thresholds: domain.DefaultThresholds,
	}
	deps := Deps{Scorer: fakeScorer{err: errors.New("llm down")}, Store: store}

	if err := Process(context.Background(), deps, domain.IngestMessage{URL: "https://w"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// fallback score 0.5 is in the review band [0.6,threshold) is false; 0.5 < 0.6 so benign.
	if store.benignCalls != 1 {
		t.Fatalf("expected fallback score 0.5 to route benign, got benign=%d review=%d scam=%d",
			store.benignCalls, store.reviewCalls, store.scamCalls)
	}
}

func TestProcessWritesCheckErrorAuditOnPersistFailure(t *testing.T) {
	store := &fakeStore{
		item:       domain.CrawledItem{ID: "doc-5", URL: "https://v", Language: domain.LangEnglish},
		thresholds: domain.DefaultThresholds,
		routeErr:   errors.New("db down"),
	}
	audit := &fakeAudit{}
	deps := Deps{Scorer: fakeScorer{score: 0.1}, Store: store, Audit: audit}

	err := Process(context.Background(), deps, domain.IngestMessage{URL: "https://v"})
	if err == nil {
		t.Fatal("expected error on persistence failure")
	}
	if len(audit.events) != 1 || audit.events[0] != "check_error" {
		t.Fatalf("expected one check_error audit event, got %v", audit.events)
	}
}

func TestProcessFailsOnEmbedErrorWithoutPersisting(t *testing.T) {
	store := &fakeStore{
		item:       domain.CrawledItem{ID: "doc-6", URL: "https://u", Language: domain.LangEnglish},
		thresholds: domain.DefaultThresholds,
	}
	deps := Deps{
		Scorer:   fakeScorer{score: 0.95},
		Embedder: fakeEmbedder{err: errors.New("embed service down")},
		Store:    store,
	}

	err := Process(context.Background(), deps, domain.IngestMessage{URL: "https://u"})
	if err == nil {
		t.Fatal("expected error on embed failure")
	}
	if store.scamCalls != 0 {
		t.Fatal("should not persist when embed fails before vector insert")
	}
}
