package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/veritasgrid/triagecore/internal/domain"
)

type fakeProvider struct {
	name      string
	available bool
	response  string
	err       error
	calls     int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func (f *fakeProvider) Available(ctx context.Context) bool { return f.available }

type fakeAuditor struct {
	events []string
}

func (a *fakeAuditor) Append(ctx context.Context, eventType string, payload map[string]any) (string, error) {
	a.events = append(a.events, eventType)
	return "audit-1", nil
}

func TestSelectorUsesPrimaryWhenHealthy(t *testing.T) {
	primary := &fakeProvider{name: "primary", available: true, response: `{"verdict":"TRUE","trust_score":90,"confidence":90}`}
	secondary := &fakeProvider{name: "secondary", available: true}
	audit := &fakeAuditor{}
	sel := NewSelector(primary, secondary, audit)
	sel.Probe(context.Background())

	v := sel.Verdict(context.Background(), "claim", domain.LangEnglish, nil)
	if v.Verdict != domain.VerdictTrue {
		t.Fatalf("verdict = %q, want TRUE", v.Verdict)
	}
	if primary.calls != 1 || secondary.calls != 0 {
		t.Fatalf("expected only primary called, got primary=%d secondary=%d", primary.calls, secondary.calls)
	}
	if len(audit.events) != 0 {
		t.Fatalf("no switch should have happened, got audit events %v", audit.events)
	}
}

func TestSelectorProbeSwitchesWhenPrimaryDown(t *testing.T) {
	primary := &fakeProvider{name: "primary", available: false}
	secondary := &fakeProvider{name: "secondary", available: true, response: `{"verdict":"FALSE","trust_score":10,"confidence":80}`}
	audit := &fakeAuditor{}
	sel := NewSelector(primary, secondary, audit)
	sel.Probe(context.Background())

	v := sel.Verdict(context.Background(), "claim", domain.LangEnglish, nil)
	if v.Verdict != domain.VerdictFalse {
		t.Fatalf("verdict = %q, want FALSE from secondary", v.Verdict)
	}
	if primary.calls != 0 {
		t.Fatalf("primary should never have been called, got %d calls", primary.calls)
	}
	if len(audit.events) != 1 || audit.events[0] != "llm:provider_switch" {
		t.Fatalf("expected one provider_switch audit event, got %v", audit.events)
	}
}

func TestSelectorFallsBackOnGenerateFailure(t *testing.T) {
	primary := &fakeProvider{name: "primary", available: true, err: errors.New("boom")}
	secondary := &fakeProvider{name: "secondary", available: true, err: errors.New("also down")}
	sel := NewSelector(primary, secondary, nil)
	sel.Probe(context.Background())

	v := sel.Verdict(context.Background(), "claim", domain.LangHindi, nil)
	if v.Verdict != domain.VerdictUnverified {
		t.Fatalf("verdict = %q, want UNVERIFIED fallback", v.Verdict)
	}
}

func TestSelectorFirstFailureFallsBackThenRoutesToSecondary(t *testing.T) {
	primary := &fakeProvider{name: "primary", available: true, err: errors.New("500 from primary")}
	secondary := &fakeProvider{name: "secondary", available: true, response: `{"verdict":"FALSE","trust_score":5,"confidence":85}`}
	audit := &fakeAuditor{}
	sel := NewSelector(primary, secondary, audit)
	sel.Probe(context.Background())

	// The request that discovers the outage completes with the fallback,
	// not with the secondary's answer.
	first := sel.Verdict(context.Background(), "claim", domain.LangEnglish, nil)
	if first.Verdict != domain.VerdictUnverified {
		t.Fatalf("first verdict = %q, want UNVERIFIED fallback", first.Verdict)
	}
	if primary.calls != 1 || secondary.calls != 0 {
		t.Fatalf("first request must not cross providers, got primary=%d secondary=%d", primary.calls, secondary.calls)
	}
	if len(audit.events) != 1 || audit.events[0] != "llm:provider_switch" {
		t.Fatalf("expected one provider_switch audit event, got %v", audit.events)
	}

	// Every later request in the process routes to the secondary.
	second := sel.Verdict(context.Background(), "claim", domain.LangEnglish, nil)
	if second.Verdict != domain.VerdictFalse {
		t.Fatalf("second verdict = %q, want FALSE from secondary", second.Verdict)
	}
	if primary.calls != 1 || secondary.calls != 1 {
		t.Fatalf("second request must hit only the secondary, got primary=%d secondary=%d", primary.calls, secondary.calls)
	}
	if len(audit.events) != 1 {
		t.Fatalf("switch must be recorded once, got %v", audit.events)
	}
}

func TestSelectorLessonFallsBackOnFailure(t *testing.T) {
	primary := &fakeProvider{name: "primary", available: true, err: errors.New("boom")}
	secondary := &fakeProvider{name: "secondary", available: true, err: errors.New("boom too")}
	sel := NewSelector(primary, secondary, nil)
	sel.Probe(context.Background())

	l := sel.Lesson(context.Background(), "claim", FallbackVerdict(), domain.LangTamil, nil)
	if l.MiniLesson != FallbackLesson().MiniLesson {
		t.Fatalf("expected fallback lesson, got %+v", l)
	}
}
