package llm

import (
	"testing"

	"github.com/veritasgrid/triagecore/internal/domain"
)

func TestParseVerdictStrict(t *testing.T) {
	raw := `{"verdict":"FALSE","trust_score":12,"confidence":80,"reasons":["scam keywords"],"evidence_list":["doc-1"],"one_line_tip":"be careful"}`
	v := ParseVerdict(raw)
	if v.Verdict != domain.VerdictFalse {
		t.Fatalf("verdict = %q, want FALSE", v.Verdict)
	}
	if v.TrustScore != 12 || v.Confidence != 80 {
		t.Fatalf("unexpected scores: %+v", v)
	}
}

func TestParseVerdictSalvagesSurroundingText(t *testing.T) {
	raw := "Here is the verdict: {\"verdict\":\"MISLEADING\",\"trust_score\":40,\"confidence\":60,\"reasons\":[],\"evidence_list\":[],\"one_line_tip\":\"x\"} Thanks!"
	v := ParseVerdict(raw)
	if v.Verdict != domain.VerdictMisleading {
		t.Fatalf("verdict = %q, want MISLEADING", v.Verdict)
	}
}

func TestParseVerdictFallsBackOnGarbage(t *testing.T) {
	v := ParseVerdict("not json at all")
	if v.Verdict != domain.VerdictUnverified {
		t.Fatalf("verdict = %q, want UNVERIFIED fallback", v.Verdict)
	}
	if v.TrustScore != 0 || v.Confidence != 0 {
		t.Fatalf("fallback should be zero-scored, got %+v", v)
	}
}

func TestParseVerdictFallsBackOnInvalidEnum(t *testing.T) {
	raw := `{"verdict":"MAYBE","trust_score":50,"confidence":50}`
	v := ParseVerdict(raw)
	if v.Verdict != domain.VerdictUnverified {
		t.Fatalf("verdict = %q, want UNVERIFIED fallback for invalid enum", v.Verdict)
	}
}

func TestParseVerdictClampsOutOfRangeScores(t *testing.T) {
	raw := `{"verdict":"TRUE","trust_score":999,"confidence":-5}`
	v := ParseVerdict(raw)
	if v.TrustScore != 100 {
		t.Fatalf("trust score not clamped: %d", v.TrustScore)
	}
	if v.Confidence != 0 {
		t.Fatalf("confidence not clamped: %d", v.Confidence)
	}
}

func TestParseVerdictNilSlicesBecomeEmpty(t *testing.T) {
	raw := `{"verdict":"TRUE","trust_score":80,"confidence":80}`
	v := ParseVerdict(raw)
	if v.Reasons == nil || v.EvidenceList == nil {
		t.Fatalf("expected non-nil slices, got %+v", v)
	}
}

func TestParseLessonStrict(t *testing.T) {
	raw := `{"mini_lesson":"watch out","tips":["a","b"],"quiz":{"question":"q","options":["1","2"],"answer":"1"}}`
	l := ParseLesson(raw)
	if l.MiniLesson != "watch out" {
		t.Fatalf("mini_lesson = %q", l.MiniLesson)
	}
	if len(l.Tips) != 2 {
		t.Fatalf("tips = %v", l.Tips)
	}
}

func TestParseLessonFallsBackWhenEmpty(t *testing.T) {
	l := ParseLesson(`{"tips":["a"]}`)
	fallback := FallbackLesson()
	if l.MiniLesson != fallback.MiniLesson {
		t.Fatalf("expected fallback lesson when mini_lesson missing, got %+v", l)
	}
}

func TestParseLessonSalvagesSurroundingText(t *testing.T) {
	raw := "```json\n{\"mini_lesson\":\"be skeptical\",\"tips\":[],\"quiz\":{\"question\":\"q\",\"options\":[],\"answer\":\"\"}}\n```"
	l := ParseLesson(raw)
	if l.MiniLesson != "be skeptical" {
		t.Fatalf("mini_lesson = %q", l.MiniLesson)
	}
}

func TestFallbackVerdictAlwaysValidEnum(t *testing.T) {
	v := FallbackVerdict()
	if !validVerdicts[v.Verdict] {
		t.Fatalf("fallback verdict %q not in enum", v.Verdict)
	}
}
