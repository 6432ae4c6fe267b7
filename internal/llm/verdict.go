package llm

import (
	"encoding/json"
	"strings"

	"github.com/veritasgrid/triagecore/internal/domain"
)

// StructuredVerdict is the verdict response shape: the five-enum verdict
// plus the scores and narrative fields the check pipeline assembles into a
// CheckResponse.
type StructuredVerdict struct {
	Verdict      domain.Verdict `json:"verdict"`
	TrustScore   int            `json:"trust_score"`
	Confidence   int            `json:"confidence"`
	Reasons      []string       `json:"reasons"`
	EvidenceList []string       `json:"evidence_list"`
	OneLineTip   string         `json:"one_line_tip"`
}

// Lesson is the mini-lesson shape, attached when the verdict is
// FALSE or MISLEADING.
type Lesson struct {
	MiniLesson string     `json:"mini_lesson"`
	Tips       []string   `json:"tips"`
	Quiz       domain.Quiz `json:"quiz"`
}

var validVerdicts = map[domain.Verdict]bool{
	domain.VerdictTrue:          true,
	domain.VerdictFalse:         true,
	domain.VerdictMisleading:    true,
	domain.VerdictUnverified:    true,
	domain.VerdictPartiallyTrue: true,
}

// FallbackVerdict is returned whenever the LLM is unreachable or its
// response cannot be salvaged; a degraded LLM never surfaces as an error
// on the check path. It is never raw LLM text, so /api/check always
// returns one of the five enum values.
func FallbackVerdict() StructuredVerdict {
	return StructuredVerdict{
		Verdict:      domain.VerdictUnverified,
		TrustScore:   0,
		Confidence:   0,
		Reasons:      []string{"unable to reach verification service"},
		EvidenceList: []string{},
		OneLineTip:   "Treat this claim with caution until it can be verified.",
	}
}

// FallbackLesson is the deterministic mini-lesson used when the lesson call
// itself fails to parse or the provider is unavailable.
func FallbackLesson() Lesson {
	return Lesson{
		MiniLesson: "Be skeptical of urgent claims involving money, prizes, or account threats. Verify with the official source before acting.",
		Tips: []string{
			"Never send money or OTPs to unknown contacts.",
			"Check the sender's domain, not just the display name.",
			"If it sounds too good to be true, it probably is.",
		},
		Quiz: domain.Quiz{
			Question: "What should you do before acting on an urgent money request?",
			Options:  []string{"Act immediately", "Verify through an official channel", "Forward it to friends", "Ignore and delete"},
			Answer:   "Verify through an official channel",
		},
	}
}

// ParseVerdict is the defensive parse: attempt a strict
// decode first; on failure, salvage the substring between the first '{' and
// last '}' and retry once. Any remaining failure yields the documented
// fallback rather than propagating to the caller (the pipeline masks a degraded
// dependency here).
func ParseVerdict(raw string) StructuredVerdict {
	var v StructuredVerdict
	if err := json.Unmarshal([]byte(raw), &v); err == nil && validVerdicts[v.Verdict] {
		return normalizeVerdict(v)
	}
	if salvaged, ok := salvageJSON(raw); ok {
		var v2 StructuredVerdict
		if err := json.Unmarshal([]byte(salvaged), &v2); err == nil && validVerdicts[v2.Verdict] {
			return normalizeVerdict(v2)
		}
	}
	return FallbackVerdict()
}

// ParseLesson mirrors ParseVerdict's defensive recovery for the lesson
// response shape.
func ParseLesson(raw string) Lesson {
	var l Lesson
	if err := json.Unmarshal([]byte(raw), &l); err == nil && l.MiniLesson != "" {
		return l
	}
	if salvaged, ok := salvageJSON(raw); ok {
		var l2 Lesson
		if err := json.Unmarshal([]byte(salvaged), &l2); err == nil && l2.MiniLesson != "" {
			return l2
		}
	}
	return FallbackLesson()
}

// salvageJSON finds the first '{' and last '}' in raw and returns the
// substring between them — a documented brittle-but-kept
// recovery strategy (a stricter structured-output mode is preferred when the
// provider supports it; see OllamaProvider.Generate's format=json).
func salvageJSON(raw string) (string, bool) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end < 0 || end < start {
		return "", false
	}
	return raw[start : end+1], true
}

func normalizeVerdict(v StructuredVerdict) StructuredVerdict {
	if v.Reasons == nil {
		v.Reasons = []string{}
	}
	if v.EvidenceList == nil {
		v.EvidenceList = []string{}
	}
	if v.TrustScore < 0 {
		v.TrustScore = 0
	}
	if v.TrustScore > 100 {
		v.TrustScore = 100
	}
	if v.Confidence < 0 {
		v.Confidence = 0
	}
	if v.Confidence > 100 {
		v.Confidence = 100
	}
	return v
}
