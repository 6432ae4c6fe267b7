package llm

import (
	"fmt"
	"strings"

	"github.com/veritasgrid/triagecore/internal/domain"
)

// verdictInstruction is appended to every language's verdict prompt and
// pins the JSON-only response contract.
const verdictInstruction = `Respond with a single JSON object and nothing else, matching exactly:
{"verdict": "TRUE"|"FALSE"|"MISLEADING"|"UNVERIFIED"|"PARTIALLY TRUE", "trust_score": 0-100, "confidence": 0-100, "reasons": ["..."], "evidence_list": ["..."], "one_line_tip": "..."}`

// lessonInstruction pins the JSON-only response contract for lessons.
const lessonInstruction = `Respond with a single JSON object and nothing else, matching exactly:
{"mini_lesson": "...", "tips": ["...", "..."], "quiz": {"question": "...", "options": ["...", "...", "...", "..."], "answer": "..."}}`

// verdictPreambles gives each supported language its own framing sentence
// so the model answers in the claimant's language.
var verdictPreambles = map[domain.Language]string{
	domain.LangHindi:   "आप एक तथ्य-जांच सहायक हैं जो हिंदी में गलत सूचना की पहचान करते हैं।",
	domain.LangTamil:   "நீங்கள் தமிழில் தவறான தகவலைச் சரிபார்க்கும் ஒரு உண்மை சரிபார்ப்பு உதவியாளர்.",
	domain.LangKannada: "ನೀವು ಕನ್ನಡದಲ್ಲಿ ತಪ್ಪು ಮಾಹಿತಿಯನ್ನು ಪರಿಶೀಲಿಸುವ ಸತ್ಯ-ಪರಿಶೀಲನಾ ಸಹಾಯಕ.",
	domain.LangEnglish: "You are a fact-checking assistant that verifies claims for misinformation.",
}

// BuildVerdictPrompt composes the verdict prompt: restate the claim,
// enumerate the evidence with URLs, and demand the JSON verdict shape.
func BuildVerdictPrompt(claim string, lang domain.Language, evidence []domain.Evidence) string {
	preamble, ok := verdictPreambles[lang]
	if !ok {
		preamble = verdictPreambles[domain.LangEnglish]
	}

	var b strings.Builder
	b.WriteString(preamble)
	b.WriteString("\n\nClaim:\n")
	b.WriteString(claim)
	b.WriteString("\n\nEvidence:\n")
	if len(evidence) == 0 {
		b.WriteString("(no supporting evidence was retrieved)\n")
	}
	for i, e := range evidence {
		fmt.Fprintf(&b, "%d. %s — %s (%s)\n", i+1, e.URL, e.Snippet, e.Language)
	}
	b.WriteString("\n")
	b.WriteString(verdictInstruction)
	return b.String()
}

// BuildLessonPrompt composes the mini-lesson prompt, grounded on
// the claim, the verdict already reached, and the same evidence set.
func BuildLessonPrompt(claim string, verdict StructuredVerdict, lang domain.Language, evidence []domain.Evidence) string {
	preamble, ok := verdictPreambles[lang]
	if !ok {
		preamble = verdictPreambles[domain.LangEnglish]
	}

	var b strings.Builder
	b.WriteString(preamble)
	b.WriteString("\n\nWrite a short media-literacy lesson for someone who encountered this claim.\n\nClaim:\n")
	b.WriteString(claim)
	fmt.Fprintf(&b, "\n\nVerdict: %s (trust_score=%d)\n", verdict.Verdict, verdict.TrustScore)
	b.WriteString("Reasons: ")
	b.WriteString(strings.Join(verdict.Reasons, "; "))
	b.WriteString("\n\nEvidence:\n")
	if len(evidence) == 0 {
		b.WriteString("(no supporting evidence was retrieved)\n")
	}
	for i, e := range evidence {
		fmt.Fprintf(&b, "%d. %s — %s (%s)\n", i+1, e.URL, e.Snippet, e.Language)
	}
	b.WriteString("\n")
	b.WriteString(lessonInstruction)
	return b.String()
}
