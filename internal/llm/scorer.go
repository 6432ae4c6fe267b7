package llm

import (
	"encoding/json"
	"context"
	"fmt"
	"strings"

	"github.com/veritasgrid/triagecore/internal/domain"
)

// ClassifierScorer adapts Selector into the classify.Scorer capability:
// an LLM-backed numeric scorer standing in for a trained classifier. It
// asks the active provider for a single probability and
// parses defensively the same way verdict parsing does.
type ClassifierScorer struct {
	selector *Selector
}

// NewClassifierScorer wraps a Selector for use as the routing stage's scorer.
func NewClassifierScorer(selector *Selector) *ClassifierScorer {
	return &ClassifierScorer{selector: selector}
}

const scorePromptTemplate = `You are a scam-detection classifier. Given the following %s-language text, ` +
	`estimate the probability (0 to 1) that it is a financial scam or fraud attempt. ` +
	`Respond with a single JSON object and nothing else: {"score": 0.0}\n\nText:\n%s`

type scoreResponse struct {
	Score float64 `json:"score"`
}

// Score implements classify.Scorer. Any failure to call or parse the
// provider is the caller's responsibility to fall back on (classification
// falls back to 0.5) — Score returns the error rather than swallowing it so the
// caller can log the distinction between "scored 0.5" and "fell back to
// 0.5".
func (c *ClassifierScorer) Score(ctx context.Context, text string, lang domain.Language) (float64, error) {
	prompt := fmt.Sprintf(scorePromptTemplate, lang, text)
	raw, err := c.selector.generate(ctx, prompt)
	if err != nil {
		return 0, fmt.Errorf("llm: score: %w", err)
	}
	score, ok := parseScore(raw)
	if !ok {
		return 0, fmt.Errorf("llm: score: could not parse response %q", truncate(raw, 80))
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score, nil
}

func parseScore(raw string) (float64, bool) {
	var r scoreResponse
	if err := json.Unmarshal([]byte(raw), &r); err == nil {
		return r.Score, true
	}
	if salvaged, ok := salvageJSON(raw); ok {
		var r2 scoreResponse
		if err := json.Unmarshal([]byte(salvaged), &r2); err == nil {
			return r2.Score, true
		}
	}
	return 0, false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n]) + "..."
}
