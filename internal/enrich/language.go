package enrich

import (
	"strings"

	"github.com/veritasgrid/triagecore/internal/domain"
)

// scriptRange is a contiguous Unicode block used to fingerprint a language.
type scriptRange struct {
	lang     domain.Language
	lo, hi   rune
}

// Precedence matters: Tamil, then Devanagari (Hindi), then Kannada, else
// English — the fixed tie-break order, so detection is deterministic for
// any input containing an Indic script.
var scriptRanges = []scriptRange{
	{domain.LangTamil, 0x0B80, 0x0BFF},
	{domain.LangHindi, 0x0900, 0x097F},
	{domain.LangKannada, 0x0C80, 0x0CFF},
}

// englishWordlist is a small closed-class set used to estimate an English
// confidence fraction when no script hit is found.
var englishWordlist = map[string]bool{
	"the": true, "and": true, "is": true, "are": true, "was": true, "were": true,
	"you": true, "your": true, "please": true, "click": true, "link": true,
	"account": true, "bank": true, "money": true, "send": true, "urgent": true,
	"free": true, "win": true, "prize": true, "offer": true, "to": true, "of": true,
	"for": true, "in": true, "on": true, "with": true, "this": true, "that": true,
	"a": true, "an": true, "it": true, "has": true, "have": true, "will": true,
}

// hindiRomanizationMarkers is the fixed list of Hindi romanization tells used
// to set the translit flag.
var hindiRomanizationMarkers = []string{
	"kripya", "turant", "paisa", "paise", "jeeta", "jeetiye", "bhejiye",
	"lottery jeeta", "account band", "otp bhejein", "abhi karein",
}

// DetectResult is the outcome of language detection.
type DetectResult struct {
	Language   domain.Language
	Confidence float64
}

// Detect applies the deterministic script-range heuristic. It is used both
// by enrichment and by the check pipeline when the caller passes
// language=auto.
func Detect(text string) DetectResult {
	for _, sr := range scriptRanges {
		if containsRange(text, sr.lo, sr.hi) {
			return DetectResult{Language: sr.lang, Confidence: 0.9}
		}
	}
	if frac := englishWordFraction(text); frac >= 0.3 {
		return DetectResult{Language: domain.LangEnglish, Confidence: frac}
	}
	return DetectResult{Language: domain.LangEnglish, Confidence: 0.5}
}

func containsRange(text string, lo, hi rune) bool {
	for _, r := range text {
		if r >= lo && r <= hi {
			return true
		}
	}
	return false
}

func englishWordFraction(text string) float64 {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return 0
	}
	hits := 0
	for _, w := range words {
		w = strings.Trim(w, ".,!?;:'\"()")
		if englishWordlist[w] {
			hits++
		}
	}
	return float64(hits) / float64(len(words))
}

// IsTranslit decides the transliteration flag: English-detected
// text with at least 3 Hindi romanization markers.
func IsTranslit(lang domain.Language, text string) bool {
	if lang != domain.LangEnglish {
		return false
	}
	lower := strings.ToLower(text)
	count := 0
	for _, marker := range hindiRomanizationMarkers {
		if strings.Contains(lower, marker) {
			count++
		}
	}
	return count >= 3
}
