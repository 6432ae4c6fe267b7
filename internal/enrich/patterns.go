package enrich

import (
	"regexp"
	"strings"

	"github.com/veritasgrid/triagecore/internal/domain"
)

var (
	paymentHandleRe = regexp.MustCompile(`\w+@\w+`)
	phoneRe         = regexp.MustCompile(`(\+91|91)?[6-9]\d{9}`)
	currencyRe      = regexp.MustCompile(`₹\s*\d+`)
)

// Patterns is the fraud-signal extraction result.
type Patterns struct {
	PaymentHandles []string
	Phones         []string
	CurrencyAmts   []string
}

// ExtractPatterns regex-scans text for payment handles, phone numbers, and
// currency amounts.
func ExtractPatterns(text string) Patterns {
	return Patterns{
		PaymentHandles: dedupe(paymentHandleRe.FindAllString(text, -1)),
		Phones:         dedupe(phoneRe.FindAllString(text, -1)),
		CurrencyAmts:   dedupe(currencyRe.FindAllString(text, -1)),
	}
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	var out []string
	for _, it := range items {
		if !seen[it] {
			seen[it] = true
			out = append(out, it)
		}
	}
	return out
}

// scamKeywords is the fixed per-language list used by the heuristic score.
var scamKeywords = map[domain.Language][]string{
	domain.LangEnglish: {"lottery", "prize", "winner", "claim now", "congratulations", "urgent payment", "account suspended", "kyc update", "refund pending"},
	domain.LangHindi:   {"लॉटरी", "इनाम", "जीत", "तुरंत", "खाता बंद", "केवाईसी"},
	domain.LangTamil:   {"லாட்டரி", "பரிசு", "வெற்றி", "உடனடி", "கணக்கு முடக்கம்"},
	domain.LangKannada: {"ಲಾಟರಿ", "ಬಹುಮಾನ", "ಗೆಲುವು", "ತಕ್ಷಣ", "ಖಾತೆ ಸ್ಥಗಿತ"},
}

// urgencyMarkers is a shared cross-language set of urgency tells.
var urgencyMarkers = []string{
	"urgent", "immediately", "act now", "expires today", "तत्काल", "अभी", "உடனடி", "ತಕ್ಷಣ",
}

// HeuristicScore is a weighted sum of fraud signals clamped to [0,100].
func HeuristicScore(lang domain.Language, text string, p Patterns, domainAgeDays int, hasDomainInfo bool) float64 {
	lower := strings.ToLower(text)
	var sum float64

	for _, kw := range scamKeywords[lang] {
		if strings.Contains(lower, strings.ToLower(kw)) {
			sum += 2
		}
	}
	for _, m := range urgencyMarkers {
		if strings.Contains(lower, strings.ToLower(m)) {
			sum += 1.5
		}
	}
	if len(p.PaymentHandles) > 0 {
		sum += 3
	}
	sum += float64(len(p.Phones)) * 2
	sum += float64(len(p.CurrencyAmts)) * 1

	if hasDomainInfo {
		switch {
		case domainAgeDays < 30:
			sum += 5
		case domainAgeDays < 90:
			sum += 2
		}
	}

	score := sum * 10
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}
