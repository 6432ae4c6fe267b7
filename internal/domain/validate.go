package domain

import (
	"strings"
	"unicode/utf8"
)

const (
	maxClaimRunes = 5000
	minClaimRunes = 1
)

var supportedLanguages = map[Language]bool{
	LangAuto:    true,
	LangHindi:   true,
	LangTamil:   true,
	LangKannada: true,
	LangEnglish: true,
}

// ValidateCheckRequest enforces the request contract for POST /api/check.
func ValidateCheckRequest(req CheckRequest) error {
	text := strings.TrimSpace(req.ClaimText)
	n := utf8.RuneCountInString(text)
	if n < minClaimRunes {
		return NewValidationError("claim_text", text, ErrClaimTooShort)
	}
	if n > maxClaimRunes {
		return NewValidationError("claim_text", text[:40]+"...", ErrClaimTooLong)
	}
	if req.Language == "" {
		req.Language = LangAuto
	}
	if !supportedLanguages[req.Language] {
		return NewValidationError("language", string(req.Language), ErrUnsupportedLang)
	}
	return nil
}

// ValidateCrawlMessage enforces minimal shape on an inbound crawl.items message.
// Consumers must tolerate additional unknown fields; this only rejects
// messages missing the fields every downstream stage depends on.
func ValidateCrawlMessage(msg CrawlMessage) error {
	if strings.TrimSpace(msg.URL) == "" {
		return NewValidationError("url", msg.URL, ErrInvalidURL)
	}
	if msg.HTMLPath == "" && msg.ScreenshotPath == "" && strings.TrimSpace(msg.Text) == "" {
		return NewValidationError("text", "", ErrInvalidURL)
	}
	return nil
}

var reviewActions = map[ReviewAction]bool{
	ActionApprove:  true,
	ActionReject:   true,
	ActionEscalate: true,
}

// ValidateReviewAction enforces the review action enum.
func ValidateReviewAction(a ReviewAction) error {
	if !reviewActions[a] {
		return NewValidationError("action", string(a), ErrInvalidAction)
	}
	return nil
}
