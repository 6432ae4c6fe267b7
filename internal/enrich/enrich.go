// Package enrich implements the enrichment stage: it consumes a
// crawl.items message, normalizes HTML/image content, detects language,
// performs OCR, extracts fraud-signal patterns, and produces a heuristic
// score, then forwards a slim summary to ingest.queue.
package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/veritasgrid/triagecore/internal/domain"
)

// ItemStore is the narrow persistence seam enrichment needs: a single
// CrawledItem write per message.
type ItemStore interface {
	InsertCrawledItem(ctx context.Context, item domain.CrawledItem) (domain.CrawledItem, error)
}

// Publisher forwards the enriched summary onward to ingest.queue.
type Publisher interface {
	PublishIngest(ctx context.Context, msg domain.IngestMessage) error
}

// Deps holds the stage's external dependencies, injected rather than
// reached for as process globals.
type Deps struct {
	Store     ItemStore
	Publisher Publisher
	Logger    *slog.Logger
	Clock     func() time.Time
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d Deps) clock() func() time.Time {
	if d.Clock != nil {
		return d.Clock
	}
	return time.Now
}

// Build runs the per-document enrichment sequence: text extraction, language detection,
// transliteration, OCR, pattern extraction, domain signals, image hashing,
// and heuristic scoring. The HTML/screenshot reads, the tesseract
// subprocess and the WHOIS TCP query do I/O; every other step here is
// pure. Steps 2-8 are best-effort per the Failure
// semantics note — none of them return an error that aborts the message.
func Build(ctx context.Context, msg domain.CrawlMessage, now time.Time) domain.CrawledItem {
	cleanText, _ := ExtractText(msg.HTMLPath, msg.Text)

	detected := Detect(cleanText)
	translit := IsTranslit(detected.Language, cleanText)

	if ocrText := OCRText(ctx, msg.ScreenshotPath, detected.Language, translit); ocrText != "" {
		cleanText = collapseWhitespace(cleanText + " " + ocrText)
	}

	patterns := ExtractPatterns(cleanText)

	whois := Lookup(ctx, msg.Domain)
	ageDays, hasAge := whois.AgeDays(now)

	hashes, _ := ComputeImageHashes(msg.ScreenshotPath)

	score := HeuristicScore(detected.Language, cleanText, patterns, ageDays, hasAge)

	return domain.CrawledItem{
		ID:             uuid.NewString(),
		URL:            msg.URL,
		Domain:         msg.Domain,
		RawHTMLPath:    msg.HTMLPath,
		ScreenshotPath: msg.ScreenshotPath,
		CleanText:      cleanText,
		Language:       detected.Language,
		LangConfidence: detected.Confidence,
		Translit:       translit,
		HeuristicScore: score,
		Label:          domain.LabelPending,
		ImageHashes:    hashes.List(),
		WhoisData:      whois.ToMap(),
		Metadata:       map[string]string{},
		IngestedAt:     now,
	}
}

// Process runs Build, persists the enriched item (the only fatal step),
// and forwards the summary to ingest.queue. The upstream message is acked
// by the caller only after Process returns nil, per the at-least-once
// manual-ack contract.
func Process(ctx context.Context, deps Deps, msg domain.CrawlMessage) error {
	if err := domain.ValidateCrawlMessage(msg); err != nil {
		return fmt.Errorf("enrich: invalid message: %w", err)
	}

	item := Build(ctx, msg, deps.clock()())

	stored, err := deps.Store.InsertCrawledItem(ctx, item)
	if err != nil {
		return fmt.Errorf("enrich: persist crawled item: %w", err)
	}

	ingestMsg := domain.IngestMessage{
		URL:            stored.URL,
		Language:       stored.Language,
		HeuristicScore: stored.HeuristicScore,
		Timestamp:      float64(deps.clock()().Unix()),
	}
	if err := deps.Publisher.PublishIngest(ctx, ingestMsg); err != nil {
		return fmt.Errorf("enrich: forward to ingest.queue: %w", err)
	}

	deps.logger().Info("enrich: processed", "url", stored.URL, "language", stored.Language, "heuristic_score", stored.HeuristicScore)
	return nil
}
