// Package main is a minimal crawl.items producer. The real fetcher lives
// elsewhere; a thin local CLI that publishes a well-formed crawl.items message
// exercises the wire contract end to end without redesigning any
// brand/source-specific scraping logic.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/veritasgrid/triagecore/internal/broker"
	"github.com/veritasgrid/triagecore/internal/domain"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	url := flag.String("url", "", "page url (required)")
	domainName := flag.String("domain", "", "page domain (required)")
	htmlPath := flag.String("html", "", "path to a raw HTML file, if any")
	screenshotPath := flag.String("screenshot", "", "path to a screenshot file, if any")
	text := flag.String("text", "", "plain-text fallback content")
	natsURL := flag.String("nats", nats.DefaultURL, "NATS URL")
	flag.Parse()

	if *url == "" || *domainName == "" {
		fmt.Fprintln(os.Stderr, "usage: producer -url=... -domain=... [-html=...] [-screenshot=...] [-text=...]")
		os.Exit(2)
	}

	if err := run(*natsURL, domain.CrawlMessage{
		URL:            *url,
		Domain:         *domainName,
		HTMLPath:       *htmlPath,
		ScreenshotPath: *screenshotPath,
		Text:           *text,
		CrawlTimestamp: float64(time.Now().Unix()),
	}, logger); err != nil {
		logger.Error("producer failed", "err", err)
		os.Exit(1)
	}
}

func run(natsURL string, msg domain.CrawlMessage, logger *slog.Logger) error {
	nc, err := nats.Connect(natsURL)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()

	ctx := context.Background()
	pub := broker.NewPublisher(nc)
	if err := pub.PublishCrawlItem(ctx, msg); err != nil {
		return fmt.Errorf("publish crawl item: %w", err)
	}

	events := broker.NewEventPublisher(nc)
	if err := events.Publish(ctx, "crawler:found", map[string]any{
		"url": msg.URL, "domain": msg.Domain,
	}); err != nil {
		logger.Warn("producer: event publish failed", "err", err)
	}

	logger.Info("producer: published crawl item", "url", msg.URL, "domain", msg.Domain)
	return nil
}
