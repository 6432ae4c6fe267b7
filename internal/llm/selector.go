// Package llm defines the LLM provider capability and a process-wide
// failover Selector over a primary/secondary pair, plus the verdict/lesson
// prompt templates and defensive JSON parsing used by the check pipeline.
package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/veritasgrid/triagecore/internal/domain"
)

// llmLimiter bounds outbound LLM calls process-wide to respect provider
// rate limits. x/time/rate rather than pkg/resilience: Wait integrates
// directly with ctx cancellation, and a client disconnect must abandon an
// in-flight LLM call rather than queue behind the bucket.
var llmLimiter = rate.NewLimiter(rate.Limit(5), 10)

// AuditAppender is the narrow seam Selector needs into the audit log;
// every provider switch is recorded as an audit event.
type AuditAppender interface {
	Append(ctx context.Context, eventType string, payload map[string]any) (string, error)
}

// Selector is the process-wide LLM failover: a small selector over a
// primary/secondary pair, unifying the Ollama and cloud clients behind the
// single Provider capability. Which provider is active is process-wide
// state behind a mutex; switching is rare and idempotent.
type Selector struct {
	mu        sync.Mutex
	primary   Provider
	secondary Provider
	active    Provider
	audit     AuditAppender
	breaker   *gobreaker.CircuitBreaker[string]
}

// NewSelector builds a Selector. At process start the caller should call
// Probe once: on the primary's first failure every remaining request in
// the process routes to the secondary until an explicit switch.
func NewSelector(primary, secondary Provider, audit AuditAppender) *Selector {
	s := &Selector{primary: primary, secondary: secondary, active: primary, audit: audit}
	s.breaker = gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "llm-selector",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 1
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				s.switchToSecondary(context.Background())
			}
		},
	})
	return s
}

// Probe checks the primary's availability once at startup and switches to
// the secondary immediately if it is already down, rather than waiting for
// a failed Generate call.
func (s *Selector) Probe(ctx context.Context) {
	if !s.primary.Available(ctx) {
		s.switchToSecondary(ctx)
	}
}

func (s *Selector) switchToSecondary(ctx context.Context) {
	s.mu.Lock()
	already := s.active == s.secondary
	s.active = s.secondary
	s.mu.Unlock()
	if already {
		return
	}
	if s.audit != nil {
		_, _ = s.audit.Append(ctx, "llm:provider_switch", map[string]any{
			"from": s.primary.Name(),
			"to":   s.secondary.Name(),
			"at":   time.Now().UTC(),
		})
	}
}

func (s *Selector) current() Provider {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// generate runs prompt through the currently active provider. The breaker
// guards only the primary: its first failure trips the breaker, OnStateChange
// flips active to the secondary, and the failing request itself still
// returns the error — the caller serves its deterministic fallback for that
// one request, and every subsequent request routes to the secondary. Once
// switched, the secondary is called directly (there is nothing left to fail
// over to), and Selector never switches back to the primary on its own.
func (s *Selector) generate(ctx context.Context, prompt string) (string, error) {
	if err := llmLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("llm: rate limit wait: %w", err)
	}
	provider := s.current()
	if provider != s.primary {
		out, err := provider.Generate(ctx, prompt, Temperature)
		if err != nil {
			return "", fmt.Errorf("llm: generate via %s: %w", provider.Name(), err)
		}
		return out, nil
	}
	out, err := s.breaker.Execute(func() (string, error) {
		return provider.Generate(ctx, prompt, Temperature)
	})
	if err != nil {
		return "", fmt.Errorf("llm: generate via %s: %w", provider.Name(), err)
	}
	return out, nil
}

// Verdict runs the verdict capability end to end: build
// the prompt, call the active provider, and defensively parse the result.
func (s *Selector) Verdict(ctx context.Context, claim string, lang domain.Language, evidence []domain.Evidence) StructuredVerdict {
	prompt := BuildVerdictPrompt(claim, lang, evidence)
	raw, err := s.generate(ctx, prompt)
	if err != nil {
		return FallbackVerdict()
	}
	return ParseVerdict(raw)
}

// Lesson generates the mini-lesson, called only when Verdict returned
// FALSE or MISLEADING.
func (s *Selector) Lesson(ctx context.Context, claim string, verdict StructuredVerdict, lang domain.Language, evidence []domain.Evidence) Lesson {
	prompt := BuildLessonPrompt(claim, verdict, lang, evidence)
	raw, err := s.generate(ctx, prompt)
	if err != nil {
		return FallbackLesson()
	}
	return ParseLesson(raw)
}

// Available reports whether the currently active provider answers.
func (s *Selector) Available(ctx context.Context) bool {
	return s.current().Available(ctx)
}
