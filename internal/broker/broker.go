// Package broker wraps the NATS message fabric: the
// crawl.items / ingest.queue subjects, their dead-letter counterparts, and
// a generic consumer loop with prefetch=1, bounded retry, and
// negative-ack-without-requeue on poison messages.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"

	"github.com/veritasgrid/triagecore/internal/domain"
)

// Subject names fixed by the queue wire contract.
const (
	SubjectCrawlItems  = "crawl.items"
	SubjectIngestQueue = "ingest.queue"
	dlqSuffix          = ".dlq"

	// SubjectEvents carries event-bus envelopes between processes: a
	// worker process (classifyworker, enrichworker) has no WebSocket
	// clients of its own, so it publishes here instead of calling a local
	// eventbus.Bus directly; the api process, which does own the WS
	// connections, subscribes once and relays into its in-process Bus
	// (workers run as separate OS processes from the HTTP frontend and
	// own no WebSocket connections of their own).
	SubjectEvents = "events.bus"

	// MaxRetries bounds redelivery before a message is diverted to its
	// dead-letter subject.
	MaxRetries = 3

	retryHeader = "X-Retry-Count"
)

// natsHeaderCarrier adapts nats.Msg headers for OTel's TextMapCarrier, so a
// crawl.items → ingest.queue hop stays one trace across the NATS boundary.
type natsHeaderCarrier nats.Msg

func (c *natsHeaderCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *natsHeaderCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *natsHeaderCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// Publisher publishes to the two named subjects. It satisfies both
// internal/enrich.Publisher and the crawl-producer's publish seam.
type Publisher struct {
	nc *nats.Conn
}

// NewPublisher wraps an established NATS connection.
func NewPublisher(nc *nats.Conn) *Publisher { return &Publisher{nc: nc} }

func (p *Publisher) publish(ctx context.Context, subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("broker: marshal %s: %w", subject, err)
	}
	msg := &nats.Msg{Subject: subject, Data: data}
	otel.GetTextMapPropagator().Inject(ctx, (*natsHeaderCarrier)(msg))
	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("broker: publish %s: %w", subject, err)
	}
	return nil
}

// PublishCrawlItem publishes a crawl.items message.
func (p *Publisher) PublishCrawlItem(ctx context.Context, msg domain.CrawlMessage) error {
	return p.publish(ctx, SubjectCrawlItems, msg)
}

// PublishIngest publishes an ingest.queue message (internal/enrich.Publisher).
func (p *Publisher) PublishIngest(ctx context.Context, msg domain.IngestMessage) error {
	return p.publish(ctx, SubjectIngestQueue, msg)
}

// eventEnvelope is the wire shape carried on SubjectEvents, distinct from
// eventbus.Envelope (the client-facing WS shape, whose timestamp the
// relay's local bus stamps at delivery time).
type eventEnvelope struct {
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload"`
}

// EventPublisher implements classify.EventPublisher and review.EventPublisher
// by forwarding event_type/payload pairs onto SubjectEvents rather than a
// local in-process eventbus.Bus, so that worker-process emissions reach
// whichever process owns the live WebSocket connections.
type EventPublisher struct {
	nc *nats.Conn
}

// NewEventPublisher wraps an established NATS connection for cross-process
// event relay.
func NewEventPublisher(nc *nats.Conn) *EventPublisher { return &EventPublisher{nc: nc} }

// Publish marshals and publishes one event onto SubjectEvents. A publish
// failure is non-fatal to the caller (delivery is best-effort) — it
// is returned so the caller can log it, but callers in this codebase treat
// it as a warning, not a reason to fail the document-level operation.
func (p *EventPublisher) Publish(ctx context.Context, eventType string, payload map[string]any) error {
	return p.publish(ctx, SubjectEvents, eventEnvelope{EventType: eventType, Payload: payload})
}

func (p *EventPublisher) publish(ctx context.Context, subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("broker: marshal %s: %w", subject, err)
	}
	msg := &nats.Msg{Subject: subject, Data: data}
	otel.GetTextMapPropagator().Inject(ctx, (*natsHeaderCarrier)(msg))
	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("broker: publish %s: %w", subject, err)
	}
	return nil
}

// RelayTarget is the narrow seam EventRelay needs into a local event bus
// (internal/eventbus.Bus satisfies this via its own Publish method).
type RelayTarget interface {
	Publish(ctx context.Context, eventType string, payload map[string]any) error
}

// SubscribeEvents relays every SubjectEvents message into target's local
// delivery, bridging worker-process event emissions into the api process's
// WebSocket fan-out. It is the api process's counterpart to
// EventPublisher.
func SubscribeEvents(nc *nats.Conn, logger *slog.Logger, target RelayTarget) (*nats.Subscription, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return nc.Subscribe(SubjectEvents, func(m *nats.Msg) {
		var env eventEnvelope
		if err := json.Unmarshal(m.Data, &env); err != nil {
			logger.Error("broker: unmarshal event envelope failed", "err", err)
			return
		}
		if err := target.Publish(context.Background(), env.EventType, env.Payload); err != nil {
			logger.Warn("broker: relay event failed", "event_type", env.EventType, "err", err)
		}
	})
}

// Handler processes one decoded message. A non-nil error triggers the
// bounded-retry-then-DLQ path; nil acks immediately.
type Handler[T any] func(ctx context.Context, msg T) error

// Consume subscribes to subject with prefetch=1 semantics: the handler runs
// to completion (including its own downstream acks) before the next
// message is dispatched, since nats.Conn delivers to this callback
// sequentially per subscription. On handler failure the retry count is
// read from and rewritten to the X-Retry-Count header; once the count
// reaches MaxRetries, or at once when the error wraps a
// *domain.ValidationError (invalid input is never retried), the payload is
// wrapped in a dlqEnvelope with the error text and retry count and
// published to subject+".dlq", and the original is acked so it is not
// redelivered: poison messages divert to the dead-letter slot instead of
// cycling forever.
func Consume[T any](nc *nats.Conn, subject string, logger *slog.Logger, handler Handler[T]) (*nats.Subscription, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dlqSubject := subject + dlqSuffix

	return nc.QueueSubscribe(subject, subject+"-workers", func(m *nats.Msg) {
		var payload T
		if err := json.Unmarshal(m.Data, &payload); err != nil {
			logger.Error("broker: unmarshal failed", "subject", subject, "err", err)
			ackMsg(m)
			return
		}

		ctx := otel.GetTextMapPropagator().Extract(context.Background(), (*natsHeaderCarrier)(m))

		retries := 0
		if m.Header != nil {
			fmt.Sscanf(m.Header.Get(retryHeader), "%d", &retries)
		}

		if err := handler(ctx, payload); err != nil {
			retries++
			logger.Error("broker: handler failed", "subject", subject, "retry", retries, "err", err)
			var invalid *domain.ValidationError
			if retries >= MaxRetries || errors.As(err, &invalid) {
				divertToDLQ(nc, dlqSubject, m.Data, err, retries, logger)
			} else {
				republishWithRetry(nc, subject, m.Data, retries, logger)
			}
			ackMsg(m)
			return
		}

		ackMsg(m)
	})
}

type dlqEnvelope struct {
	Subject string          `json:"subject"`
	Payload json.RawMessage `json:"payload"`
	Error   string          `json:"error"`
	Retries int             `json:"retries"`
}

func divertToDLQ(nc *nats.Conn, dlqSubject string, raw []byte, cause error, retries int, logger *slog.Logger) {
	env := dlqEnvelope{Subject: dlqSubject, Payload: raw, Error: cause.Error(), Retries: retries}
	data, err := json.Marshal(env)
	if err != nil {
		logger.Error("broker: marshal dlq envelope failed", "err", err)
		return
	}
	if err := nc.Publish(dlqSubject, data); err != nil {
		logger.Error("broker: dlq publish failed", "subject", dlqSubject, "err", err)
	}
}

func republishWithRetry(nc *nats.Conn, subject string, raw []byte, retries int, logger *slog.Logger) {
	retryMsg := nats.NewMsg(subject)
	retryMsg.Data = raw
	retryMsg.Header = nats.Header{}
	retryMsg.Header.Set(retryHeader, fmt.Sprintf("%d", retries))
	if err := nc.PublishMsg(retryMsg); err != nil {
		logger.Error("broker: retry publish failed", "subject", subject, "err", err)
	}
}

// ackMsg acknowledges a message only when it carries a reply subject. The
// core NATS publishes in this package set none, so for them it does nothing.
func ackMsg(m *nats.Msg) {
	if m.Reply != "" {
		_ = m.Ack()
	}
}
