// Package eventbus implements the push side of the WebSocket surface: a
// hub with three routing tables keyed by all/user/role
// and a typed envelope/heartbeat/subscribe contract.
package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Upgrader is shared across connections. CheckOrigin always allows — the
// HTTP facade's own middleware is where origin policy belongs.
var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Envelope is the wire format for every message sent to a subscriber.
type Envelope struct {
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Target selects which connections a Send reaches.
type Target struct {
	Kind string // "all", "user", "role"
	ID   string // user id or role name; empty for "all"
}

// All targets every connected subscriber.
func All() Target { return Target{Kind: "all"} }

// User targets one user's connections.
func User(id string) Target { return Target{Kind: "user", ID: id} }

// ForRole targets every connection subscribed under the given role.
func ForRole(role string) Target { return Target{Kind: "role", ID: role} }

type connection struct {
	conn        *websocket.Conn
	userID      string
	role        string
	mu          sync.Mutex // guards writes; gorilla conns are not write-concurrent-safe
	eventTypes  map[string]bool
	allEvents   bool
}

func (c *connection) wants(eventType string) bool {
	if c.allEvents || len(c.eventTypes) == 0 {
		return true
	}
	return c.eventTypes[eventType]
}

func (c *connection) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// Bus is the fan-out hub: connect/disconnect, role/user-scoped send, and
// inbound ping/subscribe handling. State is an in-process map guarded by a
// mutex — delivery is best-effort and a failed send only drops the
// affected connection.
type Bus struct {
	mu    sync.RWMutex
	conns map[*websocket.Conn]*connection
	byUser map[string]map[*websocket.Conn]bool
	byRole map[string]map[*websocket.Conn]bool
	logger *slog.Logger
}

// New creates an empty Bus.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		conns:  make(map[*websocket.Conn]*connection),
		byUser: make(map[string]map[*websocket.Conn]bool),
		byRole: make(map[string]map[*websocket.Conn]bool),
		logger: logger,
	}
}

// Connect registers a new subscriber under the given user id (may be empty
// for anonymous/user-role subscribers) and role.
func (b *Bus) Connect(conn *websocket.Conn, userID, role string) {
	c := &connection{conn: conn, userID: userID, role: role, allEvents: true}

	b.mu.Lock()
	b.conns[conn] = c
	if userID != "" {
		if b.byUser[userID] == nil {
			b.byUser[userID] = make(map[*websocket.Conn]bool)
		}
		b.byUser[userID][conn] = true
	}
	if role != "" {
		if b.byRole[role] == nil {
			b.byRole[role] = make(map[*websocket.Conn]bool)
		}
		b.byRole[role][conn] = true
	}
	b.mu.Unlock()
}

// Disconnect removes a subscriber from every routing table and closes the
// underlying connection.
func (b *Bus) Disconnect(conn *websocket.Conn) {
	b.mu.Lock()
	c, ok := b.conns[conn]
	if ok {
		delete(b.conns, conn)
		if c.userID != "" {
			delete(b.byUser[c.userID], conn)
		}
		if c.role != "" {
			delete(b.byRole[c.role], conn)
		}
	}
	b.mu.Unlock()
	_ = conn.Close()
}

// Send delivers an envelope to every connection matching target. A write
// failure on one connection only drops that connection; it does not abort
// delivery to the rest.
func (b *Bus) Send(eventType string, data any, target Target) {
	env := Envelope{Type: eventType, Data: data, Timestamp: time.Now().UTC()}

	for _, c := range b.targets(target) {
		if !c.wants(eventType) {
			continue
		}
		if err := c.writeJSON(env); err != nil {
			b.logger.Warn("eventbus: send failed, dropping connection", "event_type", eventType, "err", err)
			b.Disconnect(c.conn)
		}
	}
}

// Publish adapts Send into the narrow EventPublisher seam the pipeline
// stages depend on:
// a type/payload pair routed by routeForEventType — review:* only to the
// reviewer role, admin:* only to the admin role, everything else to all
// subscribers. Callers that need another Target use Send directly.
func (b *Bus) Publish(_ context.Context, eventType string, payload map[string]any) error {
	b.Send(eventType, payload, routeForEventType(eventType))
	return nil
}

// Named convenience constructors, each a thin wrapper over Publish/Send
// for the event family it belongs to.

// CrawlerFound announces a newly fetched page entering crawl.items.
func (b *Bus) CrawlerFound(ctx context.Context, payload map[string]any) error {
	return b.Publish(ctx, "crawler:found", payload)
}

// IngestCompleted announces a document auto-labeled scam and indexed.
func (b *Bus) IngestCompleted(ctx context.Context, payload map[string]any) error {
	return b.Publish(ctx, "ingest:completed", payload)
}

// ReviewQueued announces a document queued for human review.
func (b *Bus) ReviewQueued(ctx context.Context, payload map[string]any) error {
	return b.Publish(ctx, "review:queued", payload)
}

// ReviewApproved announces a reviewer's approve action feeding the index.
func (b *Bus) ReviewApproved(ctx context.Context, payload map[string]any) error {
	return b.Publish(ctx, "review:approved", payload)
}

// CheckCompleted announces a completed /api/check request.
func (b *Bus) CheckCompleted(ctx context.Context, payload map[string]any) error {
	return b.Publish(ctx, "check:completed", payload)
}

// AdminAlert sends an operator-facing notice, always role-scoped to admin.
func (b *Bus) AdminAlert(ctx context.Context, payload map[string]any) error {
	return b.Publish(ctx, "admin:alert", payload)
}

// routeForEventType scopes the predefined event families: review:*
// is reviewer-scoped, admin:* is admin-scoped, everything else broadcasts.
func routeForEventType(eventType string) Target {
	switch {
	case hasPrefix(eventType, "review:"):
		return ForRole("reviewer")
	case hasPrefix(eventType, "admin:"):
		return ForRole("admin")
	default:
		return All()
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func (b *Bus) targets(target Target) []*connection {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var set map[*websocket.Conn]bool
	switch target.Kind {
	case "user":
		set = b.byUser[target.ID]
	case "role":
		set = b.byRole[target.ID]
	default:
		out := make([]*connection, 0, len(b.conns))
		for _, c := range b.conns {
			out = append(out, c)
		}
		return out
	}
	out := make([]*connection, 0, len(set))
	for conn := range set {
		out = append(out, b.conns[conn])
	}
	return out
}

// inbound is the shape of a client-to-server envelope: ping or subscribe.
type inbound struct {
	Type       string   `json:"type"`
	EventTypes []string `json:"event_types"`
}

// ServeLoop reads inbound frames until the connection closes, handling
// heartbeat (ping -> pong) and subscription scoping (subscribe ->
// subscription_confirmed). It blocks the caller's goroutine; wire
// it up with `go bus.ServeLoop(conn)` after Connect.
func (b *Bus) ServeLoop(conn *websocket.Conn) {
	defer b.Disconnect(conn)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg inbound
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "ping":
			_ = conn.WriteJSON(Envelope{Type: "pong", Timestamp: time.Now().UTC()})
		case "subscribe":
			b.mu.Lock()
			if c, ok := b.conns[conn]; ok {
				c.allEvents = len(msg.EventTypes) == 0
				c.eventTypes = make(map[string]bool, len(msg.EventTypes))
				for _, t := range msg.EventTypes {
					c.eventTypes[t] = true
				}
			}
			b.mu.Unlock()
			_ = conn.WriteJSON(Envelope{
				Type:      "subscription_confirmed",
				Data:      map[string]any{"event_types": msg.EventTypes},
				Timestamp: time.Now().UTC(),
			})
		default:
			_ = conn.WriteJSON(Envelope{
				Type:      "error",
				Data:      map[string]any{"message": "unknown message type"},
				Timestamp: time.Now().UTC(),
			})
		}
	}
}
