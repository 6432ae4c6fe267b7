// Package audit implements the tamper-evident event trail. Every
// significant state change in the pipeline writes one row here; the
// signature scheme is the trust surface a caller leans on when disputing
// whether a record was altered after the fact.
package audit

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/veritasgrid/triagecore/internal/domain"
	"github.com/veritasgrid/triagecore/pkg/metrics"
)

// Record is one append-only audit row.
type Record struct {
	ID        string
	EventType string
	Payload   map[string]any
	Signature string
	CreatedAt time.Time
}

// Store is the narrow persistence seam audit needs; internal/store provides
// the Postgres-backed implementation, tests substitute an in-memory fake.
type Store interface {
	Insert(ctx context.Context, r Record) error
	Get(ctx context.Context, id string) (Record, error)
	List(ctx context.Context, eventType string, limit, offset int) ([]Record, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Log is the audit capability. The HMAC key is a process-wide immutable
// snapshot loaded once at startup; rotating it invalidates every prior
// signature, a documented compliance trade-off rather than a bug. There is
// no key id per row, so signatures are only verifiable against the key that
// wrote them.
type Log struct {
	store  Store
	key    []byte
	logger *slog.Logger

	mAppendFail *metrics.Counter
	mAppendOK   *metrics.Counter
	mFailStreak *metrics.Gauge
}

// New creates an audit Log. key must be at least 32 bytes; callers load it
// once at process start from the AUDIT_HMAC_KEY environment variable and
// never mutate it in place.
func New(store Store, key []byte, logger *slog.Logger, reg *metrics.Registry) (*Log, error) {
	if len(key) < 32 {
		return nil, fmt.Errorf("audit: key must be >= 32 bytes, got %d", len(key))
	}
	if logger == nil {
		logger = slog.Default()
	}
	if reg == nil {
		reg = metrics.New()
	}
	return &Log{
		store:       store,
		key:         key,
		logger:      logger,
		mAppendFail: reg.Counter("triagecore_audit_append_failures_total", "Audit append failures"),
		mAppendOK:   reg.Counter("triagecore_audit_append_total", "Successful audit appends"),
		mFailStreak: reg.Gauge("triagecore_audit_append_failure_streak", "Consecutive audit append failures; nonzero means the trail is currently degraded"),
	}, nil
}

// Append computes the signature and inserts a new row. A failure here MUST
// NOT abort the caller's operation: it is logged and surfaced through the
// failure-streak gauge, and the error is still returned so a caller that
// cares (e.g. a test) can observe it, but every production call site
// swallows it deliberately.
func (l *Log) Append(ctx context.Context, eventType string, payload map[string]any) (string, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	canon, err := CanonicalJSON(payload)
	if err != nil {
		l.appendFailed()
		l.logger.Error("audit: canonicalize payload failed", "event_type", eventType, "err", err)
		return "", fmt.Errorf("audit: canonicalize: %w", err)
	}
	sig := Sign(l.key, canon)
	rec := Record{
		ID:        uuid.NewString(),
		EventType: eventType,
		Payload:   payload,
		Signature: sig,
		CreatedAt: time.Now().UTC(),
	}
	if err := l.store.Insert(ctx, rec); err != nil {
		l.appendFailed()
		l.logger.Error("audit: append failed", "event_type", eventType, "err", err)
		return "", fmt.Errorf("audit: insert: %w", err)
	}
	l.mAppendOK.Inc()
	l.mFailStreak.Set(0)
	return rec.ID, nil
}

func (l *Log) appendFailed() {
	l.mAppendFail.Inc()
	l.mFailStreak.Inc()
}

// Verify refetches the row and recomputes the signature with the current
// key, comparing in constant time. True iff the row has not been tampered
// with since insertion — a verification failure is a genuine answer, never
// masked.
func (l *Log) Verify(ctx context.Context, id string) (bool, error) {
	rec, err := l.store.Get(ctx, id)
	if err != nil {
		if err == domain.ErrNotFound {
			return false, domain.ErrNotFound
		}
		return false, fmt.Errorf("audit: get %s: %w", id, err)
	}
	canon, err := CanonicalJSON(rec.Payload)
	if err != nil {
		return false, fmt.Errorf("audit: canonicalize: %w", err)
	}
	want := Sign(l.key, canon)
	return subtle.ConstantTimeCompare([]byte(want), []byte(rec.Signature)) == 1, nil
}

// List returns rows reverse-chronologically, optionally filtered by event type.
func (l *Log) List(ctx context.Context, eventType string, limit, offset int) ([]Record, error) {
	return l.store.List(ctx, eventType, limit, offset)
}

// Purge deletes rows older than now - days.
func (l *Log) Purge(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	return l.store.DeleteOlderThan(ctx, cutoff)
}

// Sign computes HMAC_SHA256(key, canonical) hex-encoded.
func Sign(key []byte, canonical []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil))
}

// CanonicalJSON serializes v as JSON with keys sorted lexicographically at
// every object level and non-ASCII runes emitted literally (no \uXXXX
// escaping), so the same payload always signs to the same byte sequence.
// Hand-rolled on encoding/json: a general-purpose serializer cannot be
// swapped in here without changing the signed bytes under every existing
// signature.
func CanonicalJSON(v any) ([]byte, error) {
	normalized, err := normalize(v)
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	if err := encodeCanonical(&b, normalized); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

// normalize round-trips v through encoding/json to get a plain
// map[string]any / []any / scalar tree, since arbitrary structs would
// otherwise need reflection to walk in field order.
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func encodeCanonical(b *strings.Builder, v any) error {
	switch tv := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(tv))
		for k := range tv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			b.Write(unescapeUnicode(kb))
			b.WriteByte(':')
			if err := encodeCanonical(b, tv[k]); err != nil {
				return err
			}
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, e := range tv {
			if i > 0 {
				b.WriteByte(',')
			}
			if err := encodeCanonical(b, e); err != nil {
				return err
			}
		}
		b.WriteByte(']')
	default:
		raw, err := json.Marshal(tv)
		if err != nil {
			return err
		}
		b.Write(unescapeUnicode(raw))
	}
	return nil
}

// unescapeUnicode undoes encoding/json's default \uXXXX escaping of
// non-ASCII runes so canonical payloads preserve Unicode literally —
// Hindi/Tamil/Kannada claim text must sign as the reader sees it, not as
// its ASCII-escaped form. Control characters keep the mandatory escapes.
func unescapeUnicode(raw []byte) []byte {
	if len(raw) < 2 || raw[0] != '"' {
		return raw
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return raw
	}
	var buf strings.Builder
	buf.WriteByte('"')
	for _, r := range s {
		switch {
		case r == '"':
			buf.WriteString(`\"`)
		case r == '\\':
			buf.WriteString(`\\`)
		case r == '\n':
			buf.WriteString(`\n`)
		case r == '\r':
			buf.WriteString(`\r`)
		case r == '\t':
			buf.WriteString(`\t`)
		case r < 0x20:
			fmt.Fprintf(&buf, `\u%04x`, r)
		default:
			buf.WriteRune(r)
		}
	}
	buf.WriteByte('"')
	return []byte(buf.String())
}
