package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/veritasgrid/triagecore/internal/audit"
)

// Insert implements audit.Store against the append-only audit_log table.
// There is no UPDATE path anywhere in this file — rows are inserted once
// and only ever read or bulk-deleted by Purge.
func (s *Store) Insert(ctx context.Context, r audit.Record) error {
	payload, err := marshalAny(r.Payload)
	if err != nil {
		return fmt.Errorf("store: marshal audit payload: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO audit_log (id, event_type, payload, signature, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		r.ID, r.EventType, payload, r.Signature, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: insert audit record %s: %w", r.ID, err)
	}
	return nil
}

// Get implements audit.Store.
func (s *Store) Get(ctx context.Context, id string) (audit.Record, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, event_type, payload, signature, created_at FROM audit_log WHERE id = $1`, id)
	return scanAuditRecord(row)
}

// List implements audit.Store, reverse-chronological and optionally
// filtered by event type.
func (s *Store) List(ctx context.Context, eventType string, limit, offset int) ([]audit.Record, error) {
	var rows pgx.Rows
	var err error
	if eventType == "" {
		rows, err = s.pool.Query(ctx, `
			SELECT id, event_type, payload, signature, created_at FROM audit_log
			ORDER BY created_at DESC LIMIT $1 OFFSET $2`, nonZeroLimit(limit), offset)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT id, event_type, payload, signature, created_at FROM audit_log
			WHERE event_type = $1
			ORDER BY created_at DESC LIMIT $2 OFFSET $3`, eventType, nonZeroLimit(limit), offset)
	}
	if err != nil {
		return nil, fmt.Errorf("store: list audit records: %w", err)
	}
	defer rows.Close()

	var out []audit.Record
	for rows.Next() {
		var rec audit.Record
		var payloadRaw []byte
		if err := rows.Scan(&rec.ID, &rec.EventType, &payloadRaw, &rec.Signature, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan audit record: %w", err)
		}
		if rec.Payload, err = unmarshalAny(payloadRaw); err != nil {
			return nil, fmt.Errorf("store: unmarshal audit payload: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteOlderThan implements audit.Store's retention purge.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM audit_log WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("store: purge audit records before %s: %w", cutoff, err)
	}
	return tag.RowsAffected(), nil
}

func scanAuditRecord(row pgx.Row) (audit.Record, error) {
	var rec audit.Record
	var payloadRaw []byte
	err := row.Scan(&rec.ID, &rec.EventType, &payloadRaw, &rec.Signature, &rec.CreatedAt)
	if err != nil {
		return audit.Record{}, fmt.Errorf("store: scan audit record: %w", mapErr(err))
	}
	if rec.Payload, err = unmarshalAny(payloadRaw); err != nil {
		return audit.Record{}, fmt.Errorf("store: unmarshal audit payload: %w", err)
	}
	return rec, nil
}
