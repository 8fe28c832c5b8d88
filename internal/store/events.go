package store

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// EventRecord is one persisted entry of the watcher's event log.
type EventRecord struct {
	Seq       int64           `json:"seq"`
	Type      string          `json:"type"`
	JobID     string          `json:"job_id,omitempty"`
	BatchID   string          `json:"batch_id,omitempty"`
	Message   string          `json:"message,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// AppendEvent stores a record under its caller-assigned sequence number.
func (s *Store) AppendEvent(ctx context.Context, rec EventRecord) error {
	payload := string(rec.Payload)
	if payload == "" {
		payload = "{}"
	}
	if err := s.exec(ctx,
		`INSERT INTO job_events (seq, event_type, job_id, batch_id, message, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.Seq, rec.Type, rec.JobID, rec.BatchID, rec.Message, payload, formatTime(rec.CreatedAt),
	); err != nil {
		return fmt.Errorf("append event %d: %w", rec.Seq, err)
	}
	return nil
}

// EventsSince returns records with a sequence greater than seq, oldest first.
// A non-positive limit returns every match.
func (s *Store) EventsSince(ctx context.Context, seq int64, limit int) ([]EventRecord, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, event_type, job_id, batch_id, message, payload, created_at
		 FROM job_events WHERE seq > ? ORDER BY seq LIMIT ?`, seq, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var (
			rec       EventRecord
			payload   string
			createdAt string
		)
		if err := rows.Scan(&rec.Seq, &rec.Type, &rec.JobID, &rec.BatchID, &rec.Message, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		rec.Payload = json.RawMessage(payload)
		rec.CreatedAt = parseTime(createdAt)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

// LastEventSeq returns the highest stored sequence number, or zero.
func (s *Store) LastEventSeq(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)
	var seq int64
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(seq), 0) FROM job_events").Scan(&seq); err != nil {
		return 0, fmt.Errorf("read last event seq: %w", err)
	}
	return seq, nil
}

// PruneEvents keeps only the newest keep records.
func (s *Store) PruneEvents(ctx context.Context, keep int) error {
	if keep <= 0 {
		return nil
	}
	if err := s.exec(ctx,
		"DELETE FROM job_events WHERE seq <= (SELECT COALESCE(MAX(seq), 0) FROM job_events) - ?", keep,
	); err != nil {
		return fmt.Errorf("prune events: %w", err)
	}
	return nil
}
