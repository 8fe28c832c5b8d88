package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"reelrecon/internal/logging"
	"reelrecon/internal/store"
)

const (
	defaultEventCapacity = 500
	pruneEvery           = 100
)

// EventSink persists log entries. *store.Store satisfies it.
type EventSink interface {
	AppendEvent(ctx context.Context, rec store.EventRecord) error
	EventsSince(ctx context.Context, seq int64, limit int) ([]store.EventRecord, error)
	LastEventSeq(ctx context.Context) (int64, error)
	PruneEvents(ctx context.Context, keep int) error
}

// EventLog keeps recent watcher events in memory with monotonically
// increasing sequence numbers, optionally mirrored to a sink.
type EventLog struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []store.EventRecord
	sink      EventSink
	appended  int
	logger    *slog.Logger
}

// NewEventLog creates a bounded event log. When sink is non-nil the log
// resumes numbering after the highest persisted sequence and preloads the
// newest persisted entries.
func NewEventLog(ctx context.Context, maxEvents int, sink EventSink, logger *slog.Logger) (*EventLog, error) {
	if maxEvents <= 0 {
		maxEvents = defaultEventCapacity
	}
	l := &EventLog{
		maxEvents: maxEvents,
		events:    make([]store.EventRecord, 0, maxEvents),
		sink:      sink,
		logger:    logging.NewComponentLogger(logger, "event-log"),
	}
	if sink == nil {
		return l, nil
	}
	last, err := sink.LastEventSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("load event log: %w", err)
	}
	recent, err := sink.EventsSince(ctx, max(last-int64(maxEvents), 0), maxEvents)
	if err != nil {
		return nil, fmt.Errorf("load event log: %w", err)
	}
	l.events = append(l.events, recent...)
	l.nextSeq = last
	return l, nil
}

// Publish appends one event and assigns its sequence and timestamp.
// Persistence failures are logged and do not drop the in-memory entry.
func (l *EventLog) Publish(ctx context.Context, rec store.EventRecord) store.EventRecord {
	l.mu.Lock()
	l.nextSeq++
	rec.Seq = l.nextSeq
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	l.events = append(l.events, rec)
	if len(l.events) > l.maxEvents {
		trim := len(l.events) - l.maxEvents
		l.events = append([]store.EventRecord(nil), l.events[trim:]...)
	}
	l.appended++
	prune := l.appended%pruneEvery == 0
	l.mu.Unlock()

	if l.sink != nil {
		if err := l.sink.AppendEvent(ctx, rec); err != nil {
			logging.WarnWithContext(l.logger, "event not persisted", "event_persist_failed",
				logging.Int64("seq", rec.Seq),
				logging.Error(err),
				logging.String(logging.FieldImpact, "event is lost after restart"),
			)
		}
		if prune {
			if err := l.sink.PruneEvents(ctx, l.maxEvents); err != nil {
				l.logger.Debug("event prune failed", logging.Error(err))
			}
		}
	}
	return rec
}

// Since returns events with sequence strictly greater than seq.
func (l *EventLog) Since(seq int64) []store.EventRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.events) == 0 {
		return nil
	}
	out := make([]store.EventRecord, 0, len(l.events))
	for _, rec := range l.events {
		if rec.Seq > seq {
			out = append(out, rec)
		}
	}
	return out
}

// LastSeq returns the sequence of the newest event, or zero.
func (l *EventLog) LastSeq() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.nextSeq
}
