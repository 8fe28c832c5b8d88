package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"reelrecon/internal/backend"
	"reelrecon/internal/jobs"
)

const upsertTrackedJob = `
INSERT INTO tracked_jobs (id, kind, batch_id, state, abort_requested, snapshot_json, tracked_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    kind = excluded.kind,
    batch_id = excluded.batch_id,
    state = excluded.state,
    abort_requested = excluded.abort_requested,
    snapshot_json = excluded.snapshot_json,
    updated_at = excluded.updated_at`

// ReplaceTrackedJobs makes the persisted set equal to jobs.
func (s *Store) ReplaceTrackedJobs(ctx context.Context, tracked []jobs.TrackedJob) error {
	now := formatTime(time.Now())
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM tracked_jobs"); err != nil {
			return fmt.Errorf("clear tracked jobs: %w", err)
		}
		for _, job := range tracked {
			snapshot, err := json.Marshal(job.Last)
			if err != nil {
				return fmt.Errorf("encode snapshot for %s: %w", job.ID, err)
			}
			if _, err := tx.ExecContext(ctx, upsertTrackedJob,
				job.ID,
				string(job.Kind),
				job.BatchID,
				string(job.State),
				boolToInt(job.AbortRequested),
				string(snapshot),
				formatTime(job.TrackedAt),
				now,
			); err != nil {
				return fmt.Errorf("save tracked job %s: %w", job.ID, err)
			}
		}
		return nil
	})
}

// DeleteTrackedJob removes one job from the persisted set.
func (s *Store) DeleteTrackedJob(ctx context.Context, id string) error {
	if err := s.exec(ctx, "DELETE FROM tracked_jobs WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete tracked job %s: %w", id, err)
	}
	return nil
}

// LoadTrackedJobs returns the persisted set in tracking order.
func (s *Store) LoadTrackedJobs(ctx context.Context) ([]jobs.TrackedJob, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, batch_id, state, abort_requested, snapshot_json, tracked_at
		 FROM tracked_jobs ORDER BY tracked_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query tracked jobs: %w", err)
	}
	defer rows.Close()

	var out []jobs.TrackedJob
	for rows.Next() {
		var (
			job                 jobs.TrackedJob
			kind, state         string
			abortRequested      int
			snapshot, trackedAt string
		)
		if err := rows.Scan(&job.ID, &kind, &job.BatchID, &state, &abortRequested, &snapshot, &trackedAt); err != nil {
			return nil, fmt.Errorf("scan tracked job: %w", err)
		}
		job.Kind = backend.JobKind(kind)
		job.State = jobs.State(state)
		job.AbortRequested = abortRequested != 0
		job.TrackedAt = parseTime(trackedAt)
		if err := json.Unmarshal([]byte(snapshot), &job.Last); err != nil {
			job.Last = backend.JobSnapshot{ID: job.ID, Kind: job.Kind, Progress: backend.ProgressUnknown}
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tracked jobs: %w", err)
	}
	return out, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
