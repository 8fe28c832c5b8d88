package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"reelrecon/internal/assets"
)

// SaveAssetSnapshot replaces the persisted asset listing, keeping order.
func (s *Store) SaveAssetSnapshot(ctx context.Context, list []assets.Asset) error {
	now := formatTime(time.Now())
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM asset_snapshot"); err != nil {
			return fmt.Errorf("clear asset snapshot: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx,
			"INSERT INTO asset_snapshot (position, asset_id, payload_json, saved_at) VALUES (?, ?, ?, ?)")
		if err != nil {
			return fmt.Errorf("prepare asset snapshot insert: %w", err)
		}
		defer stmt.Close()
		for i, asset := range list {
			payload, err := json.Marshal(asset)
			if err != nil {
				return fmt.Errorf("encode asset %s: %w", asset.ID, err)
			}
			if _, err := stmt.ExecContext(ctx, i, asset.ID, string(payload), now); err != nil {
				return fmt.Errorf("save asset %s: %w", asset.ID, err)
			}
		}
		return nil
	})
}

// LoadAssetSnapshot returns the persisted listing and when it was saved. An
// empty snapshot returns a nil slice and a zero time.
func (s *Store) LoadAssetSnapshot(ctx context.Context) ([]assets.Asset, time.Time, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, "SELECT payload_json, saved_at FROM asset_snapshot ORDER BY position")
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("query asset snapshot: %w", err)
	}
	defer rows.Close()

	var (
		out     []assets.Asset
		savedAt time.Time
	)
	for rows.Next() {
		var payload, saved string
		if err := rows.Scan(&payload, &saved); err != nil {
			return nil, time.Time{}, fmt.Errorf("scan asset snapshot: %w", err)
		}
		var asset assets.Asset
		if err := json.Unmarshal([]byte(payload), &asset); err != nil {
			return nil, time.Time{}, fmt.Errorf("decode asset snapshot: %w", err)
		}
		out = append(out, asset)
		savedAt = parseTime(saved)
	}
	if err := rows.Err(); err != nil {
		return nil, time.Time{}, fmt.Errorf("iterate asset snapshot: %w", err)
	}
	return out, savedAt, nil
}
