package assets

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"reelrecon/internal/backend"
	"reelrecon/internal/combined"
)

// ErrNotCombinable reports an asset without per-reel results.
var ErrNotCombinable = errors.New("asset has no reel results")

// PlatformResult converts an asset whose Original holds a history record
// into a combine input. Get and AttachOriginals set Original for legacy
// assets and for structured copies migrated from history.
func PlatformResult(a Asset) (combined.PlatformResult, error) {
	if len(a.Original) == 0 {
		return combined.PlatformResult{}, fmt.Errorf("asset %s: %w", a.ID, ErrNotCombinable)
	}
	var entry backend.HistoryEntry
	if err := json.Unmarshal(a.Original, &entry); err != nil {
		return combined.PlatformResult{}, fmt.Errorf("asset %s: decode record: %w", a.ID, err)
	}
	items := make([]combined.Item, 0, len(entry.TopReels))
	for _, reel := range entry.TopReels {
		item := make(combined.Item, len(reel.Fields))
		for k, v := range reel.Fields {
			item[k] = v
		}
		items = append(items, item)
	}
	platform, _ := a.Metadata["platform"].(string)
	if platform == "" {
		platform = legacyPlatform(entry)
	}
	jobID := a.SourceJobID
	if jobID == "" {
		jobID = originalID(a)
	}
	if jobID == "" {
		jobID = a.ID
	}
	return combined.PlatformResult{
		Platform:  platform,
		JobID:     jobID,
		Target:    entry.Username,
		CreatedAt: a.CreatedAt,
		Items:     items,
	}, nil
}
