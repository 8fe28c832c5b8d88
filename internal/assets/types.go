package assets

import (
	"errors"

	"github.com/goccy/go-json"
)

// ErrAssetNotFound reports an asset neither store knows about.
var ErrAssetNotFound = errors.New("asset not found")

// Asset types.
const (
	TypeSkeleton       = "skeleton"
	TypeTranscript     = "transcript"
	TypeSkeletonReport = "skeleton_report"
	TypeScrapeReport   = "scrape_report"
	TypeSynthesis      = "synthesis"
)

// Origin names the store an asset or mutation came from.
type Origin string

const (
	OriginStructured Origin = "structured"
	OriginLegacy     Origin = "legacy"
)

// CollectionRef is a collection an asset belongs to.
type CollectionRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// Asset is the unified view of a structured-store asset or a normalized
// legacy history entry.
type Asset struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Title       string          `json:"title"`
	CreatedAt   string          `json:"created_at"`
	Starred     bool            `json:"starred"`
	Collections []CollectionRef `json:"collections,omitempty"`
	Preview     string          `json:"preview,omitempty"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
	ContentPath string          `json:"content_path,omitempty"`
	Content     string          `json:"content,omitempty"`
	Original    json.RawMessage `json:"original,omitempty"`
	SourceJobID string          `json:"source_job_id,omitempty"`
	Origin      Origin          `json:"origin"`
}

// InCollection reports whether the asset belongs to collection id.
func (a Asset) InCollection(id string) bool {
	for _, c := range a.Collections {
		if c.ID == id {
			return true
		}
	}
	return false
}

// Filter narrows a listing. Zero values match everything.
type Filter struct {
	Types        []string
	CollectionID string
	Starred      bool
	Search       string
	SourceJobID  string
}

// MutationResult reports which store accepted a change.
type MutationResult struct {
	ID      string `json:"id"`
	Backend Origin `json:"backend"`
	Starred bool   `json:"starred"`
}

// hasSeparateContent lists types whose body is stored outside the asset row.
func hasSeparateContent(assetType string) bool {
	switch assetType {
	case TypeSkeletonReport, TypeSynthesis, TypeTranscript, TypeSkeleton:
		return true
	default:
		return false
	}
}
