package assets

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"reelrecon/internal/backend"
)

const (
	previewReels      = 3
	previewCaptionMax = 80
	noReelsPreview    = "No reels data"
)

// sourceJobKeys are the metadata keys that link an asset to the job that
// produced it, in lookup order.
var sourceJobKeys = []string{"source_job_id", "scrape_id", "job_id"}

func fromStructured(s backend.StructuredAsset) Asset {
	collections := make([]CollectionRef, 0, len(s.Collections))
	for _, c := range s.Collections {
		collections = append(collections, CollectionRef{ID: c.ID, Name: c.Name, Color: c.Color})
	}
	return Asset{
		ID:          s.ID,
		Type:        structuredType(s.Type),
		Title:       s.Title,
		CreatedAt:   s.CreatedAt,
		Starred:     s.Starred,
		Collections: collections,
		Preview:     s.Preview,
		Metadata:    s.Metadata,
		ContentPath: s.ContentPath,
		SourceJobID: sourceJobID(s.Metadata),
		Origin:      OriginStructured,
	}
}

// structuredType folds the "scrape" type written by history migration into
// scrape_report.
func structuredType(t string) string {
	if t == "scrape" {
		return TypeScrapeReport
	}
	return t
}

func sourceJobID(metadata map[string]any) string {
	for _, key := range sourceJobKeys {
		if v, ok := metadata[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// originalID returns the legacy id a migrated structured asset replaces.
func originalID(a Asset) string {
	if v, ok := a.Metadata["original_id"].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// fromLegacy maps a history entry onto the asset shape. A history entry is
// the record of one scrape, so its id doubles as the source job id.
func fromLegacy(h backend.HistoryEntry) Asset {
	platform := legacyPlatform(h)
	var views, likes, comments int64
	transcripts, videos := 0, 0
	for _, reel := range h.TopReels {
		views += reel.Views
		likes += reel.Likes
		comments += reel.Comments
		if strings.TrimSpace(reel.Transcript) != "" {
			transcripts++
		}
		if strings.TrimSpace(reel.LocalVideo) != "" {
			videos++
		}
	}
	topCount := h.TopCount
	if topCount == 0 {
		topCount = len(h.TopReels)
	}
	status := h.Status
	if status == "" {
		status = string(backend.StatusComplete)
	}

	metadata := map[string]any{
		"username":         h.Username,
		"platform":         platform,
		"status":           status,
		"total_reels":      h.TotalReels,
		"top_count":        topCount,
		"reel_count":       len(h.TopReels),
		"total_views":      views,
		"total_likes":      likes,
		"total_comments":   comments,
		"transcript_count": transcripts,
		"video_count":      videos,
	}
	if h.OutputDir != "" {
		metadata["output_dir"] = h.OutputDir
	}
	if h.ErrorCode != "" {
		metadata["error_code"] = h.ErrorCode
	}
	if h.Error != "" {
		metadata["error"] = h.Error
	}

	return Asset{
		ID:          h.ID,
		Type:        TypeScrapeReport,
		Title:       legacyTitle(h.Username, platform, topCount, h.TotalReels),
		CreatedAt:   h.Timestamp,
		Starred:     h.Starred,
		Preview:     legacyPreview(h.TopReels),
		Metadata:    metadata,
		ContentPath: h.OutputDir,
		SourceJobID: h.ID,
		Origin:      OriginLegacy,
	}
}

func legacyPlatform(h backend.HistoryEntry) string {
	if p := strings.ToLower(strings.TrimSpace(h.Platform)); p != "" {
		return p
	}
	if url, ok := h.Profile["channel_url"].(string); ok && strings.Contains(url, "tiktok.com") {
		return "tiktok"
	}
	return "instagram"
}

// PlatformLabel renders a platform name for display.
func PlatformLabel(platform string) string {
	if platform == "" {
		return ""
	}
	if strings.EqualFold(platform, "tiktok") {
		return "TikTok"
	}
	return cases.Title(language.English).String(platform)
}

func legacyTitle(username, platform string, topCount, totalReels int) string {
	if username == "" {
		username = "Unknown"
	}
	return fmt.Sprintf("@%s - %s Scrape (%d/%d reels)", username, PlatformLabel(platform), topCount, totalReels)
}

func legacyPreview(reels []backend.Reel) string {
	if len(reels) == 0 {
		return noReelsPreview
	}
	printer := message.NewPrinter(language.English)
	lines := make([]string, 0, previewReels)
	for i, reel := range reels[:min(len(reels), previewReels)] {
		lines = append(lines, printer.Sprintf("%d. %d views - %s", i+1, reel.Views, truncateCaption(reel.Caption)))
	}
	return strings.Join(lines, "\n")
}

func truncateCaption(caption string) string {
	if utf8.RuneCountInString(caption) <= previewCaptionMax {
		return caption
	}
	return string([]rune(caption)[:previewCaptionMax]) + "..."
}
