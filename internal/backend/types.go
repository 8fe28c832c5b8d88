package backend

import (
	"strings"

	"github.com/goccy/go-json"
)

// JobKind identifies the family of a backend job.
type JobKind string

const (
	KindScrape   JobKind = "scrape"
	KindBatch    JobKind = "batch-scrape"
	KindAnalysis JobKind = "analysis"
)

// analysisIDPrefix marks ids minted by the skeleton-ripper pipeline.
const analysisIDPrefix = "sr_"

// KindForID infers the job kind from an id when the caller does not know it.
func KindForID(id string) JobKind {
	if strings.HasPrefix(strings.TrimSpace(id), analysisIDPrefix) {
		return KindAnalysis
	}
	return KindScrape
}

// JobStatus is the backend's status string for a job.
type JobStatus string

const (
	StatusQueued   JobStatus = "queued"
	StatusPending  JobStatus = "pending"
	StatusStarting JobStatus = "starting"
	StatusRunning  JobStatus = "running"
	StatusComplete JobStatus = "complete"
	StatusPartial  JobStatus = "partial"
	StatusError    JobStatus = "error"
	StatusFailed   JobStatus = "failed"
	StatusAborted  JobStatus = "aborted"
)

// Normalize lower-cases the status and folds synonyms.
func (s JobStatus) Normalize() JobStatus {
	switch v := JobStatus(strings.ToLower(strings.TrimSpace(string(s)))); v {
	case "completed", "success", "done":
		return StatusComplete
	case "cancelled", "canceled":
		return StatusAborted
	default:
		return v
	}
}

// IsTerminal reports whether the status ends the job lifecycle.
func (s JobStatus) IsTerminal() bool {
	switch s.Normalize() {
	case StatusComplete, StatusPartial, StatusError, StatusFailed, StatusAborted:
		return true
	default:
		return false
	}
}

// IsSuccess reports whether the status is a (possibly partial) success.
func (s JobStatus) IsSuccess() bool {
	n := s.Normalize()
	return n == StatusComplete || n == StatusPartial
}

// ProgressUnknown marks a snapshot whose backend did not report a percentage.
const ProgressUnknown = -1.0

// JobSnapshot is one observation of a backend job.
type JobSnapshot struct {
	ID           string          `json:"id"`
	Kind         JobKind         `json:"type,omitempty"`
	Status       JobStatus       `json:"status"`
	Progress     float64         `json:"progress"`
	Phase        string          `json:"phase,omitempty"`
	Message      string          `json:"message,omitempty"`
	Username     string          `json:"username,omitempty"`
	Platform     string          `json:"platform,omitempty"`
	BatchID      string          `json:"batch_id,omitempty"`
	CreatedAt    string          `json:"created_at,omitempty"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
}

// wireJob accepts every shape the backend emits: scrape jobs report "state"
// with a nested progress object in listings, status responses report a
// progress message plus progress_pct, and analysis jobs nest progress details.
type wireJob struct {
	ID           string          `json:"id"`
	ScrapeID     string          `json:"scrape_id"`
	JobID        string          `json:"job_id"`
	Type         string          `json:"type"`
	Status       string          `json:"status"`
	State        string          `json:"state"`
	Progress     json.RawMessage `json:"progress"`
	ProgressPct  *float64        `json:"progress_pct"`
	Phase        string          `json:"phase"`
	Message      string          `json:"message"`
	Username     string          `json:"username"`
	Platform     string          `json:"platform"`
	BatchID      string          `json:"batch_id"`
	CreatedAt    string          `json:"created_at"`
	ErrorCode    string          `json:"error_code"`
	ErrorMessage string          `json:"error_message"`
	Error        string          `json:"error"`
	Result       json.RawMessage `json:"result"`
}

type wireProgress struct {
	Phase           string   `json:"phase"`
	Status          string   `json:"status"`
	Message         string   `json:"message"`
	OverallProgress *float64 `json:"overall_progress"`
	Percent         *float64 `json:"percent"`
}

// UnmarshalJSON decodes any backend job representation into a snapshot.
func (j *JobSnapshot) UnmarshalJSON(data []byte) error {
	var w wireJob
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*j = JobSnapshot{
		ID:           firstNonEmpty(w.ID, w.ScrapeID, w.JobID),
		Kind:         JobKind(strings.TrimSpace(w.Type)),
		Status:       JobStatus(firstNonEmpty(w.Status, w.State)).Normalize(),
		Progress:     ProgressUnknown,
		Phase:        strings.TrimSpace(w.Phase),
		Message:      strings.TrimSpace(w.Message),
		Username:     w.Username,
		Platform:     w.Platform,
		BatchID:      w.BatchID,
		CreatedAt:    w.CreatedAt,
		ErrorCode:    strings.TrimSpace(w.ErrorCode),
		ErrorMessage: strings.TrimSpace(firstNonEmpty(w.ErrorMessage, w.Error)),
		Result:       w.Result,
	}
	j.applyProgress(w.Progress)
	if w.ProgressPct != nil {
		j.Progress = *w.ProgressPct
	}
	if j.Kind == "" && j.ID != "" {
		j.Kind = KindForID(j.ID)
	}
	if j.Progress > 100 {
		j.Progress = 100
	}
	return nil
}

func (j *JobSnapshot) applyProgress(raw json.RawMessage) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return
	}
	switch trimmed[0] {
	case '"':
		var msg string
		if json.Unmarshal(raw, &msg) == nil && j.Message == "" {
			j.Message = strings.TrimSpace(msg)
		}
	case '{':
		var p wireProgress
		if json.Unmarshal(raw, &p) != nil {
			return
		}
		if j.Phase == "" {
			j.Phase = strings.TrimSpace(p.Phase)
		}
		if j.Message == "" {
			j.Message = strings.TrimSpace(p.Message)
		}
		if j.Status == "" {
			j.Status = JobStatus(p.Status).Normalize()
		}
		switch {
		case p.OverallProgress != nil:
			j.Progress = *p.OverallProgress
		case p.Percent != nil:
			j.Progress = *p.Percent
		}
	default:
		var pct float64
		if json.Unmarshal(raw, &pct) == nil {
			j.Progress = pct
		}
	}
}

// Terminal reports whether the snapshot carries a terminal status.
func (j JobSnapshot) Terminal() bool {
	return j.Status.IsTerminal()
}

// ProgressKnown reports whether the backend supplied a percentage.
func (j JobSnapshot) ProgressKnown() bool {
	return j.Progress >= 0
}

// ScrapeParams starts a single-creator scrape.
type ScrapeParams struct {
	Username           string `json:"username"`
	Platform           string `json:"platform"`
	MaxReels           int    `json:"max_reels"`
	TopN               int    `json:"top_n"`
	Download           bool   `json:"download"`
	Transcribe         bool   `json:"transcribe"`
	TranscribeProvider string `json:"transcribe_provider,omitempty"`
	WhisperModel       string `json:"whisper_model,omitempty"`
}

// BatchParams starts one scrape per username and platform.
type BatchParams struct {
	Usernames          []string `json:"usernames"`
	Platforms          []string `json:"platforms"`
	MaxReels           int      `json:"max_reels"`
	TopN               int      `json:"top_n"`
	Download           bool     `json:"download"`
	Transcribe         bool     `json:"transcribe"`
	TranscribeProvider string   `json:"transcribe_provider,omitempty"`
	WhisperModel       string   `json:"whisper_model,omitempty"`
}

// DirectParams starts a scrape of explicit reel or video URLs.
type DirectParams struct {
	URLs               []string `json:"urls"`
	Transcribe         bool     `json:"transcribe"`
	TranscribeProvider string   `json:"transcribe_provider,omitempty"`
	WhisperModel       string   `json:"whisper_model,omitempty"`
}

// AnalysisParams starts a multi-creator skeleton analysis.
type AnalysisParams struct {
	Usernames          []string `json:"usernames"`
	VideosPerCreator   int      `json:"videos_per_creator"`
	Platform           string   `json:"platform"`
	LLMProvider        string   `json:"llm_provider,omitempty"`
	LLMModel           string   `json:"llm_model,omitempty"`
	TranscribeProvider string   `json:"transcribe_provider,omitempty"`
	WhisperModel       string   `json:"whisper_model,omitempty"`
}

// StartResult is the backend's acknowledgement of a job start. Batch starts
// fill BatchID and JobIDs; single starts fill JobID.
type StartResult struct {
	Kind     JobKind  `json:"kind"`
	JobID    string   `json:"job_id,omitempty"`
	BatchID  string   `json:"batch_id,omitempty"`
	JobIDs   []string `json:"job_ids,omitempty"`
	Platform string   `json:"platform,omitempty"`
	Status   string   `json:"status,omitempty"`
	Message  string   `json:"message,omitempty"`
}

// IDs returns every job id the start produced.
func (r StartResult) IDs() []string {
	if len(r.JobIDs) > 0 {
		return append([]string(nil), r.JobIDs...)
	}
	if r.JobID != "" {
		return []string{r.JobID}
	}
	return nil
}

// StructuredAsset is an asset row from the structured store.
type StructuredAsset struct {
	ID          string           `json:"id"`
	Type        string           `json:"type"`
	Title       string           `json:"title"`
	ContentPath string           `json:"content_path,omitempty"`
	Preview     string           `json:"preview,omitempty"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
	Starred     bool             `json:"starred"`
	Collections []CollectionInfo `json:"collections,omitempty"`
	CreatedAt   string           `json:"created_at"`
	UpdatedAt   string           `json:"updated_at,omitempty"`
}

// CollectionInfo is a collection reference attached to a structured asset.
type CollectionInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// AssetQuery filters the structured store listing server-side.
type AssetQuery struct {
	Types        []string
	Starred      bool
	CollectionID string
	Limit        int
}

// HistoryEntry is one record of the legacy flat scrape history.
type HistoryEntry struct {
	ID         string         `json:"id"`
	Username   string         `json:"username"`
	Timestamp  string         `json:"timestamp"`
	Platform   string         `json:"platform,omitempty"`
	Status     string         `json:"status,omitempty"`
	TotalReels int            `json:"total_reels"`
	TopCount   int            `json:"top_count"`
	TopReels   []Reel         `json:"top_reels"`
	Profile    map[string]any `json:"profile,omitempty"`
	OutputDir  string         `json:"output_dir,omitempty"`
	ErrorCode  string         `json:"error_code,omitempty"`
	Error      string         `json:"error,omitempty"`
	Starred    bool           `json:"starred,omitempty"`
	// Raw holds the record exactly as the backend returned it.
	Raw json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes a history entry and keeps the raw record.
func (h *HistoryEntry) UnmarshalJSON(data []byte) error {
	type plain HistoryEntry
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*h = HistoryEntry(p)
	h.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// Reel is one scraped item inside a legacy history entry. Extra fields are
// kept in Fields so ranking can use any metric the backend reports.
type Reel struct {
	Shortcode  string
	URL        string
	Views      int64
	Likes      int64
	Comments   int64
	Caption    string
	Transcript string
	LocalVideo string
	Fields     map[string]any
}

// UnmarshalJSON decodes a reel while preserving every field.
func (r *Reel) UnmarshalJSON(data []byte) error {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*r = Reel{
		Shortcode:  stringField(fields, "shortcode"),
		URL:        stringField(fields, "url"),
		Views:      int64(NumberField(fields, "views")),
		Likes:      int64(NumberField(fields, "likes")),
		Comments:   int64(NumberField(fields, "comments")),
		Caption:    stringField(fields, "caption"),
		Transcript: stringField(fields, "transcript"),
		LocalVideo: firstNonEmpty(stringField(fields, "local_video"), stringField(fields, "video_path")),
		Fields:     fields,
	}
	return nil
}

// MarshalJSON emits the original field set.
func (r Reel) MarshalJSON() ([]byte, error) {
	if r.Fields != nil {
		return json.Marshal(r.Fields)
	}
	return json.Marshal(map[string]any{
		"shortcode":   r.Shortcode,
		"url":         r.URL,
		"views":       r.Views,
		"likes":       r.Likes,
		"comments":    r.Comments,
		"caption":     r.Caption,
		"transcript":  r.Transcript,
		"local_video": r.LocalVideo,
	})
}

// NumberField extracts a numeric field, accepting JSON numbers and numeric
// strings. Missing or malformed values yield zero.
func NumberField(fields map[string]any, key string) float64 {
	switch v := fields[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	case string:
		var f float64
		if json.Unmarshal([]byte(strings.ReplaceAll(strings.TrimSpace(v), ",", "")), &f) == nil {
			return f
		}
	}
	return 0
}

func stringField(fields map[string]any, key string) string {
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
