package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	maxAnalysisCreators     = 5
	defaultVideosPerCreator = 3
)

// Start dispatches a job start by kind. params must be the matching
// *Params value for the kind.
func (c *Client) Start(ctx context.Context, kind JobKind, params any) (StartResult, error) {
	switch p := params.(type) {
	case ScrapeParams:
		if kind != KindScrape {
			break
		}
		return c.StartScrape(ctx, p)
	case DirectParams:
		if kind != KindScrape {
			break
		}
		return c.StartDirect(ctx, p)
	case BatchParams:
		if kind != KindBatch {
			break
		}
		return c.StartBatch(ctx, p)
	case AnalysisParams:
		if kind != KindAnalysis {
			break
		}
		return c.StartAnalysis(ctx, p)
	}
	return StartResult{}, fmt.Errorf("start %s: unsupported params %T", kind, params)
}

// StartScrape launches a single-creator scrape.
func (c *Client) StartScrape(ctx context.Context, params ScrapeParams) (StartResult, error) {
	params.Username = normalizeUsername(params.Username)
	if params.Username == "" {
		return StartResult{}, errors.New("start scrape: username required")
	}
	params.Platform = normalizePlatform(params.Platform)

	var resp struct {
		ScrapeID string `json:"scrape_id"`
		Platform string `json:"platform"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/scrape", nil, params, &resp); err != nil {
		return StartResult{}, fmt.Errorf("start scrape: %w", err)
	}
	if resp.ScrapeID == "" {
		return StartResult{}, errors.New("start scrape: backend returned no scrape_id")
	}
	return StartResult{Kind: KindScrape, JobID: resp.ScrapeID, Platform: resp.Platform}, nil
}

// StartBatch launches one scrape per username and platform under a batch id.
func (c *Client) StartBatch(ctx context.Context, params BatchParams) (StartResult, error) {
	params.Usernames = normalizeUsernames(params.Usernames)
	if len(params.Usernames) == 0 {
		return StartResult{}, errors.New("start batch: at least one username required")
	}
	platforms := make([]string, 0, len(params.Platforms))
	for _, p := range params.Platforms {
		platforms = append(platforms, normalizePlatform(p))
	}
	if len(platforms) == 0 {
		platforms = []string{"instagram"}
	}
	params.Platforms = platforms

	var resp struct {
		BatchID string   `json:"batch_id"`
		JobIDs  []string `json:"job_ids"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/scrape/batch", nil, params, &resp); err != nil {
		return StartResult{}, fmt.Errorf("start batch: %w", err)
	}
	if resp.BatchID == "" && len(resp.JobIDs) == 0 {
		return StartResult{}, errors.New("start batch: backend returned no batch_id")
	}
	return StartResult{Kind: KindBatch, BatchID: resp.BatchID, JobIDs: resp.JobIDs}, nil
}

// StartDirect launches a scrape of explicit URLs.
func (c *Client) StartDirect(ctx context.Context, params DirectParams) (StartResult, error) {
	urls := make([]string, 0, len(params.URLs))
	for _, raw := range params.URLs {
		if trimmed := strings.TrimSpace(raw); trimmed != "" {
			urls = append(urls, trimmed)
		}
	}
	if len(urls) == 0 {
		return StartResult{}, errors.New("start direct: at least one url required")
	}
	params.URLs = urls

	var resp struct {
		ScrapeID string `json:"scrape_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/scrape/direct", nil, params, &resp); err != nil {
		return StartResult{}, fmt.Errorf("start direct: %w", err)
	}
	if resp.ScrapeID == "" {
		return StartResult{}, errors.New("start direct: backend returned no scrape_id")
	}
	return StartResult{Kind: KindScrape, JobID: resp.ScrapeID}, nil
}

// StartAnalysis launches a multi-creator skeleton analysis. It accepts one
// to five creators and clamps videos per creator to the same range.
func (c *Client) StartAnalysis(ctx context.Context, params AnalysisParams) (StartResult, error) {
	params.Usernames = normalizeUsernames(params.Usernames)
	if len(params.Usernames) == 0 || len(params.Usernames) > maxAnalysisCreators {
		return StartResult{}, fmt.Errorf("start analysis: provide 1-%d usernames, got %d", maxAnalysisCreators, len(params.Usernames))
	}
	if params.VideosPerCreator == 0 {
		params.VideosPerCreator = defaultVideosPerCreator
	}
	params.VideosPerCreator = min(max(params.VideosPerCreator, 1), maxAnalysisCreators)
	params.Platform = normalizePlatform(params.Platform)

	var resp struct {
		JobID   string `json:"job_id"`
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/skeleton-ripper/start", nil, params, &resp); err != nil {
		return StartResult{}, fmt.Errorf("start analysis: %w", err)
	}
	if resp.JobID == "" {
		return StartResult{}, errors.New("start analysis: backend returned no job_id")
	}
	return StartResult{Kind: KindAnalysis, JobID: resp.JobID, Status: resp.Status, Message: resp.Message, Platform: params.Platform}, nil
}

// Status fetches one job. An unknown id returns ErrJobNotFound.
func (c *Client) Status(ctx context.Context, id string) (JobSnapshot, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return JobSnapshot{}, errors.New("job status: id required")
	}
	kind := KindForID(id)
	path := "/api/scrape/" + url.PathEscape(id) + "/status"
	if kind == KindAnalysis {
		path = "/api/skeleton-ripper/status/" + url.PathEscape(id)
	}

	var snap JobSnapshot
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &snap); err != nil {
		if IsNotFound(err) {
			return JobSnapshot{}, fmt.Errorf("job %s: %w", id, ErrJobNotFound)
		}
		return JobSnapshot{}, fmt.Errorf("job %s status: %w", id, err)
	}
	if snap.ID == "" {
		snap.ID = id
	}
	if snap.Kind == "" || snap.Kind == KindScrape {
		snap.Kind = kind
	}
	return snap, nil
}

// Abort requests server-side cancellation. The effect is asynchronous; the
// job's terminal status arrives through later polls.
func (c *Client) Abort(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("abort: id required")
	}
	if err := c.do(ctx, http.MethodPost, "/api/scrape/"+url.PathEscape(id)+"/abort", nil, nil, nil); err != nil {
		if IsNotFound(err) {
			return fmt.Errorf("abort %s: %w", id, ErrJobNotFound)
		}
		return fmt.Errorf("abort %s: %w", id, err)
	}
	return nil
}

// AbortBatch requests cancellation of every job in a batch.
func (c *Client) AbortBatch(ctx context.Context, batchID string) error {
	batchID = strings.TrimSpace(batchID)
	if batchID == "" {
		return errors.New("abort batch: id required")
	}
	if err := c.do(ctx, http.MethodPost, "/api/scrape/batch/"+url.PathEscape(batchID)+"/abort", nil, nil, nil); err != nil {
		return fmt.Errorf("abort batch %s: %w", batchID, err)
	}
	return nil
}

// ActiveJobs lists every job the backend currently considers queued or running.
func (c *Client) ActiveJobs(ctx context.Context) ([]JobSnapshot, error) {
	var jobs []JobSnapshot
	if err := c.do(ctx, http.MethodGet, "/api/jobs/active", nil, nil, &jobs); err != nil {
		return nil, fmt.Errorf("active jobs: %w", err)
	}
	return jobs, nil
}

// RecentJobs lists the most recently created jobs, newest first.
func (c *Client) RecentJobs(ctx context.Context, limit int) ([]JobSnapshot, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var jobs []JobSnapshot
	if err := c.do(ctx, http.MethodGet, "/api/jobs/recent", query, nil, &jobs); err != nil {
		return nil, fmt.Errorf("recent jobs: %w", err)
	}
	return jobs, nil
}

func normalizeUsername(name string) string {
	return strings.TrimPrefix(strings.TrimSpace(name), "@")
}

func normalizeUsernames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if n := normalizeUsername(name); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func normalizePlatform(platform string) string {
	platform = strings.ToLower(strings.TrimSpace(platform))
	if platform == "" {
		return "instagram"
	}
	return platform
}
