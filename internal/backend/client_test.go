package backend_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"reelrecon/internal/backend"
	"reelrecon/internal/logging"
	"reelrecon/internal/testsupport"
)

func TestSnapshotDecodesEveryShape(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		status   backend.JobStatus
		progress float64
		phase    string
		message  string
		kind     backend.JobKind
	}{
		{
			name:     "listing with nested progress",
			payload:  `{"id":"abc","state":"running","progress":{"phase":"downloading","overall_progress":42,"message":"Downloading 3/10"}}`,
			status:   backend.StatusRunning,
			progress: 42,
			phase:    "downloading",
			message:  "Downloading 3/10",
			kind:     backend.KindScrape,
		},
		{
			name:     "status with message and pct",
			payload:  `{"status":"running","progress":"Transcribing 2/5","progress_pct":60,"phase":"transcribing"}`,
			status:   backend.StatusRunning,
			progress: 60,
			phase:    "transcribing",
			message:  "Transcribing 2/5",
		},
		{
			name:     "analysis id",
			payload:  `{"job_id":"sr_1234abcd","status":"synthesizing"}`,
			status:   backend.JobStatus("synthesizing"),
			progress: backend.ProgressUnknown,
			kind:     backend.KindAnalysis,
		},
		{
			name:     "numeric progress capped",
			payload:  `{"scrape_id":"x","status":"completed","progress":140}`,
			status:   backend.StatusComplete,
			progress: 100,
			kind:     backend.KindScrape,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var snap backend.JobSnapshot
			if err := json.Unmarshal([]byte(tt.payload), &snap); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if snap.Status != tt.status {
				t.Fatalf("status = %q, want %q", snap.Status, tt.status)
			}
			if snap.Progress != tt.progress {
				t.Fatalf("progress = %v, want %v", snap.Progress, tt.progress)
			}
			if snap.Phase != tt.phase {
				t.Fatalf("phase = %q, want %q", snap.Phase, tt.phase)
			}
			if snap.Message != tt.message {
				t.Fatalf("message = %q, want %q", snap.Message, tt.message)
			}
			if tt.kind != "" && snap.Kind != tt.kind {
				t.Fatalf("kind = %q, want %q", snap.Kind, tt.kind)
			}
		})
	}
}

func TestStatusTerminalClassification(t *testing.T) {
	terminal := []backend.JobStatus{"complete", "completed", "partial", "error", "failed", "aborted", "cancelled"}
	for _, status := range terminal {
		if !status.Normalize().IsTerminal() {
			t.Fatalf("%q should be terminal", status)
		}
	}
	for _, status := range []backend.JobStatus{"queued", "running", "pending", "transcribing", ""} {
		if status.Normalize().IsTerminal() {
			t.Fatalf("%q should not be terminal", status)
		}
	}
	if !backend.StatusPartial.IsSuccess() || backend.StatusFailed.IsSuccess() {
		t.Fatal("unexpected success classification")
	}
}

func TestStartAndStatusRoundTrip(t *testing.T) {
	fake := testsupport.NewFakeBackend(t)
	client := backend.New(fake.URL(), backend.WithToken("secret"))
	ctx := context.Background()

	res, err := client.StartScrape(ctx, backend.ScrapeParams{Username: "@creator", MaxReels: 50, TopN: 10})
	if err != nil {
		t.Fatalf("StartScrape: %v", err)
	}
	if res.JobID == "" || res.Kind != backend.KindScrape {
		t.Fatalf("unexpected start result %+v", res)
	}
	if got := fake.LastHeaders().Get("Authorization"); got != "Bearer secret" {
		t.Fatalf("authorization header = %q", got)
	}
	if fake.LastHeaders().Get("X-Request-ID") == "" {
		t.Fatal("expected request id header")
	}

	snap, err := client.Status(ctx, res.JobID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if snap.ID != res.JobID || snap.Status != backend.StatusQueued {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	active, err := client.ActiveJobs(ctx)
	if err != nil {
		t.Fatalf("ActiveJobs: %v", err)
	}
	if len(active) != 1 || active[0].ID != res.JobID {
		t.Fatalf("active = %+v", active)
	}
}

func TestStatusNotFound(t *testing.T) {
	fake := testsupport.NewFakeBackend(t)
	client := backend.New(fake.URL())

	_, err := client.Status(context.Background(), "missing")
	if !errors.Is(err, backend.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
	if backend.IsTransient(err) {
		t.Fatal("not found must not be transient")
	}
}

func TestAnalysisStatusUsesAnalysisPath(t *testing.T) {
	fake := testsupport.NewFakeBackend(t)
	fake.SetStatusPayload("sr_deadbeef", map[string]any{
		"status":   "extracting",
		"progress": map[string]any{"phase": "extracting", "percent": 30, "message": "Extracting skeletons"},
	})
	client := backend.New(fake.URL())

	snap, err := client.Status(context.Background(), "sr_deadbeef")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if snap.Kind != backend.KindAnalysis || snap.Progress != 30 || snap.Phase != "extracting" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if fake.Requests("GET /api/skeleton-ripper/status/{id}") != 1 {
		t.Fatal("expected analysis status endpoint")
	}
}

func TestStartAnalysisValidatesCreators(t *testing.T) {
	client := backend.New("http://127.0.0.1:1")
	_, err := client.StartAnalysis(context.Background(), backend.AnalysisParams{
		Usernames: []string{"a", "b", "c", "d", "e", "f"},
	})
	if err == nil {
		t.Fatal("expected error for six creators")
	}
}

func TestStartBatchReturnsJobIDs(t *testing.T) {
	fake := testsupport.NewFakeBackend(t)
	client := backend.New(fake.URL())

	res, err := client.StartBatch(context.Background(), backend.BatchParams{
		Usernames: []string{"one", "@two"},
		Platforms: []string{"instagram", "TikTok"},
	})
	if err != nil {
		t.Fatalf("StartBatch: %v", err)
	}
	if res.BatchID == "" || len(res.IDs()) != 4 {
		t.Fatalf("unexpected batch result %+v", res)
	}
	if err := client.AbortBatch(context.Background(), res.BatchID); err != nil {
		t.Fatalf("AbortBatch: %v", err)
	}
	active, err := client.ActiveJobs(context.Background())
	if err != nil {
		t.Fatalf("ActiveJobs: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected batch jobs removed, got %d", len(active))
	}
}

func TestAbortUnknownJob(t *testing.T) {
	fake := testsupport.NewFakeBackend(t)
	client := backend.New(fake.URL())
	if err := client.Abort(context.Background(), "ghost"); !errors.Is(err, backend.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestAPIErrorCarriesCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"Username required","error_code":"SCRAPE-INVALID"}`))
	}))
	defer server.Close()

	client := backend.New(server.URL)
	_, err := client.StartScrape(context.Background(), backend.ScrapeParams{Username: "x"})
	var apiErr *backend.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != "SCRAPE-INVALID" || apiErr.Message != "Username required" {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
	if backend.IsTransient(err) {
		t.Fatal("400 must not be transient")
	}
}

func TestServerErrorsAreTransient(t *testing.T) {
	fake := testsupport.NewFakeBackend(t)
	fake.Fail("/api/jobs/active", http.StatusBadGateway)
	client := backend.New(fake.URL())

	_, err := client.ActiveJobs(context.Background())
	if !backend.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestRequestTimeoutIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client := backend.New(server.URL, backend.WithRequestTimeout(50*time.Millisecond))
	err := client.Health(context.Background())
	if err == nil {
		t.Fatal("expected timeout")
	}
	if !backend.IsTransient(err) {
		t.Fatalf("expected transient timeout, got %v", err)
	}
}

func TestRequestIDFromContext(t *testing.T) {
	fake := testsupport.NewFakeBackend(t)
	client := backend.New(fake.URL())
	ctx := logging.WithRequestID(context.Background(), "req-42")
	if err := client.Health(ctx); err != nil {
		t.Fatalf("Health: %v", err)
	}
	if got := fake.LastHeaders().Get("X-Request-ID"); got != "req-42" {
		t.Fatalf("X-Request-ID = %q", got)
	}
}

func TestAssetEndpoints(t *testing.T) {
	fake := testsupport.NewFakeBackend(t)
	fake.SetAssets(map[string]any{"id": "a1", "type": "skeleton_report", "title": "Report", "created_at": "2024-05-01T10:00:00", "starred": false})
	fake.SetHistory(map[string]any{"id": "h1", "username": "creator", "timestamp": "2024-04-01T10:00:00", "top_reels": []any{map[string]any{"views": "1,200", "caption": "hi"}}})
	client := backend.New(fake.URL())
	ctx := context.Background()

	assets, err := client.ListAssets(ctx, backend.AssetQuery{Types: []string{"skeleton_report"}, Limit: 10})
	if err != nil || len(assets) != 1 {
		t.Fatalf("ListAssets = %v, %v", assets, err)
	}
	starred, err := client.ToggleAssetStar(ctx, "a1")
	if err != nil || !starred {
		t.Fatalf("ToggleAssetStar = %v, %v", starred, err)
	}

	history, err := client.ListHistory(ctx)
	if err != nil || len(history) != 1 {
		t.Fatalf("ListHistory = %v, %v", history, err)
	}
	if history[0].TopReels[0].Views != 1200 {
		t.Fatalf("numeric string views not parsed: %+v", history[0].TopReels[0])
	}
	if len(history[0].Raw) == 0 {
		t.Fatal("expected raw history record")
	}

	if err := client.DeleteHistory(ctx, "missing"); !backend.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := client.DeleteAsset(ctx, "a1"); err != nil {
		t.Fatalf("DeleteAsset: %v", err)
	}
}
