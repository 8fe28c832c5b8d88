package testsupport

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"
)

// FakeBackend is an in-memory stand-in for the ReelRecon backend HTTP API.
// Tests script job listings, statuses, assets, and history, then inspect
// request counts.
type FakeBackend struct {
	Server *httptest.Server

	mu          sync.Mutex
	active      []map[string]any
	statuses    map[string]map[string]any
	assets      []map[string]any
	content     map[string]string
	history     []map[string]any
	failures    map[string]int
	healthy     bool
	nextID      int
	requests    map[string]int
	lastHeaders http.Header
}

// NewFakeBackend starts a fake backend and registers cleanup.
func NewFakeBackend(t testing.TB) *FakeBackend {
	t.Helper()

	fb := &FakeBackend{
		statuses: make(map[string]map[string]any),
		content:  make(map[string]string),
		failures: make(map[string]int),
		requests: make(map[string]int),
		healthy:  true,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", fb.handleHealth)
	mux.HandleFunc("GET /api/jobs/active", fb.handleActive)
	mux.HandleFunc("GET /api/jobs/recent", fb.handleRecent)
	mux.HandleFunc("GET /api/scrape/{id}/status", fb.handleStatus)
	mux.HandleFunc("GET /api/skeleton-ripper/status/{id}", fb.handleStatus)
	mux.HandleFunc("POST /api/scrape", fb.handleStartScrape)
	mux.HandleFunc("POST /api/scrape/batch", fb.handleStartBatch)
	mux.HandleFunc("POST /api/scrape/direct", fb.handleStartScrape)
	mux.HandleFunc("POST /api/skeleton-ripper/start", fb.handleStartAnalysis)
	mux.HandleFunc("POST /api/scrape/{id}/abort", fb.handleAbort)
	mux.HandleFunc("POST /api/scrape/batch/{id}/abort", fb.handleAbortBatch)
	mux.HandleFunc("GET /api/assets", fb.handleListAssets)
	mux.HandleFunc("GET /api/assets/{id}", fb.handleGetAsset)
	mux.HandleFunc("GET /api/assets/{id}/content", fb.handleAssetContent)
	mux.HandleFunc("DELETE /api/assets/{id}", fb.handleDeleteAsset)
	mux.HandleFunc("POST /api/assets/{id}/star", fb.handleStarAsset)
	mux.HandleFunc("GET /api/history", fb.handleHistory)
	mux.HandleFunc("DELETE /api/history/{id}", fb.handleDeleteHistory)
	mux.HandleFunc("POST /api/history/{id}/star", fb.handleStarHistory)

	fb.Server = httptest.NewServer(fb.record(mux))
	t.Cleanup(fb.Server.Close)
	return fb
}

// URL returns the fake backend base URL.
func (fb *FakeBackend) URL() string {
	return fb.Server.URL
}

func (fb *FakeBackend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		fb.requests[r.Method+" "+routeKey(r.URL.Path)]++
		fb.lastHeaders = r.Header.Clone()
		code := fb.failures[routeKey(r.URL.Path)]
		fb.mu.Unlock()
		if code != 0 {
			writeFake(w, code, map[string]any{"error": "injected failure"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// routeKey collapses ids so counts group by endpoint family.
func routeKey(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case len(parts) >= 3 && parts[1] == "scrape" && parts[2] != "batch":
		if len(parts) == 3 {
			return path
		}
		parts[2] = "{id}"
	case len(parts) >= 4 && parts[1] == "scrape" && parts[2] == "batch":
		parts[3] = "{id}"
	case len(parts) >= 3 && (parts[1] == "assets" || parts[1] == "history"):
		parts[2] = "{id}"
	case len(parts) >= 4 && parts[1] == "skeleton-ripper" && parts[2] == "status":
		parts[3] = "{id}"
	}
	return "/" + strings.Join(parts, "/")
}

// Requests returns how many times "METHOD /path" was requested, with ids
// collapsed to {id}.
func (fb *FakeBackend) Requests(route string) int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.requests[route]
}

// LastHeaders returns the headers of the most recent request.
func (fb *FakeBackend) LastHeaders() http.Header {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.lastHeaders.Clone()
}

// Fail makes every request to the endpoint family answer with code. A zero
// code clears the failure.
func (fb *FakeBackend) Fail(path string, code int) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if code == 0 {
		delete(fb.failures, path)
		return
	}
	fb.failures[path] = code
}

// SetHealthy toggles the health endpoint.
func (fb *FakeBackend) SetHealthy(healthy bool) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.healthy = healthy
}

// SetActive replaces the active listing with jobs in the given order. Each
// id gets a running snapshot.
func (fb *FakeBackend) SetActive(ids ...string) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.active = fb.active[:0]
	for _, id := range ids {
		job := map[string]any{"id": id, "state": "running", "progress": map[string]any{"phase": "downloading", "overall_progress": 50}}
		fb.active = append(fb.active, job)
	}
}

// SetActiveJobs replaces the active listing with raw job payloads.
func (fb *FakeBackend) SetActiveJobs(jobs ...map[string]any) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.active = append([]map[string]any(nil), jobs...)
}

// SetStatus scripts the status endpoint for id.
func (fb *FakeBackend) SetStatus(id, status string) {
	fb.SetStatusPayload(id, map[string]any{"status": status, "progress": "", "progress_pct": 100})
}

// SetStatusPayload scripts the full status payload for id.
func (fb *FakeBackend) SetStatusPayload(id string, payload map[string]any) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.statuses[id] = payload
}

// ForgetStatus makes the status endpoint answer 404 for id.
func (fb *FakeBackend) ForgetStatus(id string) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	delete(fb.statuses, id)
}

// SetAssets replaces the structured store.
func (fb *FakeBackend) SetAssets(assets ...map[string]any) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.assets = append([]map[string]any(nil), assets...)
}

// SetContent scripts the content endpoint for an asset id.
func (fb *FakeBackend) SetContent(id, content string) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.content[id] = content
}

// SetHistory replaces the legacy history log.
func (fb *FakeBackend) SetHistory(entries ...map[string]any) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.history = append([]map[string]any(nil), entries...)
}

func (fb *FakeBackend) handleHealth(w http.ResponseWriter, _ *http.Request) {
	fb.mu.Lock()
	healthy := fb.healthy
	fb.mu.Unlock()
	if !healthy {
		writeFake(w, http.StatusServiceUnavailable, map[string]any{"error": "unavailable"})
		return
	}
	writeFake(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (fb *FakeBackend) handleActive(w http.ResponseWriter, _ *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	writeFake(w, http.StatusOK, append([]map[string]any{}, fb.active...))
}

func (fb *FakeBackend) handleRecent(w http.ResponseWriter, _ *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	jobs := make([]map[string]any, 0, len(fb.statuses))
	for id, payload := range fb.statuses {
		job := map[string]any{"id": id}
		for k, v := range payload {
			job[k] = v
		}
		jobs = append(jobs, job)
	}
	writeFake(w, http.StatusOK, jobs)
}

func (fb *FakeBackend) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	fb.mu.Lock()
	payload, ok := fb.statuses[id]
	fb.mu.Unlock()
	if !ok {
		writeFake(w, http.StatusNotFound, map[string]any{"error": "Scrape not found", "error_code": "SCRAPE-NOT-FOUND"})
		return
	}
	writeFake(w, http.StatusOK, payload)
}

func (fb *FakeBackend) newJob(prefix string) string {
	fb.nextID++
	id := fmt.Sprintf("%s%04d", prefix, fb.nextID)
	fb.active = append(fb.active, map[string]any{"id": id, "state": "queued"})
	fb.statuses[id] = map[string]any{"status": "queued", "progress": "Queued", "progress_pct": 0}
	return id
}

func (fb *FakeBackend) handleStartScrape(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	fb.mu.Lock()
	id := fb.newJob("job-")
	fb.mu.Unlock()
	platform, _ := body["platform"].(string)
	writeFake(w, http.StatusOK, map[string]any{"scrape_id": id, "platform": platform})
}

func (fb *FakeBackend) handleStartBatch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Usernames []string `json:"usernames"`
		Platforms []string `json:"platforms"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.nextID++
	batchID := fmt.Sprintf("batch-%04d", fb.nextID)
	ids := make([]string, 0, len(body.Usernames)*len(body.Platforms))
	for range body.Usernames {
		for range body.Platforms {
			id := fb.newJob("job-")
			fb.active[len(fb.active)-1]["batch_id"] = batchID
			ids = append(ids, id)
		}
	}
	writeFake(w, http.StatusOK, map[string]any{"batch_id": batchID, "job_ids": ids})
}

func (fb *FakeBackend) handleStartAnalysis(w http.ResponseWriter, _ *http.Request) {
	fb.mu.Lock()
	id := fb.newJob("sr_")
	fb.mu.Unlock()
	writeFake(w, http.StatusOK, map[string]any{"job_id": id, "status": "pending", "message": "Job started"})
}

func (fb *FakeBackend) handleAbort(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if !fb.removeActive(func(job map[string]any) bool { return job["id"] == id }) {
		writeFake(w, http.StatusNotFound, map[string]any{"error": "Scrape not found or already completed"})
		return
	}
	fb.statuses[id] = map[string]any{"status": "aborted", "progress": "User cancelled"}
	writeFake(w, http.StatusOK, map[string]any{"success": true})
}

func (fb *FakeBackend) handleAbortBatch(w http.ResponseWriter, r *http.Request) {
	batchID := r.PathValue("id")
	fb.mu.Lock()
	defer fb.mu.Unlock()
	for _, job := range fb.active {
		if job["batch_id"] == batchID {
			if id, ok := job["id"].(string); ok {
				fb.statuses[id] = map[string]any{"status": "aborted"}
			}
		}
	}
	fb.removeActive(func(job map[string]any) bool { return job["batch_id"] == batchID })
	writeFake(w, http.StatusOK, map[string]any{"success": true})
}

func (fb *FakeBackend) removeActive(match func(map[string]any) bool) bool {
	kept := fb.active[:0]
	removed := false
	for _, job := range fb.active {
		if match(job) {
			removed = true
			continue
		}
		kept = append(kept, job)
	}
	fb.active = kept
	return removed
}

func (fb *FakeBackend) handleListAssets(w http.ResponseWriter, _ *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	writeFake(w, http.StatusOK, map[string]any{"assets": append([]map[string]any{}, fb.assets...)})
}

func (fb *FakeBackend) findAsset(id string) (int, map[string]any) {
	for i, asset := range fb.assets {
		if asset["id"] == id {
			return i, asset
		}
	}
	return -1, nil
}

func (fb *FakeBackend) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	_, asset := fb.findAsset(r.PathValue("id"))
	if asset == nil {
		writeFake(w, http.StatusNotFound, map[string]any{"error": "Asset not found"})
		return
	}
	writeFake(w, http.StatusOK, asset)
}

func (fb *FakeBackend) handleAssetContent(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	content, ok := fb.content[r.PathValue("id")]
	if !ok {
		writeFake(w, http.StatusNotFound, map[string]any{"error": "Content not found"})
		return
	}
	writeFake(w, http.StatusOK, map[string]any{"content": content})
}

func (fb *FakeBackend) handleDeleteAsset(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	idx, _ := fb.findAsset(r.PathValue("id"))
	if idx < 0 {
		writeFake(w, http.StatusNotFound, map[string]any{"error": "Asset not found"})
		return
	}
	fb.assets = append(fb.assets[:idx], fb.assets[idx+1:]...)
	writeFake(w, http.StatusOK, map[string]any{"success": true})
}

func (fb *FakeBackend) handleStarAsset(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	_, asset := fb.findAsset(r.PathValue("id"))
	if asset == nil {
		writeFake(w, http.StatusNotFound, map[string]any{"error": "Asset not found"})
		return
	}
	starred, _ := asset["starred"].(bool)
	asset["starred"] = !starred
	writeFake(w, http.StatusOK, map[string]any{"starred": !starred})
}

func (fb *FakeBackend) handleHistory(w http.ResponseWriter, _ *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	writeFake(w, http.StatusOK, append([]map[string]any{}, fb.history...))
}

func (fb *FakeBackend) findHistory(id string) int {
	for i, entry := range fb.history {
		if entry["id"] == id {
			return i
		}
	}
	return -1
}

func (fb *FakeBackend) handleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	idx := fb.findHistory(r.PathValue("id"))
	if idx < 0 {
		writeFake(w, http.StatusNotFound, map[string]any{"error": "History entry not found"})
		return
	}
	fb.history = append(fb.history[:idx], fb.history[idx+1:]...)
	writeFake(w, http.StatusOK, map[string]any{"success": true})
}

func (fb *FakeBackend) handleStarHistory(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	idx := fb.findHistory(r.PathValue("id"))
	if idx < 0 {
		writeFake(w, http.StatusNotFound, map[string]any{"error": "History entry not found"})
		return
	}
	starred, _ := fb.history[idx]["starred"].(bool)
	fb.history[idx]["starred"] = !starred
	writeFake(w, http.StatusOK, map[string]any{"starred": !starred})
}

func writeFake(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
