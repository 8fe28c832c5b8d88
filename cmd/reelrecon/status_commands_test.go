package main

import (
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"reelrecon/internal/daemon"
)

func TestHealthReportsBackendAndWatcher(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env, "health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	requireContains(t, out, "[OK] "+env.fake.URL())
	requireContains(t, out, "[WARN] Not reachable")
	requireContains(t, out, "[INFO] Disabled")

	env.startWatcher(t)
	out, _, err = runCLI(t, env, "health")
	if err != nil {
		t.Fatalf("health with watcher: %v", err)
	}
	requireContains(t, out, "0 tracked)")
}

func TestHealthFailsWhenBackendDown(t *testing.T) {
	env := setupCLITestEnv(t)
	env.fake.SetHealthy(false)

	out, _, err := runCLI(t, env, "health")
	if err == nil {
		t.Fatal("expected health to fail")
	}
	requireContains(t, out, "Backend:")
	requireContains(t, out, "[ERROR]")
}

func TestStatusShowsTrackedJobs(t *testing.T) {
	env := setupCLITestEnv(t)
	env.fake.SetStatusPayload("job-5", map[string]any{"status": "running", "progress_pct": 20})
	env.startWatcher(t)

	out, _, err := runCLI(t, env, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Reachable")
	requireContains(t, out, "No tracked jobs")

	if _, _, err := runCLI(t, env, "jobs", "track", "job-5"); err != nil {
		t.Fatalf("jobs track: %v", err)
	}
	out, _, err = runCLI(t, env, "status", "--json")
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	var st daemon.StatusResponse
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if !st.Running || len(st.Tracked) != 1 || st.Tracked[0].ID != "job-5" {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestStatusWithoutWatcher(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, env, "status")
	if err == nil || !strings.Contains(err.Error(), "connect to watcher") {
		t.Fatalf("expected connection error, got %v", err)
	}
}

func TestWatchOncePrintsEventLog(t *testing.T) {
	env := setupCLITestEnv(t)
	env.fake.SetStatusPayload("job-5", map[string]any{"status": "running", "progress_pct": 20})
	env.startWatcher(t)

	if _, _, err := runCLI(t, env, "jobs", "track", "job-5"); err != nil {
		t.Fatalf("jobs track: %v", err)
	}
	out, _, err := runCLI(t, env, "watch", "--once")
	if err != nil {
		t.Fatalf("watch --once: %v", err)
	}
	requireContains(t, out, "#1 tracked job-5")

	out, _, err = runCLI(t, env, "watch", "--once", "--since", "1")
	if err != nil {
		t.Fatalf("watch --since: %v", err)
	}
	if strings.Contains(out, "#1 ") {
		t.Fatalf("--since did not skip the first event: %s", out)
	}
}

func TestTestNotifyDisabled(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, env, "test-notify")
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "Notifications are disabled")
}
