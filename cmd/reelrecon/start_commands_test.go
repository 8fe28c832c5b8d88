package main

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
)

type cliResult struct {
	out string
	err error
}

func runCLIAsync(t *testing.T, env *cliTestEnv, args ...string) <-chan cliResult {
	t.Helper()
	done := make(chan cliResult, 1)
	go func() {
		out, _, err := runCLI(t, env, args...)
		done <- cliResult{out: out, err: err}
	}()
	return done
}

func awaitCLI(t *testing.T, done <-chan cliResult) cliResult {
	t.Helper()
	select {
	case res := <-done:
		return res
	case <-time.After(15 * time.Second):
		t.Fatal("command did not finish")
		return cliResult{}
	}
}

func TestScrapeWaitReportsCompletion(t *testing.T) {
	env := setupCLITestEnv(t)
	done := runCLIAsync(t, env, "scrape", "creator", "--wait", "--timeout", "10s")

	waitFor(t, 5*time.Second, func() bool { return env.fake.Requests("POST /api/scrape") == 1 })
	env.fake.SetActive()
	env.fake.SetStatusPayload("job-0001", map[string]any{"status": "complete", "username": "creator", "platform": "instagram"})

	res := awaitCLI(t, done)
	if res.err != nil {
		t.Fatalf("scrape --wait: %v\n%s", res.err, res.out)
	}
	requireContains(t, res.out, "Started scrape job job-0001")
	requireContains(t, res.out, "job-0001  completed")
}

func TestScrapeWaitFailureIsAnError(t *testing.T) {
	env := setupCLITestEnv(t)
	done := runCLIAsync(t, env, "scrape", "creator", "--wait", "--timeout", "10s")

	waitFor(t, 5*time.Second, func() bool { return env.fake.Requests("POST /api/scrape") == 1 })
	env.fake.SetActive()
	env.fake.SetStatusPayload("job-0001", map[string]any{"status": "error", "error": "[LOGIN-REQUIRED] session expired"})

	res := awaitCLI(t, done)
	if res.err == nil {
		t.Fatal("expected an error for a failed job")
	}
	requireContains(t, res.err.Error(), "1 of 1 jobs did not complete")
	requireContains(t, res.out, "[LOGIN-REQUIRED] session expired")
}

func TestBatchJSONWithoutWait(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, env, "batch", "alpha", "--platform", "instagram,tiktok", "--json", "--handoff=false")
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	var got startOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode output %q: %v", out, err)
	}
	if got.Result.BatchID != "batch-0001" || len(got.Result.JobIDs) != 2 || got.HandedOff {
		t.Fatalf("unexpected output %+v", got)
	}
}

func TestScrapeHandsOffToWatcher(t *testing.T) {
	env := setupCLITestEnv(t)
	watcher := env.startWatcher(t)

	out, _, err := runCLI(t, env, "scrape", "creator")
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	requireContains(t, out, "Started scrape job job-0001")
	requireContains(t, out, "Tracking handed to reelrecond")
	if _, ok := watcher.Session().Tracker().Get("job-0001"); !ok {
		t.Fatal("watcher is not tracking the started job")
	}
}

func TestScrapeWithoutWatcherStillSucceeds(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, env, "analyze", "a", "b")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	requireContains(t, out, "Started analysis job sr_0001")
	if got := env.fake.Requests("POST /api/skeleton-ripper/start"); got != 1 {
		t.Fatalf("expected one analysis start, got %d", got)
	}
}
