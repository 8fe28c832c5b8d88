package main

import (
	"strings"
	"testing"

	"github.com/goccy/go-json"
)

func seedLibrary(env *cliTestEnv) {
	env.fake.SetAssets(
		map[string]any{
			"id": "s1", "type": "skeleton_report", "title": "Hooks that work", "starred": true,
			"created_at": "2024-05-05T10:00:00", "metadata": map[string]any{"source_job_id": "sr_0001"},
		},
		map[string]any{
			"id": "s2", "type": "transcript", "title": "Morning routine transcript", "starred": false,
			"created_at": "2024-05-04T10:00:00",
		},
	)
	env.fake.SetContent("s1", "# Skeleton report\nHook, value, payoff.")
	env.fake.SetHistory(
		historyEntry("h1", "creator", "instagram", "2024-05-03T10:00:00", 900, 300),
		historyEntry("s2", "creator", "instagram", "2024-05-02T10:00:00", 50),
	)
}

func TestAssetsListMergesBothStores(t *testing.T) {
	env := setupCLITestEnv(t)
	seedLibrary(env)

	out, _, err := runCLI(t, env, "assets", "list", "--json")
	if err != nil {
		t.Fatalf("assets list: %v", err)
	}
	var got assetListOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	ids := make([]string, 0, len(got.Assets))
	for _, a := range got.Assets {
		ids = append(ids, a.ID)
	}
	if strings.Join(ids, ",") != "s1,s2,h1" {
		t.Fatalf("ids = %v", ids)
	}

	out, _, err = runCLI(t, env, "assets", "list", "--starred")
	if err != nil {
		t.Fatalf("assets list --starred: %v", err)
	}
	requireContains(t, out, "Hooks that work")
	if strings.Contains(out, "h1") {
		t.Fatalf("unstarred asset listed: %s", out)
	}
}

func TestAssetsListWarnsWhenOneStoreFails(t *testing.T) {
	env := setupCLITestEnv(t)
	seedLibrary(env)
	env.fake.Fail("/api/assets", 500)

	out, stderr, err := runCLI(t, env, "assets", "list")
	if err != nil {
		t.Fatalf("assets list: %v", err)
	}
	requireContains(t, out, "h1")
	requireContains(t, stderr, "structured store unavailable")
}

func TestAssetsListCachedUsesSnapshot(t *testing.T) {
	env := setupCLITestEnv(t)
	seedLibrary(env)

	out, stderr, err := runCLI(t, env, "assets", "list", "--cached")
	if err != nil {
		t.Fatalf("assets list --cached: %v", err)
	}
	requireContains(t, out, "No assets")
	requireContains(t, stderr, "no cached listing yet")

	if _, _, err := runCLI(t, env, "assets", "list"); err != nil {
		t.Fatalf("assets list: %v", err)
	}
	before := env.fake.Requests("GET /api/assets")

	out, _, err = runCLI(t, env, "assets", "list", "--cached", "--type", "transcript")
	if err != nil {
		t.Fatalf("assets list --cached: %v", err)
	}
	requireContains(t, out, "Morning routine transcript")
	if env.fake.Requests("GET /api/assets") != before {
		t.Fatal("cached listing contacted the backend")
	}
}

func TestAssetsShowIncludesContent(t *testing.T) {
	env := setupCLITestEnv(t)
	seedLibrary(env)

	out, _, err := runCLI(t, env, "assets", "show", "s1")
	if err != nil {
		t.Fatalf("assets show: %v", err)
	}
	requireContains(t, out, "Hooks that work")
	requireContains(t, out, "Job:     sr_0001")
	requireContains(t, out, "Hook, value, payoff.")

	if _, _, err := runCLI(t, env, "assets", "show", "nope"); err == nil {
		t.Fatal("expected not found error")
	}
}

func TestAssetsMutationsReportBackend(t *testing.T) {
	env := setupCLITestEnv(t)
	seedLibrary(env)

	out, _, err := runCLI(t, env, "assets", "star", "h1")
	if err != nil {
		t.Fatalf("assets star: %v", err)
	}
	requireContains(t, out, "Starred h1 (legacy store)")

	out, _, err = runCLI(t, env, "assets", "delete", "s2")
	if err != nil {
		t.Fatalf("assets delete: %v", err)
	}
	requireContains(t, out, "Deleted s2 from the structured store")

	_, _, err = runCLI(t, env, "assets", "delete", "missing")
	if err == nil || !strings.Contains(err.Error(), "not found in either store") {
		t.Fatalf("expected not found error, got %v", err)
	}
}
