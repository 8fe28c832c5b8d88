package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reelrecon/internal/testsupport"
)

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Config path: "+env.configPath)
	requireContains(t, out, "Configuration valid")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, env, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, env, "config", "init", "--path", target); err == nil {
		t.Fatal("expected init to refuse overwriting")
	}
	if _, _, err := runCLI(t, env, "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestConfigValidateRejectsBadFile(t *testing.T) {
	env := setupCLITestEnv(t)
	if err := os.WriteFile(env.configPath, []byte("[tracker]\npoll_interval_ms = 10\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, _, err := runCLI(t, env, "config", "validate")
	if err == nil || !strings.Contains(err.Error(), "poll_interval_ms") {
		t.Fatalf("expected poll interval error, got %v", err)
	}
}

func TestConfigShowRedactsTokens(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithAPIToken("hunter2"))

	out, _, err := runCLI(t, env, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, env.fake.URL())
	requireContains(t, out, redacted)
	if strings.Contains(out, "hunter2") {
		t.Fatalf("token leaked: %s", out)
	}

	out, _, err = runCLI(t, env, "config", "show", "--show-secrets")
	if err != nil {
		t.Fatalf("config show --show-secrets: %v", err)
	}
	requireContains(t, out, "hunter2")
}
