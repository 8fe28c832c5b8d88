package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"reelrecon/internal/config"
	"reelrecon/internal/daemon"
	"reelrecon/internal/session"
	"reelrecon/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	fake       *testsupport.FakeBackend
	configPath string
	apiAddr    string
	watcher    *daemon.Daemon
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	fake := testsupport.NewFakeBackend(t)
	opts = append([]testsupport.ConfigOption{testsupport.WithBackendURL(fake.URL())}, opts...)
	cfg := testsupport.NewConfig(t, opts...)
	t.Setenv("HOME", filepath.Join(testsupport.BaseDir(cfg), "home"))

	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{
		cfg:        cfg,
		fake:       fake,
		configPath: configPath,
		apiAddr:    "127.0.0.1:1",
	}
}

// startWatcher runs an in-process reelrecond against the env's config.
func (env *cliTestEnv) startWatcher(t *testing.T) *daemon.Daemon {
	t.Helper()
	st := testsupport.MustOpenStore(t, env.cfg)
	sess, err := session.New(env.cfg, session.WithStore(st))
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	d, err := daemon.New(env.cfg, sess, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		cancel()
		t.Fatalf("daemon start: %v", err)
	}
	t.Cleanup(func() {
		d.Stop()
		cancel()
	})
	env.apiAddr = d.Status().APIAddress
	env.watcher = d
	return d
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--api", env.apiAddr}
	if env.configPath != "" {
		flags = append(flags, "--config", env.configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func historyEntry(id, username, platform, timestamp string, views ...int) map[string]any {
	reels := make([]any, 0, len(views))
	for i, v := range views {
		reels = append(reels, map[string]any{
			"views":   v,
			"caption": fmt.Sprintf("%s reel %d", username, i+1),
			"url":     fmt.Sprintf("https://example.com/%s/%d", id, i+1),
		})
	}
	return map[string]any{
		"id":          id,
		"username":    username,
		"platform":    platform,
		"timestamp":   timestamp,
		"total_reels": 40,
		"top_count":   len(views),
		"top_reels":   reels,
	}
}
