package daemon_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"reelrecon/internal/backend"
	"reelrecon/internal/config"
	"reelrecon/internal/daemon"
	"reelrecon/internal/session"
	"reelrecon/internal/testsupport"
)

func newDaemon(t *testing.T, cfg *config.Config) *daemon.Daemon {
	t.Helper()
	st := testsupport.MustOpenStore(t, cfg)
	sess, err := session.New(cfg, session.WithStore(st))
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	d, err := daemon.New(cfg, sess, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)
	return d
}

func TestDaemonStartStop(t *testing.T) {
	fake := testsupport.NewFakeBackend(t)
	cfg := testsupport.NewConfig(t, testsupport.WithBackendURL(fake.URL()))
	d := newDaemon(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status := d.Status()
	if !status.Running || status.APIAddress == "" {
		t.Fatalf("unexpected status %+v", status)
	}
	if status.LockFilePath != cfg.LockPath() {
		t.Fatalf("lock path = %s", status.LockFilePath)
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	if d.Status().Running {
		t.Fatal("expected daemon to be stopped")
	}
	select {
	case <-d.Done():
	case <-time.After(time.Second):
		t.Fatal("session still running after Stop")
	}
}

func TestSecondInstanceIsRejected(t *testing.T) {
	fake := testsupport.NewFakeBackend(t)
	cfg := testsupport.NewConfig(t, testsupport.WithBackendURL(fake.URL()))
	first := newDaemon(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	otherCfg := *cfg
	otherCfg.Daemon.APIBind = "127.0.0.1:0"
	sess, err := session.New(&otherCfg)
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	second, err := daemon.New(&otherCfg, sess, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := second.Start(ctx); !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	first.Stop()
	if err := second.Start(ctx); err != nil {
		t.Fatalf("expected start after release, got %v", err)
	}
	second.Stop()
}

func TestStatusAPIEndToEnd(t *testing.T) {
	fake := testsupport.NewFakeBackend(t)
	cfg := testsupport.NewConfig(t,
		testsupport.WithBackendURL(fake.URL()),
		testsupport.WithAPIToken("secret"),
	)
	d := newDaemon(t, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	addr := d.Status().APIAddress

	if _, err := daemon.NewClient(addr, "wrong").Status(ctx); !errors.Is(err, daemon.ErrUnauthorized) {
		t.Fatal("expected unauthorized error")
	}

	client := daemon.NewClient(addr, "secret")
	fake.SetStatusPayload("job-7", map[string]any{"status": "running", "progress_pct": 10})
	resp, err := client.Track(ctx, daemon.TrackRequest{JobID: "job-7", Kind: backend.KindScrape})
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	if !resp.Added {
		t.Fatalf("expected job to be added: %+v", resp)
	}

	status, err := client.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Running || !status.BackendUp {
		t.Fatalf("unexpected status %+v", status)
	}
	found := false
	for _, job := range status.Tracked {
		if job.ID == "job-7" {
			found = true
		}
	}
	if !found {
		t.Fatalf("tracked set missing job-7: %+v", status.Tracked)
	}

	events, err := client.Events(ctx, 0, 0)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events.Events) == 0 || events.Next != events.Events[len(events.Events)-1].Seq {
		t.Fatalf("unexpected events %+v", events)
	}
	tracked := false
	for _, ev := range events.Events {
		if ev.Type == "job_tracked" && ev.JobID == "job-7" {
			tracked = true
		}
	}
	if !tracked {
		t.Fatalf("expected job_tracked event, got %+v", events.Events)
	}

	later, err := client.Events(ctx, events.Next, 0)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	for _, ev := range later.Events {
		if ev.Seq <= events.Next {
			t.Fatalf("event %d returned again", ev.Seq)
		}
	}
}
