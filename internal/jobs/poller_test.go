package jobs_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"reelrecon/internal/backend"
	"reelrecon/internal/jobs"
	"reelrecon/internal/testsupport"
)

func newPoller(t *testing.T, fake *testsupport.FakeBackend, opts ...jobs.PollerOption) *jobs.Poller {
	t.Helper()
	client := backend.New(fake.URL(), backend.WithRequestTimeout(2*time.Second))
	return jobs.NewPoller(jobs.NewTracker(), client, opts...)
}

func TestPollerTickLifecycle(t *testing.T) {
	fake := testsupport.NewFakeBackend(t)
	var seen []jobs.Event
	poller := newPoller(t, fake, jobs.WithHandler(func(ev jobs.Event) { seen = append(seen, ev) }))
	ctx := context.Background()

	poller.Track("j1", backend.KindScrape, "b1")
	poller.Track("j2", backend.KindScrape, "b1")

	fake.SetActive("j1", "j2")
	poller.Tick(ctx)
	if fake.Requests("GET /api/scrape/{id}/status") != 0 {
		t.Fatal("listed jobs must not be confirmed")
	}

	fake.SetActive("j2")
	fake.SetStatus("j1", "complete")
	events := poller.Tick(ctx)
	if fmt.Sprint(terminalIDs(events)) != "[j1]" {
		t.Fatalf("tick 2 terminal events %v", terminalIDs(events))
	}

	fake.SetActive()
	fake.ForgetStatus("j2")
	events = poller.Tick(ctx)
	if len(events) != 1 || events[0].Type != jobs.EventLost || events[0].JobID != "j2" {
		t.Fatalf("expected j2 lost, got %+v", events)
	}
	if poller.Tracker().Len() != 0 {
		t.Fatal("tracker should be empty")
	}
	if len(seen) < 3 {
		t.Fatalf("handler saw %d events", len(seen))
	}
}

func TestPollerSkipsDiffWhenListingFails(t *testing.T) {
	fake := testsupport.NewFakeBackend(t)
	poller := newPoller(t, fake)
	poller.Track("j1", backend.KindScrape, "")
	fake.SetStatus("j1", "complete")
	fake.Fail("/api/jobs/active", http.StatusInternalServerError)

	if events := poller.Tick(context.Background()); len(events) != 0 {
		t.Fatalf("failed listing produced events %+v", events)
	}
	if poller.LastError() == nil {
		t.Fatal("expected last error to be recorded")
	}
	if fake.Requests("GET /api/scrape/{id}/status") != 0 {
		t.Fatal("failed listing must not trigger confirmations")
	}
	if poller.Tracker().Len() != 1 {
		t.Fatal("job must stay tracked")
	}

	fake.Fail("/api/jobs/active", 0)
	events := poller.Tick(context.Background())
	if fmt.Sprint(terminalIDs(events)) != "[j1]" {
		t.Fatalf("expected completion after recovery, got %+v", events)
	}
	if poller.LastError() != nil {
		t.Fatal("last error should clear")
	}
}

func TestPollerAbort(t *testing.T) {
	fake := testsupport.NewFakeBackend(t)
	client := backend.New(fake.URL())
	poller := jobs.NewPoller(jobs.NewTracker(), client)
	ctx := context.Background()

	res, err := client.StartScrape(ctx, backend.ScrapeParams{Username: "creator"})
	if err != nil {
		t.Fatalf("StartScrape: %v", err)
	}
	poller.TrackStart(res)
	poller.Tick(ctx)

	if err := poller.Abort(ctx, res.JobID); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	job, _ := poller.Tracker().Get(res.JobID)
	if !job.AbortRequested {
		t.Fatal("expected abort_requested")
	}
	events := poller.Tick(ctx)
	if len(events) != 1 || events[0].Type != jobs.EventAborted {
		t.Fatalf("expected aborted event, got %+v", events)
	}
	if err := poller.Abort(ctx, res.JobID); !errors.Is(err, jobs.ErrNotTracked) {
		t.Fatalf("expected ErrNotTracked, got %v", err)
	}
}

func TestPollerAbortBatch(t *testing.T) {
	fake := testsupport.NewFakeBackend(t)
	client := backend.New(fake.URL())
	poller := jobs.NewPoller(jobs.NewTracker(), client)
	ctx := context.Background()

	res, err := client.StartBatch(ctx, backend.BatchParams{Usernames: []string{"a", "b"}})
	if err != nil {
		t.Fatalf("StartBatch: %v", err)
	}
	if added := poller.TrackStart(res); len(added) != 2 {
		t.Fatalf("tracked %v", added)
	}
	if err := poller.AbortBatch(ctx, res.BatchID); err != nil {
		t.Fatalf("AbortBatch: %v", err)
	}
	events := poller.Tick(ctx)
	if len(terminalIDs(events)) != 2 {
		t.Fatalf("expected two aborted jobs, got %+v", events)
	}
}

func TestPollerResync(t *testing.T) {
	fake := testsupport.NewFakeBackend(t)
	poller := newPoller(t, fake)
	fake.SetActive("x1", "sr_0001")

	adopted, err := poller.Resync(context.Background())
	if err != nil {
		t.Fatalf("Resync: %v", err)
	}
	if len(adopted) != 2 || poller.Tracker().Len() != 2 {
		t.Fatalf("adopted %v", adopted)
	}
}

func TestPollerRunIdlesUntilTracked(t *testing.T) {
	fake := testsupport.NewFakeBackend(t)
	done := make(chan jobs.Event, 4)
	poller := newPoller(t, fake, jobs.WithHandler(func(ev jobs.Event) {
		if ev.Type.Terminal() {
			done <- ev
		}
	}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- poller.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	if n := fake.Requests("GET /api/jobs/active"); n != 0 {
		t.Fatalf("idle poller hit the backend %d times", n)
	}

	fake.SetStatus("j1", "partial")
	poller.Track("j1", backend.KindScrape, "")

	select {
	case ev := <-done:
		if ev.Type != jobs.EventCompleted || !ev.Partial {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for completion")
	}

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

type panickySource struct{}

func (panickySource) ActiveJobs(context.Context) ([]backend.JobSnapshot, error) {
	panic("boom")
}

func (panickySource) Status(context.Context, string) (backend.JobSnapshot, error) {
	return backend.JobSnapshot{}, nil
}

func (panickySource) Abort(context.Context, string) error { return nil }

func (panickySource) AbortBatch(context.Context, string) error { return nil }

func TestPollerRecoversPanics(t *testing.T) {
	poller := jobs.NewPoller(jobs.NewTracker(), panickySource{})
	poller.Track("j1", backend.KindScrape, "")
	if events := poller.Tick(context.Background()); events != nil {
		t.Fatalf("expected no events, got %+v", events)
	}
}

func TestPollerIntervalFloor(t *testing.T) {
	poller := jobs.NewPoller(jobs.NewTracker(), panickySource{}, jobs.WithInterval(100*time.Millisecond))
	if poller.Interval() != jobs.MinPollInterval {
		t.Fatalf("interval = %s, want %s", poller.Interval(), jobs.MinPollInterval)
	}
}

func TestPollerWakeDoesNotShortenInterval(t *testing.T) {
	fake := testsupport.NewFakeBackend(t)
	fake.SetActive("j1")
	poller := newPoller(t, fake, jobs.WithInterval(jobs.MinPollInterval))
	poller.Track("j1", backend.KindScrape, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- poller.Run(ctx) }()

	deadline := time.Now().Add(1200 * time.Millisecond)
	for time.Now().Before(deadline) {
		poller.Wake()
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-errCh

	// One tick on entry, then at most one per interval.
	if n := fake.Requests("GET /api/jobs/active"); n > 3 {
		t.Fatalf("wakes drove %d ticks in 1.2s at a %s interval", n, jobs.MinPollInterval)
	}
}
