package jobs_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"pgregory.net/rapid"

	"reelrecon/internal/backend"
	"reelrecon/internal/jobs"
)

func running(ids ...string) []backend.JobSnapshot {
	out := make([]backend.JobSnapshot, 0, len(ids))
	for _, id := range ids {
		out = append(out, backend.JobSnapshot{ID: id, Status: backend.StatusRunning, Progress: 10})
	}
	return out
}

// confirmAll answers every missing id with status, as the poller would.
func confirmAll(tr *jobs.Tracker, active []backend.JobSnapshot, status backend.JobStatus) jobs.Observation {
	obs := jobs.Observation{Active: active, Confirmations: map[string]jobs.Confirmation{}}
	for _, id := range tr.NeedsConfirmation(active) {
		obs.Confirmations[id] = jobs.Confirmation{Snapshot: backend.JobSnapshot{ID: id, Status: status}}
	}
	return obs
}

func terminalIDs(events []jobs.Event) []string {
	var ids []string
	for _, ev := range events {
		if ev.Type.Terminal() {
			ids = append(ids, ev.JobID)
		}
	}
	return ids
}

func TestBatchScenarioNotifiesEachJobOnce(t *testing.T) {
	tr := jobs.NewTracker()
	tr.TrackStart(backend.StartResult{Kind: backend.KindBatch, BatchID: "b1", JobIDs: []string{"j1", "j2"}})

	ticks := [][]backend.JobSnapshot{running("j1", "j2"), running("j2"), running()}
	want := [][]string{nil, {"j1"}, {"j2"}}

	for i, active := range ticks {
		got := terminalIDs(tr.Tick(confirmAll(tr, active, backend.StatusComplete)))
		if fmt.Sprint(got) != fmt.Sprint(want[i]) {
			t.Fatalf("tick %d: terminal events %v, want %v", i+1, got, want[i])
		}
	}
	if tr.Len() != 0 {
		t.Fatalf("expected empty tracker, got %d", tr.Len())
	}
	if got := terminalIDs(tr.Tick(confirmAll(tr, running(), backend.StatusComplete))); len(got) != 0 {
		t.Fatalf("duplicate notifications %v", got)
	}
}

func TestTwoJobsDisappearOneTickApart(t *testing.T) {
	tr := jobs.NewTracker()
	tr.Track("A", "", "")
	tr.Track("B", "", "")

	if got := terminalIDs(tr.Tick(confirmAll(tr, running("A", "B"), backend.StatusComplete))); len(got) != 0 {
		t.Fatalf("tick 1: %v", got)
	}
	if got := terminalIDs(tr.Tick(confirmAll(tr, running("B"), backend.StatusComplete))); fmt.Sprint(got) != "[A]" {
		t.Fatalf("tick 2: %v", got)
	}
	if got := terminalIDs(tr.Tick(confirmAll(tr, running(), backend.StatusComplete))); fmt.Sprint(got) != "[B]" {
		t.Fatalf("tick 3: %v", got)
	}
}

func TestNotFoundMeansLost(t *testing.T) {
	tr := jobs.NewTracker()
	tr.Track("ghost", backend.KindScrape, "")

	events := tr.Tick(jobs.Observation{Confirmations: map[string]jobs.Confirmation{
		"ghost": {Err: fmt.Errorf("job ghost: %w", backend.ErrJobNotFound)},
	}})
	if len(events) != 1 || events[0].Type != jobs.EventLost {
		t.Fatalf("expected lost event, got %+v", events)
	}
	if !errors.Is(events[0].Err, jobs.ErrJobLost) {
		t.Fatalf("expected ErrJobLost, got %v", events[0].Err)
	}
	var lost *jobs.LostJobError
	if !errors.As(events[0].Err, &lost) || lost.JobID != "ghost" {
		t.Fatalf("expected LostJobError for ghost, got %v", events[0].Err)
	}
	if tr.Len() != 0 {
		t.Fatal("lost job should leave the tracked set")
	}
}

func TestTransientConfirmationKeepsPolling(t *testing.T) {
	tr := jobs.NewTracker()
	tr.Track("j1", backend.KindScrape, "")

	events := tr.Tick(jobs.Observation{Confirmations: map[string]jobs.Confirmation{
		"j1": {Err: &backend.APIError{StatusCode: 503}},
	}})
	if len(terminalIDs(events)) != 0 {
		t.Fatalf("transient error must not resolve job: %+v", events)
	}
	if tr.Len() != 1 {
		t.Fatal("job should still be tracked")
	}

	// No confirmation at all is also a retry.
	if events := tr.Tick(jobs.Observation{}); len(events) != 0 {
		t.Fatalf("unexpected events %+v", events)
	}

	events = tr.Tick(confirmAll(tr, nil, backend.StatusComplete))
	if fmt.Sprint(terminalIDs(events)) != "[j1]" {
		t.Fatalf("expected completion on retry, got %+v", events)
	}
}

func TestNonTerminalConfirmationKeepsPolling(t *testing.T) {
	tr := jobs.NewTracker()
	tr.Track("j1", backend.KindScrape, "")

	events := tr.Tick(confirmAll(tr, nil, backend.StatusQueued))
	if len(terminalIDs(events)) != 0 {
		t.Fatalf("queued job must keep polling: %+v", events)
	}
	job, ok := tr.Get("j1")
	if !ok || job.State != jobs.StatePolling || !job.Observed {
		t.Fatalf("unexpected job state %+v", job)
	}
}

func TestTerminalStatusClassification(t *testing.T) {
	tests := []struct {
		status  backend.JobStatus
		event   jobs.EventType
		partial bool
	}{
		{backend.StatusComplete, jobs.EventCompleted, false},
		{"completed", jobs.EventCompleted, false},
		{backend.StatusPartial, jobs.EventCompleted, true},
		{backend.StatusError, jobs.EventFailed, false},
		{backend.StatusFailed, jobs.EventFailed, false},
		{backend.StatusAborted, jobs.EventAborted, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			tr := jobs.NewTracker()
			tr.Track("j", backend.KindScrape, "")
			events := tr.Tick(confirmAll(tr, nil, tt.status))
			if len(events) != 1 {
				t.Fatalf("expected one event, got %+v", events)
			}
			if events[0].Type != tt.event || events[0].Partial != tt.partial {
				t.Fatalf("event = %s partial=%v, want %s partial=%v", events[0].Type, events[0].Partial, tt.event, tt.partial)
			}
		})
	}
}

func TestListingTerminalStatusResolvesImmediately(t *testing.T) {
	tr := jobs.NewTracker()
	tr.Track("j1", backend.KindScrape, "")

	active := []backend.JobSnapshot{{ID: "j1", Status: backend.StatusFailed, ErrorMessage: "[SCRAPE-PROFILE-NOT-FOUND] Profile not found"}}
	if missing := tr.NeedsConfirmation(active); len(missing) != 0 {
		t.Fatalf("listed job needs no confirmation, got %v", missing)
	}
	events := tr.Tick(jobs.Observation{Active: active})
	if len(events) != 1 || events[0].Type != jobs.EventFailed {
		t.Fatalf("expected failed event, got %+v", events)
	}
	var jobErr jobs.JobError
	if !errors.As(events[0].Err, &jobErr) {
		t.Fatalf("expected JobError, got %v", events[0].Err)
	}
	if jobErr.Code != "SCRAPE-PROFILE-NOT-FOUND" || jobErr.Message != "Profile not found" {
		t.Fatalf("unexpected job error %+v", jobErr)
	}
}

func TestAbortKeepsPollingUntilTerminal(t *testing.T) {
	tr := jobs.NewTracker()
	tr.Track("j1", backend.KindScrape, "")

	if err := tr.RequestAbort("j1"); err != nil {
		t.Fatalf("RequestAbort: %v", err)
	}
	if err := tr.RequestAbort("other"); !errors.Is(err, jobs.ErrNotTracked) {
		t.Fatalf("expected ErrNotTracked, got %v", err)
	}
	tr.Tick(jobs.Observation{Active: running("j1")})
	job, _ := tr.Get("j1")
	if !job.AbortRequested || job.State != jobs.StatePolling {
		t.Fatalf("unexpected job %+v", job)
	}

	events := tr.Tick(confirmAll(tr, nil, backend.StatusAborted))
	if len(events) != 1 || events[0].Type != jobs.EventAborted {
		t.Fatalf("expected aborted event, got %+v", events)
	}
}

func TestProgressEventsOnlyOnChange(t *testing.T) {
	tr := jobs.NewTracker()
	tr.Track("j1", backend.KindScrape, "")

	snap := backend.JobSnapshot{ID: "j1", Status: backend.StatusRunning, Progress: 20, Phase: "downloading"}
	if events := tr.Tick(jobs.Observation{Active: []backend.JobSnapshot{snap}}); len(events) != 1 || events[0].Type != jobs.EventProgress {
		t.Fatalf("expected first progress event, got %+v", events)
	}
	if events := tr.Tick(jobs.Observation{Active: []backend.JobSnapshot{snap}}); len(events) != 0 {
		t.Fatalf("unchanged snapshot produced %+v", events)
	}
	snap.Progress = 40
	if events := tr.Tick(jobs.Observation{Active: []backend.JobSnapshot{snap}}); len(events) != 1 {
		t.Fatalf("expected progress event, got %+v", events)
	}
}

func TestResyncAdoptsActiveJobs(t *testing.T) {
	tr := jobs.NewTracker()
	tr.Track("j1", backend.KindScrape, "")
	active := []backend.JobSnapshot{
		{ID: "j1", Status: backend.StatusRunning},
		{ID: "sr_abc", Status: backend.JobStatus("transcribing")},
		{ID: "done", Status: backend.StatusComplete},
	}
	adopted := tr.Resync(active)
	if fmt.Sprint(adopted) != "[sr_abc]" {
		t.Fatalf("adopted = %v", adopted)
	}
	job, ok := tr.Get("sr_abc")
	if !ok || job.Kind != backend.KindAnalysis {
		t.Fatalf("unexpected adopted job %+v", job)
	}
}

func TestRestoreStartsPending(t *testing.T) {
	stamp := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tr := jobs.NewTracker(jobs.WithClock(func() time.Time { return stamp }))
	n := tr.Restore([]jobs.TrackedJob{
		{ID: "j1", Kind: backend.KindScrape, State: jobs.StatePolling},
		{ID: "j2", Kind: backend.KindScrape, State: jobs.StateCompleted},
	})
	if n != 1 {
		t.Fatalf("restored %d, want 1", n)
	}
	job, _ := tr.Get("j1")
	if job.State != jobs.StatePending || !job.TrackedAt.Equal(stamp) {
		t.Fatalf("unexpected restored job %+v", job)
	}
	tr.Tick(jobs.Observation{Active: running("j1")})
	job, _ = tr.Get("j1")
	if job.State != jobs.StatePolling {
		t.Fatalf("state = %s, want polling", job.State)
	}
}

func TestParseJobError(t *testing.T) {
	tests := []struct {
		raw  string
		want jobs.JobError
	}{
		{"[SCRAPE-RATE-LIMIT] Too many requests", jobs.JobError{Code: "SCRAPE-RATE-LIMIT", Message: "Too many requests"}},
		{"plain failure", jobs.JobError{Message: "plain failure"}},
		{"[lower] not a code", jobs.JobError{Message: "[lower] not a code"}},
		{"", jobs.JobError{}},
	}
	for _, tt := range tests {
		if got := jobs.ParseJobError(tt.raw); got != tt.want {
			t.Fatalf("ParseJobError(%q) = %+v, want %+v", tt.raw, got, tt.want)
		}
	}
}

// Every job fires exactly one terminal event, on the first tick it is absent
// from the active listing.
func TestExactlyOnceCompletionProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		jobCount := rapid.IntRange(1, 6).Draw(rt, "jobs")
		tickCount := rapid.IntRange(1, 8).Draw(rt, "ticks")

		ids := make([]string, jobCount)
		tr := jobs.NewTracker()
		for i := range ids {
			ids[i] = fmt.Sprintf("job-%d", i)
			tr.Track(ids[i], backend.KindScrape, "")
		}

		notified := make(map[string]int)
		firstAbsent := make(map[string]int)
		for tick := 1; tick <= tickCount; tick++ {
			var present []string
			for _, id := range ids {
				if rapid.Bool().Draw(rt, fmt.Sprintf("present-%d-%s", tick, id)) {
					present = append(present, id)
				} else if _, seen := firstAbsent[id]; !seen {
					firstAbsent[id] = tick
				}
			}
			for _, id := range terminalIDs(tr.Tick(confirmAll(tr, running(present...), backend.StatusComplete))) {
				notified[id]++
				if firstAbsent[id] != tick {
					rt.Fatalf("%s notified on tick %d, first absent on tick %d", id, tick, firstAbsent[id])
				}
			}
		}

		for _, id := range ids {
			_, absent := firstAbsent[id]
			switch {
			case absent && notified[id] != 1:
				rt.Fatalf("%s notified %d times", id, notified[id])
			case !absent && notified[id] != 0:
				rt.Fatalf("%s notified while always present", id)
			}
		}
	})
}
