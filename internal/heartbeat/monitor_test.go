package heartbeat_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"reelrecon/internal/backend"
	"reelrecon/internal/heartbeat"
	"reelrecon/internal/testsupport"
)

func TestObserveTransitions(t *testing.T) {
	m, err := heartbeat.New(heartbeat.ProberFunc(func(context.Context) error { return nil }))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	boom := errors.New("boom")
	steps := []struct {
		err  error
		want heartbeat.Transition
	}{
		{nil, heartbeat.TransitionNone},
		{boom, heartbeat.TransitionWentDown},
		{boom, heartbeat.TransitionNone},
		{nil, heartbeat.TransitionRecovered},
		{nil, heartbeat.TransitionNone},
	}
	for i, step := range steps {
		if got := m.Observe(step.err); got != step.want {
			t.Fatalf("step %d: transition %s, want %s", i, got, step.want)
		}
	}
	status := m.Status()
	if !status.Up || status.Recoveries != 1 || status.ProbeFailed != 2 {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestNewRejectsTimeoutNotShorterThanInterval(t *testing.T) {
	_, err := heartbeat.New(heartbeat.ProberFunc(func(context.Context) error { return nil }),
		heartbeat.WithTiming(time.Second, time.Second))
	if !errors.Is(err, heartbeat.ErrInvalidTiming) {
		t.Fatalf("expected ErrInvalidTiming, got %v", err)
	}
}

func TestProbeTimeoutCountsAsFailure(t *testing.T) {
	slow := heartbeat.ProberFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	var downs atomic.Int32
	m, err := heartbeat.New(slow,
		heartbeat.WithTiming(200*time.Millisecond, 20*time.Millisecond),
		heartbeat.OnDown(func(error) { downs.Add(1) }),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := m.Probe(context.Background()); got != heartbeat.TransitionWentDown {
		t.Fatalf("transition = %s", got)
	}
	if downs.Load() != 1 || m.Up() {
		t.Fatal("expected down callback and down state")
	}
}

func TestProbePanicIsFailure(t *testing.T) {
	m, err := heartbeat.New(heartbeat.ProberFunc(func(context.Context) error { panic("probe") }))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := m.Probe(context.Background()); got != heartbeat.TransitionWentDown {
		t.Fatalf("transition = %s", got)
	}
}

func TestRunRecoversAgainstFakeBackend(t *testing.T) {
	fake := testsupport.NewFakeBackend(t)
	client := backend.New(fake.URL())

	var mu sync.Mutex
	var seen []string
	recovered := make(chan struct{}, 1)
	m, err := heartbeat.New(client,
		heartbeat.WithTiming(100*time.Millisecond, 80*time.Millisecond),
		heartbeat.OnDown(func(error) {
			mu.Lock()
			seen = append(seen, "down")
			mu.Unlock()
			fake.SetHealthy(true)
		}),
		heartbeat.OnRecover(func() {
			mu.Lock()
			seen = append(seen, "recovered")
			mu.Unlock()
			select {
			case recovered <- struct{}{}:
			default:
			}
		}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	fake.SetHealthy(false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	select {
	case <-recovered:
	case <-time.After(3 * time.Second):
		t.Fatal("monitor never recovered")
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != "down" || seen[1] != "recovered" {
		t.Fatalf("transitions = %v", seen)
	}
}
