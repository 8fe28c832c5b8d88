package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"reelrecon/internal/logging"
)

const (
	DefaultInterval = 3 * time.Second
	DefaultTimeout  = 2 * time.Second
)

// ErrInvalidTiming reports a probe timeout that is not shorter than the
// interval.
var ErrInvalidTiming = errors.New("heartbeat timeout must be shorter than interval")

// Prober checks backend liveness once.
type Prober interface {
	Health(ctx context.Context) error
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context) error

// Health calls f.
func (f ProberFunc) Health(ctx context.Context) error { return f(ctx) }

// Transition is the change a probe result caused.
type Transition int

const (
	TransitionNone Transition = iota
	TransitionWentDown
	TransitionRecovered
)

func (t Transition) String() string {
	switch t {
	case TransitionWentDown:
		return "went_down"
	case TransitionRecovered:
		return "recovered"
	default:
		return "none"
	}
}

// Status is a point-in-time view of backend liveness.
type Status struct {
	Up          bool      `json:"up"`
	LastProbe   time.Time `json:"last_probe"`
	LastError   string    `json:"last_error,omitempty"`
	DownSince   time.Time `json:"down_since,omitempty"`
	Recoveries  int       `json:"recoveries"`
	ProbeFailed int       `json:"probe_failures"`
}

// Monitor tracks backend liveness. It starts in the up state.
type Monitor struct {
	prober   Prober
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	status    Status
	onDown    []func(error)
	onRecover []func()
}

// Option customizes a Monitor.
type Option func(*Monitor)

// WithTiming sets the probe interval and per-probe timeout.
func WithTiming(interval, timeout time.Duration) Option {
	return func(m *Monitor) {
		if interval > 0 {
			m.interval = interval
		}
		if timeout > 0 {
			m.timeout = timeout
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

// OnDown registers a callback for the up to down transition.
func OnDown(fn func(error)) Option {
	return func(m *Monitor) {
		if fn != nil {
			m.onDown = append(m.onDown, fn)
		}
	}
}

// OnRecover registers a callback for the down to up transition.
func OnRecover(fn func()) Option {
	return func(m *Monitor) {
		if fn != nil {
			m.onRecover = append(m.onRecover, fn)
		}
	}
}

// New constructs a monitor. It rejects a timeout that is not shorter than
// the interval.
func New(prober Prober, opts ...Option) (*Monitor, error) {
	m := &Monitor{
		prober:   prober,
		interval: DefaultInterval,
		timeout:  DefaultTimeout,
		now:      time.Now,
		status:   Status{Up: true},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.timeout >= m.interval {
		return nil, fmt.Errorf("%w: timeout %s, interval %s", ErrInvalidTiming, m.timeout, m.interval)
	}
	m.logger = logging.NewComponentLogger(m.logger, "heartbeat")
	return m, nil
}

// Observe records one probe result and returns the transition it caused.
// Callbacks are not invoked; Probe does that.
func (m *Monitor) Observe(err error) Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.status.LastProbe = now
	if err != nil {
		m.status.LastError = err.Error()
		m.status.ProbeFailed++
		if !m.status.Up {
			return TransitionNone
		}
		m.status.Up = false
		m.status.DownSince = now
		return TransitionWentDown
	}
	m.status.LastError = ""
	if m.status.Up {
		return TransitionNone
	}
	m.status.Up = true
	m.status.DownSince = time.Time{}
	m.status.Recoveries++
	return TransitionRecovered
}

// Status returns the current liveness view.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Up reports whether the backend answered the last probe.
func (m *Monitor) Up() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status.Up
}

// Probe runs one bounded health check, records it, and fires callbacks on a
// transition. A probe that times out counts as a failure.
func (m *Monitor) Probe(ctx context.Context) (transition Transition) {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := m.safeHealth(probeCtx)
	if ctx.Err() != nil {
		return TransitionNone
	}
	transition = m.Observe(err)

	m.mu.Lock()
	onDown := append([]func(error){}, m.onDown...)
	onRecover := append([]func(){}, m.onRecover...)
	m.mu.Unlock()

	switch transition {
	case TransitionWentDown:
		logging.WarnWithContext(m.logger, "backend unreachable", "backend_down",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that the backend is running"),
			logging.String(logging.FieldImpact, "job tracking and library views are paused"),
		)
		for _, fn := range onDown {
			m.safeCall(func() { fn(err) })
		}
	case TransitionRecovered:
		m.logger.Info("backend recovered",
			logging.String(logging.FieldEventType, "backend_recovered"),
		)
		for _, fn := range onRecover {
			m.safeCall(fn)
		}
	}
	return transition
}

func (m *Monitor) safeHealth(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("health probe panicked: %v", r)
		}
	}()
	return m.prober.Health(ctx)
}

func (m *Monitor) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(m.logger, "heartbeat callback panicked", "heartbeat_callback_panic",
				logging.Any("panic", r),
			)
		}
	}()
	fn()
}

// Run probes immediately and then on every interval until ctx is cancelled.
// Probe errors never stop the loop.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Probe(ctx)
		}
	}
}
