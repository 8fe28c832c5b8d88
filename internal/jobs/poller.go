package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"reelrecon/internal/backend"
	"reelrecon/internal/logging"
)

const (
	// MinPollInterval is the fastest the poller will query the backend.
	MinPollInterval     = 500 * time.Millisecond
	defaultPollInterval = time.Second
	defaultCallTimeout  = 10 * time.Second
)

// Source is the slice of the backend client the poller needs.
type Source interface {
	ActiveJobs(ctx context.Context) ([]backend.JobSnapshot, error)
	Status(ctx context.Context, id string) (backend.JobSnapshot, error)
	Abort(ctx context.Context, id string) error
	AbortBatch(ctx context.Context, batchID string) error
}

// Handler receives every event a tick produces, in order.
type Handler func(Event)

// Poller drives a Tracker against a Source on a fixed interval.
type Poller struct {
	tracker     *Tracker
	source      Source
	interval    time.Duration
	callTimeout time.Duration
	logger      *slog.Logger

	mu       sync.Mutex
	handlers []Handler
	sampler  *logging.ProgressSampler
	lastErr  error
	lastTick time.Time

	wake chan struct{}
}

// PollerOption customizes a Poller.
type PollerOption func(*Poller)

// WithInterval sets the poll interval. Values below MinPollInterval are
// raised to it.
func WithInterval(interval time.Duration) PollerOption {
	return func(p *Poller) {
		if interval > 0 {
			p.interval = max(interval, MinPollInterval)
		}
	}
}

// WithCallTimeout bounds each backend call made during a tick.
func WithCallTimeout(timeout time.Duration) PollerOption {
	return func(p *Poller) {
		if timeout > 0 {
			p.callTimeout = timeout
		}
	}
}

// WithPollerLogger attaches a logger.
func WithPollerLogger(logger *slog.Logger) PollerOption {
	return func(p *Poller) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithHandler registers an event handler.
func WithHandler(h Handler) PollerOption {
	return func(p *Poller) {
		if h != nil {
			p.handlers = append(p.handlers, h)
		}
	}
}

// NewPoller constructs a poller for tracker.
func NewPoller(tracker *Tracker, source Source, opts ...PollerOption) *Poller {
	p := &Poller{
		tracker:     tracker,
		source:      source,
		interval:    defaultPollInterval,
		callTimeout: defaultCallTimeout,
		sampler:     logging.NewProgressSampler(5),
		wake:        make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logging.NewComponentLogger(p.logger, "job-tracker")
	return p
}

// Tracker returns the state machine the poller drives.
func (p *Poller) Tracker() *Tracker {
	return p.tracker
}

// Interval returns the effective poll interval.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Subscribe registers an additional event handler.
func (p *Poller) Subscribe(h Handler) {
	if h == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = append(p.handlers, h)
}

// Track starts tracking a job and wakes the loop.
func (p *Poller) Track(id string, kind backend.JobKind, batchID string) bool {
	added := p.tracker.Track(id, kind, batchID)
	if added {
		p.logger.Info("tracking job",
			logging.String(logging.FieldJobID, id),
			logging.String("kind", string(kind)),
			logging.String(logging.FieldBatchID, batchID),
			logging.String(logging.FieldEventType, "job_tracked"),
		)
		p.Wake()
	}
	return added
}

// TrackStart tracks every job in a start acknowledgement and wakes the loop.
func (p *Poller) TrackStart(res backend.StartResult) []string {
	added := p.tracker.TrackStart(res)
	if len(added) > 0 {
		p.logger.Info("tracking started jobs",
			logging.Int("count", len(added)),
			logging.String(logging.FieldBatchID, res.BatchID),
			logging.String(logging.FieldEventType, "job_tracked"),
		)
		p.Wake()
	}
	return added
}

// Wake nudges an idle loop to poll immediately. It never shortens the wait
// between ticks of a busy loop.
func (p *Poller) Wake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Abort requests cancellation of a tracked job. The job keeps polling until
// the backend reports its terminal status. A backend that no longer knows the
// job is not an error here; the next tick settles its fate.
func (p *Poller) Abort(ctx context.Context, id string) error {
	if err := p.tracker.RequestAbort(id); err != nil {
		return fmt.Errorf("abort %s: %w", id, err)
	}
	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()
	if err := p.source.Abort(callCtx, id); err != nil && !errors.Is(err, backend.ErrJobNotFound) {
		return err
	}
	p.logger.Info("abort requested",
		logging.String(logging.FieldJobID, id),
		logging.String(logging.FieldEventType, "job_abort_requested"),
	)
	p.Wake()
	return nil
}

// AbortBatch requests cancellation of every tracked job in a batch.
func (p *Poller) AbortBatch(ctx context.Context, batchID string) error {
	ids := p.tracker.BatchJobs(batchID)
	if len(ids) == 0 {
		return fmt.Errorf("abort batch %s: %w", batchID, ErrNotTracked)
	}
	for _, id := range ids {
		_ = p.tracker.RequestAbort(id)
	}
	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()
	if err := p.source.AbortBatch(callCtx, batchID); err != nil {
		return err
	}
	p.logger.Info("batch abort requested",
		logging.String(logging.FieldBatchID, batchID),
		logging.Int("jobs", len(ids)),
		logging.String(logging.FieldEventType, "batch_abort_requested"),
	)
	p.Wake()
	return nil
}

// Resync adopts the backend's active jobs into the tracker.
func (p *Poller) Resync(ctx context.Context) ([]string, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()
	active, err := p.source.ActiveJobs(callCtx)
	if err != nil {
		return nil, fmt.Errorf("resync: %w", err)
	}
	adopted := p.tracker.Resync(active)
	if len(adopted) > 0 {
		p.logger.Info("adopted active jobs",
			logging.Int("count", len(adopted)),
			logging.String(logging.FieldEventType, "job_resync"),
		)
		p.Wake()
	}
	return adopted, nil
}

// LastError returns the error from the most recent failed active listing,
// cleared by the next successful tick.
func (p *Poller) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// LastTick returns when the last tick completed.
func (p *Poller) LastTick() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastTick
}

// Run polls until ctx is cancelled. It blocks on the wake channel while the
// tracked set is empty and never returns on backend errors. Consecutive ticks
// are always at least one interval apart; a wake only rouses an idle loop.
func (p *Poller) Run(ctx context.Context) error {
	timer := time.NewTimer(p.interval)
	defer timer.Stop()
	for {
		if p.tracker.Len() == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-p.wake:
			}
		}

		p.Tick(ctx)

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(p.interval)
	wait:
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
				break wait
			case <-p.wake:
				// absorbed; the set is being polled already
			}
		}
	}
}

// Tick performs one poll: list active jobs, confirm missing ones, advance the
// tracker, and dispatch events. A failed listing skips the step entirely.
func (p *Poller) Tick(ctx context.Context) (events []Event) {
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(p.logger, "job poll panicked", "job_poll_panic",
				logging.Any("panic", r),
				logging.String(logging.FieldErrorHint, "report this as a bug"),
			)
			events = nil
		}
	}()

	if p.tracker.Len() == 0 {
		return nil
	}

	listCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	active, err := p.source.ActiveJobs(listCtx)
	cancel()
	if err != nil {
		p.recordListError(err)
		return nil
	}

	missing := p.tracker.NeedsConfirmation(active)
	confirmations := make(map[string]Confirmation, len(missing))
	for _, id := range missing {
		if ctx.Err() != nil {
			return nil
		}
		statusCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
		snap, err := p.source.Status(statusCtx, id)
		cancel()
		if err != nil && !errors.Is(err, backend.ErrJobNotFound) {
			p.logger.Debug("status confirmation deferred",
				logging.String(logging.FieldJobID, id),
				logging.Error(err),
			)
		}
		confirmations[id] = Confirmation{Snapshot: snap, Err: err}
	}

	events = p.tracker.Tick(Observation{Active: active, Confirmations: confirmations})

	p.mu.Lock()
	p.lastErr = nil
	p.lastTick = time.Now()
	handlers := append([]Handler(nil), p.handlers...)
	p.mu.Unlock()

	for _, ev := range events {
		p.logEvent(ev)
		for _, h := range handlers {
			h(ev)
		}
	}
	return events
}

func (p *Poller) recordListError(err error) {
	p.mu.Lock()
	previous := p.lastErr
	p.lastErr = err
	p.mu.Unlock()
	if previous != nil {
		p.logger.Debug("active job listing still failing", logging.Error(err))
		return
	}
	logging.WarnWithContext(p.logger, "active job listing failed; skipping tick", "job_poll_failed",
		logging.Error(err),
		logging.Bool("transient", backend.IsTransient(err)),
		logging.String(logging.FieldErrorHint, "check that the backend is reachable"),
		logging.String(logging.FieldImpact, "job progress is stale until the next successful poll"),
	)
}

func (p *Poller) logEvent(ev Event) {
	logger := p.logger.With(logging.String(logging.FieldJobID, ev.JobID))
	if ev.BatchID != "" {
		logger = logger.With(logging.String(logging.FieldBatchID, ev.BatchID))
	}
	switch ev.Type {
	case EventProgress:
		if p.sampler.ShouldLog(ev.JobID, ev.Snapshot.Progress, ev.Snapshot.Phase) {
			logger.Info("job progress",
				logging.String(logging.FieldPhase, ev.Snapshot.Phase),
				logging.Float64("progress", ev.Snapshot.Progress),
				logging.String("message", ev.Snapshot.Message),
				logging.String(logging.FieldEventType, "job_progress"),
			)
		}
		return
	case EventCompleted:
		logger.Info("job completed",
			logging.Bool("partial", ev.Partial),
			logging.String(logging.FieldEventType, "job_completed"),
		)
	case EventAborted:
		logger.Info("job aborted", logging.String(logging.FieldEventType, "job_aborted"))
	case EventFailed:
		logging.WarnWithContext(logger, "job failed", "job_failed",
			logging.Error(ev.Err),
			logging.String(logging.FieldErrorHint, "inspect the backend logs for this job"),
			logging.String(logging.FieldImpact, "job produced no assets"),
		)
	case EventLost:
		logging.WarnWithContext(logger, "job lost", "job_lost",
			logging.Error(ev.Err),
			logging.String(logging.FieldErrorHint, "start the job again"),
			logging.String(logging.FieldImpact, "job outcome is unknown"),
		)
	}
	p.sampler.Forget(ev.JobID)
}
