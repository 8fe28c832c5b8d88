package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"reelrecon/internal/assets"
	"reelrecon/internal/backend"
	"reelrecon/internal/config"
	"reelrecon/internal/heartbeat"
	"reelrecon/internal/jobs"
	"reelrecon/internal/logging"
	"reelrecon/internal/notifications"
	"reelrecon/internal/store"
)

const (
	notifyTimeout = 15 * time.Second
	reloadTimeout = 30 * time.Second
)

// Session owns the watcher's components and the control flow between them:
// job events invalidate the library, reach the event log, and trigger
// notifications; a heartbeat recovery triggers a full reload.
type Session struct {
	cfg        *config.Config
	logger     *slog.Logger
	client     *backend.Client
	tracker    *jobs.Tracker
	poller     *jobs.Poller
	reconciler *assets.Reconciler
	monitor    *heartbeat.Monitor
	store      *store.Store
	notifier   notifications.Service
	events     *EventLog

	hbInterval    time.Duration
	hbTimeout     time.Duration
	eventCapacity int

	generation atomic.Int64
	reloadReq  chan struct{}
	refreshReq chan struct{}
	reloadMu   sync.Mutex
	persistMu  sync.Mutex

	subMu   sync.Mutex
	subs    map[int]jobs.Handler
	nextSub int

	notifyWG sync.WaitGroup
}

// Option customizes a Session.
type Option func(*Session)

// WithLogger sets the base logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStore persists tracked jobs, the asset snapshot, and the event log.
func WithStore(st *store.Store) Option {
	return func(s *Session) {
		s.store = st
	}
}

// WithNotifier overrides the notifier built from configuration.
func WithNotifier(n notifications.Service) Option {
	return func(s *Session) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithHeartbeatTiming overrides the configured probe cadence.
func WithHeartbeatTiming(interval, timeout time.Duration) Option {
	return func(s *Session) {
		s.hbInterval = interval
		s.hbTimeout = timeout
	}
}

// WithEventCapacity bounds the in-memory event log.
func WithEventCapacity(n int) Option {
	return func(s *Session) {
		s.eventCapacity = n
	}
}

// New wires a session from configuration.
func New(cfg *config.Config, opts ...Option) (*Session, error) {
	if cfg == nil {
		return nil, errors.New("session requires configuration")
	}
	s := &Session{
		cfg:        cfg,
		hbInterval: cfg.HeartbeatInterval(),
		hbTimeout:  cfg.HeartbeatTimeout(),
		reloadReq:  make(chan struct{}, 1),
		refreshReq: make(chan struct{}, 1),
		subs:       make(map[int]jobs.Handler),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}
	if s.notifier == nil {
		s.notifier = notifications.NewService(cfg)
	}

	s.client = backend.New(cfg.Backend.URL,
		backend.WithToken(cfg.Backend.APIToken),
		backend.WithRequestTimeout(cfg.RequestTimeout()),
		backend.WithLogger(s.logger),
	)
	s.tracker = jobs.NewTracker()
	s.poller = jobs.NewPoller(s.tracker, s.client,
		jobs.WithInterval(cfg.PollInterval()),
		jobs.WithCallTimeout(cfg.RequestTimeout()),
		jobs.WithPollerLogger(s.logger),
		jobs.WithHandler(s.handleJobEvent),
	)

	reconcilerOpts := []assets.Option{
		assets.WithLogger(s.logger),
		assets.WithPageLimit(cfg.Library.PageLimit),
	}
	if s.store != nil {
		reconcilerOpts = append(reconcilerOpts, assets.WithSnapshotStore(s.store))
	}
	s.reconciler = assets.NewReconciler(s.client, reconcilerOpts...)

	monitor, err := heartbeat.New(s.client,
		heartbeat.WithTiming(s.hbInterval, s.hbTimeout),
		heartbeat.WithLogger(s.logger),
		heartbeat.OnDown(s.handleDown),
		heartbeat.OnRecover(s.handleRecover),
	)
	if err != nil {
		return nil, fmt.Errorf("heartbeat: %w", err)
	}
	s.monitor = monitor

	var sink EventSink
	if s.store != nil {
		sink = s.store
	}
	events, err := NewEventLog(context.Background(), s.eventCapacity, sink, s.logger)
	if err != nil {
		return nil, err
	}
	s.events = events
	s.logger = logging.NewComponentLogger(s.logger, "session")
	return s, nil
}

// Client returns the backend client.
func (s *Session) Client() *backend.Client { return s.client }

// Tracker returns the job tracker.
func (s *Session) Tracker() *jobs.Tracker { return s.tracker }

// Poller returns the poll loop driver.
func (s *Session) Poller() *jobs.Poller { return s.poller }

// Reconciler returns the asset reconciler.
func (s *Session) Reconciler() *assets.Reconciler { return s.reconciler }

// Monitor returns the heartbeat monitor.
func (s *Session) Monitor() *heartbeat.Monitor { return s.monitor }

// Events returns the sequenced event log.
func (s *Session) Events() *EventLog { return s.events }

// Generation counts completed full reloads.
func (s *Session) Generation() int64 { return s.generation.Load() }

// Status is a point-in-time view of the watcher.
type Status struct {
	BackendUp    bool              `json:"backend_up"`
	DownSince    time.Time         `json:"down_since"`
	LastProbe    time.Time         `json:"last_probe"`
	ProbeError   string            `json:"probe_error,omitempty"`
	Generation   int64             `json:"generation"`
	Tracked      []jobs.TrackedJob `json:"tracked"`
	LastPoll     time.Time         `json:"last_poll"`
	PollError    string            `json:"poll_error,omitempty"`
	LastEventSeq int64             `json:"last_event_seq"`
}

// Status reports backend liveness, the reload generation, and the tracked
// set.
func (s *Session) Status() Status {
	hb := s.monitor.Status()
	st := Status{
		BackendUp:    hb.Up,
		DownSince:    hb.DownSince,
		LastProbe:    hb.LastProbe,
		ProbeError:   hb.LastError,
		Generation:   s.Generation(),
		Tracked:      s.tracker.Jobs(),
		LastPoll:     s.poller.LastTick(),
		LastEventSeq: s.events.LastSeq(),
	}
	if err := s.poller.LastError(); err != nil {
		st.PollError = err.Error()
	}
	if st.Tracked == nil {
		st.Tracked = []jobs.TrackedJob{}
	}
	return st
}

// Subscribe registers a job event handler and returns a function that
// removes it.
func (s *Session) Subscribe(h jobs.Handler) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = h
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

// Restore re-tracks persisted jobs and adopts anything else the backend
// reports as active. A backend that is unreachable leaves the restored set
// in place for the poller to settle.
func (s *Session) Restore(ctx context.Context) (int, error) {
	restored := 0
	if s.store != nil {
		persisted, err := s.store.LoadTrackedJobs(ctx)
		if err != nil {
			return 0, fmt.Errorf("restore tracked jobs: %w", err)
		}
		restored = s.tracker.Restore(persisted)
	}
	adopted, err := s.poller.Resync(ctx)
	if err != nil {
		logging.WarnWithContext(s.logger, "initial resync failed", "session_resync_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "only persisted jobs are tracked until the backend responds"),
		)
	}
	if restored > 0 || len(adopted) > 0 {
		s.logger.Info("tracking resumed",
			logging.Int("restored", restored),
			logging.Int("adopted", len(adopted)),
			logging.String(logging.FieldEventType, "session_restored"),
		)
		s.poller.Wake()
	}
	s.persist(ctx)
	return restored + len(adopted), nil
}

// Run restores state and drives the poll loop, the heartbeat, and reloads
// until ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	if _, err := s.Restore(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.poller.Run(gctx) })
	g.Go(func() error { return s.monitor.Run(gctx) })
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-s.reloadReq:
				if err := s.Reload(gctx); err != nil && gctx.Err() == nil {
					logging.WarnWithContext(s.logger, "reload incomplete", "session_reload_failed",
						logging.Error(err),
						logging.String(logging.FieldImpact, "state is refetched on the next poll"),
					)
				}
			case <-s.refreshReq:
				s.refreshLibrary(gctx)
			}
		}
	})

	err := g.Wait()
	s.notifyWG.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Track adds a job to the tracked set.
func (s *Session) Track(ctx context.Context, id string, kind backend.JobKind, batchID string) bool {
	if kind == "" {
		kind = backend.KindForID(id)
	}
	added := s.poller.Track(id, kind, batchID)
	if added {
		s.events.Publish(ctx, store.EventRecord{Type: "job_tracked", JobID: id, BatchID: batchID})
		s.persist(ctx)
	}
	return added
}

// Start launches a job and tracks every id in the acknowledgement.
func (s *Session) Start(ctx context.Context, kind backend.JobKind, params any) (backend.StartResult, error) {
	res, err := s.client.Start(ctx, kind, params)
	if err != nil {
		return res, err
	}
	added := s.poller.TrackStart(res)
	for _, id := range added {
		s.events.Publish(ctx, store.EventRecord{Type: "job_started", JobID: id, BatchID: res.BatchID, Message: res.Message})
	}
	s.persist(ctx)
	return res, nil
}

// Abort requests cancellation of a tracked job.
func (s *Session) Abort(ctx context.Context, id string) error {
	if err := s.poller.Abort(ctx, id); err != nil {
		return err
	}
	s.persist(ctx)
	return nil
}

// AbortBatch requests cancellation of every tracked job in a batch.
func (s *Session) AbortBatch(ctx context.Context, batchID string) error {
	if err := s.poller.AbortBatch(ctx, batchID); err != nil {
		return err
	}
	s.persist(ctx)
	return nil
}

// Wait polls until every id has reached a terminal event and returns those
// events in arrival order. onEvent, when set, sees every event for the ids.
func (s *Session) Wait(ctx context.Context, ids []string, onEvent jobs.Handler) ([]jobs.Event, error) {
	pending := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := s.tracker.Get(id); ok {
			pending[id] = struct{}{}
		}
	}
	if len(pending) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		terminal []jobs.Event
	)
	unsubscribe := s.Subscribe(func(ev jobs.Event) {
		mu.Lock()
		defer mu.Unlock()
		if _, ok := pending[ev.JobID]; !ok {
			return
		}
		if onEvent != nil {
			onEvent(ev)
		}
		if ev.Type.Terminal() {
			terminal = append(terminal, ev)
			delete(pending, ev.JobID)
			if len(pending) == 0 {
				cancel()
			}
		}
	})
	defer unsubscribe()

	err := s.poller.Run(ctx)
	mu.Lock()
	defer mu.Unlock()
	if len(pending) == 0 {
		return terminal, nil
	}
	return terminal, err
}

// Reload discards every client-side cache and refetches from the backend:
// the asset cache is invalidated, the tracked set and persisted state are
// purged, and the active listing is adopted afresh.
func (s *Session) Reload(ctx context.Context) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, reloadTimeout)
	defer cancel()

	s.reconciler.Invalidate()
	s.tracker.Reset()
	var errs []error
	if s.store != nil {
		if err := s.store.Purge(ctx); err != nil {
			errs = append(errs, fmt.Errorf("purge state: %w", err))
		}
	}
	adopted, err := s.poller.Resync(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	if _, err := s.reconciler.Refresh(ctx); err != nil {
		errs = append(errs, fmt.Errorf("refresh assets: %w", err))
	}
	s.persist(ctx)

	gen := s.generation.Add(1)
	s.events.Publish(ctx, store.EventRecord{
		Type:    "reload",
		Message: fmt.Sprintf("generation %d, %d active jobs adopted", gen, len(adopted)),
	})
	s.logger.Info("state reloaded",
		logging.Int64("generation", gen),
		logging.Int("adopted", len(adopted)),
		logging.String(logging.FieldEventType, "session_reloaded"),
	)
	return errors.Join(errs...)
}

// refreshLibrary refetches both asset stores after a completion so the
// persisted snapshot picks up the job's output.
func (s *Session) refreshLibrary(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, reloadTimeout)
	defer cancel()
	list, err := s.reconciler.Refresh(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Debug("library refresh abandoned", logging.Error(err))
		}
		return
	}
	s.logger.Debug("library refreshed",
		logging.Int("assets", len(list)),
		logging.String(logging.FieldEventType, "library_refreshed"),
	)
}

func (s *Session) handleDown(err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	s.events.Publish(context.Background(), store.EventRecord{Type: "backend_down", Message: msg})
	s.notify(notifications.EventBackendDown, notifications.Payload{"error": msg})
}

func (s *Session) handleRecover() {
	s.events.Publish(context.Background(), store.EventRecord{Type: "backend_recovered"})
	s.notify(notifications.EventBackendRecovered, nil)
	select {
	case s.reloadReq <- struct{}{}:
	default:
	}
}

func (s *Session) handleJobEvent(ev jobs.Event) {
	ctx := context.Background()
	if ev.Type.Terminal() {
		s.events.Publish(ctx, recordForEvent(ev))
		if ev.Type == jobs.EventCompleted {
			s.reconciler.Invalidate()
			select {
			case s.refreshReq <- struct{}{}:
			default:
			}
		}
		if s.store != nil {
			if err := s.store.DeleteTrackedJob(ctx, ev.JobID); err != nil {
				s.logger.Debug("tracked job not removed from store",
					logging.String(logging.FieldJobID, ev.JobID),
					logging.Error(err),
				)
			}
		}
		s.notifyJob(ev)
	} else {
		s.events.Publish(ctx, recordForEvent(ev))
	}

	s.subMu.Lock()
	handlers := make([]jobs.Handler, 0, len(s.subs))
	for _, h := range s.subs {
		handlers = append(handlers, h)
	}
	s.subMu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

func (s *Session) notifyJob(ev jobs.Event) {
	payload := notifications.Payload{
		"jobID": ev.JobID,
		"label": jobLabel(ev.Snapshot, ev.JobID),
	}
	if ev.Err != nil {
		payload["error"] = ev.Err.Error()
	}
	if ev.Snapshot.Message != "" {
		payload["message"] = ev.Snapshot.Message
	}
	var event notifications.Event
	switch ev.Type {
	case jobs.EventCompleted:
		event = notifications.EventJobCompleted
		if ev.Partial {
			event = notifications.EventJobPartial
		}
	case jobs.EventFailed:
		event = notifications.EventJobFailed
	case jobs.EventAborted:
		event = notifications.EventJobAborted
	case jobs.EventLost:
		event = notifications.EventJobLost
	default:
		return
	}
	s.notify(event, payload)
}

func (s *Session) notify(event notifications.Event, payload notifications.Payload) {
	s.notifyWG.Add(1)
	go func() {
		defer s.notifyWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := s.notifier.Publish(ctx, event, payload); err != nil {
			logging.WarnWithContext(s.logger, "notification failed", "notification_failed",
				logging.String("notification", string(event)),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the ntfy topic"),
			)
		}
	}()
}

func (s *Session) persist(ctx context.Context) {
	if s.store == nil {
		return
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	if err := s.store.ReplaceTrackedJobs(ctx, s.tracker.Jobs()); err != nil {
		logging.WarnWithContext(s.logger, "tracked jobs not persisted", "tracked_persist_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "a restart may not resume these jobs"),
		)
	}
}

func jobLabel(snap backend.JobSnapshot, id string) string {
	if snap.Username == "" {
		return id
	}
	if snap.Platform == "" {
		return "@" + snap.Username
	}
	return fmt.Sprintf("@%s on %s", snap.Username, snap.Platform)
}
