package jobs

import (
	"errors"
	"strings"
	"sync"
	"time"

	"reelrecon/internal/backend"
)

// State is a tracked job's lifecycle position.
type State string

const (
	// StatePending is a job restored from persistence that has not been
	// observed since.
	StatePending   State = "pending"
	StatePolling   State = "polling"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateAborted   State = "aborted"
	StateLost      State = "lost"
)

// TrackedJob is the tracker's record of one job.
type TrackedJob struct {
	ID             string              `json:"id"`
	Kind           backend.JobKind     `json:"kind"`
	BatchID        string              `json:"batch_id,omitempty"`
	State          State               `json:"state"`
	Observed       bool                `json:"observed"`
	AbortRequested bool                `json:"abort_requested"`
	Last           backend.JobSnapshot `json:"last"`
	TrackedAt      time.Time           `json:"tracked_at"`
}

// Confirmation is the outcome of one status lookup for a job missing from the
// active listing. Err holds backend.ErrJobNotFound when the backend has no
// record, or a transient error when the lookup failed.
type Confirmation struct {
	Snapshot backend.JobSnapshot
	Err      error
}

// Observation is everything one poll learned about the backend.
type Observation struct {
	Active        []backend.JobSnapshot
	Confirmations map[string]Confirmation
}

// Tracker is the job lifecycle state machine. It is safe for concurrent use;
// Track and Abort interleave with Tick only between steps.
type Tracker struct {
	mu    sync.Mutex
	jobs  map[string]*TrackedJob
	order []string
	now   func() time.Time
}

// TrackerOption customizes a Tracker.
type TrackerOption func(*Tracker)

// WithClock overrides the time source used to stamp jobs and events.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTracker constructs an empty tracker.
func NewTracker(opts ...TrackerOption) *Tracker {
	t := &Tracker{
		jobs: make(map[string]*TrackedJob),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Track adds a freshly started job in the polling state. It returns false if
// the id is empty or already tracked.
func (t *Tracker) Track(id string, kind backend.JobKind, batchID string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	if kind == "" {
		kind = backend.KindForID(id)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.add(&TrackedJob{
		ID:        id,
		Kind:      kind,
		BatchID:   batchID,
		State:     StatePolling,
		Last:      backend.JobSnapshot{ID: id, Kind: kind, Progress: backend.ProgressUnknown},
		TrackedAt: t.now(),
	})
}

// TrackStart tracks every job a start acknowledgement produced and returns
// the ids that were newly added.
func (t *Tracker) TrackStart(res backend.StartResult) []string {
	kind := res.Kind
	if kind == backend.KindBatch {
		kind = backend.KindScrape
	}
	var added []string
	for _, id := range res.IDs() {
		if t.Track(id, kind, res.BatchID) {
			added = append(added, id)
		}
	}
	return added
}

// Restore re-adds persisted jobs in the pending state. Jobs already tracked
// are left alone.
func (t *Tracker) Restore(jobs []TrackedJob) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	restored := 0
	for _, job := range jobs {
		if job.ID == "" || job.State.terminal() {
			continue
		}
		copied := job
		copied.State = StatePending
		if copied.TrackedAt.IsZero() {
			copied.TrackedAt = t.now()
		}
		if t.add(&copied) {
			restored++
		}
	}
	return restored
}

func (t *Tracker) add(job *TrackedJob) bool {
	if _, exists := t.jobs[job.ID]; exists {
		return false
	}
	t.jobs[job.ID] = job
	t.order = append(t.order, job.ID)
	return true
}

func (t *Tracker) remove(id string) {
	delete(t.jobs, id)
	for i, existing := range t.order {
		if existing == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			return
		}
	}
}

// Resync adopts every non-terminal job in the backend's active listing that
// is not already tracked and returns the adopted ids.
func (t *Tracker) Resync(active []backend.JobSnapshot) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var adopted []string
	for _, snap := range active {
		if snap.ID == "" || snap.Terminal() {
			continue
		}
		kind := snap.Kind
		if kind == "" {
			kind = backend.KindForID(snap.ID)
		}
		job := &TrackedJob{
			ID:        snap.ID,
			Kind:      kind,
			BatchID:   snap.BatchID,
			State:     StatePolling,
			Observed:  true,
			Last:      snap,
			TrackedAt: t.now(),
		}
		if t.add(job) {
			adopted = append(adopted, snap.ID)
		}
	}
	return adopted
}

// RequestAbort marks a job as having a pending cancellation. The job stays
// tracked until a terminal status is observed.
func (t *Tracker) RequestAbort(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[id]
	if !ok {
		return ErrNotTracked
	}
	job.AbortRequested = true
	return nil
}

// BatchJobs returns the tracked ids belonging to batchID.
func (t *Tracker) BatchJobs(batchID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var ids []string
	for _, id := range t.order {
		if t.jobs[id].BatchID == batchID {
			ids = append(ids, id)
		}
	}
	return ids
}

// Reset drops every tracked job.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobs = make(map[string]*TrackedJob)
	t.order = nil
}

// Len returns the number of tracked jobs.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.jobs)
}

// Get returns a copy of one tracked job.
func (t *Tracker) Get(id string) (TrackedJob, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[id]
	if !ok {
		return TrackedJob{}, false
	}
	return *job, true
}

// Jobs returns copies of every tracked job in tracking order.
func (t *Tracker) Jobs() []TrackedJob {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TrackedJob, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, *t.jobs[id])
	}
	return out
}

// NeedsConfirmation returns the tracked ids missing from active, in tracking
// order. Each needs one status lookup before the next Tick.
func (t *Tracker) NeedsConfirmation(active []backend.JobSnapshot) []string {
	present := activeSet(active)
	t.mu.Lock()
	defer t.mu.Unlock()
	var ids []string
	for _, id := range t.order {
		if _, ok := present[id]; !ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Tick applies one observation and returns the resulting events in tracking
// order. A job produces at most one terminal event over its lifetime.
func (t *Tracker) Tick(obs Observation) []Event {
	present := activeSet(obs.Active)
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	var events []Event
	for _, id := range append([]string(nil), t.order...) {
		job := t.jobs[id]
		if snap, ok := present[id]; ok {
			events = append(events, t.observe(job, snap, now)...)
			continue
		}
		conf, ok := obs.Confirmations[id]
		if !ok {
			continue
		}
		if conf.Err != nil {
			if errors.Is(conf.Err, backend.ErrJobNotFound) {
				events = append(events, t.lose(job, now))
			}
			continue
		}
		events = append(events, t.observe(job, conf.Snapshot, now)...)
	}
	return events
}

func (t *Tracker) observe(job *TrackedJob, snap backend.JobSnapshot, now time.Time) []Event {
	if snap.ID == "" {
		snap.ID = job.ID
	}
	if snap.Kind == "" {
		snap.Kind = job.Kind
	}
	if snap.BatchID == "" {
		snap.BatchID = job.BatchID
	}
	if snap.Terminal() {
		return []Event{t.resolve(job, snap, now)}
	}

	changed := !job.Observed || snap.Progress != job.Last.Progress || snap.Phase != job.Last.Phase || snap.Status != job.Last.Status
	job.Observed = true
	job.State = StatePolling
	job.Last = snap
	if !changed {
		return nil
	}
	return []Event{job.event(EventProgress, now)}
}

func (t *Tracker) resolve(job *TrackedJob, snap backend.JobSnapshot, now time.Time) Event {
	job.Last = snap
	job.Observed = true
	var ev Event
	switch snap.Status.Normalize() {
	case backend.StatusComplete, backend.StatusPartial:
		job.State = StateCompleted
		ev = job.event(EventCompleted, now)
		ev.Partial = snap.Status.Normalize() == backend.StatusPartial
	case backend.StatusAborted:
		job.State = StateAborted
		ev = job.event(EventAborted, now)
		ev.Err = jobErrorFromSnapshot(snap)
	default:
		job.State = StateFailed
		ev = job.event(EventFailed, now)
		ev.Err = jobErrorFromSnapshot(snap)
	}
	t.remove(job.ID)
	return ev
}

func (t *Tracker) lose(job *TrackedJob, now time.Time) Event {
	job.State = StateLost
	ev := job.event(EventLost, now)
	ev.Err = &LostJobError{JobID: job.ID}
	t.remove(job.ID)
	return ev
}

func (j *TrackedJob) event(kind EventType, now time.Time) Event {
	return Event{
		Type:     kind,
		JobID:    j.ID,
		Kind:     j.Kind,
		BatchID:  j.BatchID,
		Snapshot: j.Last,
		At:       now,
	}
}

func (s State) terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateAborted, StateLost:
		return true
	default:
		return false
	}
}

func activeSet(active []backend.JobSnapshot) map[string]backend.JobSnapshot {
	present := make(map[string]backend.JobSnapshot, len(active))
	for _, snap := range active {
		if snap.ID != "" {
			present[snap.ID] = snap
		}
	}
	return present
}
