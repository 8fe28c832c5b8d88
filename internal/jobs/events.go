package jobs

import (
	"time"

	"reelrecon/internal/backend"
)

// EventType names what happened to a tracked job.
type EventType string

const (
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
	EventAborted   EventType = "aborted"
	EventLost      EventType = "lost"
)

// Terminal reports whether the event removes the job from the tracked set.
func (t EventType) Terminal() bool {
	return t != EventProgress
}

// Event is one observable change in a tracked job.
type Event struct {
	Type     EventType
	JobID    string
	Kind     backend.JobKind
	BatchID  string
	Snapshot backend.JobSnapshot
	// Partial marks a completion that finished with caveats.
	Partial bool
	// Err is a JobError for failed and aborted jobs and a *LostJobError for
	// lost ones.
	Err error
	At  time.Time
}
