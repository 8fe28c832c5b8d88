package daemon

import (
	"time"

	"reelrecon/internal/backend"
	"reelrecon/internal/jobs"
	"reelrecon/internal/store"
)

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Running      bool              `json:"running"`
	PID          int               `json:"pid"`
	LockFilePath string            `json:"lock_file_path"`
	StorePath    string            `json:"store_path"`
	BackendUp    bool              `json:"backend_up"`
	DownSince    time.Time         `json:"down_since"`
	ProbeError   string            `json:"probe_error,omitempty"`
	Generation   int64             `json:"generation"`
	LastPoll     time.Time         `json:"last_poll"`
	PollError    string            `json:"poll_error,omitempty"`
	LastEventSeq int64             `json:"last_event_seq"`
	Tracked      []jobs.TrackedJob `json:"tracked"`
}

// EventsResponse is the body of GET /api/events.
type EventsResponse struct {
	Events []store.EventRecord `json:"events"`
	Next   int64               `json:"next"`
}

// TrackRequest is the body of POST /api/track.
type TrackRequest struct {
	JobID   string          `json:"job_id"`
	Kind    backend.JobKind `json:"kind,omitempty"`
	BatchID string          `json:"batch_id,omitempty"`
}

// TrackResponse reports whether the job was newly tracked.
type TrackResponse struct {
	JobID string `json:"job_id"`
	Added bool   `json:"added"`
}

func statusResponse(s Status) StatusResponse {
	return StatusResponse{
		Running:      s.Running,
		PID:          s.PID,
		LockFilePath: s.LockFilePath,
		StorePath:    s.StorePath,
		BackendUp:    s.Session.BackendUp,
		DownSince:    s.Session.DownSince,
		ProbeError:   s.Session.ProbeError,
		Generation:   s.Session.Generation,
		LastPoll:     s.Session.LastPoll,
		PollError:    s.Session.PollError,
		LastEventSeq: s.Session.LastEventSeq,
		Tracked:      s.Session.Tracked,
	}
}
