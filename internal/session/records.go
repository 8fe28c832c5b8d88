package session

import (
	"errors"

	"github.com/goccy/go-json"

	"reelrecon/internal/backend"
	"reelrecon/internal/jobs"
	"reelrecon/internal/store"
)

// jobPayload is the JSON body stored with job events in the log.
type jobPayload struct {
	Kind      backend.JobKind   `json:"kind,omitempty"`
	Status    backend.JobStatus `json:"status,omitempty"`
	Progress  float64           `json:"progress"`
	Phase     string            `json:"phase,omitempty"`
	Partial   bool              `json:"partial,omitempty"`
	ErrorCode string            `json:"error_code,omitempty"`
	Error     string            `json:"error,omitempty"`
}

func recordForEvent(ev jobs.Event) store.EventRecord {
	p := jobPayload{
		Kind:     ev.Kind,
		Status:   ev.Snapshot.Status,
		Progress: ev.Snapshot.Progress,
		Phase:    ev.Snapshot.Phase,
		Partial:  ev.Partial,
	}
	if ev.Err != nil {
		p.Error = ev.Err.Error()
		var jobErr jobs.JobError
		if errors.As(ev.Err, &jobErr) {
			p.ErrorCode = jobErr.Code
			p.Error = jobErr.Message
		}
	}
	raw, err := json.Marshal(p)
	if err != nil {
		raw = nil
	}
	return store.EventRecord{
		Type:      "job_" + string(ev.Type),
		JobID:     ev.JobID,
		BatchID:   ev.BatchID,
		Message:   ev.Snapshot.Message,
		Payload:   raw,
		CreatedAt: ev.At,
	}
}
