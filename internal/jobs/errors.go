package jobs

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"reelrecon/internal/backend"
)

var (
	// ErrJobLost reports a tracked job the backend no longer knows about.
	ErrJobLost = errors.New("job lost, try again")
	// ErrNotTracked reports an operation on an id the tracker does not hold.
	ErrNotTracked = errors.New("job not tracked")
)

// LostJobError identifies which job was lost.
type LostJobError struct {
	JobID string
}

func (e *LostJobError) Error() string {
	return fmt.Sprintf("job %s: %v", e.JobID, ErrJobLost)
}

func (e *LostJobError) Unwrap() error {
	return ErrJobLost
}

// JobError is a terminal job failure reported by the backend.
type JobError struct {
	Code    string
	Message string
}

func (e JobError) Error() string {
	switch {
	case e.Code != "" && e.Message != "":
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	case e.Code != "":
		return e.Code
	case e.Message != "":
		return e.Message
	default:
		return "job failed"
	}
}

var codedMessage = regexp.MustCompile(`^\[([A-Z0-9_-]+)\]\s*(.*)$`)

// ParseJobError splits a "[CODE] message" string. Strings without a code
// prefix become a message-only error.
func ParseJobError(raw string) JobError {
	raw = strings.TrimSpace(raw)
	if m := codedMessage.FindStringSubmatch(raw); m != nil {
		return JobError{Code: m[1], Message: strings.TrimSpace(m[2])}
	}
	return JobError{Message: raw}
}

func jobErrorFromSnapshot(snap backend.JobSnapshot) JobError {
	if snap.ErrorCode != "" {
		parsed := ParseJobError(snap.ErrorMessage)
		return JobError{Code: snap.ErrorCode, Message: parsed.Message}
	}
	if snap.ErrorMessage != "" {
		return ParseJobError(snap.ErrorMessage)
	}
	return ParseJobError(snap.Message)
}
