package logging

import (
	"strings"
	"sync"
)

// ProgressSampler thins out per-job progress logs. A job's update is logged
// when its phase changes or its percentage enters a new bucket.
type ProgressSampler struct {
	bucketSize float64

	mu   sync.Mutex
	jobs map[string]*progressMark
}

type progressMark struct {
	phase  string
	bucket int
}

// NewProgressSampler builds a sampler with the given bucket width in percent.
// Non-positive widths fall back to 5.
func NewProgressSampler(bucketSize float64) *ProgressSampler {
	if bucketSize <= 0 {
		bucketSize = 5
	}
	return &ProgressSampler{bucketSize: bucketSize, jobs: make(map[string]*progressMark)}
}

// ShouldLog reports whether this update for jobID is worth logging. Percent
// is negative when the backend does not report progress.
func (s *ProgressSampler) ShouldLog(jobID string, percent float64, phase string) bool {
	if s == nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	mark, ok := s.jobs[jobID]
	if !ok {
		mark = &progressMark{bucket: -1}
		s.jobs[jobID] = mark
	}
	phase = strings.TrimSpace(phase)
	emit := !ok
	if phase != "" && phase != mark.phase {
		mark.phase = phase
		mark.bucket = -1
		emit = true
	}
	if percent >= 0 {
		if bucket := int(min(percent, 100) / s.bucketSize); bucket > mark.bucket {
			mark.bucket = bucket
			emit = true
		}
	}
	return emit
}

// Forget drops the state kept for jobID.
func (s *ProgressSampler) Forget(jobID string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	delete(s.jobs, jobID)
	s.mu.Unlock()
}

// Len returns how many jobs currently have sampling state.
func (s *ProgressSampler) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}
