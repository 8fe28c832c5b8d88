package logging_test

import (
	"testing"

	"reelrecon/internal/logging"
)

func TestProgressSamplerNil(t *testing.T) {
	var s *logging.ProgressSampler
	if !s.ShouldLog("job-1", 50, "downloading") {
		t.Fatal("nil sampler should always log")
	}
	s.Forget("job-1")
	if s.Len() != 0 {
		t.Fatal("nil sampler should be empty")
	}
}

func TestProgressSamplerFirstUpdateAlwaysLogs(t *testing.T) {
	s := logging.NewProgressSampler(5)
	if !s.ShouldLog("job-1", -1, "") {
		t.Fatal("first update for a job should log even without progress")
	}
	if s.ShouldLog("job-1", -1, "") {
		t.Fatal("repeated unknown progress should not log")
	}
}

func TestProgressSamplerPhaseChange(t *testing.T) {
	s := logging.NewProgressSampler(5)
	if !s.ShouldLog("job-1", 0, "fetching_profile") {
		t.Fatal("first phase should log")
	}
	if s.ShouldLog("job-1", 0, "fetching_profile") {
		t.Fatal("same phase and percent should not log again")
	}
	if !s.ShouldLog("job-1", 0, "downloading") {
		t.Fatal("different phase should log")
	}
	if !s.ShouldLog("job-1", 0, "fetching_profile") {
		t.Fatal("returning to an earlier phase should log")
	}
}

func TestProgressSamplerBuckets(t *testing.T) {
	s := logging.NewProgressSampler(10)
	steps := []struct {
		percent float64
		want    bool
	}{
		{0, true},
		{4, false},
		{9.9, false},
		{10, true},
		{15, false},
		{35, true},
		{20, false},
		{150, true},
		{100, false},
	}
	for i, step := range steps {
		if got := s.ShouldLog("job-1", step.percent, "transcribing"); got != step.want {
			t.Fatalf("step %d (%.1f%%): got %v, want %v", i, step.percent, got, step.want)
		}
	}
}

func TestProgressSamplerJobsAreIndependent(t *testing.T) {
	s := logging.NewProgressSampler(0)
	s.ShouldLog("a", 40, "downloading")
	if !s.ShouldLog("b", 40, "downloading") {
		t.Fatal("a second job should not inherit the first job's state")
	}
	if s.Len() != 2 {
		t.Fatalf("Len = %d, want 2", s.Len())
	}
	s.Forget("a")
	if s.Len() != 1 {
		t.Fatalf("Len after Forget = %d, want 1", s.Len())
	}
	if !s.ShouldLog("a", 40, "downloading") {
		t.Fatal("a forgotten job should log again")
	}
}
