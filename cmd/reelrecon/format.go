package main

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"reelrecon/internal/assets"
	"reelrecon/internal/backend"
	"reelrecon/internal/jobs"
)

const timeLayout = "2006-01-02 15:04"

func formatProgress(snap backend.JobSnapshot) string {
	if !snap.ProgressKnown() {
		return "-"
	}
	return fmt.Sprintf("%.0f%%", snap.Progress)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func truncate(value string, limit int) string {
	value = strings.Join(strings.Fields(value), " ")
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	return string([]rune(value)[:limit-1]) + "…"
}

// jobTarget renders who and where a job is scraping.
func jobTarget(snap backend.JobSnapshot) string {
	switch {
	case snap.Username != "" && snap.Platform != "":
		return fmt.Sprintf("@%s on %s", snap.Username, assets.PlatformLabel(snap.Platform))
	case snap.Username != "":
		return "@" + snap.Username
	default:
		return "-"
	}
}

func snapshotRows(snaps []backend.JobSnapshot) [][]string {
	rows := make([][]string, 0, len(snaps))
	for _, snap := range snaps {
		rows = append(rows, []string{
			snap.ID,
			string(snap.Kind),
			string(snap.Status.Normalize()),
			formatProgress(snap),
			orDash(snap.Phase),
			jobTarget(snap),
		})
	}
	return rows
}

var snapshotHeaders = []string{"ID", "Kind", "Status", "Progress", "Phase", "Target"}

var snapshotAligns = []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft}

func trackedRows(tracked []jobs.TrackedJob) [][]string {
	rows := make([][]string, 0, len(tracked))
	for _, job := range tracked {
		state := string(job.State)
		if job.AbortRequested {
			state += " (abort requested)"
		}
		rows = append(rows, []string{
			job.ID,
			string(job.Kind),
			orDash(job.BatchID),
			state,
			formatProgress(job.Last),
			jobTarget(job.Last),
		})
	}
	return rows
}

var trackedHeaders = []string{"ID", "Kind", "Batch", "State", "Progress", "Target"}

// describeEvent renders one job event as a single log-style line.
func describeEvent(ev jobs.Event) string {
	switch ev.Type {
	case jobs.EventProgress:
		line := fmt.Sprintf("%s  %s %s", ev.JobID, string(ev.Snapshot.Status.Normalize()), formatProgress(ev.Snapshot))
		if detail := strings.TrimSpace(ev.Snapshot.Phase); detail != "" {
			line += "  " + detail
		} else if msg := strings.TrimSpace(ev.Snapshot.Message); msg != "" {
			line += "  " + truncate(msg, 60)
		}
		return line
	case jobs.EventCompleted:
		if ev.Partial {
			return fmt.Sprintf("%s  finished with warnings", ev.JobID)
		}
		return fmt.Sprintf("%s  completed", ev.JobID)
	default:
		if ev.Err != nil {
			return fmt.Sprintf("%s  %s: %v", ev.JobID, ev.Type, ev.Err)
		}
		return fmt.Sprintf("%s  %s", ev.JobID, ev.Type)
	}
}

func outcomeLabel(ev jobs.Event) string {
	if ev.Type == jobs.EventCompleted && ev.Partial {
		return "partial"
	}
	return string(ev.Type)
}

func outcomeDetail(ev jobs.Event) string {
	if ev.Err != nil {
		return ev.Err.Error()
	}
	return orDash(ev.Snapshot.Message)
}
