package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"reelrecon/internal/daemon"
)

// statusKind grades one line of a status report. Higher is worse.
type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

var statusStyles = [...]struct{ tag, color string }{
	statusInfo:  {"INFO", ansiBlue},
	statusOK:    {"OK", ansiGreen},
	statusWarn:  {"WARN", ansiYellow},
	statusError: {"ERROR", ansiRed},
}

const statusLabelWidth = 14

type statusLine struct {
	label   string
	kind    statusKind
	message string
}

// statusReport is a titled block of graded lines printed by status and health.
type statusReport struct {
	title string
	lines []statusLine
}

func (r *statusReport) add(label string, kind statusKind, message string) {
	r.lines = append(r.lines, statusLine{label: label, kind: kind, message: message})
}

// worst returns the most severe grade in the report.
func (r statusReport) worst() statusKind {
	worst := statusInfo
	for _, line := range r.lines {
		worst = max(worst, line.kind)
	}
	return worst
}

func (r statusReport) write(out io.Writer, colorize bool) {
	title := "== " + strings.TrimSpace(r.title) + " =="
	if colorize {
		title = ansiBlue + title + ansiReset
	}
	fmt.Fprintln(out, title)
	for _, line := range r.lines {
		fmt.Fprintln(out, renderStatusLine(line, colorize))
	}
}

// renderStatusLine formats "  Label:  [TAG] message", coloring only the tag.
func renderStatusLine(line statusLine, colorize bool) string {
	style := statusStyles[line.kind]
	tag := "[" + style.tag + "]"
	if colorize {
		tag = style.color + tag + ansiReset
	}
	text := fmt.Sprintf("  %-*s %s", statusLabelWidth, line.label+":", tag)
	if line.message != "" {
		text += " " + line.message
	}
	return text
}

// watcherReport grades the watcher's view of the backend, its poll loop and
// its stores.
func watcherReport(st daemon.StatusResponse) statusReport {
	report := statusReport{title: "Watcher"}
	report.add("Process", statusOK, fmt.Sprintf("pid %d", st.PID))
	report.add("Backend", backendKind(st.BackendUp), backendMessage(st))

	switch {
	case st.PollError != "":
		report.add("Polling", statusWarn, st.PollError)
	case st.LastPoll.IsZero():
		report.add("Polling", statusInfo, "Idle, no jobs polled yet")
	default:
		report.add("Polling", statusOK, "Last poll "+formatTime(st.LastPoll))
	}

	reloads := "None since start"
	if st.Generation > 0 {
		reloads = fmt.Sprintf("%d after backend recovery", st.Generation)
	}
	report.add("Reloads", statusInfo, reloads)
	report.add("Events", statusInfo, fmt.Sprintf("last seq %d", st.LastEventSeq))
	report.add("Store", statusInfo, st.StorePath)
	return report
}

func backendKind(up bool) statusKind {
	if up {
		return statusOK
	}
	return statusError
}

func backendMessage(st daemon.StatusResponse) string {
	if st.BackendUp {
		return "Reachable"
	}
	msg := "Unreachable since " + formatTime(st.DownSince)
	if st.ProbeError != "" {
		msg += ": " + st.ProbeError
	}
	return msg
}

// shouldColorize reports whether writer is a terminal and NO_COLOR is unset.
func shouldColorize(writer io.Writer) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
