// Package jobs tracks backend jobs from start to a single terminal event.
//
// Tracker is the state machine. Each Tick consumes one observation of the
// backend (the active listing plus status confirmations for tracked jobs
// missing from it) and returns the events that observation produced. A job
// leaves the tracked set exactly once, as completed, failed, aborted, or
// lost. Disappearing from the active listing is never enough on its own: the
// job's status must confirm a terminal state, and a status lookup that finds
// no record at all marks the job lost.
//
// Poller drives a Tracker on a fixed interval against a backend Source. Ticks
// never overlap, and the loop idles while nothing is tracked.
package jobs
