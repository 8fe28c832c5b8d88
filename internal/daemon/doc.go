// Package daemon runs the long-lived ReelRecon watcher.
//
// It wraps a session.Session in a single-instance lifecycle guarded by a
// flock lock file and exposes a small local HTTP API: GET /api/status for
// backend liveness and the tracked set, GET /api/events?since=N for the
// sequenced event log, and POST /api/track to hand a job to the watcher.
// An optional bearer token protects every endpoint. Client is the matching
// caller used by the CLI.
package daemon
