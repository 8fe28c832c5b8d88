// Package session wires the backend client, job tracker, asset reconciler,
// heartbeat monitor, state store, and notifier into one owned object.
//
// The Session routes job events to the event log, the notifier, and the
// asset cache; it persists the tracked set so a restarted watcher resumes
// where it stopped; and it turns a heartbeat recovery into a full reload
// that discards every client-side cache before refetching.
package session
