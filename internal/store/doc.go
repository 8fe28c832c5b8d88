// Package store persists the watcher's state in SQLite: the tracked job set,
// the last merged asset listing, and the sequenced event log.
//
// Everything here is a cache of backend state. Purge drops the tracked jobs
// and the asset snapshot so a reload can rebuild them from the backend; the
// event log survives purges.
package store
