// Package logs reads the watcher and CLI log files from disk for the
// reelrecon logs command. It understands append-only files that may be
// truncated or replaced underneath the reader.
package logs
