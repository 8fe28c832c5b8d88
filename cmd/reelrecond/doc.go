// Command reelrecond is the ReelRecon watcher. It holds the lock for the
// state directory, keeps tracked jobs in sync with the backend, and serves
// its status and event log to the reelrecon CLI over HTTP.
package main
