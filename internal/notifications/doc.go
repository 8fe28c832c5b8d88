// Package notifications pushes job and backend events to ntfy.
//
// The ntfy topic comes from config.toml (or REELRECON_NTFY_TOPIC). When no
// topic is configured NewService returns a no-op implementation, so callers
// never need to check whether notifications are enabled. Per-event toggles in
// the [notifications] section suppress individual event families.
package notifications
