// Package backend is the HTTP client for the ReelRecon backend.
//
// It covers the job endpoints (start, status, abort, active and recent
// listings), the structured asset store, the legacy scrape history, and the
// health probe. Every call is a single bounded round trip. Errors are
// classified so callers can tell transient failures (IsTransient) from the
// not-found signal (ErrJobNotFound) the job tracker depends on.
package backend
