// Package config loads, normalizes, and validates ReelRecon configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// REELRECON_BACKEND_URL and REELRECON_API_TOKEN. The Config type centralizes
// every knob the watcher daemon and CLI need: backend address, polling and
// heartbeat cadence, state directories, and notification targets.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
