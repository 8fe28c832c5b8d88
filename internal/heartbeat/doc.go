// Package heartbeat probes backend liveness on a fixed interval and reports
// up/down transitions.
package heartbeat
