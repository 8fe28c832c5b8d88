// Package combined merges per-platform scrape results for one target into a
// single ranked view.
//
// Items keep their origin in the reserved "_platform" and "_source_job_id"
// fields. Ranking is stable, so items with equal metric values keep their
// input order. A single input is returned as-is without a synthetic wrapper.
package combined
