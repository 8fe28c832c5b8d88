package combined

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"

	"github.com/google/uuid"

	"reelrecon/internal/backend"
)

const (
	// FieldPlatform names the origin platform stamped on every item.
	FieldPlatform = "_platform"
	// FieldSourceJobID names the origin job id stamped on every item.
	FieldSourceJobID = "_source_job_id"
	// DefaultMetric ranks items when no metric is configured.
	DefaultMetric = "views"
)

var (
	// ErrNoInputs reports a combine request with nothing to combine.
	ErrNoInputs = errors.New("combine: no inputs")
	// ErrTargetMismatch reports inputs that describe different targets.
	ErrTargetMismatch = errors.New("combine: inputs have different targets")
)

// Item is one ranked entry, usually a reel, with arbitrary backend fields.
type Item map[string]any

// Platform returns the origin platform stamped on the item.
func (i Item) Platform() string {
	v, _ := i[FieldPlatform].(string)
	return v
}

// SourceJobID returns the origin job id stamped on the item.
func (i Item) SourceJobID() string {
	v, _ := i[FieldSourceJobID].(string)
	return v
}

// Metric returns the numeric value of key. Missing or non-numeric values
// count as zero; numeric strings are accepted.
func (i Item) Metric(key string) float64 {
	return backend.NumberField(i, key)
}

// PlatformResult is one platform's result for a target.
type PlatformResult struct {
	Platform  string `json:"platform"`
	JobID     string `json:"job_id"`
	Target    string `json:"target"`
	CreatedAt string `json:"created_at,omitempty"`
	Items     []Item `json:"items"`
}

// PlatformSummary describes what one platform contributed.
type PlatformSummary struct {
	Platform  string   `json:"platform"`
	JobIDs    []string `json:"job_ids"`
	ItemCount int      `json:"item_count"`
}

// Result is a synthetic aggregate across platforms. It is never persisted.
type Result struct {
	ID        string                     `json:"id"`
	Target    string                     `json:"target"`
	Metric    string                     `json:"metric"`
	TopItems  []Item                     `json:"top_items"`
	Platforms map[string]PlatformSummary `json:"platforms"`
}

// Selection is the outcome of Combine: a single input passes through
// untouched in Single, otherwise Combined holds the merged view.
type Selection struct {
	Single   *PlatformResult
	Combined *Result
}

type options struct {
	metric string
	newID  func() string
}

// Option customizes Combine.
type Option func(*options)

// WithMetric ranks by key instead of views.
func WithMetric(key string) Option {
	return func(o *options) {
		if key = strings.TrimSpace(key); key != "" {
			o.metric = key
		}
	}
}

// WithIDFunc overrides synthetic id generation.
func WithIDFunc(fn func() string) Option {
	return func(o *options) {
		if fn != nil {
			o.newID = fn
		}
	}
}

// NormalizeTarget folds a target identity for comparison: trimmed,
// lower-cased, leading "@" removed.
func NormalizeTarget(target string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(target)), "@")
}

// Combine merges inputs that share a target. Every input item appears once in
// the result, stamped with its origin, sorted by the metric descending.
func Combine(inputs []PlatformResult, opts ...Option) (Selection, error) {
	cfg := options{metric: DefaultMetric, newID: uuid.NewString}
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(inputs) == 0 {
		return Selection{}, ErrNoInputs
	}
	if len(inputs) == 1 {
		single := inputs[0]
		return Selection{Single: &single}, nil
	}

	target := NormalizeTarget(inputs[0].Target)
	for _, in := range inputs[1:] {
		if NormalizeTarget(in.Target) != target {
			return Selection{}, fmt.Errorf("%w: %q and %q", ErrTargetMismatch, inputs[0].Target, in.Target)
		}
	}

	result := &Result{
		ID:        cfg.newID(),
		Target:    target,
		Metric:    cfg.metric,
		Platforms: make(map[string]PlatformSummary),
	}
	for _, in := range inputs {
		platform := strings.ToLower(strings.TrimSpace(in.Platform))
		summary := result.Platforms[platform]
		summary.Platform = platform
		summary.JobIDs = append(summary.JobIDs, in.JobID)
		summary.ItemCount += len(in.Items)
		result.Platforms[platform] = summary

		for _, item := range in.Items {
			stamped := make(Item, len(item)+2)
			maps.Copy(stamped, item)
			stamped[FieldPlatform] = platform
			stamped[FieldSourceJobID] = in.JobID
			result.TopItems = append(result.TopItems, stamped)
		}
	}
	sort.SliceStable(result.TopItems, func(i, j int) bool {
		return result.TopItems[i].Metric(cfg.metric) > result.TopItems[j].Metric(cfg.metric)
	})
	return Selection{Combined: result}, nil
}

// Visible returns the ranked items whose platform is in platforms, keeping
// rank order. No platforms means all items.
func (r *Result) Visible(platforms ...string) []Item {
	if r == nil {
		return nil
	}
	if len(platforms) == 0 {
		return slices.Clone(r.TopItems)
	}
	allowed := make(map[string]struct{}, len(platforms))
	for _, p := range platforms {
		allowed[strings.ToLower(strings.TrimSpace(p))] = struct{}{}
	}
	out := make([]Item, 0, len(r.TopItems))
	for _, item := range r.TopItems {
		if _, ok := allowed[item.Platform()]; ok {
			out = append(out, item)
		}
	}
	return out
}

// PlatformNames returns the contributing platforms in sorted order.
func (r *Result) PlatformNames() []string {
	if r == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(r.Platforms))
}

// Group is a set of results sharing a normalized target.
type Group struct {
	Target  string
	Results []PlatformResult
}

// Combinable reports whether the group has enough results to merge.
func (g Group) Combinable() bool {
	return len(g.Results) > 1
}

// GroupByTarget buckets results by normalized target, in first-seen order.
func GroupByTarget(results []PlatformResult) []Group {
	index := make(map[string]int)
	var groups []Group
	for _, res := range results {
		key := NormalizeTarget(res.Target)
		if key == "" {
			continue
		}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group{Target: key})
		}
		groups[i].Results = append(groups[i].Results, res)
	}
	return groups
}
