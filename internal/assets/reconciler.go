package assets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"reelrecon/internal/backend"
	"reelrecon/internal/logging"
)

const defaultPageLimit = 200

// Source is the slice of the backend client the reconciler needs.
type Source interface {
	ListAssets(ctx context.Context, query backend.AssetQuery) ([]backend.StructuredAsset, error)
	GetAsset(ctx context.Context, id string) (backend.StructuredAsset, error)
	GetAssetContent(ctx context.Context, id string) (string, error)
	DeleteAsset(ctx context.Context, id string) error
	ToggleAssetStar(ctx context.Context, id string) (bool, error)
	ListHistory(ctx context.Context) ([]backend.HistoryEntry, error)
	DeleteHistory(ctx context.Context, id string) error
	ToggleHistoryStar(ctx context.Context, id string) (bool, error)
}

// SnapshotStore persists the last merged listing.
type SnapshotStore interface {
	SaveAssetSnapshot(ctx context.Context, assets []Asset) error
	LoadAssetSnapshot(ctx context.Context) ([]Asset, time.Time, error)
}

// SourceResult is the outcome of fetching one store.
type SourceResult struct {
	Origin Origin
	Assets []Asset
	Err    error
}

// Reconciler presents the structured store and the legacy history as one
// asset library.
type Reconciler struct {
	source    Source
	snapshots SnapshotStore
	logger    *slog.Logger
	pageLimit int

	mu       sync.Mutex
	cached   []Asset
	cachedAt time.Time
	sources  []SourceResult
}

// Option customizes a Reconciler.
type Option func(*Reconciler)

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithPageLimit bounds the structured store listing.
func WithPageLimit(limit int) Option {
	return func(r *Reconciler) {
		if limit > 0 {
			r.pageLimit = limit
		}
	}
}

// WithSnapshotStore persists each fresh merge and serves it from ListCached.
func WithSnapshotStore(store SnapshotStore) Option {
	return func(r *Reconciler) {
		r.snapshots = store
	}
}

// NewReconciler constructs a reconciler over source.
func NewReconciler(source Source, opts ...Option) *Reconciler {
	r := &Reconciler{source: source, pageLimit: defaultPageLimit}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.NewComponentLogger(r.logger, "assets")
	return r
}

// List returns the merged, filtered library. A failing store contributes
// nothing; only context cancellation is an error. A merge of both stores is
// cached until Invalidate; a merge missing a store is refetched next call.
func (r *Reconciler) List(ctx context.Context, f Filter) ([]Asset, error) {
	r.mu.Lock()
	cached := r.cached
	r.mu.Unlock()
	if cached == nil {
		var err error
		cached, err = r.Refresh(ctx)
		if err != nil {
			return nil, err
		}
	}
	return Apply(cached, f), nil
}

// Refresh fetches both stores concurrently. Only a merge where both stores
// answered replaces the cache and the persisted snapshot.
func (r *Reconciler) Refresh(ctx context.Context) ([]Asset, error) {
	results := r.fetchSources(ctx)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	complete := true
	for _, res := range results {
		if res.Err != nil {
			complete = false
			logging.WarnWithContext(r.logger, "asset source unavailable", "asset_source_unavailable",
				logging.String(logging.FieldSource, string(res.Origin)),
				logging.Error(res.Err),
				logging.String(logging.FieldErrorHint, "check the backend "+string(res.Origin)+" endpoint"),
				logging.String(logging.FieldImpact, "library shows only the other source"),
			)
		}
	}
	merged := merge(results[0].Assets, results[1].Assets)
	if merged == nil {
		merged = []Asset{}
	}

	r.mu.Lock()
	r.sources = results
	if complete {
		r.cached = merged
		r.cachedAt = time.Now()
	}
	r.mu.Unlock()

	if complete && r.snapshots != nil {
		if err := r.snapshots.SaveAssetSnapshot(ctx, merged); err != nil {
			r.logger.Debug("asset snapshot not saved", logging.Error(err))
		}
	}
	return merged, nil
}

// fetchSources returns the structured result first, then the legacy one.
func (r *Reconciler) fetchSources(ctx context.Context) []SourceResult {
	results := []SourceResult{{Origin: OriginStructured}, {Origin: OriginLegacy}}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := r.source.ListAssets(gctx, backend.AssetQuery{Limit: r.pageLimit})
		if err != nil {
			results[0].Err = err
			return nil
		}
		list := make([]Asset, 0, len(rows))
		for _, row := range rows {
			list = append(list, fromStructured(row))
		}
		results[0].Assets = list
		return nil
	})
	g.Go(func() error {
		entries, err := r.source.ListHistory(gctx)
		if err != nil {
			results[1].Err = err
			return nil
		}
		list := make([]Asset, 0, len(entries))
		for _, entry := range entries {
			if entry.ID == "" {
				continue
			}
			list = append(list, fromLegacy(entry))
		}
		results[1].Assets = list
		return nil
	})
	_ = g.Wait()
	return results
}

// Sources returns the per-store outcome of the last refresh.
func (r *Reconciler) Sources() []SourceResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.sources)
}

// Cached returns the cached merge, if any.
func (r *Reconciler) Cached() ([]Asset, time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cached == nil {
		return nil, time.Time{}, false
	}
	return slices.Clone(r.cached), r.cachedAt, true
}

// ListCached filters the in-memory merge, falling back to the persisted
// snapshot. It never contacts the backend.
func (r *Reconciler) ListCached(ctx context.Context, f Filter) ([]Asset, time.Time, error) {
	if cached, at, ok := r.Cached(); ok {
		return Apply(cached, f), at, nil
	}
	if r.snapshots == nil {
		return nil, time.Time{}, nil
	}
	list, at, err := r.snapshots.LoadAssetSnapshot(ctx)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("load asset snapshot: %w", err)
	}
	return Apply(list, f), at, nil
}

// Invalidate drops the cached merge so the next List refetches.
func (r *Reconciler) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cached = nil
	r.cachedAt = time.Time{}
}

// Get returns one asset with its full body. The structured store wins; the
// legacy history is consulted on a miss or error and its raw record is
// attached as Original.
func (r *Reconciler) Get(ctx context.Context, id string) (Asset, error) {
	row, err := r.source.GetAsset(ctx, id)
	if err == nil {
		asset := fromStructured(row)
		if hasSeparateContent(asset.Type) {
			asset.Content = r.fetchContent(ctx, id)
		}
		if originalID(asset) != "" {
			if attached, err := r.AttachOriginals(ctx, []Asset{asset}); err == nil {
				asset = attached[0]
			} else {
				r.logger.Debug("migrated asset history unavailable",
					logging.String(logging.FieldAssetID, id),
					logging.Error(err),
				)
			}
		}
		return asset, nil
	}
	if !backend.IsNotFound(err) {
		r.logger.Debug("structured asset lookup failed; trying history",
			logging.String(logging.FieldAssetID, id),
			logging.Error(err),
		)
	}

	entries, histErr := r.source.ListHistory(ctx)
	if histErr != nil {
		r.logger.Debug("history lookup failed",
			logging.String(logging.FieldAssetID, id),
			logging.Error(histErr),
		)
		return Asset{}, fmt.Errorf("asset %s: %w", id, ErrAssetNotFound)
	}
	for _, entry := range entries {
		if entry.ID != id {
			continue
		}
		asset := fromLegacy(entry)
		asset.Original = entry.Raw
		return asset, nil
	}
	return Asset{}, fmt.Errorf("asset %s: %w", id, ErrAssetNotFound)
}

// AttachOriginals sets Original on every asset backed by a legacy history
// record, either directly or as the migrated copy named by original_id. The
// history is fetched once for the whole list, and only when some asset needs
// it. The input slice is not modified.
func (r *Reconciler) AttachOriginals(ctx context.Context, list []Asset) ([]Asset, error) {
	out := slices.Clone(list)
	wanted := make(map[string][]int)
	for i, a := range out {
		if len(a.Original) > 0 {
			continue
		}
		if key := legacyKey(a); key != "" {
			wanted[key] = append(wanted[key], i)
		}
	}
	if len(wanted) == 0 {
		return out, nil
	}
	entries, err := r.source.ListHistory(ctx)
	if err != nil {
		return out, fmt.Errorf("list history: %w", err)
	}
	for _, entry := range entries {
		for _, i := range wanted[entry.ID] {
			out[i].Original = entry.Raw
		}
	}
	return out, nil
}

// legacyKey is the history id holding a's per-reel results.
func legacyKey(a Asset) string {
	if a.Origin == OriginLegacy {
		return a.ID
	}
	return originalID(a)
}

func (r *Reconciler) fetchContent(ctx context.Context, id string) string {
	content, err := r.source.GetAssetContent(ctx, id)
	if err != nil {
		r.logger.Debug("asset content unavailable",
			logging.String(logging.FieldAssetID, id),
			logging.Error(err),
		)
		return ""
	}
	return content
}

// Delete removes an asset from whichever store accepts it, structured first.
func (r *Reconciler) Delete(ctx context.Context, id string) (MutationResult, error) {
	return r.mutate(ctx, "delete", id,
		func() (bool, error) { return false, r.source.DeleteAsset(ctx, id) },
		func() (bool, error) { return false, r.source.DeleteHistory(ctx, id) },
	)
}

// ToggleStar flips the starred flag in whichever store accepts it,
// structured first.
func (r *Reconciler) ToggleStar(ctx context.Context, id string) (MutationResult, error) {
	return r.mutate(ctx, "star", id,
		func() (bool, error) { return r.source.ToggleAssetStar(ctx, id) },
		func() (bool, error) { return r.source.ToggleHistoryStar(ctx, id) },
	)
}

func (r *Reconciler) mutate(ctx context.Context, op, id string, structured, legacy func() (bool, error)) (MutationResult, error) {
	starred, err := structured()
	if err == nil {
		r.Invalidate()
		r.logMutation(op, id, OriginStructured)
		return MutationResult{ID: id, Backend: OriginStructured, Starred: starred}, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return MutationResult{}, ctxErr
	}
	starred, legacyErr := legacy()
	if legacyErr == nil {
		r.Invalidate()
		r.logMutation(op, id, OriginLegacy)
		return MutationResult{ID: id, Backend: OriginLegacy, Starred: starred}, nil
	}
	joined := errors.Join(
		fmt.Errorf("structured: %w", err),
		fmt.Errorf("legacy: %w", legacyErr),
	)
	if backend.IsNotFound(err) && backend.IsNotFound(legacyErr) {
		return MutationResult{}, fmt.Errorf("%s asset %s: %w", op, id, errors.Join(ErrAssetNotFound, joined))
	}
	return MutationResult{}, fmt.Errorf("%s asset %s: %w", op, id, joined)
}

func (r *Reconciler) logMutation(op, id string, origin Origin) {
	r.logger.Info("asset updated",
		logging.String("operation", op),
		logging.String(logging.FieldAssetID, id),
		logging.String(logging.FieldSource, string(origin)),
		logging.String(logging.FieldEventType, "asset_"+op),
	)
}
