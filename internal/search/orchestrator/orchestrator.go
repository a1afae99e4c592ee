// internal/search/orchestrator/orchestrator.go

// Package orchestrator is the entry point of the search core: it
// validates requests, consults the cache, resolves zones and modules,
// dispatches to the merge or fan-out engine, relaxes zero-result
// searches, and shapes the format-stable result.
package orchestrator

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	apperrors "search-orchestrator/internal/common/errors"
	"search-orchestrator/internal/common/logger"
	"search-orchestrator/internal/common/metrics"
	"search-orchestrator/internal/common/observability"
	"search-orchestrator/internal/models"
	"search-orchestrator/internal/search/agent"
	"search-orchestrator/internal/search/cache"
	"search-orchestrator/internal/search/fanout"
	"search-orchestrator/internal/search/merge"
	"search-orchestrator/internal/search/modules"
	"search-orchestrator/internal/search/query"
	"search-orchestrator/internal/search/recommend"
	"search-orchestrator/internal/search/relax"
	"search-orchestrator/internal/search/zone"
)

const defaultSuggestSize = 8

// Options carries the orchestration settings.
type Options struct {
	// RequestTimeout bounds the whole request including the relaxation
	// chain.
	RequestTimeout time.Duration
}

// Orchestrator wires the search core together.
type Orchestrator struct {
	modules   *modules.Resolver
	zones     *zone.Resolver
	cache     *cache.Cache
	merge     *merge.Engine
	fanout    *fanout.Engine
	relax     *relax.Runner
	agent     *agent.Agent
	recommend *recommend.Engine
	tracing   *observability.Tracing
	logger    logger.Logger
	opts      Options
}

func New(
	mods *modules.Resolver,
	zones *zone.Resolver,
	c *cache.Cache,
	mergeEngine *merge.Engine,
	fanoutEngine *fanout.Engine,
	relaxer *relax.Runner,
	nluAgent *agent.Agent,
	recommender *recommend.Engine,
	tracing *observability.Tracing,
	log logger.Logger,
	opts Options,
) *Orchestrator {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	return &Orchestrator{
		modules:   mods,
		zones:     zones,
		cache:     c,
		merge:     mergeEngine,
		fanout:    fanoutEngine,
		relax:     relaxer,
		agent:     nluAgent,
		recommend: recommender,
		tracing:   tracing,
		logger:    log.WithFields(map[string]interface{}{"component": "orchestrator"}),
		opts:      opts,
	}
}

// Search runs a structured search request end to end.
func (o *Orchestrator) Search(ctx context.Context, req *models.SearchRequest) (*models.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, o.opts.RequestTimeout)
	defer cancel()

	requestID := uuid.New().String()
	log := o.logger.WithFields(map[string]interface{}{
		"requestId": requestID,
		"module":    req.Module.String(),
		"target":    string(req.Target),
	})

	ctx, span := o.tracing.StartSpan(ctx, "search",
		attribute.String("search.module", req.Module.String()),
		attribute.String("search.target", string(req.Target)),
	)
	defer span.End()

	started := time.Now()
	metrics.SearchRequests.WithLabelValues(req.Module.String(), string(req.Target)).Inc()
	defer func() {
		metrics.SearchDuration.WithLabelValues(req.Module.String(), string(req.Target)).
			Observe(time.Since(started).Seconds())
	}()

	normalize(req)
	if err := validate(req); err != nil {
		return nil, err
	}

	key := cache.Key(req)
	if payload, ok := o.cache.Get(ctx, key); ok {
		var cached models.Result
		if err := json.Unmarshal(payload, &cached); err == nil {
			log.Debug("cache hit", map[string]interface{}{"key": key})
			return &cached, nil
		}
		// An unreadable entry is treated as a miss.
	}

	result, err := o.searchLive(ctx, req, log)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(result); err == nil {
		o.cache.Set(ctx, key, payload, req, result.Meta.Total)
	}
	return result, nil
}

func (o *Orchestrator) searchLive(ctx context.Context, req *models.SearchRequest, log logger.Logger) (*models.Result, error) {
	mods, err := o.modules.ResolveModules(ctx, req.Module)
	if err != nil {
		return nil, err
	}
	if err := o.modules.ValidateCategory(ctx, req.Filters.CategoryID, req.Module, mods); err != nil {
		return nil, err
	}

	// Serviceability boundary: a point outside all known zones simply
	// omits the zone filter.
	if req.Filters.HasGeo() && req.Filters.ZoneID == "" {
		req.Filters.ZoneID = o.zones.Resolve(*req.Filters.Geo)
	}

	var categoryIDs []string
	if req.Filters.CategoryID != "" {
		categoryIDs, err = o.modules.ExpandCategory(ctx, req.Filters.CategoryID)
		if err != nil {
			return nil, err
		}
	}

	var lastHits []*models.Hit
	var lastTotal int
	var lastUnified *fanout.Unified
	var lastPaged bool
	attempt := func(ctx context.Context, f models.Filters) (int, error) {
		attemptReq := *req
		attemptReq.Filters = f

		if len(mods) == 1 && req.Target == models.TargetItems {
			if isBrowse(req) {
				hits, total, err := o.merge.Browse(ctx, &attemptReq, mods[0], categoryIDs)
				if err != nil {
					return 0, err
				}
				lastHits = hits
				lastTotal = total
				lastUnified = nil
				lastPaged = true
				return total, nil
			}
			merged, err := o.merge.Search(ctx, &attemptReq, mods[0], categoryIDs)
			if err != nil {
				return 0, err
			}
			lastHits = merged.Hits
			lastTotal = len(merged.Hits)
			lastUnified = nil
			lastPaged = false
			return lastTotal, nil
		}

		unified, err := o.fanout.Search(ctx, &attemptReq, mods, categoryIDs)
		if err != nil {
			return 0, err
		}
		lastHits = unified.Hits
		lastTotal = unified.Total
		lastUnified = unified
		lastPaged = true
		// Relaxation asks whether anything matched, not whether the
		// requested page slice is non-empty: a deep page over a
		// non-empty union must not trigger the cascade.
		return unified.Total, nil
	}

	relaxedFilters, applied, err := o.relax.Run(ctx, req.Filters, attempt)
	if err != nil {
		return nil, err
	}
	if lastTotal == 0 {
		metrics.ZeroResultSearches.WithLabelValues(req.Module.String()).Inc()
	}

	// The merge path carries the full deduplicated pool; page it here.
	pageHits := lastHits
	if !lastPaged {
		pageHits = fanout.Paginate(lastHits, req.Pagination)
	}

	o.modules.BackfillStoreNames(ctx, pageHits)

	result := &models.Result{
		Q:       req.Query,
		Filters: relaxedFilters,
		Meta:    models.NewMeta(lastTotal, req.Pagination, req.Filters.HasGeo()),
	}
	for _, step := range applied {
		result.Relaxed = append(result.Relaxed, string(step))
	}
	if req.Target == models.TargetStores {
		result.Stores = pageHits
	} else {
		result.Items = pageHits
	}
	if lastUnified != nil && len(mods) > 1 {
		result.Modules = lastUnified.Modules
		result.ModuleCounts = lastUnified.ModuleCounts
	}
	if lastUnified != nil {
		result.Degraded = lastUnified.Degraded
	}

	log.Info("search completed", map[string]interface{}{
		"total":   lastTotal,
		"page":    req.Pagination.Page,
		"relaxed": len(applied),
	})
	return result, nil
}

// SearchText parses free text into a plan and runs it. The plan's
// relaxation history is merged into the result.
func (o *Orchestrator) SearchText(ctx context.Context, text string, geo *models.GeoPoint, p models.Pagination) (*models.Result, error) {
	plan := o.agent.BuildPlan(ctx, text, geo)

	req := &models.SearchRequest{
		Query:      plan.Query,
		Target:     plan.Target,
		Module:     plan.Module,
		Filters:    plan.ToFilters(),
		Pagination: p,
	}
	return o.Search(ctx, req)
}

// Suggest serves autocomplete: a prefix query against the item and
// store indices of the resolved modules. Query text is required.
func (o *Orchestrator) Suggest(ctx context.Context, text string, sel models.ModuleSelector, size int) (*models.Result, error) {
	if text == "" {
		return nil, apperrors.NewMissingQueryTextError("suggest")
	}
	if size <= 0 {
		size = defaultSuggestSize
	}

	ctx, cancel := context.WithTimeout(ctx, o.opts.RequestTimeout)
	defer cancel()

	mods, err := o.modules.ResolveModules(ctx, sel)
	if err != nil {
		return nil, err
	}

	unified, err := o.fanout.Suggest(ctx, text, mods, size)
	if err != nil {
		return nil, err
	}

	return &models.Result{
		Q:     text,
		Items: unified.Hits,
		Meta:  models.NewMeta(unified.Total, models.Pagination{Page: 1, Size: size}, false),
	}, nil
}

// Recommend resolves the module's item index and serves the
// co-occurrence lookup.
func (o *Orchestrator) Recommend(ctx context.Context, sel models.ModuleSelector, itemID, storeID string, limit int) (*recommend.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, o.opts.RequestTimeout)
	defer cancel()

	mods, err := o.modules.ResolveModules(ctx, sel)
	if err != nil {
		return nil, err
	}
	// An empty selector resolves to every module, which is an empty list
	// when none are configured.
	if len(mods) == 0 {
		return nil, apperrors.NewUnknownModuleError(sel.String())
	}
	return o.recommend.Recommend(ctx, mods[0].IndexName, itemID, storeID, limit)
}

// InvalidateStore drops cached results that referenced the store.
func (o *Orchestrator) InvalidateStore(ctx context.Context, storeID string) int {
	return o.cache.InvalidatePattern(ctx, cache.StorePattern(storeID))
}

// InvalidateModule drops cached results scoped to the module.
func (o *Orchestrator) InvalidateModule(ctx context.Context, moduleID string) int {
	return o.cache.InvalidatePattern(ctx, cache.ModulePattern(moduleID))
}

// isBrowse reports whether the request is a query-less category listing,
// which takes the tighter page cap and the dedicated browse query.
func isBrowse(req *models.SearchRequest) bool {
	return strings.TrimSpace(req.Query) == "" && req.Filters.CategoryID != ""
}

// normalize fills request defaults in place.
func normalize(req *models.SearchRequest) {
	if req.Target == "" {
		req.Target = models.TargetItems
	}
	if req.Pagination.Page < 1 {
		req.Pagination.Page = 1
	}
	if req.Pagination.Size <= 0 {
		req.Pagination.Size = 20
	}
	limit := query.MaxPageSize
	if isBrowse(req) {
		limit = query.BrowsePageSize
	}
	if req.Pagination.Size > limit {
		req.Pagination.Size = limit
	}
	// The (0,0) sentinel means "no location".
	if req.Filters.Geo != nil && req.Filters.Geo.IsZero() {
		req.Filters.Geo = nil
	}
}

// validate rejects malformed filters before any upstream work.
func validate(req *models.SearchRequest) error {
	f := req.Filters
	if f.PriceMin != nil && *f.PriceMin < 0 {
		return apperrors.NewInvalidFilterFormatError("price_min must be non-negative")
	}
	if f.PriceMax != nil && *f.PriceMax < 0 {
		return apperrors.NewInvalidFilterFormatError("price_max must be non-negative")
	}
	if f.PriceMin != nil && f.PriceMax != nil && *f.PriceMin > *f.PriceMax {
		return apperrors.NewInvalidFilterFormatError("price_min exceeds price_max")
	}
	if f.RatingMin != nil && (*f.RatingMin < 0 || *f.RatingMin > 5) {
		return apperrors.NewInvalidFilterFormatError("rating_min must be between 0 and 5")
	}
	if f.RadiusKm < 0 {
		return apperrors.NewInvalidFilterFormatError("radius_km must be non-negative")
	}
	if f.CategoryID != "" && req.Module.IsEmpty() {
		return apperrors.NewMissingModuleForCategoryError(f.CategoryID)
	}
	return nil
}
