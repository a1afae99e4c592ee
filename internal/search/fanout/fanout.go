// internal/search/fanout/fanout.go

// Package fanout runs one logical query against every resolved module
// index and paginates over the merged result set.
package fanout

import (
	"context"
	"strings"
	"time"

	apperrors "search-orchestrator/internal/common/errors"
	"search-orchestrator/internal/common/logger"
	"search-orchestrator/internal/common/metrics"
	"search-orchestrator/internal/models"
	"search-orchestrator/internal/search/engine"
	"search-orchestrator/internal/search/merge"
	"search-orchestrator/internal/search/query"
)

// branchFetchSize is the per-index pool size. Pagination always applies
// to the union, never per index, so every branch fetches from offset
// zero.
const branchFetchSize = 100

// Engine fans a search out across module indices.
type Engine struct {
	search  engine.Engine
	builder *query.Builder
	logger  logger.Logger

	// BranchTimeout bounds the fan-out round trip; zero leaves the
	// request budget as the only bound.
	BranchTimeout time.Duration
}

func NewEngine(search engine.Engine, builder *query.Builder, log logger.Logger) *Engine {
	return &Engine{
		search:  search,
		builder: builder,
		logger:  log.WithFields(map[string]interface{}{"component": "cross-module-fanout"}),
	}
}

// Unified is the merged, paginated cross-module result.
type Unified struct {
	Hits         []*models.Hit
	Total        int
	Modules      []string
	ModuleCounts []models.ModuleCount

	// Degraded names the modules whose branch failed; their results are
	// missing from Hits but the response is still a success.
	Degraded []string
}

// Search queries every module index. One index gets a plain search;
// several get a single multi-search round trip. A failed branch
// contributes an empty set; the call errors only when every branch
// failed.
func (e *Engine) Search(ctx context.Context, req *models.SearchRequest, mods []models.Module, categoryIDs []string) (*Unified, error) {
	pooled := *req
	pooled.Pagination = models.Pagination{Page: 1, Size: branchFetchSize}

	searches := make([]engine.IndexedSearch, len(mods))
	for i, m := range mods {
		index := m.IndexName
		if req.Target == models.TargetStores {
			index = m.StoreIndex()
		}
		searches[i] = engine.IndexedSearch{
			Index: index,
			Body:  e.builder.BuildItemSearch(&pooled, m.Type, categoryIDs),
		}
	}

	results, err := e.execute(ctx, searches, req.Filters.Geo)
	if err != nil {
		return nil, err
	}

	unified := &Unified{}
	failures := 0
	var pool []*models.Hit
	for i, res := range results {
		unified.Modules = append(unified.Modules, mods[i].ID)
		if res == nil {
			failures++
			metrics.FanoutBranchFailures.WithLabelValues(searches[i].Index).Inc()
			e.logger.Warn("fan-out branch failed, contributing empty set", map[string]interface{}{
				"index":  searches[i].Index,
				"module": mods[i].ID,
			})
			unified.ModuleCounts = append(unified.ModuleCounts, models.ModuleCount{ModuleID: mods[i].ID})
			unified.Degraded = append(unified.Degraded, "module "+mods[i].ID+" unavailable")
			continue
		}
		for _, h := range res.Hits {
			if h.ModuleID == "" {
				h.ModuleID = mods[i].ID
			}
		}
		pool = append(pool, res.Hits...)
		unified.Total += res.Total
		unified.ModuleCounts = append(unified.ModuleCounts, models.ModuleCount{ModuleID: mods[i].ID, Count: res.Total})
	}

	if failures == len(mods) {
		return nil, apperrors.NewAllPathsFailedError("every module index failed: " + indexList(searches))
	}

	merge.SortHits(pool, req.Filters.Sort)
	unified.Hits = Paginate(pool, req.Pagination)
	return unified, nil
}

// Suggest fans the autocomplete prefix query out to the item and store
// indices of every resolved module and keeps the best matches across
// both entity kinds.
func (e *Engine) Suggest(ctx context.Context, text string, mods []models.Module, size int) (*Unified, error) {
	body := e.builder.BuildSuggest(text, size)
	searches := make([]engine.IndexedSearch, 0, 2*len(mods))
	for _, m := range mods {
		searches = append(searches,
			engine.IndexedSearch{Index: m.IndexName, Body: body},
			engine.IndexedSearch{Index: m.StoreIndex(), Body: body},
		)
	}

	results, err := e.execute(ctx, searches, nil)
	if err != nil {
		return nil, err
	}

	failures := 0
	var pool []*models.Hit
	for i, res := range results {
		if res == nil {
			failures++
			metrics.FanoutBranchFailures.WithLabelValues(searches[i].Index).Inc()
			continue
		}
		for _, h := range res.Hits {
			if h.ModuleID == "" {
				h.ModuleID = mods[i/2].ID
			}
		}
		pool = append(pool, res.Hits...)
	}
	if len(searches) > 0 && failures == len(searches) {
		return nil, apperrors.NewAllPathsFailedError("every suggest index failed: " + indexList(searches))
	}

	merge.SortHits(pool, models.SortRelevance)
	if len(pool) > size {
		pool = pool[:size]
	}
	return &Unified{Hits: pool, Total: len(pool)}, nil
}

// execute runs a single search for one index and a multi-search for
// several, normalizing both into positional results.
func (e *Engine) execute(ctx context.Context, searches []engine.IndexedSearch, geo *models.GeoPoint) ([]*engine.Result, error) {
	if e.BranchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.BranchTimeout)
		defer cancel()
	}
	if len(searches) == 1 {
		res, err := e.search.Search(ctx, searches[0].Index, searches[0].Body, geo)
		if err != nil {
			// Normalize to a failed branch; the caller decides whether
			// everything failed.
			e.logger.WithError(err).Warn("single-index search failed", map[string]interface{}{
				"index": searches[0].Index,
			})
			return []*engine.Result{nil}, nil
		}
		return []*engine.Result{res}, nil
	}
	return e.search.MultiSearch(ctx, searches, geo)
}

// Paginate slices the merged pool by offset/size. Page 2 of a 3-module
// search is page 2 of the union.
func Paginate(hits []*models.Hit, p models.Pagination) []*models.Hit {
	size := p.Size
	if size <= 0 {
		size = 20
	}
	if size > query.MaxPageSize {
		size = query.MaxPageSize
	}
	page := p.Page
	if page < 1 {
		page = 1
	}

	from := (page - 1) * size
	if from >= len(hits) {
		return nil
	}
	to := from + size
	if to > len(hits) {
		to = len(hits)
	}
	return hits[from:to]
}

func indexList(searches []engine.IndexedSearch) string {
	names := make([]string, len(searches))
	for i, s := range searches {
		names[i] = s.Index
	}
	return strings.Join(names, ",")
}
