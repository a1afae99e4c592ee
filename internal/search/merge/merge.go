// internal/search/merge/merge.go

// Package merge implements cross-entity item search: a user's text may
// name an item, a category, or a store, and the caller wants items in
// every case.
package merge

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"search-orchestrator/internal/common/logger"
	"search-orchestrator/internal/common/metrics"
	"search-orchestrator/internal/models"
	"search-orchestrator/internal/search/engine"
	"search-orchestrator/internal/search/query"
)

const (
	// branchFetchSize is how many hits each entry point contributes to
	// the merge pool. Pagination applies to the merged set, so every
	// branch fetches from offset zero.
	branchFetchSize = 100

	// lookupSize bounds the category/store name lookups.
	lookupSize = 20
)

// Engine runs the three entry-point searches and merges their items.
type Engine struct {
	search  engine.Engine
	builder *query.Builder
	logger  logger.Logger

	// BranchTimeout bounds each entry-point sub-query; zero leaves the
	// request budget as the only bound.
	BranchTimeout time.Duration
}

func NewEngine(search engine.Engine, builder *query.Builder, log logger.Logger) *Engine {
	return &Engine{
		search:  search,
		builder: builder,
		logger:  log.WithFields(map[string]interface{}{"component": "cross-entity-merge"}),
	}
}

// Merged is the deduplicated, fully ordered item pool before pagination.
type Merged struct {
	Hits []*models.Hit
}

// Search runs the name, category and store entry points in parallel and
// merges the item results. A failed branch contributes nothing; the call
// fails only when every branch fails.
func (e *Engine) Search(ctx context.Context, req *models.SearchRequest, module models.Module, categoryIDs []string) (*Merged, error) {
	var (
		wg       sync.WaitGroup
		byName   []*models.Hit
		byCat    []*models.Hit
		byStore  []*models.Hit
		errName  error
		errCat   error
		errStore error
	)

	hasText := strings.TrimSpace(req.Query) != ""

	wg.Add(1)
	go func() {
		defer wg.Done()
		bctx, cancel := e.branchContext(ctx)
		defer cancel()
		byName, errName = e.searchByName(bctx, req, module, categoryIDs)
	}()

	// Category and store entry points only make sense for text queries;
	// a browse request has no name to match against them.
	if hasText {
		wg.Add(2)
		go func() {
			defer wg.Done()
			bctx, cancel := e.branchContext(ctx)
			defer cancel()
			byCat, errCat = e.searchViaLookup(bctx, req, module, module.CategoryIndex(), "category_id", models.MatchCategory)
		}()
		go func() {
			defer wg.Done()
			bctx, cancel := e.branchContext(ctx)
			defer cancel()
			byStore, errStore = e.searchViaLookup(bctx, req, module, module.StoreIndex(), "store_id", models.MatchStore)
		}()
	}
	wg.Wait()

	for branch, err := range map[string]error{"name": errName, "category": errCat, "store": errStore} {
		if err != nil {
			metrics.FanoutBranchFailures.WithLabelValues(branch).Inc()
			e.logger.WithError(err).Warn("merge branch failed, contributing nothing", map[string]interface{}{
				"branch": branch,
				"module": module.ID,
			})
		}
	}
	if errName != nil && errCat != nil && errStore != nil {
		return nil, errName
	}

	merged := dedupe(byName, byCat, byStore)
	orderMerged(merged, req.Filters.Sort == models.SortDistance)
	return &Merged{Hits: merged}, nil
}

// Browse serves the query-less category listing straight from the item
// index. Without text the lookup entry points have nothing to match, so
// the engine's own offset pagination applies under the tighter browse
// cap instead of pooling.
func (e *Engine) Browse(ctx context.Context, req *models.SearchRequest, module models.Module, categoryIDs []string) ([]*models.Hit, int, error) {
	bctx, cancel := e.branchContext(ctx)
	defer cancel()

	body := e.builder.BuildCategoryBrowse(req, module.Type, categoryIDs)
	result, err := e.search.Search(bctx, module.IndexName, body, req.Filters.Geo)
	if err != nil {
		return nil, 0, err
	}
	for _, h := range result.Hits {
		if h.ModuleID == "" {
			h.ModuleID = module.ID
		}
	}
	return result.Hits, result.Total, nil
}

func (e *Engine) branchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.BranchTimeout > 0 {
		return context.WithTimeout(ctx, e.BranchTimeout)
	}
	return context.WithCancel(ctx)
}

// orderMerged applies the strict cross-entity priority: match type
// first, relevance second, distance third when the caller asked for
// distance ordering. The additive bonus alone cannot guarantee the type
// ordering against engine scores of unknown scale, so the type rank is
// an explicit primary key.
func orderMerged(hits []*models.Hit, byDistance bool) {
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if ra, rb := typeRank(a.MatchType), typeRank(b.MatchType); ra != rb {
			return ra < rb
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if byDistance {
			return compareFloatAsc(a.DistanceKm, b.DistanceKm) < 0
		}
		return false
	})
}

func typeRank(m models.MatchType) int {
	switch m {
	case models.MatchExactName:
		return 0
	case models.MatchCategory:
		return 1
	case models.MatchStore:
		return 2
	default:
		return 3
	}
}

func (e *Engine) searchByName(ctx context.Context, req *models.SearchRequest, module models.Module, categoryIDs []string) ([]*models.Hit, error) {
	pooled := *req
	pooled.Pagination = models.Pagination{Page: 1, Size: branchFetchSize}

	body := e.builder.BuildItemSearch(&pooled, module.Type, categoryIDs)
	result, err := e.search.Search(ctx, module.IndexName, body, req.Filters.Geo)
	if err != nil {
		return nil, err
	}
	return tag(result.Hits, module.ID, models.MatchExactName), nil
}

// searchViaLookup resolves entity ids from a name index, then maps them
// back to items with a term filter, keeping the caller's other filters.
func (e *Engine) searchViaLookup(ctx context.Context, req *models.SearchRequest, module models.Module, lookupIndex, idField string, matchType models.MatchType) ([]*models.Hit, error) {
	lookup, err := e.search.Search(ctx, lookupIndex, e.builder.BuildNameLookup(req.Query, lookupSize), nil)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(lookup.Hits))
	for _, h := range lookup.Hits {
		if h.ID != "" {
			ids = append(ids, h.ID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	// The entity id coming from the lookup replaces any conflicting
	// caller filter of the same kind; other filters still apply.
	filters := req.Filters
	body := e.builder.BuildItemsByIDs(idField, ids, filters, module.Type, branchFetchSize)
	result, err := e.search.Search(ctx, module.IndexName, body, req.Filters.Geo)
	if err != nil {
		return nil, err
	}
	return tag(result.Hits, module.ID, matchType), nil
}

func tag(hits []*models.Hit, moduleID string, matchType models.MatchType) []*models.Hit {
	for _, h := range hits {
		h.MatchType = matchType
		if h.ModuleID == "" {
			h.ModuleID = moduleID
		}
	}
	return hits
}

// dedupe concatenates the branches in priority order and keeps the first
// occurrence of each item id.
func dedupe(branches ...[]*models.Hit) []*models.Hit {
	seen := map[string]bool{}
	var out []*models.Hit
	for _, branch := range branches {
		for _, h := range branch {
			if h.ID == "" || seen[h.ID] {
				continue
			}
			seen[h.ID] = true
			out = append(out, h)
		}
	}
	return out
}

// SortHits orders a merged hit list. The match-type bonus dominates the
// engine score, so differently-typed hits never interleave; distance is
// the tiebreak (and the primary key under sort=distance), and sorting is
// stable so equal hits keep branch order.
func SortHits(hits []*models.Hit, key models.SortKey) {
	less := func(a, b *models.Hit) bool {
		switch key {
		case models.SortDistance:
			if c := compareFloatAsc(a.DistanceKm, b.DistanceKm); c != 0 {
				return c < 0
			}
			return a.SortScore() > b.SortScore()
		case models.SortPriceAsc:
			if c := compareFloatAsc(a.Price, b.Price); c != 0 {
				return c < 0
			}
		case models.SortPriceDesc:
			if c := compareFloatAsc(a.Price, b.Price); c != 0 {
				return c > 0
			}
		case models.SortRating:
			if c := compareFloatAsc(a.Rating, b.Rating); c != 0 {
				return c > 0
			}
		case models.SortPopularity:
			if c := compareIntAsc(a.OrderCount, b.OrderCount); c != 0 {
				return c > 0
			}
		}
		if a.SortScore() != b.SortScore() {
			return a.SortScore() > b.SortScore()
		}
		return compareFloatAsc(a.DistanceKm, b.DistanceKm) < 0
	}
	sort.SliceStable(hits, func(i, j int) bool { return less(hits[i], hits[j]) })
}

// compareFloatAsc orders present values ascending and absent values
// last.
func compareFloatAsc(a, b *float64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case *a < *b:
		return -1
	case *a > *b:
		return 1
	default:
		return 0
	}
}

func compareIntAsc(a, b *int64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case *a < *b:
		return -1
	case *a > *b:
		return 1
	default:
		return 0
	}
}
