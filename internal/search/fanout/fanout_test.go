// internal/search/fanout/fanout_test.go
package fanout

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"search-orchestrator/internal/common/logger"
	"search-orchestrator/internal/models"
	"search-orchestrator/internal/search/engine"
	"search-orchestrator/internal/search/query"
)

// fakeEngine serves canned positional results.
type fakeEngine struct {
	results map[string]*engine.Result
	errs    map[string]error
	calls   map[string]int
	msearch int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		results: map[string]*engine.Result{},
		errs:    map[string]error{},
		calls:   map[string]int{},
	}
}

func (f *fakeEngine) Search(_ context.Context, index string, _ map[string]interface{}, _ *models.GeoPoint) (*engine.Result, error) {
	f.calls[index]++
	if err, ok := f.errs[index]; ok {
		return nil, err
	}
	if res, ok := f.results[index]; ok {
		return res, nil
	}
	return &engine.Result{}, nil
}

func (f *fakeEngine) MultiSearch(ctx context.Context, searches []engine.IndexedSearch, geo *models.GeoPoint) ([]*engine.Result, error) {
	f.msearch++
	out := make([]*engine.Result, len(searches))
	for i, s := range searches {
		res, err := f.Search(ctx, s.Index, s.Body, geo)
		if err != nil {
			continue
		}
		out[i] = res
	}
	return out, nil
}

func modules(n int) []models.Module {
	types := []models.ModuleType{models.ModuleFood, models.ModuleRetail, models.ModuleServices}
	out := make([]models.Module, n)
	for i := 0; i < n; i++ {
		out[i] = models.Module{
			ID:        fmt.Sprintf("mod-%d", i),
			Type:      types[i%len(types)],
			IndexName: fmt.Sprintf("items_%d", i),
		}
	}
	return out
}

func pricedHits(prefix string, prices ...float64) *engine.Result {
	res := &engine.Result{Total: len(prices)}
	for i, p := range prices {
		price := p
		res.Hits = append(res.Hits, &models.Hit{
			ID:    fmt.Sprintf("%s-%d", prefix, i),
			Price: &price,
		})
	}
	return res
}

func newTestEngine(fake *fakeEngine) *Engine {
	return NewEngine(fake, query.NewBuilder(), logger.NewNoOpLogger())
}

func TestSearch_SingleIndexUsesPlainSearch(t *testing.T) {
	fake := newFakeEngine()
	fake.results["items_0"] = pricedHits("a", 10, 20)

	req := &models.SearchRequest{Query: "pizza", Pagination: models.Pagination{Page: 1, Size: 20}}
	u, err := newTestEngine(fake).Search(context.Background(), req, modules(1), nil)
	require.NoError(t, err)

	assert.Len(t, u.Hits, 2)
	assert.Equal(t, 2, u.Total)
	assert.Equal(t, 0, fake.msearch)
	assert.Equal(t, 1, fake.calls["items_0"])
}

func TestSearch_MultiIndexUsesMsearch(t *testing.T) {
	fake := newFakeEngine()
	fake.results["items_0"] = pricedHits("a", 10)
	fake.results["items_1"] = pricedHits("b", 20)
	fake.results["items_2"] = pricedHits("c", 30)

	req := &models.SearchRequest{Query: "soap", Pagination: models.Pagination{Page: 1, Size: 20}}
	u, err := newTestEngine(fake).Search(context.Background(), req, modules(3), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, fake.msearch)
	assert.Len(t, u.Hits, 3)
	assert.Equal(t, []string{"mod-0", "mod-1", "mod-2"}, u.Modules)
}

func TestSearch_PaginationAfterMerge(t *testing.T) {
	// Three indices with 10 hits each, priced so the fully merged
	// ordering is known: page 2 of the union must be ranks 11-20.
	fake := newFakeEngine()
	for idx := 0; idx < 3; idx++ {
		prices := make([]float64, 10)
		for i := 0; i < 10; i++ {
			// Interleaved prices: index 0 has 1,4,7..., index 1 has 2,5,8...
			prices[i] = float64(idx + 1 + i*3)
		}
		fake.results[fmt.Sprintf("items_%d", idx)] = pricedHits(fmt.Sprintf("m%d", idx), prices...)
	}

	req := &models.SearchRequest{
		Filters:    models.Filters{Sort: models.SortPriceAsc},
		Pagination: models.Pagination{Page: 2, Size: 10},
	}
	u, err := newTestEngine(fake).Search(context.Background(), req, modules(3), nil)
	require.NoError(t, err)

	require.Len(t, u.Hits, 10)
	assert.Equal(t, 30, u.Total)

	// Ranks 11-20 of the merged set are prices 11..20.
	for i, h := range u.Hits {
		require.NotNil(t, h.Price)
		assert.Equal(t, float64(11+i), *h.Price)
	}
}

func TestSearch_FailedBranchContributesEmpty(t *testing.T) {
	fake := newFakeEngine()
	fake.results["items_0"] = pricedHits("a", 10, 20)
	fake.errs["items_1"] = errors.New("index down")
	fake.results["items_2"] = pricedHits("c", 30)

	req := &models.SearchRequest{Pagination: models.Pagination{Page: 1, Size: 20}}
	u, err := newTestEngine(fake).Search(context.Background(), req, modules(3), nil)
	require.NoError(t, err)

	assert.Len(t, u.Hits, 3)
	assert.Equal(t, 3, u.Total)
	require.Len(t, u.ModuleCounts, 3)
	assert.Equal(t, 2, u.ModuleCounts[0].Count)
	assert.Equal(t, 0, u.ModuleCounts[1].Count)
	assert.Equal(t, 1, u.ModuleCounts[2].Count)
	assert.Equal(t, []string{"module mod-1 unavailable"}, u.Degraded)
}

func TestSearch_AllBranchesFailed(t *testing.T) {
	fake := newFakeEngine()
	fake.errs["items_0"] = errors.New("down")
	fake.errs["items_1"] = errors.New("down")

	req := &models.SearchRequest{Pagination: models.Pagination{Page: 1, Size: 20}}
	_, err := newTestEngine(fake).Search(context.Background(), req, modules(2), nil)
	assert.Error(t, err)
}

func TestSearch_StoresTargetUsesStoreIndices(t *testing.T) {
	fake := newFakeEngine()
	fake.results["stores_food"] = pricedHits("s", 1)

	req := &models.SearchRequest{Target: models.TargetStores, Pagination: models.Pagination{Page: 1, Size: 20}}
	u, err := newTestEngine(fake).Search(context.Background(), req, modules(1), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, fake.calls["stores_food"])
	assert.Len(t, u.Hits, 1)
}

func TestSearch_ModuleIDTagging(t *testing.T) {
	fake := newFakeEngine()
	fake.results["items_0"] = pricedHits("a", 10)

	req := &models.SearchRequest{Pagination: models.Pagination{Page: 1, Size: 20}}
	u, err := newTestEngine(fake).Search(context.Background(), req, modules(1), nil)
	require.NoError(t, err)
	assert.Equal(t, "mod-0", u.Hits[0].ModuleID)
}

func TestSuggest_QueriesItemAndStoreIndices(t *testing.T) {
	fake := newFakeEngine()
	fake.results["items_0"] = pricedHits("i", 10)
	fake.results["stores_food"] = pricedHits("s", 20, 30)

	u, err := newTestEngine(fake).Suggest(context.Background(), "te", modules(1), 5)
	require.NoError(t, err)

	assert.Equal(t, 1, fake.calls["items_0"])
	assert.Equal(t, 1, fake.calls["stores_food"])
	assert.Len(t, u.Hits, 3)
	assert.Equal(t, 3, u.Total)

	// The size bound applies to the combined list.
	u, err = newTestEngine(fake).Suggest(context.Background(), "te", modules(1), 2)
	require.NoError(t, err)
	assert.Len(t, u.Hits, 2)
}

func TestSuggest_FailedBranchContributesEmpty(t *testing.T) {
	fake := newFakeEngine()
	fake.results["items_0"] = pricedHits("i", 10)
	fake.errs["stores_food"] = errors.New("index down")

	u, err := newTestEngine(fake).Suggest(context.Background(), "te", modules(1), 5)
	require.NoError(t, err)
	assert.Len(t, u.Hits, 1)
}

// slowEngine blocks until its context expires.
type slowEngine struct{}

func (slowEngine) Search(ctx context.Context, _ string, _ map[string]interface{}, _ *models.GeoPoint) (*engine.Result, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (slowEngine) MultiSearch(ctx context.Context, searches []engine.IndexedSearch, _ *models.GeoPoint) ([]*engine.Result, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestSearch_BranchTimeoutBoundsSlowQueries(t *testing.T) {
	e := NewEngine(slowEngine{}, query.NewBuilder(), logger.NewNoOpLogger())
	e.BranchTimeout = 5 * time.Millisecond

	req := &models.SearchRequest{Pagination: models.Pagination{Page: 1, Size: 20}}
	start := time.Now()
	_, err := e.Search(context.Background(), req, modules(1), nil)

	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestPaginate(t *testing.T) {
	pool := pricedHits("x", 1, 2, 3, 4, 5).Hits

	tests := []struct {
		name     string
		p        models.Pagination
		expected int
	}{
		{"first page", models.Pagination{Page: 1, Size: 2}, 2},
		{"last partial page", models.Pagination{Page: 3, Size: 2}, 1},
		{"beyond end", models.Pagination{Page: 4, Size: 2}, 0},
		{"defaults", models.Pagination{}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, Paginate(pool, tt.p), tt.expected)
		})
	}
}
