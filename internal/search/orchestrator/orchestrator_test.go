// internal/search/orchestrator/orchestrator_test.go
package orchestrator

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "search-orchestrator/internal/common/errors"
	"search-orchestrator/internal/common/logger"
	"search-orchestrator/internal/common/observability"
	"search-orchestrator/internal/models"
	"search-orchestrator/internal/search/agent"
	"search-orchestrator/internal/search/cache"
	"search-orchestrator/internal/search/engine"
	"search-orchestrator/internal/search/fanout"
	"search-orchestrator/internal/search/merge"
	"search-orchestrator/internal/search/modules"
	"search-orchestrator/internal/search/query"
	"search-orchestrator/internal/search/recommend"
	"search-orchestrator/internal/search/relax"
	"search-orchestrator/internal/search/zone"
)

// fakeSearchEngine routes every query through a handler and counts
// calls.
type fakeSearchEngine struct {
	mu      sync.Mutex
	handler func(index string, body map[string]interface{}) (*engine.Result, error)
	calls   int
}

func (f *fakeSearchEngine) Search(_ context.Context, index string, body map[string]interface{}, _ *models.GeoPoint) (*engine.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.handler(index, body)
}

func (f *fakeSearchEngine) MultiSearch(ctx context.Context, searches []engine.IndexedSearch, geo *models.GeoPoint) ([]*engine.Result, error) {
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

func (f *fakeSearchEngine) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeMetadata implements modules.Store with fixed metadata.
type fakeMetadata struct {
	modules    []models.Module
	categories []models.Category
	stores     []models.Store
}

func (f *fakeMetadata) ListModules(context.Context) ([]models.Module, error) {
	return f.modules, nil
}

func (f *fakeMetadata) ListCategories(_ context.Context, moduleID string) ([]models.Category, error) {
	var out []models.Category
	for _, c := range f.categories {
		if c.ModuleID == moduleID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeMetadata) GetCategory(_ context.Context, id string) (*models.Category, error) {
	for i := range f.categories {
		if f.categories[i].ID == id {
			return &f.categories[i], nil
		}
	}
	return nil, nil
}

func (f *fakeMetadata) GetStores(_ context.Context, ids []string) ([]models.Store, error) {
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []models.Store
	for _, st := range f.stores {
		if want[st.ID] {
			out = append(out, st)
		}
	}
	return out, nil
}

func (f *fakeMetadata) FindStoresByName(_ context.Context, name string, _ int) ([]models.Store, error) {
	var out []models.Store
	for _, st := range f.stores {
		if strings.Contains(strings.ToLower(st.Name), strings.ToLower(name)) {
			out = append(out, st)
		}
	}
	return out, nil
}

type fixture struct {
	orch   *Orchestrator
	engine *fakeSearchEngine
	redis  *miniredis.Miniredis
}

func newFixture(t *testing.T, handler func(index string, body map[string]interface{}) (*engine.Result, error)) *fixture {
	t.Helper()
	meta := &fakeMetadata{
		modules: []models.Module{
			{ID: "mod-food", Type: models.ModuleFood, DisplayName: "Food", IndexName: "items_food"},
			{ID: "mod-grocery", Type: models.ModuleRetail, DisplayName: "Grocery", IndexName: "items_grocery"},
		},
		categories: []models.Category{
			{ID: "cat-pizza", ModuleID: "mod-food", Name: "Pizza"},
		},
		stores: []models.Store{
			{ID: "s1", ModuleID: "mod-food", Name: "Star Cafe"},
		},
	}
	return newFixtureWithMeta(t, meta, handler)
}

func newFixtureWithMeta(t *testing.T, meta *fakeMetadata, handler func(index string, body map[string]interface{}) (*engine.Result, error)) *fixture {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	log := logger.NewNoOpLogger()
	modResolver := modules.NewResolver(meta, log)

	zones := zone.NewResolver(nil, log)
	zones.SetZones([]models.Zone{{
		ID: "zone-nashik",
		Polygon: []models.GeoPoint{
			{Lat: 19.9, Lon: 73.7}, {Lat: 19.9, Lon: 73.9},
			{Lat: 20.1, Lon: 73.9}, {Lat: 20.1, Lon: 73.7},
		},
	}})

	fake := &fakeSearchEngine{handler: handler}
	builder := query.NewBuilder()
	c := cache.New(rdb, cache.DefaultTTLPolicy(), 100*time.Millisecond, log)

	orch := New(
		modResolver,
		zones,
		c,
		merge.NewEngine(fake, builder, log),
		fanout.NewEngine(fake, builder, log),
		relax.NewRunner(log),
		agent.NewAgent(&agent.RuleParser{}, nil, modResolver, log),
		recommend.NewEngine(fake, log),
		observability.NewTracing("search-test", ""),
		log,
		Options{RequestTimeout: 5 * time.Second},
	)
	return &fixture{orch: orch, engine: fake, redis: mr}
}

func bodyHas(body map[string]interface{}, substr string) bool {
	raw, _ := json.Marshal(body)
	return strings.Contains(string(raw), substr)
}

func namedHit(id string, score float64) *models.Hit {
	name := "hit " + id
	return &models.Hit{ID: id, Score: score, Name: &name}
}

func itemsHandler(hits ...*models.Hit) func(string, map[string]interface{}) (*engine.Result, error) {
	return func(index string, _ map[string]interface{}) (*engine.Result, error) {
		if strings.HasPrefix(index, "items_") {
			return &engine.Result{Hits: hits, Total: len(hits)}, nil
		}
		return &engine.Result{}, nil
	}
}

func TestSearch_SingleModuleReturnsItems(t *testing.T) {
	fx := newFixture(t, itemsHandler(namedHit("i1", 9), namedHit("i2", 4)))

	res, err := fx.orch.Search(context.Background(), &models.SearchRequest{
		Query:  "pizza",
		Module: models.ModuleSelector{ID: "mod-food"},
	})
	require.NoError(t, err)

	require.Len(t, res.Items, 2)
	assert.Equal(t, "pizza", res.Q)
	assert.Equal(t, 2, res.Meta.Total)
	assert.Equal(t, 1, res.Meta.Page)
	assert.Equal(t, 1, res.Meta.TotalPages)
	assert.False(t, res.Meta.HasMore)
	assert.False(t, res.Meta.HasGeo)
	assert.Empty(t, res.Relaxed)
}

func TestSearch_CacheIdempotence(t *testing.T) {
	fx := newFixture(t, itemsHandler(namedHit("i1", 9)))
	req := func() *models.SearchRequest {
		return &models.SearchRequest{Query: "pizza", Module: models.ModuleSelector{ID: "mod-food"}}
	}

	first, err := fx.orch.Search(context.Background(), req())
	require.NoError(t, err)
	callsAfterFirst := fx.engine.callCount()
	require.Greater(t, callsAfterFirst, 0)

	second, err := fx.orch.Search(context.Background(), req())
	require.NoError(t, err)

	// The second call is served from cache: identical payload, no new
	// engine queries.
	assert.Equal(t, callsAfterFirst, fx.engine.callCount())
	firstJSON, _ := json.Marshal(first)
	secondJSON, _ := json.Marshal(second)
	assert.JSONEq(t, string(firstJSON), string(secondJSON))
}

func TestSearch_CategoryRequiresModule(t *testing.T) {
	fx := newFixture(t, itemsHandler())

	_, err := fx.orch.Search(context.Background(), &models.SearchRequest{
		Query:   "pizza",
		Filters: models.Filters{CategoryID: "cat-pizza"},
	})

	var stdErr *apperrors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, apperrors.ErrCodeMissingModuleForCategory, stdErr.Code)
}

func TestSearch_CategoryModuleMismatch(t *testing.T) {
	fx := newFixture(t, itemsHandler())

	_, err := fx.orch.Search(context.Background(), &models.SearchRequest{
		Query:   "pizza",
		Module:  models.ModuleSelector{ID: "mod-grocery"},
		Filters: models.Filters{CategoryID: "cat-pizza"},
	})

	var stdErr *apperrors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, apperrors.ErrCodeCategoryModuleMismatch, stdErr.Code)
}

func TestSearch_InvalidFilters(t *testing.T) {
	fx := newFixture(t, itemsHandler())
	lo, hi := 500.0, 100.0

	_, err := fx.orch.Search(context.Background(), &models.SearchRequest{
		Query:   "pizza",
		Module:  models.ModuleSelector{ID: "mod-food"},
		Filters: models.Filters{PriceMin: &lo, PriceMax: &hi},
	})

	var stdErr *apperrors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, apperrors.ErrCodeInvalidFilterFormat, stdErr.Code)
}

func TestSearch_ZoneFilterApplied(t *testing.T) {
	var sawZone bool
	fx := newFixture(t, func(index string, body map[string]interface{}) (*engine.Result, error) {
		if strings.HasPrefix(index, "items_") && bodyHas(body, "zone-nashik") {
			sawZone = true
		}
		return &engine.Result{Hits: []*models.Hit{namedHit("i1", 1)}, Total: 1}, nil
	})

	res, err := fx.orch.Search(context.Background(), &models.SearchRequest{
		Query:   "pizza",
		Module:  models.ModuleSelector{ID: "mod-food"},
		Filters: models.Filters{Geo: &models.GeoPoint{Lat: 19.9975, Lon: 73.7898}},
	})
	require.NoError(t, err)

	assert.True(t, sawZone)
	assert.True(t, res.Meta.HasGeo)
}

func TestSearch_ZeroGeoSentinel(t *testing.T) {
	fx := newFixture(t, itemsHandler(namedHit("i1", 1)))

	res, err := fx.orch.Search(context.Background(), &models.SearchRequest{
		Query:   "pizza",
		Module:  models.ModuleSelector{ID: "mod-food"},
		Filters: models.Filters{Geo: &models.GeoPoint{}},
	})
	require.NoError(t, err)
	assert.False(t, res.Meta.HasGeo)
}

func TestSearch_RelaxationRecovery(t *testing.T) {
	// Zero results while the open_now filter is present; results after
	// it is dropped.
	fx := newFixture(t, func(index string, body map[string]interface{}) (*engine.Result, error) {
		if !strings.HasPrefix(index, "items_") {
			return &engine.Result{}, nil
		}
		if bodyHas(body, "open_now") {
			return &engine.Result{}, nil
		}
		return &engine.Result{Hits: []*models.Hit{namedHit("i1", 2)}, Total: 1}, nil
	})

	res, err := fx.orch.Search(context.Background(), &models.SearchRequest{
		Query:   "pizza",
		Module:  models.ModuleSelector{ID: "mod-food"},
		Filters: models.Filters{OpenNow: true},
	})
	require.NoError(t, err)

	require.Len(t, res.Items, 1)
	assert.Equal(t, []string{"open_now"}, res.Relaxed)
	assert.False(t, res.Filters.OpenNow)
}

func TestSearch_CrossModuleFanout(t *testing.T) {
	fx := newFixture(t, func(index string, _ map[string]interface{}) (*engine.Result, error) {
		switch index {
		case "items_food":
			return &engine.Result{Hits: []*models.Hit{namedHit("f1", 5)}, Total: 1}, nil
		case "items_grocery":
			return &engine.Result{Hits: []*models.Hit{namedHit("g1", 8)}, Total: 1}, nil
		}
		return &engine.Result{}, nil
	})

	res, err := fx.orch.Search(context.Background(), &models.SearchRequest{Query: "oil"})
	require.NoError(t, err)

	require.Len(t, res.Items, 2)
	assert.Equal(t, []string{"mod-food", "mod-grocery"}, res.Modules)
	require.Len(t, res.ModuleCounts, 2)
	assert.Equal(t, 2, res.Meta.Total)
	// Relevance ordering across modules.
	assert.Equal(t, "g1", res.Items[0].ID)
}

func TestSearch_DeepPageKeepsFilters(t *testing.T) {
	// A page beyond the fetched union is empty while the union is not:
	// the relaxation cascade must not fire and strip the caller's
	// filters.
	fx := newFixture(t, func(index string, _ map[string]interface{}) (*engine.Result, error) {
		if !strings.HasPrefix(index, "items_") {
			return &engine.Result{}, nil
		}
		hits := make([]*models.Hit, 15)
		for i := range hits {
			hits[i] = namedHit(index+"-"+strconv.Itoa(i), float64(30-i))
		}
		return &engine.Result{Hits: hits, Total: 15}, nil
	})

	res, err := fx.orch.Search(context.Background(), &models.SearchRequest{
		Query:      "milk",
		Filters:    models.Filters{OpenNow: true, Veg: models.VegOnly},
		Pagination: models.Pagination{Page: 10, Size: 10},
	})
	require.NoError(t, err)

	assert.Empty(t, res.Items)
	assert.Empty(t, res.Relaxed)
	assert.True(t, res.Filters.OpenNow)
	assert.Equal(t, models.VegOnly, res.Filters.Veg)
	assert.Equal(t, 30, res.Meta.Total)
	// One query per module; no relaxation retries.
	assert.Equal(t, 2, fx.engine.callCount())
}

func TestSearch_CategoryBrowseUsesTighterPageCap(t *testing.T) {
	var sawSize int
	fx := newFixture(t, func(index string, body map[string]interface{}) (*engine.Result, error) {
		if index == "items_food" {
			if size, ok := body["size"].(int); ok {
				sawSize = size
			}
			return &engine.Result{Hits: []*models.Hit{namedHit("i1", 1)}, Total: 1}, nil
		}
		return &engine.Result{}, nil
	})

	res, err := fx.orch.Search(context.Background(), &models.SearchRequest{
		Module:     models.ModuleSelector{ID: "mod-food"},
		Filters:    models.Filters{CategoryID: "cat-pizza"},
		Pagination: models.Pagination{Page: 1, Size: 80},
	})
	require.NoError(t, err)

	assert.Equal(t, query.BrowsePageSize, sawSize)
	assert.Equal(t, query.BrowsePageSize, res.Meta.Size)
	assert.Equal(t, 1, fx.engine.callCount())
	require.Len(t, res.Items, 1)
}

func TestSearch_StoreNameBackfill(t *testing.T) {
	storeID := "s1"
	hit := &models.Hit{ID: "i1", Score: 1, StoreID: &storeID}
	fx := newFixture(t, itemsHandler(hit))

	res, err := fx.orch.Search(context.Background(), &models.SearchRequest{
		Query:  "tea",
		Module: models.ModuleSelector{ID: "mod-food"},
	})
	require.NoError(t, err)

	require.Len(t, res.Items, 1)
	require.NotNil(t, res.Items[0].StoreName)
	assert.Equal(t, "Star Cafe", *res.Items[0].StoreName)
}

func TestSearchText_PlanDrivenSearch(t *testing.T) {
	var sawStoreFilter bool
	fx := newFixture(t, func(index string, body map[string]interface{}) (*engine.Result, error) {
		if strings.HasPrefix(index, "items_") && bodyHas(body, `"store_id":{"value":"s1"`) {
			sawStoreFilter = true
		}
		if strings.HasPrefix(index, "items_") {
			return &engine.Result{Hits: []*models.Hit{namedHit("i1", 3)}, Total: 1}, nil
		}
		return &engine.Result{}, nil
	})

	res, err := fx.orch.SearchText(context.Background(), "go to star cafe and order tea", nil, models.Pagination{Page: 1, Size: 10})
	require.NoError(t, err)

	assert.True(t, sawStoreFilter)
	assert.Equal(t, "tea", res.Q)
	require.Len(t, res.Items, 1)
}

func TestSuggest_RequiresQueryText(t *testing.T) {
	fx := newFixture(t, itemsHandler())

	_, err := fx.orch.Suggest(context.Background(), "", models.ModuleSelector{}, 5)
	var stdErr *apperrors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, apperrors.ErrCodeMissingQueryText, stdErr.Code)
}

func TestSuggest_ReturnsPrefixMatches(t *testing.T) {
	fx := newFixture(t, itemsHandler(namedHit("i1", 2)))

	res, err := fx.orch.Suggest(context.Background(), "piz", models.ModuleSelector{ID: "mod-food"}, 5)
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "piz", res.Q)
}

func TestSuggest_IncludesStoreIndexMatches(t *testing.T) {
	fx := newFixture(t, func(index string, _ map[string]interface{}) (*engine.Result, error) {
		switch index {
		case "items_food":
			return &engine.Result{Hits: []*models.Hit{namedHit("i1", 2)}, Total: 1}, nil
		case "stores_food":
			return &engine.Result{Hits: []*models.Hit{namedHit("s1", 7)}, Total: 1}, nil
		}
		return &engine.Result{}, nil
	})

	res, err := fx.orch.Suggest(context.Background(), "sta", models.ModuleSelector{ID: "mod-food"}, 5)
	require.NoError(t, err)

	require.Len(t, res.Items, 2)
	// Relevance ordering across both entity kinds.
	assert.Equal(t, "s1", res.Items[0].ID)
	assert.Equal(t, "i1", res.Items[1].ID)
}

func TestRecommend_NoDataIsEmpty(t *testing.T) {
	fx := newFixture(t, func(index string, body map[string]interface{}) (*engine.Result, error) {
		return &engine.Result{}, nil
	})

	res, err := fx.orch.Recommend(context.Background(), models.ModuleSelector{ID: "mod-food"}, "ghost", "", 10)
	require.NoError(t, err)
	assert.Empty(t, res.Recommendations)
	assert.Equal(t, 0, res.Meta.TotalRecommendations)
}

func TestRecommend_NoModulesConfigured(t *testing.T) {
	fx := newFixtureWithMeta(t, &fakeMetadata{}, itemsHandler())

	_, err := fx.orch.Recommend(context.Background(), models.ModuleSelector{}, "i1", "", 5)

	var stdErr *apperrors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, apperrors.ErrCodeUnknownModule, stdErr.Code)
}

func TestInvalidateStore(t *testing.T) {
	fx := newFixture(t, itemsHandler(namedHit("i1", 1)))

	req := &models.SearchRequest{
		Query:   "tea",
		Module:  models.ModuleSelector{ID: "mod-food"},
		Filters: models.Filters{StoreID: "s1"},
	}
	_, err := fx.orch.Search(context.Background(), req)
	require.NoError(t, err)

	deleted := fx.orch.InvalidateStore(context.Background(), "s1")
	assert.Equal(t, 1, deleted)
}
