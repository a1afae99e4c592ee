// internal/search/agent/agent_test.go
package agent

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"search-orchestrator/internal/common/logger"
	"search-orchestrator/internal/models"
)

type fakeStoreResolver struct {
	store *models.Store
	err   error
	asked string
}

func (f *fakeStoreResolver) ResolveStoreByName(_ context.Context, name, _ string) (*models.Store, error) {
	f.asked = name
	return f.store, f.err
}

func TestRuleParser_StoreExtraction(t *testing.T) {
	p := &RuleParser{}

	tests := []struct {
		name          string
		text          string
		expectedStore string
		expectedQuery string
	}{
		{
			"go to pattern",
			"go to Ganesh Sweet Mart and order paneer",
			"ganesh sweet mart",
			"paneer",
		},
		{
			"order from pattern",
			"order butter naan from Star Cafe",
			"star cafe",
			"butter naan",
		},
		{
			"no store hint",
			"paneer tikka",
			"",
			"paneer tikka",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := p.Parse(tt.text, nil)
			assert.Equal(t, tt.expectedStore, plan.StoreName)
			assert.Equal(t, tt.expectedQuery, plan.Query)
		})
	}
}

func TestRuleParser_Filters(t *testing.T) {
	p := &RuleParser{Brands: []string{"Amul"}}
	geo := &models.GeoPoint{Lat: 19.99, Lon: 73.78}

	plan := p.Parse("pure veg pizza open now near me rated above 4 under rs 300", geo)

	assert.Equal(t, models.VegOnly, plan.Veg)
	assert.True(t, plan.OpenNow)
	assert.Equal(t, defaultNearMeRadiusKm, plan.RadiusKm)
	require.NotNil(t, plan.RatingMin)
	assert.Equal(t, 4.0, *plan.RatingMin)
	require.NotNil(t, plan.PriceMax)
	assert.Equal(t, 300.0, *plan.PriceMax)
	assert.Equal(t, "pizza", plan.Query)

	brandPlan := p.Parse("amul butter", nil)
	assert.Equal(t, []string{"Amul"}, brandPlan.Brands)
	assert.Equal(t, "butter", brandPlan.Query)
}

func TestRuleParser_NonVegBeforeVeg(t *testing.T) {
	p := &RuleParser{}
	plan := p.Parse("non-veg thali", nil)
	assert.Equal(t, models.NonVegOnly, plan.Veg)
	assert.Equal(t, "thali", plan.Query)
}

func TestRuleParser_NearMeWithoutGeoHasNoRadius(t *testing.T) {
	p := &RuleParser{}
	plan := p.Parse("pizza near me", nil)
	assert.Zero(t, plan.RadiusKm)
	assert.Equal(t, "pizza", plan.Query)
}

func TestRuleParser_VerticalAndTarget(t *testing.T) {
	p := &RuleParser{}

	tests := []struct {
		text           string
		expectedModule string
		expectedTarget models.Target
	}{
		{"restaurants near me", "food", models.TargetStores},
		{"order medicines", "retail", models.TargetItems},
		{"book a hotel room", "rooms", models.TargetItems},
		{"movie tickets", "movies", models.TargetItems},
		{"paneer tikka", "", models.TargetItems},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			plan := p.Parse(tt.text, nil)
			assert.Equal(t, tt.expectedModule, plan.Module.Type)
			assert.Equal(t, tt.expectedTarget, plan.Target)
		})
	}
}

func TestRuleParser_PriceBetween(t *testing.T) {
	p := &RuleParser{}
	plan := p.Parse("rooms between 1000 and 3000", nil)
	require.NotNil(t, plan.PriceMin)
	require.NotNil(t, plan.PriceMax)
	assert.Equal(t, 1000.0, *plan.PriceMin)
	assert.Equal(t, 3000.0, *plan.PriceMax)
}

func TestAgent_StoreResolution(t *testing.T) {
	resolver := &fakeStoreResolver{store: &models.Store{ID: "s42", ModuleID: "mod-food", Name: "Ganesh Sweet Mart"}}
	a := NewAgent(&RuleParser{}, nil, resolver, logger.NewNoOpLogger())

	plan := a.BuildPlan(context.Background(), "go to ganesh sweet mart and order paneer", nil)

	assert.Equal(t, "ganesh sweet mart", resolver.asked)
	assert.Equal(t, "s42", plan.StoreID)
	assert.Equal(t, "ganesh sweet mart", plan.StoreName)
	assert.Equal(t, "paneer", plan.Query)
	// The resolved store pins the module too.
	assert.Equal(t, "mod-food", plan.Module.ID)
}

func TestAgent_UnresolvedStoreAbortsSilently(t *testing.T) {
	resolver := &fakeStoreResolver{} // no match
	a := NewAgent(&RuleParser{}, nil, resolver, logger.NewNoOpLogger())

	plan := a.BuildPlan(context.Background(), "go to ghost kitchen and order momos", nil)

	assert.Empty(t, plan.StoreID)
	// The hint is retained for diagnostics.
	assert.Equal(t, "ghost kitchen", plan.StoreName)
	assert.Equal(t, "momos", plan.Query)
}

func TestAgent_StoreLookupErrorKeepsSearching(t *testing.T) {
	resolver := &fakeStoreResolver{err: errors.New("pg down")}
	a := NewAgent(&RuleParser{}, nil, resolver, logger.NewNoOpLogger())

	plan := a.BuildPlan(context.Background(), "go to star cafe and order tea", nil)
	assert.Empty(t, plan.StoreID)
	assert.Equal(t, "tea", plan.Query)
}

func TestNLUClient_ParseAndOverride(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/parse", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"module": "food",
			"target": "items",
			"entities": {
				"query": "Paneer Tikka",
				"store_name": "Star Cafe",
				"veg": 1,
				"open_now": true,
				"rating_min": 4.2
			}
		}`))
	}))
	defer srv.Close()

	nlu, err := NewNLUClient(srv.URL, "test-key", 2*time.Second)
	require.NoError(t, err)

	a := NewAgent(&RuleParser{}, nlu, nil, logger.NewNoOpLogger())
	plan := a.BuildPlan(context.Background(), "some veg paneer text", nil)

	assert.Equal(t, "paneer tikka", plan.Query)
	assert.Equal(t, "star cafe", plan.StoreName)
	assert.Equal(t, models.VegOnly, plan.Veg)
	assert.True(t, plan.OpenNow)
	require.NotNil(t, plan.RatingMin)
	assert.Equal(t, 4.2, *plan.RatingMin)
	assert.Equal(t, "food", plan.Module.Type)
}

func TestNLUClient_InvalidShapeFallsBackToRules(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"module": 42}`)) // fails schema validation
	}))
	defer srv.Close()

	nlu, err := NewNLUClient(srv.URL, "", 2*time.Second)
	require.NoError(t, err)

	a := NewAgent(&RuleParser{}, nlu, nil, logger.NewNoOpLogger())
	plan := a.BuildPlan(context.Background(), "veg pizza", nil)

	// The rule-based plan survives the bad NLU response.
	assert.Equal(t, models.VegOnly, plan.Veg)
	assert.Equal(t, "pizza", plan.Query)
}

func TestAgent_NLUOutageFallsBackToRules(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	nlu, err := NewNLUClient(srv.URL, "", time.Second)
	require.NoError(t, err)

	a := NewAgent(&RuleParser{}, nlu, nil, logger.NewNoOpLogger())
	plan := a.BuildPlan(context.Background(), "open now pizza", nil)
	assert.True(t, plan.OpenNow)
	assert.Equal(t, "pizza", plan.Query)
}
