// internal/search/modules/resolver_test.go
package modules

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "search-orchestrator/internal/common/errors"
	"search-orchestrator/internal/common/logger"
	"search-orchestrator/internal/models"
)

// fakeStore backs the resolver with in-memory metadata.
type fakeStore struct {
	modules    []models.Module
	categories []models.Category
	stores     []models.Store
	err        error
}

func (f *fakeStore) ListModules(_ context.Context) ([]models.Module, error) {
	return f.modules, f.err
}

func (f *fakeStore) ListCategories(_ context.Context, moduleID string) ([]models.Category, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Category
	for _, c := range f.categories {
		if c.ModuleID == moduleID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) GetCategory(_ context.Context, categoryID string) (*models.Category, error) {
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.categories {
		if f.categories[i].ID == categoryID {
			return &f.categories[i], nil
		}
	}
	return nil, nil
}

func (f *fakeStore) GetStores(_ context.Context, storeIDs []string) ([]models.Store, error) {
	if f.err != nil {
		return nil, f.err
	}
	want := map[string]bool{}
	for _, id := range storeIDs {
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

func (f *fakeStore) FindStoresByName(_ context.Context, name string, _ int) ([]models.Store, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.stores, nil
}

func testModules() []models.Module {
	return []models.Module{
		{ID: "mod-food", Type: models.ModuleFood, DisplayName: "Food", IndexName: "items_food"},
		{ID: "mod-grocery", Type: models.ModuleRetail, DisplayName: "Grocery", IndexName: "items_grocery"},
		{ID: "mod-pharmacy", Type: models.ModuleRetail, DisplayName: "Pharmacy", IndexName: "items_pharmacy"},
	}
}

func TestResolver_ResolveModules(t *testing.T) {
	r := NewResolver(&fakeStore{modules: testModules()}, logger.NewNoOpLogger())
	ctx := context.Background()

	tests := []struct {
		name        string
		selector    models.ModuleSelector
		expectedIDs []string
		expectedErr apperrors.ErrorCode
	}{
		{
			name:        "empty selector resolves all modules",
			selector:    models.ModuleSelector{},
			expectedIDs: []string{"mod-food", "mod-grocery", "mod-pharmacy"},
		},
		{
			name:        "single id",
			selector:    models.ModuleSelector{ID: "mod-food"},
			expectedIDs: []string{"mod-food"},
		},
		{
			name:        "id list keeps order and drops unknowns",
			selector:    models.ModuleSelector{IDs: []string{"mod-pharmacy", "nope", "mod-food"}},
			expectedIDs: []string{"mod-pharmacy", "mod-food"},
		},
		{
			name:        "type matches every module of that vertical",
			selector:    models.ModuleSelector{Type: "retail"},
			expectedIDs: []string{"mod-grocery", "mod-pharmacy"},
		},
		{
			name:        "unknown id",
			selector:    models.ModuleSelector{ID: "mod-missing"},
			expectedErr: apperrors.ErrCodeUnknownModule,
		},
		{
			name:        "unknown type",
			selector:    models.ModuleSelector{Type: "airlines"},
			expectedErr: apperrors.ErrCodeUnknownModule,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolved, err := r.ResolveModules(ctx, tt.selector)
			if tt.expectedErr != "" {
				var stdErr *apperrors.StandardError
				require.ErrorAs(t, err, &stdErr)
				assert.Equal(t, tt.expectedErr, stdErr.Code)
				return
			}
			require.NoError(t, err)
			ids := make([]string, len(resolved))
			for i, m := range resolved {
				ids[i] = m.ID
			}
			assert.Equal(t, tt.expectedIDs, ids)
		})
	}
}

func TestResolver_ResolveModules_StoreError(t *testing.T) {
	r := NewResolver(&fakeStore{err: errors.New("pg down")}, logger.NewNoOpLogger())

	_, err := r.ResolveModules(context.Background(), models.ModuleSelector{})
	var stdErr *apperrors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, apperrors.ErrCodeMetadataStoreFailed, stdErr.Code)
	assert.True(t, stdErr.Retryable)
}

func TestResolver_ValidateCategory(t *testing.T) {
	store := &fakeStore{
		modules: testModules(),
		categories: []models.Category{
			{ID: "cat-pizza", ModuleID: "mod-food", Name: "Pizza"},
		},
	}
	r := NewResolver(store, logger.NewNoOpLogger())
	ctx := context.Background()
	foodOnly := []models.Module{{ID: "mod-food", Type: models.ModuleFood}}

	tests := []struct {
		name        string
		categoryID  string
		selector    models.ModuleSelector
		resolved    []models.Module
		expectedErr apperrors.ErrorCode
	}{
		{"no category is always valid", "", models.ModuleSelector{}, nil, ""},
		{"category without module selector", "cat-pizza", models.ModuleSelector{}, nil, apperrors.ErrCodeMissingModuleForCategory},
		{"category in resolved module", "cat-pizza", models.ModuleSelector{ID: "mod-food"}, foodOnly, ""},
		{
			"category from another module",
			"cat-pizza",
			models.ModuleSelector{ID: "mod-grocery"},
			[]models.Module{{ID: "mod-grocery"}},
			apperrors.ErrCodeCategoryModuleMismatch,
		},
		{"unknown category", "cat-ghost", models.ModuleSelector{ID: "mod-food"}, foodOnly, apperrors.ErrCodeCategoryModuleMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.ValidateCategory(ctx, tt.categoryID, tt.selector, tt.resolved)
			if tt.expectedErr == "" {
				assert.NoError(t, err)
				return
			}
			var stdErr *apperrors.StandardError
			require.ErrorAs(t, err, &stdErr)
			assert.Equal(t, tt.expectedErr, stdErr.Code)
			assert.False(t, stdErr.Retryable)
		})
	}
}

func TestResolver_ExpandCategory(t *testing.T) {
	store := &fakeStore{
		categories: []models.Category{
			{ID: "beverages", ModuleID: "mod-food"},
			{ID: "hot", ParentID: "beverages", ModuleID: "mod-food"},
			{ID: "cold", ParentID: "beverages", ModuleID: "mod-food"},
			{ID: "coffee", ParentID: "hot", ModuleID: "mod-food"},
			{ID: "snacks", ModuleID: "mod-food"},
		},
	}
	r := NewResolver(store, logger.NewNoOpLogger())

	expanded, err := r.ExpandCategory(context.Background(), "beverages")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"beverages", "hot", "cold", "coffee"}, expanded)

	// A leaf expands to itself.
	expanded, err = r.ExpandCategory(context.Background(), "coffee")
	require.NoError(t, err)
	assert.Equal(t, []string{"coffee"}, expanded)

	// An id the metadata store does not know still filters by itself.
	expanded, err = r.ExpandCategory(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Equal(t, []string{"unknown"}, expanded)
}

func TestResolver_ExpandCategory_CycleSafe(t *testing.T) {
	store := &fakeStore{
		categories: []models.Category{
			{ID: "a", ParentID: "b", ModuleID: "m"},
			{ID: "b", ParentID: "a", ModuleID: "m"},
		},
	}
	r := NewResolver(store, logger.NewNoOpLogger())

	expanded, err := r.ExpandCategory(context.Background(), "a")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, expanded)
}

func TestResolver_ResolveStoreByName(t *testing.T) {
	store := &fakeStore{
		stores: []models.Store{
			{ID: "s1", ModuleID: "mod-grocery", Name: "Star Bazaar"},
			{ID: "s2", ModuleID: "mod-food", Name: "Star Cafe"},
		},
	}
	r := NewResolver(store, logger.NewNoOpLogger())
	ctx := context.Background()

	// Unconstrained: first candidate wins.
	st, err := r.ResolveStoreByName(ctx, "star", "")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, "s1", st.ID)

	// Module constraint skips candidates from other modules.
	st, err = r.ResolveStoreByName(ctx, "star", "mod-food")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, "s2", st.ID)

	// No plausible match is not an error.
	st, err = r.ResolveStoreByName(ctx, "star", "mod-pharmacy")
	require.NoError(t, err)
	assert.Nil(t, st)

	st, err = r.ResolveStoreByName(ctx, "   ", "")
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestResolver_BackfillStoreNames(t *testing.T) {
	store := &fakeStore{
		stores: []models.Store{
			{ID: "s1", Name: "Star Bazaar"},
		},
	}
	r := NewResolver(store, logger.NewNoOpLogger())

	s1 := "s1"
	sGhost := "ghost"
	already := "Known Name"
	hits := []*models.Hit{
		{ID: "h1", StoreID: &s1},
		{ID: "h2", StoreID: &s1, StoreName: &already},
		{ID: "h3", StoreID: &sGhost},
		{ID: "h4"},
	}

	r.BackfillStoreNames(context.Background(), hits)

	require.NotNil(t, hits[0].StoreName)
	assert.Equal(t, "Star Bazaar", *hits[0].StoreName)
	assert.Equal(t, "Known Name", *hits[1].StoreName)
	assert.Nil(t, hits[2].StoreName)
	assert.Nil(t, hits[3].StoreName)
}

func TestResolver_BackfillStoreNames_LookupFailureIsNonFatal(t *testing.T) {
	r := NewResolver(&fakeStore{err: errors.New("pg down")}, logger.NewNoOpLogger())

	s1 := "s1"
	hits := []*models.Hit{{ID: "h1", StoreID: &s1}}
	r.BackfillStoreNames(context.Background(), hits)
	assert.Nil(t, hits[0].StoreName)
}
