// internal/search/modules/resolver.go
package modules

import (
	"context"
	"strings"

	apperrors "search-orchestrator/internal/common/errors"
	"search-orchestrator/internal/common/logger"
	"search-orchestrator/internal/models"
)

// Resolver turns module selectors into concrete module lists and answers
// category and store metadata questions during request handling.
type Resolver struct {
	store  Store
	logger logger.Logger
}

func NewResolver(store Store, log logger.Logger) *Resolver {
	return &Resolver{
		store:  store,
		logger: log.WithFields(map[string]interface{}{"component": "module-resolver"}),
	}
}

// ResolveModules maps a selector to modules. An empty selector means all
// modules. A selector that matches nothing is a caller error.
func (r *Resolver) ResolveModules(ctx context.Context, sel models.ModuleSelector) ([]models.Module, error) {
	all, err := r.store.ListModules(ctx)
	if err != nil {
		return nil, apperrors.NewMetadataStoreFailedError(err)
	}

	if sel.IsEmpty() {
		return all, nil
	}

	byID := make(map[string]models.Module, len(all))
	for _, m := range all {
		byID[m.ID] = m
	}

	var resolved []models.Module
	switch {
	case sel.ID != "":
		if m, ok := byID[sel.ID]; ok {
			resolved = append(resolved, m)
		}
	case len(sel.IDs) > 0:
		for _, id := range sel.IDs {
			if m, ok := byID[id]; ok {
				resolved = append(resolved, m)
			}
		}
	case sel.Type != "":
		want := models.ModuleType(strings.ToLower(sel.Type))
		for _, m := range all {
			if m.Type == want {
				resolved = append(resolved, m)
			}
		}
	}

	if len(resolved) == 0 {
		return nil, apperrors.NewUnknownModuleError(sel.String())
	}
	return resolved, nil
}

// ValidateCategory checks the category/module pairing rules: category ids
// are module-scoped, so a category filter needs a module selector, and the
// category must belong to one of the resolved modules.
func (r *Resolver) ValidateCategory(ctx context.Context, categoryID string, sel models.ModuleSelector, resolved []models.Module) error {
	if categoryID == "" {
		return nil
	}
	if sel.IsEmpty() {
		return apperrors.NewMissingModuleForCategoryError(categoryID)
	}

	cat, err := r.store.GetCategory(ctx, categoryID)
	if err != nil {
		return apperrors.NewMetadataStoreFailedError(err)
	}
	if cat == nil {
		return apperrors.NewCategoryModuleMismatchError(categoryID, sel.String())
	}

	for _, m := range resolved {
		if m.ID == cat.ModuleID {
			return nil
		}
	}
	return apperrors.NewCategoryModuleMismatchError(categoryID, sel.String())
}

// ExpandCategory returns the category id plus every descendant id within
// the category's module, so a parent-category filter covers items tagged
// with any child.
func (r *Resolver) ExpandCategory(ctx context.Context, categoryID string) ([]string, error) {
	cat, err := r.store.GetCategory(ctx, categoryID)
	if err != nil {
		return nil, apperrors.NewMetadataStoreFailedError(err)
	}
	if cat == nil {
		return []string{categoryID}, nil
	}

	all, err := r.store.ListCategories(ctx, cat.ModuleID)
	if err != nil {
		return nil, apperrors.NewMetadataStoreFailedError(err)
	}

	children := make(map[string][]string, len(all))
	for _, c := range all {
		if c.ParentID != "" {
			children[c.ParentID] = append(children[c.ParentID], c.ID)
		}
	}

	// Breadth-first walk; seen guards against accidental cycles in the data.
	expanded := []string{categoryID}
	seen := map[string]bool{categoryID: true}
	queue := []string{categoryID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, child := range children[current] {
			if seen[child] {
				continue
			}
			seen[child] = true
			expanded = append(expanded, child)
			queue = append(queue, child)
		}
	}
	return expanded, nil
}

// ResolveStoreByName picks the best fuzzy match for a spoken or typed
// store name, optionally constrained to one module. Returns nil when
// nothing plausible matches; callers treat that as "no store anchor".
func (r *Resolver) ResolveStoreByName(ctx context.Context, name, moduleID string) (*models.Store, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}

	candidates, err := r.store.FindStoresByName(ctx, name, 5)
	if err != nil {
		return nil, apperrors.NewMetadataStoreFailedError(err)
	}

	for i := range candidates {
		if moduleID == "" || candidates[i].ModuleID == moduleID {
			return &candidates[i], nil
		}
	}
	return nil, nil
}

// BackfillStoreNames fills StoreName on hits whose engine document carried
// a store id but no display name. Lookup failures leave the hits as-is;
// a missing display name never fails a search.
func (r *Resolver) BackfillStoreNames(ctx context.Context, hits []*models.Hit) {
	var missing []string
	seen := map[string]bool{}
	for _, h := range hits {
		if h.StoreID != nil && *h.StoreID != "" && h.StoreName == nil && !seen[*h.StoreID] {
			seen[*h.StoreID] = true
			missing = append(missing, *h.StoreID)
		}
	}
	if len(missing) == 0 {
		return
	}

	stores, err := r.store.GetStores(ctx, missing)
	if err != nil {
		r.logger.WithError(err).Warn("store name backfill failed", map[string]interface{}{
			"storeCount": len(missing),
		})
		return
	}

	names := make(map[string]string, len(stores))
	for _, st := range stores {
		names[st.ID] = st.Name
	}
	for _, h := range hits {
		if h.StoreID == nil || h.StoreName != nil {
			continue
		}
		if name, ok := names[*h.StoreID]; ok {
			n := name
			h.StoreName = &n
		}
	}
}
