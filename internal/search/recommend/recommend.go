// internal/search/recommend/recommend.go

// Package recommend serves "frequently bought together" lookups from
// co-occurrence lists precomputed on item documents.
package recommend

import (
	"context"
	"sort"

	"search-orchestrator/internal/common/logger"
	"search-orchestrator/internal/models"
	"search-orchestrator/internal/search/engine"
)

const defaultLimit = 10

// Recommendation is one related item with its co-occurrence strength.
type Recommendation struct {
	ItemID   string   `json:"item_id"`
	Name     *string  `json:"name,omitempty"`
	Price    *float64 `json:"price,omitempty"`
	ImageURL *string  `json:"image_url,omitempty"`
	StoreID  *string  `json:"store_id,omitempty"`
	Count    int      `json:"co_occurrence_count"`
}

// Meta mirrors the search meta shape for the recommendation surface.
type Meta struct {
	TotalRecommendations int `json:"total_recommendations"`
}

// Result is the format-stable response. An item with no co-occurrence
// data yields an empty list, never an error.
type Result struct {
	Recommendations []Recommendation `json:"recommendations"`
	Meta            Meta             `json:"meta"`
}

func emptyResult() *Result {
	return &Result{Recommendations: []Recommendation{}}
}

// Engine resolves co-occurrence edges into full recommendations.
type Engine struct {
	search engine.Engine
	logger logger.Logger
}

func NewEngine(search engine.Engine, log logger.Logger) *Engine {
	return &Engine{
		search: search,
		logger: log.WithFields(map[string]interface{}{"component": "recommendations"}),
	}
}

// Recommend loads the item, reads its co-occurrence list, optionally
// filters candidates to one store, truncates, and resolves details for
// the survivors.
func (e *Engine) Recommend(ctx context.Context, index, itemID, storeID string, limit int) (*Result, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	item, err := e.fetchByIDs(ctx, index, []string{itemID})
	if err != nil {
		return nil, err
	}
	if len(item) == 0 || len(item[0].Related) == 0 {
		return emptyResult(), nil
	}

	edges := append([]models.RecommendationEdge(nil), item[0].Related...)
	sort.SliceStable(edges, func(i, j int) bool { return edges[i].Count > edges[j].Count })

	ids := make([]string, 0, len(edges))
	counts := make(map[string]int, len(edges))
	for _, edge := range edges {
		if edge.RelatedItemID == "" || edge.RelatedItemID == itemID {
			continue
		}
		if _, dup := counts[edge.RelatedItemID]; dup {
			continue
		}
		counts[edge.RelatedItemID] = edge.Count
		ids = append(ids, edge.RelatedItemID)
	}
	if len(ids) == 0 {
		return emptyResult(), nil
	}

	candidates, err := e.fetchByIDs(ctx, index, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*models.Hit, len(candidates))
	for _, h := range candidates {
		byID[h.ID] = h
	}

	result := emptyResult()
	for _, id := range ids {
		h, ok := byID[id]
		if !ok {
			// The related item was delisted since the list was computed.
			continue
		}
		if storeID != "" && (h.StoreID == nil || *h.StoreID != storeID) {
			continue
		}
		result.Recommendations = append(result.Recommendations, Recommendation{
			ItemID:   h.ID,
			Name:     h.Name,
			Price:    h.Price,
			ImageURL: h.ImageURL,
			StoreID:  h.StoreID,
			Count:    counts[id],
		})
		if len(result.Recommendations) >= limit {
			break
		}
	}
	result.Meta.TotalRecommendations = len(result.Recommendations)
	return result, nil
}

func (e *Engine) fetchByIDs(ctx context.Context, index string, ids []string) ([]*models.Hit, error) {
	body := map[string]interface{}{
		"query": map[string]interface{}{
			"ids": map[string]interface{}{"values": ids},
		},
		"size": len(ids),
	}
	res, err := e.search.Search(ctx, index, body, nil)
	if err != nil {
		return nil, err
	}
	return res.Hits, nil
}
