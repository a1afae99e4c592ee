// internal/models/hit.go
package models

// MatchType tags how a merged item hit was found. It is a merge/sort key
// only and is never persisted.
type MatchType string

const (
	MatchExactName MatchType = "exact_name"
	MatchCategory  MatchType = "category_match"
	MatchStore     MatchType = "store_match"
)

// Bonus returns the fixed additive score bonus per match type. The values
// stack on top of engine relevance scores so that type priority dominates
// ties; they are a heuristic, not a normalization.
func (m MatchType) Bonus() float64 {
	switch m {
	case MatchExactName:
		return 1000
	case MatchCategory:
		return 100
	case MatchStore:
		return 10
	default:
		return 0
	}
}

// RecommendationEdge is one precomputed co-occurrence pair attached to an
// item document. Read-only at request time.
type RecommendationEdge struct {
	ItemID        string `json:"item_id"`
	RelatedItemID string `json:"related_item_id"`
	Count         int    `json:"count"`
}

// Hit is one result document from an index. Indices have overlapping but
// non-identical schemas, so every source field may be absent; consumers
// must tolerate nil pointers rather than assuming presence.
type Hit struct {
	ID        string    `json:"id"`
	Index     string    `json:"index,omitempty"`
	ModuleID  string    `json:"module_id,omitempty"`
	Score     float64   `json:"score"`
	MatchType MatchType `json:"match_type,omitempty"`

	Name       *string   `json:"name,omitempty"`
	Price      *float64  `json:"price,omitempty"`
	Rating     *float64  `json:"rating,omitempty"`
	OrderCount *int64    `json:"order_count,omitempty"`
	Veg        *bool     `json:"veg,omitempty"`
	StoreID    *string   `json:"store_id,omitempty"`
	StoreName  *string   `json:"store_name,omitempty"`
	CategoryID *string   `json:"category_id,omitempty"`
	Brand      *string   `json:"brand,omitempty"`
	ImageURL   *string   `json:"image_url,omitempty"`
	OpenNow    *bool     `json:"open_now,omitempty"`
	Location   *GeoPoint `json:"location,omitempty"`

	// DistanceKm is always kilometers by the time a hit leaves the engine,
	// regardless of which derivation path produced it.
	DistanceKm *float64 `json:"distance_km,omitempty"`

	// TravelMinutes is a rough estimate derived from DistanceKm.
	TravelMinutes *float64 `json:"travel_minutes,omitempty"`

	Related []RecommendationEdge `json:"-"`

	// Source keeps raw fields not modeled above.
	Source map[string]interface{} `json:"-"`
}

// SortScore is the merge ordering score: engine relevance plus the
// match-type bonus.
func (h *Hit) SortScore() float64 {
	return h.Score + h.MatchType.Bonus()
}

// Meta describes pagination over the (possibly merged) result set.
type Meta struct {
	Total      int  `json:"total"`
	Page       int  `json:"page"`
	Size       int  `json:"size"`
	TotalPages int  `json:"total_pages"`
	HasMore    bool `json:"has_more"`
	HasGeo     bool `json:"has_geo"`
}

// ModuleCount reports how many hits one module contributed to a unified
// result.
type ModuleCount struct {
	ModuleID string `json:"module_id"`
	Count    int    `json:"count"`
}

// Result is the format-stable shape returned to the HTTP layer.
type Result struct {
	Q       string   `json:"q"`
	Filters Filters  `json:"filters"`
	Items   []*Hit   `json:"items,omitempty"`
	Stores  []*Hit   `json:"stores,omitempty"`
	Meta    Meta     `json:"meta"`

	// Modules and ModuleCounts are set only for unified/cross-module results.
	Modules      []string      `json:"modules,omitempty"`
	ModuleCounts []ModuleCount `json:"module_counts,omitempty"`

	// Relaxed lists the filter groups dropped to recover a zero-result
	// search, in the order they were dropped.
	Relaxed []string `json:"relaxed,omitempty"`

	// Degraded annotates successful-but-degraded responses (cache outage,
	// keyword fallback from vector search).
	Degraded []string `json:"degraded,omitempty"`
}

// NewMeta computes pagination metadata over a merged total.
func NewMeta(total int, p Pagination, hasGeo bool) Meta {
	totalPages := 0
	if p.Size > 0 {
		totalPages = (total + p.Size - 1) / p.Size
	}
	return Meta{
		Total:      total,
		Page:       p.Page,
		Size:       p.Size,
		TotalPages: totalPages,
		HasMore:    p.Page < totalPages,
		HasGeo:     hasGeo,
	}
}
