// internal/models/search.go
package models

// Target selects which entity type a search returns.
type Target string

const (
	TargetItems  Target = "items"
	TargetStores Target = "stores"
)

// SortKey selects the result ordering.
type SortKey string

const (
	SortRelevance  SortKey = "relevance"
	SortDistance   SortKey = "distance"
	SortPriceAsc   SortKey = "price_asc"
	SortPriceDesc  SortKey = "price_desc"
	SortRating     SortKey = "rating"
	SortPopularity SortKey = "popularity"
)

// GeoPoint is a latitude/longitude pair in degrees.
//
// A point with both coordinates exactly zero is treated as "absent". This is
// a sentinel for uninitialized client state, not a statement about the
// equator; the service's geography never produces a legitimate (0,0).
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// IsZero reports whether the point carries the absent sentinel.
func (p GeoPoint) IsZero() bool {
	return p.Lat == 0 && p.Lon == 0
}

// VegFlag is a tri-state dietary filter.
type VegFlag int

const (
	VegAny     VegFlag = 0 // no preference
	VegOnly    VegFlag = 1
	NonVegOnly VegFlag = 2
)

// Filters are the structured constraints attached to a search.
type Filters struct {
	Veg        VegFlag   `json:"veg,omitempty"`
	CategoryID string    `json:"category_id,omitempty"`
	PriceMin   *float64  `json:"price_min,omitempty"`
	PriceMax   *float64  `json:"price_max,omitempty"`
	RatingMin  *float64  `json:"rating_min,omitempty"`
	StoreID    string    `json:"store_id,omitempty"`
	StoreIDs   []string  `json:"store_ids,omitempty"`
	Brands     []string  `json:"brands,omitempty"`
	OpenNow    bool      `json:"open_now,omitempty"`
	Geo        *GeoPoint `json:"geo,omitempty"`
	RadiusKm   float64   `json:"radius_km,omitempty"`
	ZoneID     string    `json:"zone_id,omitempty"`
	Sort       SortKey   `json:"sort,omitempty"`
}

// HasGeo reports whether a usable geo point is present.
func (f *Filters) HasGeo() bool {
	return f.Geo != nil && !f.Geo.IsZero()
}

// Pagination is offset-based. Page starts at 1.
type Pagination struct {
	Page int `json:"page"`
	Size int `json:"size"`
}

// Offset returns the from-offset for the current page.
func (p Pagination) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.Size
}

// ModuleSelector picks the modules a search targets: a single id, an id
// list, a module type name, or nothing (all modules).
type ModuleSelector struct {
	ID   string   `json:"id,omitempty"`
	IDs  []string `json:"ids,omitempty"`
	Type string   `json:"type,omitempty"`
}

// IsEmpty reports whether no module constraint was given.
func (s ModuleSelector) IsEmpty() bool {
	return s.ID == "" && len(s.IDs) == 0 && s.Type == ""
}

// String renders the selector for error details and log fields.
func (s ModuleSelector) String() string {
	switch {
	case s.ID != "":
		return s.ID
	case len(s.IDs) > 0:
		return s.IDs[0] + ",..."
	case s.Type != "":
		return s.Type
	default:
		return "all"
	}
}

// SearchRequest is the orchestrator's input.
type SearchRequest struct {
	Query      string         `json:"q"`
	Target     Target         `json:"target"`
	Module     ModuleSelector `json:"module"`
	Filters    Filters        `json:"filters"`
	Pagination Pagination     `json:"pagination"`
}
