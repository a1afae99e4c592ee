// internal/models/plan.go
package models

// RelaxationStep names one filter group the relaxation cascade may drop.
type RelaxationStep string

const (
	RelaxOpenNow RelaxationStep = "open_now"
	RelaxVeg     RelaxationStep = "veg"
	RelaxPricing RelaxationStep = "rating_min" // drops rating_min, price_min and price_max together
)

// SearchPlan is the NLU agent's output: a structured search derived from
// free text. It lives for one agent invocation and is mutated in place as
// relaxation drops fields.
type SearchPlan struct {
	Module   ModuleSelector `json:"module"`
	Target   Target         `json:"target"`
	Query    string         `json:"q"`
	Geo      *GeoPoint      `json:"geo,omitempty"`
	RadiusKm float64        `json:"radius_km,omitempty"`

	OpenNow   bool     `json:"open_now,omitempty"`
	Veg       VegFlag  `json:"veg,omitempty"`
	RatingMin *float64 `json:"rating_min,omitempty"`
	PriceMin  *float64 `json:"price_min,omitempty"`
	PriceMax  *float64 `json:"price_max,omitempty"`
	Brands    []string `json:"brands,omitempty"`

	// StoreName is the extracted hint; StoreID is set only after fuzzy
	// resolution succeeds. A resolved StoreID anchors intent and is never
	// dropped by relaxation.
	StoreName string `json:"store_name,omitempty"`
	StoreID   string `json:"store_id,omitempty"`

	// Relaxed records the steps applied, in order.
	Relaxed []RelaxationStep `json:"relaxed,omitempty"`
}

// ToFilters converts the plan's constraint fields into search filters.
func (p *SearchPlan) ToFilters() Filters {
	f := Filters{
		Veg:       p.Veg,
		RatingMin: p.RatingMin,
		PriceMin:  p.PriceMin,
		PriceMax:  p.PriceMax,
		Brands:    p.Brands,
		OpenNow:   p.OpenNow,
		Geo:       p.Geo,
		RadiusKm:  p.RadiusKm,
		StoreID:   p.StoreID,
	}
	return f
}
