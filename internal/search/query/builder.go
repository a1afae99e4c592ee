// internal/search/query/builder.go
package query

import (
	"strings"
	"time"

	"search-orchestrator/internal/models"
)

// Text tier boosts, descending. An exact keyword hit must outrank a
// fuzzy or wildcard hit regardless of term frequency.
const (
	boostKeyword  = 10.0
	boostPhrase   = 6.0
	boostFuzzy    = 3.0
	boostWildcard = 1.0
)

const (
	// MaxPageSize caps general search pages.
	MaxPageSize = 100
	// BrowsePageSize caps the optimized category-browsing path.
	BrowsePageSize = 50

	defaultGeoDecayScaleKm = 2.0
	defaultRadiusKm        = 5.0

	geoDecayWeight = 10.0
	orderWeight    = 5.0
	ratingWeight   = 3.0
	daypartWeight  = 5.0
)

// Daypart buckets the local hour for time-of-day category boosts.
type Daypart string

const (
	DaypartBreakfast Daypart = "breakfast"
	DaypartLunch     Daypart = "lunch"
	DaypartSnack     Daypart = "snack"
	DaypartDinner    Daypart = "dinner"
)

// DaypartFor maps an hour of day to its bucket.
func DaypartFor(hour int) Daypart {
	switch {
	case hour >= 6 && hour < 11:
		return DaypartBreakfast
	case hour >= 11 && hour < 15:
		return DaypartLunch
	case hour >= 15 && hour < 19:
		return DaypartSnack
	default:
		return DaypartDinner
	}
}

// Builder renders search requests into engine bodies.
type Builder struct {
	// GeoDecayScaleKm is the gaussian decay scale; relevance halves
	// roughly at this distance from the query point.
	GeoDecayScaleKm float64

	// DefaultRadiusKm bounds geo-filtered queries carrying no explicit
	// radius.
	DefaultRadiusKm float64

	// MaxPageSize and BrowsePageSize cap the engine-side page sizes for
	// general search and the category-browsing path.
	MaxPageSize    int
	BrowsePageSize int

	// FoodDayparts maps dayparts to the category ids boosted during
	// them. Applied to the food vertical only, as scoring terms, never
	// as filters.
	FoodDayparts map[Daypart][]string

	// Now is injectable for daypart tests.
	Now func() time.Time
}

func NewBuilder() *Builder {
	return &Builder{
		GeoDecayScaleKm: defaultGeoDecayScaleKm,
		DefaultRadiusKm: defaultRadiusKm,
		MaxPageSize:     MaxPageSize,
		BrowsePageSize:  BrowsePageSize,
		Now:             time.Now,
	}
}

// BuildItemSearch renders the main item query for one module's index.
// categoryIDs is the already-expanded category id set (parent plus
// descendants); nil means no category filter.
func (b *Builder) BuildItemSearch(req *models.SearchRequest, moduleType models.ModuleType, categoryIDs []string) map[string]interface{} {
	text := strings.TrimSpace(req.Query)

	root := Bool{Filter: b.filterClauses(req.Filters, categoryIDs)}
	if text != "" {
		root.Should = b.textTiers(text)
		root.MinimumShouldMatch = 1
	}

	var q Expr = root
	if len(root.Filter) == 0 && len(root.Should) == 0 {
		q = MatchAll{}
	}

	if fns := b.scoreFunctions(req.Filters, moduleType); len(fns) > 0 {
		q = FunctionScore{Query: q, Functions: fns}
	}

	from, size := paginate(req.Pagination, b.MaxPageSize)
	body := map[string]interface{}{
		"query":            q.Render(),
		"from":             from,
		"size":             size,
		"track_total_hits": true,
	}
	if sortSpec := b.Sort(req.Filters, text == ""); len(sortSpec) > 0 {
		body["sort"] = sortSpec
	}
	return body
}

// BuildCategoryBrowse renders the query-less category listing path. The
// page size cap is tighter than general search.
func (b *Builder) BuildCategoryBrowse(req *models.SearchRequest, moduleType models.ModuleType, categoryIDs []string) map[string]interface{} {
	body := b.BuildItemSearch(req, moduleType, categoryIDs)
	from, size := paginate(req.Pagination, b.BrowsePageSize)
	body["from"] = from
	body["size"] = size
	return body
}

// BuildNameLookup renders the lighter text query used against category
// and store indices during cross-entity merge; only ids are needed.
func (b *Builder) BuildNameLookup(text string, size int) map[string]interface{} {
	q := Bool{
		Should: []Expr{
			MatchPhrase{Field: "name", Text: text, Boost: 4},
			MultiMatch{Fields: []string{"name"}, Text: text, Fuzziness: "AUTO", Boost: 2},
			MatchPrefix{Field: "name", Text: text},
		},
		MinimumShouldMatch: 1,
	}
	return map[string]interface{}{
		"query":   q.Render(),
		"size":    size,
		"_source": []string{"id", "name"},
	}
}

// BuildItemsByIDs renders a term-filter query mapping category or store
// ids back to items, preserving the caller's non-text filters.
func (b *Builder) BuildItemsByIDs(field string, ids []string, f models.Filters, moduleType models.ModuleType, size int) map[string]interface{} {
	filters := b.filterClauses(f, nil)
	filters = append(filters, Terms{Field: field, Values: ids})

	var q Expr = Bool{Filter: filters}
	if fns := b.scoreFunctions(f, moduleType); len(fns) > 0 {
		q = FunctionScore{Query: q, Functions: fns}
	}

	body := map[string]interface{}{
		"query":            q.Render(),
		"from":             0,
		"size":             size,
		"track_total_hits": true,
	}
	if sortSpec := b.Sort(f, false); len(sortSpec) > 0 {
		body["sort"] = sortSpec
	}
	return body
}

// BuildSuggest renders the autocomplete prefix query.
func (b *Builder) BuildSuggest(text string, size int) map[string]interface{} {
	return map[string]interface{}{
		"query":   MatchPrefix{Field: "name", Text: text}.Render(),
		"size":    size,
		"_source": []string{"id", "name", "image_url", "store_id", "module_id"},
	}
}

// AttachKNN adds a top-level vector clause. The engine adapter strips it
// and retries keyword-only when the vector path fails.
func AttachKNN(body map[string]interface{}, field string, vector []float32, k, numCandidates int) {
	body["knn"] = map[string]interface{}{
		"field":          field,
		"query_vector":   vector,
		"k":              k,
		"num_candidates": numCandidates,
	}
}

// StripKNN removes the vector clause for the keyword retry.
func StripKNN(body map[string]interface{}) {
	delete(body, "knn")
}

// textTiers is the tiered OR: exact keyword, phrase, fuzzy multi-field,
// wildcard, with strictly descending boosts.
func (b *Builder) textTiers(text string) []Expr {
	return []Expr{
		Term{Field: "name.keyword", Value: strings.ToLower(text), Boost: boostKeyword},
		MatchPhrase{Field: "name", Text: text, Boost: boostPhrase},
		MultiMatch{
			Fields:    []string{"name^3", "description", "brand", "tags"},
			Text:      text,
			Fuzziness: "AUTO",
			Boost:     boostFuzzy,
		},
		Wildcard{Field: "name.keyword", Text: strings.ToLower(text), Boost: boostWildcard},
	}
}

// filterClauses renders the structured constraints as non-scoring
// filters.
func (b *Builder) filterClauses(f models.Filters, categoryIDs []string) []Expr {
	var out []Expr

	switch f.Veg {
	case models.VegOnly:
		out = append(out, Term{Field: "veg", Value: true})
	case models.NonVegOnly:
		out = append(out, Term{Field: "veg", Value: false})
	}

	if len(categoryIDs) > 0 {
		out = append(out, Terms{Field: "category_id", Values: categoryIDs})
	}
	if f.PriceMin != nil || f.PriceMax != nil {
		out = append(out, Range{Field: "price", GTE: f.PriceMin, LTE: f.PriceMax})
	}
	if f.RatingMin != nil {
		out = append(out, Range{Field: "rating", GTE: f.RatingMin})
	}
	if f.StoreID != "" {
		out = append(out, Term{Field: "store_id", Value: f.StoreID})
	} else if len(f.StoreIDs) > 0 {
		out = append(out, Terms{Field: "store_id", Values: f.StoreIDs})
	}
	if len(f.Brands) > 0 {
		out = append(out, Terms{Field: "brand", Values: f.Brands})
	}
	if f.OpenNow {
		out = append(out, Term{Field: "open_now", Value: true})
	}
	if f.HasGeo() {
		radius := f.RadiusKm
		if radius <= 0 {
			radius = b.DefaultRadiusKm
		}
		out = append(out, GeoDistance{Field: "location", Point: *f.Geo, RadiusKm: radius})
	}
	if f.ZoneID != "" {
		// Zone is a serviceability boundary, never a boost.
		out = append(out, Term{Field: "zone_id", Value: f.ZoneID})
	}
	return out
}

// scoreFunctions builds the additive boost set: gaussian geo decay,
// sqrt-damped order count, linear rating, and time-of-day category
// affinity for the food vertical.
func (b *Builder) scoreFunctions(f models.Filters, moduleType models.ModuleType) []ScoreFunction {
	var fns []ScoreFunction

	if f.HasGeo() {
		fns = append(fns, ScoreFunction{GaussGeo: &GaussGeoDecay{
			Field:   "location",
			Origin:  *f.Geo,
			ScaleKm: b.GeoDecayScaleKm,
			Weight:  geoDecayWeight,
		}})
	}

	fns = append(fns,
		ScoreFunction{FieldFactor: &FieldValueFactor{
			Field:    "order_count",
			Modifier: "sqrt",
			Factor:   1,
			Missing:  0,
			Weight:   orderWeight,
		}},
		ScoreFunction{FieldFactor: &FieldValueFactor{
			Field:   "rating",
			Factor:  1,
			Missing: 0,
			Weight:  ratingWeight,
		}},
	)

	if moduleType == models.ModuleFood && len(b.FoodDayparts) > 0 {
		now := time.Now
		if b.Now != nil {
			now = b.Now
		}
		if ids := b.FoodDayparts[DaypartFor(now().Hour())]; len(ids) > 0 {
			fns = append(fns, ScoreFunction{Weight: &WeightedFilter{
				Filter: Terms{Field: "category_id", Values: ids},
				Weight: daypartWeight,
			}})
		}
	}
	return fns
}

// Sort resolves the result ordering. Distance needs a geo point and
// falls back to popularity without one; field sorts carry a rating
// tiebreak. A query-less browse with no explicit sort orders by
// popularity.
func (b *Builder) Sort(f models.Filters, browse bool) []interface{} {
	popularity := []interface{}{
		map[string]interface{}{"order_count": map[string]interface{}{"order": "desc", "missing": "_last"}},
		map[string]interface{}{"rating": map[string]interface{}{"order": "desc", "missing": "_last"}},
	}

	switch f.Sort {
	case models.SortDistance:
		if !f.HasGeo() {
			return popularity
		}
		return []interface{}{
			map[string]interface{}{
				"_geo_distance": map[string]interface{}{
					"location":        map[string]interface{}{"lat": f.Geo.Lat, "lon": f.Geo.Lon},
					"order":           "asc",
					"unit":            "km",
					"ignore_unmapped": true,
				},
			},
			map[string]interface{}{"_score": map[string]interface{}{"order": "desc"}},
		}
	case models.SortPriceAsc:
		return fieldSort("price", "asc")
	case models.SortPriceDesc:
		return fieldSort("price", "desc")
	case models.SortRating:
		return []interface{}{
			map[string]interface{}{"rating": map[string]interface{}{"order": "desc", "missing": "_last"}},
			map[string]interface{}{"order_count": map[string]interface{}{"order": "desc", "missing": "_last"}},
		}
	case models.SortPopularity:
		return popularity
	default:
		if browse {
			return popularity
		}
		// Relevance: the engine's default _score ordering.
		return nil
	}
}

func fieldSort(field, order string) []interface{} {
	return []interface{}{
		map[string]interface{}{field: map[string]interface{}{"order": order, "missing": "_last"}},
		map[string]interface{}{"rating": map[string]interface{}{"order": "desc", "missing": "_last"}},
	}
}

// paginate clamps pagination to sane bounds and returns offset/size.
func paginate(p models.Pagination, limit int) (int, int) {
	size := p.Size
	if size <= 0 {
		size = 20
	}
	if size > limit {
		size = limit
	}
	page := p.Page
	if page < 1 {
		page = 1
	}
	return (page - 1) * size, size
}
