// internal/search/query/expr.go
package query

import (
	"fmt"

	"search-orchestrator/internal/models"
)

// Expr is one node of the structured query tree. Each clause renders
// itself to the engine's JSON form, which keeps clauses independently
// testable instead of being built inline as one deep literal.
type Expr interface {
	Render() map[string]interface{}
}

// Term is an exact-value filter or keyword match.
type Term struct {
	Field string
	Value interface{}
	Boost float64
}

func (t Term) Render() map[string]interface{} {
	body := map[string]interface{}{"value": t.Value}
	if t.Boost > 0 {
		body["boost"] = t.Boost
	}
	return map[string]interface{}{
		"term": map[string]interface{}{t.Field: body},
	}
}

// Terms matches any of a value list.
type Terms struct {
	Field  string
	Values []string
}

func (t Terms) Render() map[string]interface{} {
	return map[string]interface{}{
		"terms": map[string]interface{}{t.Field: t.Values},
	}
}

// Range is a numeric range filter. Nil bounds are omitted.
type Range struct {
	Field string
	GTE   *float64
	LTE   *float64
}

func (r Range) Render() map[string]interface{} {
	bounds := map[string]interface{}{}
	if r.GTE != nil {
		bounds["gte"] = *r.GTE
	}
	if r.LTE != nil {
		bounds["lte"] = *r.LTE
	}
	return map[string]interface{}{
		"range": map[string]interface{}{r.Field: bounds},
	}
}

// GeoDistance restricts hits to a radius around a point.
type GeoDistance struct {
	Field    string
	Point    models.GeoPoint
	RadiusKm float64
}

func (g GeoDistance) Render() map[string]interface{} {
	return map[string]interface{}{
		"geo_distance": map[string]interface{}{
			"distance": fmt.Sprintf("%gkm", g.RadiusKm),
			g.Field: map[string]interface{}{
				"lat": g.Point.Lat,
				"lon": g.Point.Lon,
			},
		},
	}
}

// MatchPhrase matches the text as an ordered phrase.
type MatchPhrase struct {
	Field string
	Text  string
	Boost float64
}

func (m MatchPhrase) Render() map[string]interface{} {
	body := map[string]interface{}{"query": m.Text}
	if m.Boost > 0 {
		body["boost"] = m.Boost
	}
	return map[string]interface{}{
		"match_phrase": map[string]interface{}{m.Field: body},
	}
}

// MultiMatch is the fuzzy multi-field tier.
type MultiMatch struct {
	Fields    []string
	Text      string
	Fuzziness string
	Boost     float64
}

func (m MultiMatch) Render() map[string]interface{} {
	body := map[string]interface{}{
		"query":  m.Text,
		"fields": m.Fields,
	}
	if m.Fuzziness != "" {
		body["fuzziness"] = m.Fuzziness
	}
	if m.Boost > 0 {
		body["boost"] = m.Boost
	}
	return map[string]interface{}{"multi_match": body}
}

// Wildcard is the loosest text tier: leading/trailing wildcard match.
type Wildcard struct {
	Field string
	Text  string
	Boost float64
}

func (w Wildcard) Render() map[string]interface{} {
	body := map[string]interface{}{
		"value":            fmt.Sprintf("*%s*", w.Text),
		"case_insensitive": true,
	}
	if w.Boost > 0 {
		body["boost"] = w.Boost
	}
	return map[string]interface{}{
		"wildcard": map[string]interface{}{w.Field: body},
	}
}

// Bool combines clauses. Filter clauses never contribute to scoring.
type Bool struct {
	Must               []Expr
	Should             []Expr
	Filter             []Expr
	MustNot            []Expr
	MinimumShouldMatch int
}

func (b Bool) Render() map[string]interface{} {
	body := map[string]interface{}{}
	if len(b.Must) > 0 {
		body["must"] = renderAll(b.Must)
	}
	if len(b.Should) > 0 {
		body["should"] = renderAll(b.Should)
	}
	if len(b.Filter) > 0 {
		body["filter"] = renderAll(b.Filter)
	}
	if len(b.MustNot) > 0 {
		body["must_not"] = renderAll(b.MustNot)
	}
	if b.MinimumShouldMatch > 0 {
		body["minimum_should_match"] = b.MinimumShouldMatch
	}
	return map[string]interface{}{"bool": body}
}

// MatchAll matches every document; used for query-less browse requests.
type MatchAll struct{}

func (MatchAll) Render() map[string]interface{} {
	return map[string]interface{}{"match_all": map[string]interface{}{}}
}

// ScoreFunction is one additive component of a FunctionScore wrapper.
type ScoreFunction struct {
	// Exactly one of the following is set.
	GaussGeo    *GaussGeoDecay
	FieldFactor *FieldValueFactor
	Weight      *WeightedFilter
}

// GaussGeoDecay decays relevance with distance from the query point.
type GaussGeoDecay struct {
	Field   string
	Origin  models.GeoPoint
	ScaleKm float64
	Weight  float64
}

// FieldValueFactor boosts from a numeric document field.
type FieldValueFactor struct {
	Field    string
	Modifier string // "sqrt", "none", ...
	Factor   float64
	Missing  float64
	Weight   float64
}

// WeightedFilter adds a fixed weight when a filter matches.
type WeightedFilter struct {
	Filter Expr
	Weight float64
}

func (f ScoreFunction) render() map[string]interface{} {
	switch {
	case f.GaussGeo != nil:
		g := f.GaussGeo
		fn := map[string]interface{}{
			"gauss": map[string]interface{}{
				g.Field: map[string]interface{}{
					"origin": map[string]interface{}{"lat": g.Origin.Lat, "lon": g.Origin.Lon},
					"scale":  fmt.Sprintf("%gkm", g.ScaleKm),
				},
			},
		}
		if g.Weight > 0 {
			fn["weight"] = g.Weight
		}
		return fn
	case f.FieldFactor != nil:
		ff := f.FieldFactor
		factor := map[string]interface{}{
			"field":   ff.Field,
			"missing": ff.Missing,
		}
		if ff.Modifier != "" {
			factor["modifier"] = ff.Modifier
		}
		if ff.Factor > 0 {
			factor["factor"] = ff.Factor
		}
		fn := map[string]interface{}{"field_value_factor": factor}
		if ff.Weight > 0 {
			fn["weight"] = ff.Weight
		}
		return fn
	case f.Weight != nil:
		return map[string]interface{}{
			"filter": f.Weight.Filter.Render(),
			"weight": f.Weight.Weight,
		}
	default:
		return map[string]interface{}{}
	}
}

// FunctionScore wraps a query with additive scoring functions. Sum mode
// on both axes lets a far-but-very-popular result still surface.
type FunctionScore struct {
	Query     Expr
	Functions []ScoreFunction
}

func (f FunctionScore) Render() map[string]interface{} {
	fns := make([]map[string]interface{}, len(f.Functions))
	for i, fn := range f.Functions {
		fns[i] = fn.render()
	}
	return map[string]interface{}{
		"function_score": map[string]interface{}{
			"query":      f.Query.Render(),
			"functions":  fns,
			"score_mode": "sum",
			"boost_mode": "sum",
		},
	}
}

// MatchPrefix is the autocomplete tier.
type MatchPrefix struct {
	Field string
	Text  string
}

func (m MatchPrefix) Render() map[string]interface{} {
	return map[string]interface{}{
		"match_phrase_prefix": map[string]interface{}{
			m.Field: map[string]interface{}{"query": m.Text},
		},
	}
}

func renderAll(exprs []Expr) []map[string]interface{} {
	out := make([]map[string]interface{}, len(exprs))
	for i, e := range exprs {
		out[i] = e.Render()
	}
	return out
}
