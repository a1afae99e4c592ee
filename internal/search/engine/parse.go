// internal/search/engine/parse.go
package engine

import (
	"encoding/json"

	"search-orchestrator/internal/models"
	"search-orchestrator/internal/search/geoutil"
)

// esResponse is the subset of the engine response we read. Everything
// else is ignored.
type esResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []esHit `json:"hits"`
	} `json:"hits"`
}

type esHit struct {
	ID     string                 `json:"_id"`
	Index  string                 `json:"_index"`
	Score  *float64               `json:"_score"`
	Source map[string]interface{} `json:"_source"`
	Fields map[string]interface{} `json:"fields"`
	Sort   []interface{}          `json:"sort"`
}

type msearchResponse struct {
	Responses []json.RawMessage `json:"responses"`
}

// Result is one index's parsed response.
type Result struct {
	Hits  []*models.Hit
	Total int
}

// parseResponse decodes the engine body into hits. Indices have
// overlapping but non-identical schemas, so every source field is read
// tolerantly; a missing or oddly-typed field becomes absent, never an
// error.
func parseResponse(raw []byte, geo *models.GeoPoint, geoSorted bool) (*Result, error) {
	var resp esResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, err
	}

	out := &Result{Total: resp.Hits.Total.Value}
	for _, eh := range resp.Hits.Hits {
		out.Hits = append(out.Hits, parseHit(eh, geo, geoSorted))
	}
	return out, nil
}

func parseHit(eh esHit, geo *models.GeoPoint, geoSorted bool) *models.Hit {
	h := &models.Hit{
		ID:     eh.ID,
		Index:  eh.Index,
		Source: eh.Source,
	}
	if eh.Score != nil {
		h.Score = *eh.Score
	}

	src := eh.Source
	h.Name = stringField(src, "name")
	h.Price = floatField(src, "price")
	h.Rating = floatField(src, "rating")
	h.OrderCount = intField(src, "order_count")
	h.Veg = boolField(src, "veg")
	h.StoreID = stringField(src, "store_id")
	h.StoreName = stringField(src, "store_name")
	h.CategoryID = stringField(src, "category_id")
	h.Brand = stringField(src, "brand")
	h.ImageURL = stringField(src, "image_url")
	h.OpenNow = boolField(src, "open_now")
	h.Location = geoField(src, "location")
	if mid := stringField(src, "module_id"); mid != nil {
		h.ModuleID = *mid
	}
	h.Related = parseRelated(src)

	populateDistance(h, eh, geo, geoSorted)
	return h
}

// populateDistance derives distance_km in kilometers. Preference order:
// an engine-computed field, then the geo sort value, then a manual
// haversine from raw coordinates. Any value above the meters threshold
// is treated as meters and divided down.
func populateDistance(h *models.Hit, eh esHit, geo *models.GeoPoint, geoSorted bool) {
	if geo == nil || geo.IsZero() {
		return
	}

	var km *float64
	if d := floatField(eh.Source, "distance"); d != nil {
		v := geoutil.NormalizeKm(*d)
		km = &v
	} else if d := fieldsFloat(eh.Fields, "distance"); d != nil {
		v := geoutil.NormalizeKm(*d)
		km = &v
	} else if geoSorted && len(eh.Sort) > 0 {
		if d, ok := toFloat(eh.Sort[0]); ok {
			v := geoutil.NormalizeKm(d)
			km = &v
		}
	} else if h.Location != nil && !h.Location.IsZero() {
		v := geoutil.HaversineKm(*geo, *h.Location)
		km = &v
	}

	if km != nil {
		h.DistanceKm = km
		mins := geoutil.TravelMinutes(*km)
		h.TravelMinutes = &mins
	}
}

func parseRelated(src map[string]interface{}) []models.RecommendationEdge {
	raw, ok := src["frequently_bought"].([]interface{})
	if !ok {
		return nil
	}

	var edges []models.RecommendationEdge
	for _, entry := range raw {
		m, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		related := stringField(m, "related_item_id")
		if related == nil {
			continue
		}
		edge := models.RecommendationEdge{RelatedItemID: *related}
		if id := stringField(m, "item_id"); id != nil {
			edge.ItemID = *id
		}
		if count := intField(m, "count"); count != nil {
			edge.Count = int(*count)
		}
		edges = append(edges, edge)
	}
	return edges
}

// Tolerant field readers. Documents are written by several pipelines
// with drifting types, so numbers may arrive as strings and booleans as
// 0/1.

func stringField(src map[string]interface{}, key string) *string {
	if src == nil {
		return nil
	}
	if s, ok := src[key].(string); ok && s != "" {
		return &s
	}
	return nil
}

func floatField(src map[string]interface{}, key string) *float64 {
	if src == nil {
		return nil
	}
	if f, ok := toFloat(src[key]); ok {
		return &f
	}
	return nil
}

func intField(src map[string]interface{}, key string) *int64 {
	if f := floatField(src, key); f != nil {
		v := int64(*f)
		return &v
	}
	return nil
}

func boolField(src map[string]interface{}, key string) *bool {
	if src == nil {
		return nil
	}
	switch v := src[key].(type) {
	case bool:
		return &v
	case float64:
		b := v != 0
		return &b
	case string:
		switch v {
		case "1", "true", "yes":
			b := true
			return &b
		case "0", "false", "no":
			b := false
			return &b
		}
	}
	return nil
}

func geoField(src map[string]interface{}, key string) *models.GeoPoint {
	if src == nil {
		return nil
	}
	switch v := src[key].(type) {
	case map[string]interface{}:
		lat, latOK := toFloat(v["lat"])
		lon, lonOK := toFloat(v["lon"])
		if latOK && lonOK {
			return &models.GeoPoint{Lat: lat, Lon: lon}
		}
	case []interface{}:
		// GeoJSON order: [lon, lat]
		if len(v) == 2 {
			lon, lonOK := toFloat(v[0])
			lat, latOK := toFloat(v[1])
			if latOK && lonOK {
				return &models.GeoPoint{Lat: lat, Lon: lon}
			}
		}
	}
	return nil
}

// fieldsFloat reads a computed field, which the engine wraps in an
// array.
func fieldsFloat(fields map[string]interface{}, key string) *float64 {
	if fields == nil {
		return nil
	}
	if arr, ok := fields[key].([]interface{}); ok && len(arr) > 0 {
		if f, ok := toFloat(arr[0]); ok {
			return &f
		}
	}
	return nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		if f, err := json.Number(n).Float64(); err == nil {
			return f, true
		}
	}
	return 0, false
}
