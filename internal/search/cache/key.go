// internal/search/cache/key.go
package cache

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"search-orchestrator/internal/models"
)

const keyPrefix = "search:v1:"

// roundCoord buckets a coordinate to two decimal places (~1.1 km) so that
// jittery GPS readings from the same spot still hit the cache.
func roundCoord(v float64) float64 {
	return math.Round(v*100) / 100
}

// Key builds the canonical, order-independent cache key for a request.
// The field set is fixed; map marshalling sorts keys, so two logically
// identical requests always serialize identically.
func Key(req *models.SearchRequest) string {
	fields := map[string]interface{}{
		"q":      strings.ToLower(strings.TrimSpace(req.Query)),
		"target": string(req.Target),
		"page":   req.Pagination.Page,
		"size":   req.Pagination.Size,
	}

	switch {
	case req.Module.ID != "":
		fields["module"] = req.Module.ID
	case len(req.Module.IDs) > 0:
		ids := append([]string(nil), req.Module.IDs...)
		sort.Strings(ids)
		fields["module"] = strings.Join(ids, ",")
	case req.Module.Type != "":
		fields["module"] = req.Module.Type
	}

	f := req.Filters
	if f.Veg != models.VegAny {
		fields["veg"] = int(f.Veg)
	}
	if f.CategoryID != "" {
		fields["category"] = f.CategoryID
	}
	if f.PriceMin != nil {
		fields["price_min"] = *f.PriceMin
	}
	if f.PriceMax != nil {
		fields["price_max"] = *f.PriceMax
	}
	if f.RatingMin != nil {
		fields["rating_min"] = *f.RatingMin
	}
	if f.StoreID != "" {
		fields["store"] = f.StoreID
	}
	if len(f.StoreIDs) > 0 {
		ids := append([]string(nil), f.StoreIDs...)
		sort.Strings(ids)
		fields["stores"] = strings.Join(ids, ",")
	}
	if len(f.Brands) > 0 {
		brands := append([]string(nil), f.Brands...)
		sort.Strings(brands)
		fields["brands"] = strings.Join(brands, ",")
	}
	if f.OpenNow {
		fields["open_now"] = true
	}
	if f.HasGeo() {
		fields["lat"] = roundCoord(f.Geo.Lat)
		fields["lon"] = roundCoord(f.Geo.Lon)
		if f.RadiusKm > 0 {
			fields["radius"] = f.RadiusKm
		}
	}
	if f.ZoneID != "" {
		fields["zone"] = f.ZoneID
	}
	if f.Sort != "" {
		fields["sort"] = string(f.Sort)
	}

	// map keys are sorted by encoding/json, making the key canonical
	serialized, _ := json.Marshal(fields)
	return keyPrefix + string(serialized)
}

// StorePattern matches every cached key referencing a store id.
func StorePattern(storeID string) string {
	return fmt.Sprintf("%q", storeID)
}

// ModulePattern matches every cached key referencing a module selector.
func ModulePattern(moduleID string) string {
	return fmt.Sprintf(`"module":%q`, moduleID)
}
