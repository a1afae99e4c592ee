// internal/search/zone/resolver.go
package zone

import (
	"context"
	"sync/atomic"
	"time"

	"search-orchestrator/internal/common/logger"
	"search-orchestrator/internal/common/metrics"
	"search-orchestrator/internal/models"
)

// Loader fetches the full zone set from the relational store.
type Loader interface {
	LoadZones(ctx context.Context) ([]models.Zone, error)
}

// Resolver maps a geo point to a serviceability zone. The polygon list is
// replaced wholesale on refresh; lookups always read one consistent
// snapshot.
type Resolver struct {
	loader   Loader
	logger   logger.Logger
	snapshot atomic.Pointer[[]models.Zone]
}

func NewResolver(loader Loader, log logger.Logger) *Resolver {
	r := &Resolver{
		loader: loader,
		logger: log.WithFields(map[string]interface{}{"component": "zone-resolver"}),
	}
	empty := []models.Zone{}
	r.snapshot.Store(&empty)
	return r
}

// Refresh loads the zone set once and swaps it in.
func (r *Resolver) Refresh(ctx context.Context) error {
	zones, err := r.loader.LoadZones(ctx)
	if err != nil {
		return err
	}

	r.snapshot.Store(&zones)
	metrics.ZonesLoaded.Set(float64(len(zones)))
	r.logger.Info("zone snapshot refreshed", map[string]interface{}{
		"zoneCount": len(zones),
	})
	return nil
}

// Run refreshes the snapshot on a fixed interval until ctx is cancelled.
// A failed refresh keeps the previous snapshot.
func (r *Resolver) Run(ctx context.Context, interval time.Duration) {
	if err := r.Refresh(ctx); err != nil {
		r.logger.WithError(err).Warn("initial zone refresh failed", nil)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil {
				r.logger.WithError(err).Warn("zone refresh failed, keeping previous snapshot", nil)
			}
		}
	}
}

// SetZones replaces the snapshot directly. Used by tests and by callers
// that already hold a zone set.
func (r *Resolver) SetZones(zones []models.Zone) {
	r.snapshot.Store(&zones)
	metrics.ZonesLoaded.Set(float64(len(zones)))
}

// Resolve returns the id of the first zone containing the point, or ""
// when the point is outside every known zone. An empty result is not an
// error; the caller simply omits the zone filter.
func (r *Resolver) Resolve(p models.GeoPoint) string {
	if p.IsZero() {
		return ""
	}

	zones := *r.snapshot.Load()
	for i := range zones {
		if containsPoint(zones[i].Polygon, p) {
			return zones[i].ID
		}
	}
	return ""
}

// containsPoint is the ray-casting point-in-polygon test: cast a ray along
// the longitude axis and count edge crossings.
func containsPoint(polygon []models.GeoPoint, p models.GeoPoint) bool {
	if len(polygon) < 3 {
		return false
	}

	inside := false
	j := len(polygon) - 1
	for i := 0; i < len(polygon); i++ {
		vi, vj := polygon[i], polygon[j]
		if (vi.Lat > p.Lat) != (vj.Lat > p.Lat) {
			crossLon := (vj.Lon-vi.Lon)*(p.Lat-vi.Lat)/(vj.Lat-vi.Lat) + vi.Lon
			if p.Lon < crossLon {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}
