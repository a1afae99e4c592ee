// internal/search/zone/store.go
package zone

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"search-orchestrator/internal/models"
)

// SQLLoader reads zone polygons from the relational store. Polygons are
// stored as a JSON array of [lon, lat] vertex pairs.
type SQLLoader struct {
	db *sql.DB
}

func NewSQLLoader(db *sql.DB) *SQLLoader {
	return &SQLLoader{db: db}
}

func (l *SQLLoader) LoadZones(ctx context.Context) ([]models.Zone, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, name, polygon FROM zones WHERE deleted_at IS NULL ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query zones: %w", err)
	}
	defer rows.Close()

	var zones []models.Zone
	for rows.Next() {
		var (
			z       models.Zone
			rawPoly []byte
		)
		if err := rows.Scan(&z.ID, &z.Name, &rawPoly); err != nil {
			return nil, fmt.Errorf("scan zone row: %w", err)
		}

		vertices, err := parsePolygon(rawPoly)
		if err != nil {
			// A malformed polygon must not take down the whole refresh;
			// skip the row and keep loading.
			continue
		}
		z.Polygon = vertices
		zones = append(zones, z)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate zone rows: %w", err)
	}
	return zones, nil
}

// parsePolygon decodes a JSON [[lon, lat], ...] vertex list.
func parsePolygon(raw []byte) ([]models.GeoPoint, error) {
	var pairs [][]float64
	if err := json.Unmarshal(raw, &pairs); err != nil {
		return nil, fmt.Errorf("decode polygon: %w", err)
	}

	points := make([]models.GeoPoint, 0, len(pairs))
	for _, pair := range pairs {
		if len(pair) != 2 {
			return nil, fmt.Errorf("polygon vertex has %d coordinates", len(pair))
		}
		points = append(points, models.GeoPoint{Lon: pair[0], Lat: pair[1]})
	}
	if len(points) < 3 {
		return nil, fmt.Errorf("polygon has %d vertices", len(points))
	}
	return points, nil
}
