// internal/models/module.go
package models

import "fmt"

// ModuleType enumerates the marketplace verticals.
type ModuleType string

const (
	ModuleFood     ModuleType = "food"
	ModuleRetail   ModuleType = "retail"
	ModuleRooms    ModuleType = "rooms"
	ModuleServices ModuleType = "services"
	ModuleMovies   ModuleType = "movies"
)

// Module is one marketplace vertical with its own set of indices.
type Module struct {
	ID          string     `json:"id"`
	Type        ModuleType `json:"type"`
	DisplayName string     `json:"display_name"`
	// IndexName is the item index for this module; category and store
	// indices follow the same naming convention.
	IndexName string `json:"index_name"`
}

// CategoryIndex returns the category index paired with the item index.
func (m Module) CategoryIndex() string {
	return fmt.Sprintf("categories_%s", m.Type)
}

// StoreIndex returns the store index paired with the item index.
func (m Module) StoreIndex() string {
	return fmt.Sprintf("stores_%s", m.Type)
}

// Category is a module-scoped grouping. Ids are unique per module only.
type Category struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id,omitempty"`
	ModuleID string `json:"module_id"`
	Name     string `json:"name"`
}

// Store carries the relational metadata used to backfill fields missing
// from the search engine.
type Store struct {
	ID         string `json:"id"`
	ModuleID   string `json:"module_id"`
	Name       string `json:"name"`
	Logo       string `json:"logo,omitempty"`
	Address    string `json:"address,omitempty"`
	CoverPhoto string `json:"cover_photo,omitempty"`
}

// Zone is a serviceable delivery area. The polygon is immutable once
// loaded; the zone set is swapped wholesale on refresh.
type Zone struct {
	ID      string     `json:"id"`
	Name    string     `json:"name,omitempty"`
	Polygon []GeoPoint `json:"polygon"`
}
