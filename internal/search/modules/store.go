// internal/search/modules/store.go
package modules

import (
	"context"
	"database/sql"
	"fmt"

	"search-orchestrator/internal/models"
)

// Store reads module, category and store metadata from the relational
// database.
type Store interface {
	ListModules(ctx context.Context) ([]models.Module, error)
	ListCategories(ctx context.Context, moduleID string) ([]models.Category, error)
	GetCategory(ctx context.Context, categoryID string) (*models.Category, error)
	GetStores(ctx context.Context, storeIDs []string) ([]models.Store, error)
	FindStoresByName(ctx context.Context, name string, limit int) ([]models.Store, error)
}

// SQLStore is the Postgres-backed Store.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) ListModules(ctx context.Context) ([]models.Module, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, module_type, display_name, index_name FROM modules WHERE deleted_at IS NULL ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query modules: %w", err)
	}
	defer rows.Close()

	var out []models.Module
	for rows.Next() {
		var m models.Module
		if err := rows.Scan(&m.ID, &m.Type, &m.DisplayName, &m.IndexName); err != nil {
			return nil, fmt.Errorf("scan module row: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate module rows: %w", err)
	}
	return out, nil
}

func (s *SQLStore) ListCategories(ctx context.Context, moduleID string) ([]models.Category, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, COALESCE(parent_id, ''), module_id, name FROM categories WHERE module_id = $1 AND deleted_at IS NULL`,
		moduleID)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	var out []models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.ParentID, &c.ModuleID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan category row: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category rows: %w", err)
	}
	return out, nil
}

func (s *SQLStore) GetCategory(ctx context.Context, categoryID string) (*models.Category, error) {
	var c models.Category
	err := s.db.QueryRowContext(ctx,
		`SELECT id, COALESCE(parent_id, ''), module_id, name FROM categories WHERE id = $1 AND deleted_at IS NULL`,
		categoryID).Scan(&c.ID, &c.ParentID, &c.ModuleID, &c.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query category %s: %w", categoryID, err)
	}
	return &c, nil
}

func (s *SQLStore) GetStores(ctx context.Context, storeIDs []string) ([]models.Store, error) {
	if len(storeIDs) == 0 {
		return nil, nil
	}

	// lib/pq has no native slice expansion; build the placeholder list.
	args := make([]interface{}, len(storeIDs))
	placeholders := ""
	for i, id := range storeIDs {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	query := fmt.Sprintf(
		`SELECT id, module_id, name, COALESCE(logo, ''), COALESCE(address, ''), COALESCE(cover_photo, '')
		 FROM stores WHERE id IN (%s) AND deleted_at IS NULL`, placeholders)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query stores: %w", err)
	}
	defer rows.Close()

	var out []models.Store
	for rows.Next() {
		var st models.Store
		if err := rows.Scan(&st.ID, &st.ModuleID, &st.Name, &st.Logo, &st.Address, &st.CoverPhoto); err != nil {
			return nil, fmt.Errorf("scan store row: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate store rows: %w", err)
	}
	return out, nil
}

// FindStoresByName does a case-insensitive substring lookup ordered so
// that exact and prefix matches come first.
func (s *SQLStore) FindStoresByName(ctx context.Context, name string, limit int) ([]models.Store, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, module_id, name, COALESCE(logo, ''), COALESCE(address, ''), COALESCE(cover_photo, '')
		 FROM stores
		 WHERE name ILIKE '%' || $1 || '%' AND deleted_at IS NULL
		 ORDER BY (LOWER(name) = LOWER($1)) DESC, (name ILIKE $1 || '%') DESC, LENGTH(name)
		 LIMIT $2`,
		name, limit)
	if err != nil {
		return nil, fmt.Errorf("find stores by name: %w", err)
	}
	defer rows.Close()

	var out []models.Store
	for rows.Next() {
		var st models.Store
		if err := rows.Scan(&st.ID, &st.ModuleID, &st.Name, &st.Logo, &st.Address, &st.CoverPhoto); err != nil {
			return nil, fmt.Errorf("scan store row: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate store rows: %w", err)
	}
	return out, nil
}
