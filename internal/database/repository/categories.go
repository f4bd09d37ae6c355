package repository

import (
	"context"
	"database/sql"
)

// CategoryRepo handles categories.
type CategoryRepo struct {
	db *sql.DB
}

func NewCategoryRepo(db *sql.DB) *CategoryRepo {
	return &CategoryRepo{db: db}
}

func (r *CategoryRepo) Upsert(ctx context.Context, c Category) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO categories(id, organization_id, name, type, is_active)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
	 name=excluded.name,
	 type=excluded.type,
	 is_active=excluded.is_active;
	`, c.ID, c.OrganizationID, c.Name, c.Type, c.IsActive)
	return err
}

// ListActive returns the organization's active categories of one transaction type.
func (r *CategoryRepo) ListActive(ctx context.Context, organizationID, txType string) ([]Category, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, organization_id, name, type, is_active
	FROM categories
	WHERE organization_id = ? AND type = ? AND is_active = 1
	ORDER BY name, id
	`, organizationID, txType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.OrganizationID, &c.Name, &c.Type, &c.IsActive); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
