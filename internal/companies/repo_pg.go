package companies

import (
	"context"
	"database/sql"
	"errors"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// GetByID fetches a company by ID.
func (r *PGRepo) GetByID(ctx context.Context, companyID string) (Company, error) {
	const query = `
SELECT id, org_id, name, business_id, industry, website, created_at
FROM companies
WHERE id = $1`
	var c Company
	var businessID, industry, website sql.NullString
	err := r.DB.QueryRowContext(ctx, query, companyID).Scan(
		&c.ID,
		&c.OrgID,
		&c.Name,
		&businessID,
		&industry,
		&website,
		&c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Company{}, ErrNotFound
		}
		return Company{}, err
	}
	if businessID.Valid {
		c.BusinessID = businessID.String
	}
	if industry.Valid {
		c.Industry = industry.String
	}
	if website.Valid {
		c.Website = website.String
	}
	return c, nil
}

var _ Repo = (*PGRepo)(nil)
