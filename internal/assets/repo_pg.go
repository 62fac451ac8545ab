package assets

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const assetColumns = `
id, org_id, company_id, job_id, kind, file_name, mime_type, size_bytes,
storage_key, extracted_text_key, extracted_at, metadata, created_at`

// Create inserts an asset record.
func (r *PGRepo) Create(ctx context.Context, a Asset) error {
	const query = `
INSERT INTO company_assets (
    id, org_id, company_id, job_id, kind, file_name, mime_type, size_bytes,
    storage_key, metadata, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	var metadata any
	if len(a.Metadata) > 0 {
		metadata = []byte(a.Metadata)
	}
	_, err := r.DB.ExecContext(ctx, query,
		a.ID, a.OrgID, a.CompanyID, nullIfEmpty(a.JobID), a.Kind, a.FileName,
		a.MimeType, a.SizeBytes, a.StorageKey, metadata, a.CreatedAt)
	return err
}

// GetByID fetches an asset by ID.
func (r *PGRepo) GetByID(ctx context.Context, assetID string) (Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM company_assets WHERE id = $1`
	a, err := scanAsset(r.DB.QueryRowContext(ctx, query, assetID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Asset{}, ErrNotFound
		}
		return Asset{}, err
	}
	return a, nil
}

// ListByJob returns a job's assets in upload order.
func (r *PGRepo) ListByJob(ctx context.Context, jobID string) ([]Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM company_assets WHERE job_id = $1 ORDER BY created_at`
	return r.list(ctx, query, jobID)
}

// ListByJobKind returns a job's assets of one kind in upload order.
func (r *PGRepo) ListByJobKind(ctx context.Context, jobID, kind string) ([]Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM company_assets WHERE job_id = $1 AND kind = $2 ORDER BY created_at`
	return r.list(ctx, query, jobID, kind)
}

// CountByJobKind counts a job's assets of one kind.
func (r *PGRepo) CountByJobKind(ctx context.Context, jobID, kind string) (int, error) {
	const query = `SELECT COUNT(*) FROM company_assets WHERE job_id = $1 AND kind = $2`
	var n int
	if err := r.DB.QueryRowContext(ctx, query, jobID, kind).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// SetExtractedText records where a document's extracted text lives.
func (r *PGRepo) SetExtractedText(ctx context.Context, assetID, extractedKey string, at time.Time) error {
	const query = `UPDATE company_assets SET extracted_text_key = $2, extracted_at = $3 WHERE id = $1`
	res, err := r.DB.ExecContext(ctx, query, assetID, extractedKey, at)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) list(ctx context.Context, query string, args ...any) ([]Asset, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAsset(row rowScanner) (Asset, error) {
	var a Asset
	var jobID, extractedKey sql.NullString
	var extractedAt sql.NullTime
	var metadata []byte
	err := row.Scan(
		&a.ID, &a.OrgID, &a.CompanyID, &jobID, &a.Kind, &a.FileName,
		&a.MimeType, &a.SizeBytes, &a.StorageKey, &extractedKey, &extractedAt,
		&metadata, &a.CreatedAt,
	)
	if err != nil {
		return Asset{}, err
	}
	a.JobID = jobID.String
	if extractedKey.Valid {
		a.ExtractedTextKey = &extractedKey.String
	}
	if extractedAt.Valid {
		a.ExtractedAt = &extractedAt.Time
	}
	a.Metadata = metadata
	return a, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var _ Repo = (*PGRepo)(nil)
