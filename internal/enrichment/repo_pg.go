package enrichment

import (
	"context"
	"database/sql"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Append inserts a cache entry.
func (r *PGRepo) Append(ctx context.Context, e CacheEntry) error {
	const query = `
INSERT INTO enrichment_cache_entries (id, job_id, company_id, source, payload, confidence_score, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.DB.ExecContext(ctx, query,
		e.ID, e.JobID, e.CompanyID, e.Source, []byte(e.Payload), e.ConfidenceScore, e.CreatedAt)
	return err
}

// ListByJob returns a job's cache entries, newest first.
func (r *PGRepo) ListByJob(ctx context.Context, jobID string) ([]CacheEntry, error) {
	const query = `
SELECT id, job_id, company_id, source, payload, confidence_score, created_at
FROM enrichment_cache_entries
WHERE job_id = $1
ORDER BY created_at DESC`
	rows, err := r.DB.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CacheEntry
	for rows.Next() {
		var e CacheEntry
		var payload []byte
		if err := rows.Scan(&e.ID, &e.JobID, &e.CompanyID, &e.Source, &payload, &e.ConfidenceScore, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Payload = payload
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountSources counts distinct sources cached for a job.
func (r *PGRepo) CountSources(ctx context.Context, jobID string) (int, error) {
	const query = `SELECT COUNT(DISTINCT source) FROM enrichment_cache_entries WHERE job_id = $1`
	var n int
	if err := r.DB.QueryRowContext(ctx, query, jobID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

var _ Repo = (*PGRepo)(nil)
