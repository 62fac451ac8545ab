package questionnaire

import (
	"context"
	"database/sql"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Seed inserts empty response rows. Redelivered seeds are no-ops thanks to
// the (job_id, question_id) unique constraint.
func (r *PGRepo) Seed(ctx context.Context, responses []Response) error {
	const query = `
INSERT INTO questionnaire_responses (id, job_id, question_id, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (job_id, question_id) DO NOTHING`
	for _, resp := range responses {
		if _, err := r.DB.ExecContext(ctx, query, resp.ID, resp.JobID, resp.QuestionID, resp.CreatedAt); err != nil {
			return err
		}
	}
	return nil
}

// RecordAnswer fills a seeded response. Questions outside the job's seeded
// set are rejected.
func (r *PGRepo) RecordAnswer(ctx context.Context, jobID, questionID, answer string) error {
	const query = `
UPDATE questionnaire_responses
SET answer = $3, answered_at = now()
WHERE job_id = $1 AND question_id = $2`
	res, err := r.DB.ExecContext(ctx, query, jobID, questionID, answer)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUnknownQuestion
	}
	return nil
}

// ListByJob returns a job's responses in seeding order.
func (r *PGRepo) ListByJob(ctx context.Context, jobID string) ([]Response, error) {
	const query = `
SELECT id, job_id, question_id, answer, answered_at, created_at
FROM questionnaire_responses
WHERE job_id = $1
ORDER BY created_at, question_id`
	rows, err := r.DB.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Response
	for rows.Next() {
		var resp Response
		var answer sql.NullString
		var answeredAt sql.NullTime
		if err := rows.Scan(&resp.ID, &resp.JobID, &resp.QuestionID, &answer, &answeredAt, &resp.CreatedAt); err != nil {
			return nil, err
		}
		if answer.Valid {
			resp.Answer = &answer.String
		}
		if answeredAt.Valid {
			resp.AnsweredAt = &answeredAt.Time
		}
		out = append(out, resp)
	}
	return out, rows.Err()
}

// Completion counts answered and total seeded questions for a job.
func (r *PGRepo) Completion(ctx context.Context, jobID string) (int, int, error) {
	const query = `
SELECT COUNT(*) FILTER (WHERE answer IS NOT NULL), COUNT(*)
FROM questionnaire_responses
WHERE job_id = $1`
	var answered, total int
	if err := r.DB.QueryRowContext(ctx, query, jobID).Scan(&answered, &total); err != nil {
		return 0, 0, err
	}
	return answered, total, nil
}

var _ Repo = (*PGRepo)(nil)
