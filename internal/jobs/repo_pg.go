package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const jobColumns = `
id, org_id, company_id, created_by,
generate_teaser, generate_im, generate_pitch_deck,
status, failed_from, progress, current_step,
public_data_collected, public_data_collected_at,
documents_uploaded, documents_uploaded_at,
questionnaire_completed, questionnaire_completed_at,
data_consolidated, data_consolidated_at,
teaser_asset_id, im_asset_id, pitch_deck_asset_id,
error_message, retry_count, warnings,
created_at, started_at, completed_at, estimated_completion_at`

// Create inserts a new job record.
func (r *PGRepo) Create(ctx context.Context, j Job) error {
	const query = `
INSERT INTO material_jobs (
    id, org_id, company_id, created_by,
    generate_teaser, generate_im, generate_pitch_deck,
    status, progress, current_step, warnings,
    created_at, estimated_completion_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	warnings, err := json.Marshal(emptyIfNil(j.Warnings))
	if err != nil {
		return fmt.Errorf("marshal warnings: %w", err)
	}
	_, err = r.DB.ExecContext(ctx, query,
		j.ID, j.OrgID, j.CompanyID, j.CreatedBy,
		j.GenerateTeaser, j.GenerateIM, j.GeneratePitchDeck,
		j.Status, j.Progress, j.CurrentStep, warnings,
		j.CreatedAt, j.EstimatedCompletionAt,
	)
	return err
}

// GetByID fetches a job by ID.
func (r *PGRepo) GetByID(ctx context.Context, jobID string) (Job, error) {
	query := `SELECT ` + jobColumns + ` FROM material_jobs WHERE id = $1`
	j, err := scanJob(r.DB.QueryRowContext(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Job{}, ErrNotFound
		}
		return Job{}, err
	}
	return j, nil
}

// ListByOrg returns an organization's jobs, newest first.
func (r *PGRepo) ListByOrg(ctx context.Context, orgID string, limit, offset int) ([]Job, error) {
	query := `SELECT ` + jobColumns + `
FROM material_jobs
WHERE org_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`
	rows, err := r.DB.QueryContext(ctx, query, orgID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// UpdateStatus applies a mutation only while the stored status still equals
// fromStatus. Progress ratchets up, phase flags and artifact refs never
// unset, and the first timestamp for each flag wins on redelivery.
func (r *PGRepo) UpdateStatus(ctx context.Context, jobID, fromStatus string, upd StatusUpdate) (Job, bool, error) {
	query := `
UPDATE material_jobs SET
    status = $3,
    progress = GREATEST(progress, $4),
    current_step = $5,
    estimated_completion_at = $6,
    started_at = COALESCE(started_at, $7),
    completed_at = COALESCE($8, completed_at),
    public_data_collected = public_data_collected OR $9,
    public_data_collected_at = CASE WHEN $9 AND public_data_collected_at IS NULL THEN $10 ELSE public_data_collected_at END,
    documents_uploaded = documents_uploaded OR $11,
    documents_uploaded_at = CASE WHEN $11 AND documents_uploaded_at IS NULL THEN $10 ELSE documents_uploaded_at END,
    questionnaire_completed = questionnaire_completed OR $12,
    questionnaire_completed_at = CASE WHEN $12 AND questionnaire_completed_at IS NULL THEN $10 ELSE questionnaire_completed_at END,
    data_consolidated = data_consolidated OR $13,
    data_consolidated_at = CASE WHEN $13 AND data_consolidated_at IS NULL THEN $10 ELSE data_consolidated_at END,
    teaser_asset_id = COALESCE($14, teaser_asset_id),
    im_asset_id = COALESCE($15, im_asset_id),
    pitch_deck_asset_id = COALESCE($16, pitch_deck_asset_id),
    error_message = CASE WHEN $17 THEN NULL ELSE COALESCE($18, error_message) END,
    failed_from = CASE WHEN $17 THEN NULL ELSE COALESCE($19, failed_from) END,
    retry_count = CASE WHEN $17 THEN 0 WHEN $20 THEN retry_count + 1 ELSE retry_count END
WHERE id = $1 AND status = $2
RETURNING ` + jobColumns
	now := time.Now().UTC()
	j, err := scanJob(r.DB.QueryRowContext(ctx, query,
		jobID, fromStatus,
		upd.Status, upd.Progress, upd.CurrentStep,
		upd.EstimatedCompletionAt, upd.StartedAt, upd.CompletedAt,
		upd.MarkPublicDataCollected, now,
		upd.MarkDocumentsUploaded,
		upd.MarkQuestionnaireCompleted,
		upd.MarkDataConsolidated,
		upd.TeaserAssetID, upd.IMAssetID, upd.PitchDeckAssetID,
		upd.ClearFailure, upd.ErrorMessage, upd.FailedFrom,
		upd.IncrementRetry,
	))
	if err == nil {
		return j, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Job{}, false, err
	}
	// Precondition missed: surface the current record so the caller can see
	// what won the race.
	current, err := r.GetByID(ctx, jobID)
	if err != nil {
		return Job{}, false, err
	}
	return current, false, nil
}

// AppendWarnings appends entries to the job's warning list.
func (r *PGRepo) AppendWarnings(ctx context.Context, jobID string, warnings []string) error {
	if len(warnings) == 0 {
		return nil
	}
	const query = `UPDATE material_jobs SET warnings = warnings || $2::jsonb WHERE id = $1`
	payload, err := json.Marshal(warnings)
	if err != nil {
		return fmt.Errorf("marshal warnings: %w", err)
	}
	res, err := r.DB.ExecContext(ctx, query, jobID, payload)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (Job, error) {
	var j Job
	var failedFrom, currentStep sql.NullString
	var teaserRef, imRef, deckRef, errMsg sql.NullString
	var publicAt, docsAt, questAt, consAt sql.NullTime
	var startedAt, completedAt, etaAt sql.NullTime
	var warnings []byte
	err := row.Scan(
		&j.ID, &j.OrgID, &j.CompanyID, &j.CreatedBy,
		&j.GenerateTeaser, &j.GenerateIM, &j.GeneratePitchDeck,
		&j.Status, &failedFrom, &j.Progress, &currentStep,
		&j.PublicDataCollected, &publicAt,
		&j.DocumentsUploaded, &docsAt,
		&j.QuestionnaireCompleted, &questAt,
		&j.DataConsolidated, &consAt,
		&teaserRef, &imRef, &deckRef,
		&errMsg, &j.RetryCount, &warnings,
		&j.CreatedAt, &startedAt, &completedAt, &etaAt,
	)
	if err != nil {
		return Job{}, err
	}
	j.FailedFrom = failedFrom.String
	j.CurrentStep = currentStep.String
	if teaserRef.Valid {
		j.TeaserAssetID = &teaserRef.String
	}
	if imRef.Valid {
		j.IMAssetID = &imRef.String
	}
	if deckRef.Valid {
		j.PitchDeckAssetID = &deckRef.String
	}
	if errMsg.Valid {
		j.ErrorMessage = &errMsg.String
	}
	if publicAt.Valid {
		j.PublicDataCollectedAt = &publicAt.Time
	}
	if docsAt.Valid {
		j.DocumentsUploadedAt = &docsAt.Time
	}
	if questAt.Valid {
		j.QuestionnaireCompletedAt = &questAt.Time
	}
	if consAt.Valid {
		j.DataConsolidatedAt = &consAt.Time
	}
	if startedAt.Valid {
		j.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		j.CompletedAt = &completedAt.Time
	}
	if etaAt.Valid {
		j.EstimatedCompletionAt = &etaAt.Time
	}
	if len(warnings) > 0 {
		if err := json.Unmarshal(warnings, &j.Warnings); err != nil {
			return Job{}, fmt.Errorf("decode warnings: %w", err)
		}
	}
	return j, nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var _ Repo = (*PGRepo)(nil)
