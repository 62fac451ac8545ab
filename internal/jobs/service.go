package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"dealroom-backend/internal/assets"
	"dealroom-backend/internal/companies"
	"dealroom-backend/internal/enrichment"
	"dealroom-backend/internal/queue"
	"dealroom-backend/internal/questionnaire"
	"dealroom-backend/internal/shared/metrics"
	"dealroom-backend/internal/shared/telemetry"
)

const defaultMaxAttempts = 3

// Service orchestrates materials-generation jobs. It is the only component
// that mutates job records; every status change goes through a
// compare-and-swap against the status the caller observed, so duplicate
// events and concurrent user actions degrade to no-ops instead of corrupting
// the pipeline.
type Service struct {
	Repo          Repo
	Companies     companies.Repo
	Questionnaire *questionnaire.Service
	Enrichment    enrichment.Repo
	Intake        *assets.Service
	Queue         queue.Client

	// MaxAttempts bounds automated phase attempts before the job goes to
	// failed. Zero means the default of 3.
	MaxAttempts int
}

// CreateInput selects the outputs a new job should produce.
type CreateInput struct {
	CompanyID string
	Teaser    bool
	IM        bool
	PitchDeck bool
}

// Create validates the company, seeds the questionnaire and kicks off data
// collection. The job is returned in initiated status; collection runs
// asynchronously.
func (s *Service) Create(ctx context.Context, orgID, userID string, in CreateInput) (Job, error) {
	if !in.Teaser && !in.IM && !in.PitchDeck {
		return Job{}, ErrNoOutputsRequested
	}
	c, err := s.Companies.GetByID(ctx, in.CompanyID)
	if err != nil {
		if errors.Is(err, companies.ErrNotFound) {
			return Job{}, ErrCompanyNotFound
		}
		return Job{}, err
	}
	if c.OrgID != orgID {
		return Job{}, ErrForbidden
	}

	now := time.Now().UTC()
	j := Job{
		ID:                uuid.NewString(),
		OrgID:             orgID,
		CompanyID:         c.ID,
		CreatedBy:         userID,
		GenerateTeaser:    in.Teaser,
		GenerateIM:        in.IM,
		GeneratePitchDeck: in.PitchDeck,
		Status:            StatusInitiated,
		CurrentStep:       StepLabelFor(StatusInitiated),
		Warnings:          []string{},
		CreatedAt:         now,
	}
	j.EstimatedCompletionAt = EstimatedCompletionAt(j, now)
	if err := s.Repo.Create(ctx, j); err != nil {
		return Job{}, err
	}
	if _, err := s.Questionnaire.SeedForJob(ctx, j.ID, j.RequestedOutputs()); err != nil {
		return Job{}, err
	}
	metrics.IncJobsCreated()
	telemetry.Info("jobs.created", map[string]any{
		"job_id":     j.ID,
		"org_id":     orgID,
		"company_id": c.ID,
		"outputs":    j.RequestedOutputs(),
	})
	s.dispatch(ctx, queue.Message{Event: queue.EventCollectData, JobID: j.ID})
	return j, nil
}

// Get returns a job scoped to an organization.
func (s *Service) Get(ctx context.Context, jobID, orgID string) (Job, error) {
	j, err := s.Repo.GetByID(ctx, jobID)
	if err != nil {
		return Job{}, err
	}
	if j.OrgID != orgID {
		return Job{}, ErrForbidden
	}
	return j, nil
}

// List returns an organization's jobs, newest first.
func (s *Service) List(ctx context.Context, orgID string, limit, offset int) ([]Job, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.Repo.ListByOrg(ctx, orgID, limit, offset)
}

// StatusCounts carries the cross-module numbers the status view aggregates.
type StatusCounts struct {
	QuestionnaireAnswered int
	QuestionnaireTotal    int
	CachedSources         int
	UploadedDocuments     int
}

// Status returns a job with its aggregated pipeline counts.
func (s *Service) Status(ctx context.Context, jobID, orgID string) (Job, StatusCounts, error) {
	j, err := s.Get(ctx, jobID, orgID)
	if err != nil {
		return Job{}, StatusCounts{}, err
	}
	var counts StatusCounts
	counts.QuestionnaireAnswered, counts.QuestionnaireTotal, err = s.Questionnaire.Completion(ctx, jobID)
	if err != nil {
		return Job{}, StatusCounts{}, err
	}
	counts.CachedSources, err = s.Enrichment.CountSources(ctx, jobID)
	if err != nil {
		return Job{}, StatusCounts{}, err
	}
	counts.UploadedDocuments, err = s.Intake.Repo.CountByJobKind(ctx, jobID, assets.KindFinancialDocument)
	if err != nil {
		return Job{}, StatusCounts{}, err
	}
	return j, counts, nil
}

// UploadDocuments stores a batch of financial documents for a job awaiting
// uploads and kicks off text extraction for the accepted files.
func (s *Service) UploadDocuments(ctx context.Context, jobID, orgID string, files []assets.FileInput) (assets.BatchResult, error) {
	j, err := s.Get(ctx, jobID, orgID)
	if err != nil {
		return assets.BatchResult{}, err
	}
	if j.Status != StatusAwaitingUploads {
		return assets.BatchResult{}, ErrInvalidState
	}
	res, err := s.Intake.UploadBatch(ctx, assets.BatchInput{
		OrgID:     orgID,
		CompanyID: j.CompanyID,
		JobID:     jobID,
		Files:     files,
	})
	if len(res.Accepted) > 0 {
		s.dispatch(ctx, queue.Message{Event: queue.EventProcessUploads, JobID: jobID})
	}
	return res, err
}

// ConfirmDocuments ends the upload phase. At least one document must have
// been uploaded; the job then moves into the questionnaire.
func (s *Service) ConfirmDocuments(ctx context.Context, jobID, orgID string) (Job, error) {
	j, err := s.Get(ctx, jobID, orgID)
	if err != nil {
		return Job{}, err
	}
	if j.Status != StatusAwaitingUploads {
		return Job{}, ErrInvalidState
	}
	n, err := s.Intake.Repo.CountByJobKind(ctx, jobID, assets.KindFinancialDocument)
	if err != nil {
		return Job{}, err
	}
	if n == 0 {
		return Job{}, ErrNoDocuments
	}
	updated, swapped, err := s.transition(ctx, j, StatusQuestionnaireInProgress, StatusUpdate{MarkDocumentsUploaded: true})
	if err != nil {
		return Job{}, err
	}
	if !swapped {
		return updated, ErrInvalidState
	}
	// Catch documents whose extraction event was lost.
	s.dispatch(ctx, queue.Message{Event: queue.EventProcessUploads, JobID: jobID})
	return updated, nil
}

// AnswerResult reports questionnaire completion after an answer.
type AnswerResult struct {
	Answered      int
	Total         int
	CompletionPct int
}

// AnswerQuestion records a questionnaire answer. The first answer moves a
// pending questionnaire in progress; the last one marks the questionnaire
// complete and dispatches consolidation.
func (s *Service) AnswerQuestion(ctx context.Context, jobID, orgID, questionID, answer string) (AnswerResult, error) {
	j, err := s.Get(ctx, jobID, orgID)
	if err != nil {
		return AnswerResult{}, err
	}
	if j.Status != StatusQuestionnairePending && j.Status != StatusQuestionnaireInProgress {
		return AnswerResult{}, ErrInvalidState
	}
	answered, total, err := s.Questionnaire.Answer(ctx, jobID, questionID, answer)
	if err != nil {
		return AnswerResult{}, err
	}
	if j.Status == StatusQuestionnairePending {
		if j, _, err = s.transition(ctx, j, StatusQuestionnaireInProgress, StatusUpdate{}); err != nil {
			return AnswerResult{}, err
		}
	}
	if answered == total && total > 0 && !j.QuestionnaireCompleted {
		if err := s.markQuestionnaireComplete(ctx, j); err != nil {
			return AnswerResult{}, err
		}
	}
	return AnswerResult{
		Answered:      answered,
		Total:         total,
		CompletionPct: questionnaire.CompletionPct(answered, total),
	}, nil
}

func (s *Service) markQuestionnaireComplete(ctx context.Context, j Job) error {
	upd := StatusUpdate{
		Status:                     j.Status,
		Progress:                   j.Progress,
		CurrentStep:                j.CurrentStep,
		EstimatedCompletionAt:      j.EstimatedCompletionAt,
		MarkQuestionnaireCompleted: true,
	}
	updated, swapped, err := s.Repo.UpdateStatus(ctx, j.ID, j.Status, upd)
	if err != nil {
		return err
	}
	if !swapped || updated.Status != StatusQuestionnaireInProgress {
		return nil
	}
	s.dispatch(ctx, queue.Message{Event: queue.EventConsolidate, JobID: j.ID})
	return nil
}

// QuestionnaireItems returns the job's questions and answers plus completion
// counts.
func (s *Service) QuestionnaireItems(ctx context.Context, jobID, orgID string) ([]questionnaire.Item, int, int, error) {
	if _, err := s.Get(ctx, jobID, orgID); err != nil {
		return nil, 0, 0, err
	}
	items, err := s.Questionnaire.List(ctx, jobID)
	if err != nil {
		return nil, 0, 0, err
	}
	answered := 0
	for _, it := range items {
		if it.Answer != nil {
			answered++
		}
	}
	return items, answered, len(items), nil
}

// Cancel stops a job before it reaches review.
func (s *Service) Cancel(ctx context.Context, jobID, orgID string) (Job, error) {
	j, err := s.Get(ctx, jobID, orgID)
	if err != nil {
		return Job{}, err
	}
	if !IsCancellable(j.Status) {
		return Job{}, ErrInvalidState
	}
	updated, swapped, err := s.transition(ctx, j, StatusCancelled, StatusUpdate{})
	if err != nil {
		return Job{}, err
	}
	if !swapped {
		return updated, ErrInvalidState
	}
	metrics.IncJobsCancelled()
	return updated, nil
}

// Approve completes a job in review.
func (s *Service) Approve(ctx context.Context, jobID, orgID string) (Job, error) {
	j, err := s.Get(ctx, jobID, orgID)
	if err != nil {
		return Job{}, err
	}
	if j.Status != StatusReview {
		return Job{}, ErrInvalidState
	}
	updated, swapped, err := s.transition(ctx, j, StatusCompleted, StatusUpdate{})
	if err != nil {
		return Job{}, err
	}
	if !swapped {
		return updated, ErrInvalidState
	}
	metrics.IncJobsCompleted()
	return updated, nil
}

// Retry re-enters the phase a failed job failed from, clearing the failure
// record and resetting the attempt budget.
func (s *Service) Retry(ctx context.Context, jobID, orgID string) (Job, error) {
	j, err := s.Get(ctx, jobID, orgID)
	if err != nil {
		return Job{}, err
	}
	if j.Status != StatusFailed || j.FailedFrom == "" {
		return Job{}, ErrInvalidState
	}
	target := j.FailedFrom
	proj := j
	proj.Status = target
	now := time.Now().UTC()
	upd := StatusUpdate{
		Status:                target,
		Progress:              ProgressFor(target),
		CurrentStep:           StepLabelFor(target),
		EstimatedCompletionAt: EstimatedCompletionAt(proj, now),
		ClearFailure:          true,
	}
	updated, swapped, err := s.Repo.UpdateStatus(ctx, jobID, StatusFailed, upd)
	if err != nil {
		return Job{}, err
	}
	if !swapped {
		return updated, ErrInvalidState
	}
	telemetry.Info("jobs.retried", map[string]any{"job_id": jobID, "resumed_status": target})
	if msg, ok := eventFor(updated, target); ok {
		s.dispatch(ctx, msg)
	}
	return updated, nil
}

// RecordWarnings appends degradation warnings to a job.
func (s *Service) RecordWarnings(ctx context.Context, jobID string, warnings []string) error {
	return s.Repo.AppendWarnings(ctx, jobID, warnings)
}

// BeginCollection moves an initiated job into collecting_data. Redelivered
// collect events for a job already past initiated are no-ops.
func (s *Service) BeginCollection(ctx context.Context, jobID string) (Job, bool, error) {
	j, err := s.Repo.GetByID(ctx, jobID)
	if err != nil {
		return Job{}, false, err
	}
	if j.Status != StatusInitiated && j.Status != StatusCollectingData {
		return j, false, nil
	}
	if j.Status == StatusCollectingData {
		// Redelivery mid-collection: let the worker run again, collection is
		// append-only and safe to repeat.
		return j, true, nil
	}
	now := time.Now().UTC()
	return s.transition(ctx, j, StatusCollectingData, StatusUpdate{StartedAt: &now})
}

// CompleteCollection records collection warnings and advances the job to its
// next user-facing phase: uploads when the requested outputs need documents,
// the questionnaire otherwise.
func (s *Service) CompleteCollection(ctx context.Context, jobID string, warnings []string) (Job, error) {
	if err := s.Repo.AppendWarnings(ctx, jobID, warnings); err != nil {
		return Job{}, err
	}
	j, err := s.Repo.GetByID(ctx, jobID)
	if err != nil {
		return Job{}, err
	}
	target := StatusQuestionnairePending
	if j.UploadsRequired() {
		target = StatusAwaitingUploads
	}
	updated, _, err := s.transition(ctx, j, target, StatusUpdate{MarkPublicDataCollected: true})
	return updated, err
}

// CompleteConsolidation moves a job with a finished questionnaire into
// data_consolidated and dispatches the first generation phase.
func (s *Service) CompleteConsolidation(ctx context.Context, jobID string) (Job, bool, error) {
	j, err := s.Repo.GetByID(ctx, jobID)
	if err != nil {
		return Job{}, false, err
	}
	if j.Status != StatusQuestionnaireInProgress {
		return j, false, nil
	}
	if !j.QuestionnaireCompleted {
		telemetry.Warn("jobs.consolidate_premature", map[string]any{"job_id": jobID, "status": j.Status})
		return j, false, nil
	}
	updated, swapped, err := s.transition(ctx, j, StatusDataConsolidated, StatusUpdate{MarkDataConsolidated: true})
	if err != nil || !swapped {
		return updated, swapped, err
	}
	if first := updated.FirstOutput(); first != "" {
		s.dispatch(ctx, queue.Message{Event: queue.EventGenerate, JobID: jobID, Output: first})
	}
	return updated, true, nil
}

// BeginGeneration moves the job into the generation phase for an output.
// Returns false when the event is stale: the artifact already exists or the
// job is elsewhere in the pipeline.
func (s *Service) BeginGeneration(ctx context.Context, jobID, output string) (Job, bool, error) {
	target := GeneratingStatusFor(output)
	if target == "" {
		return Job{}, false, ErrInvalidState
	}
	j, err := s.Repo.GetByID(ctx, jobID)
	if err != nil {
		return Job{}, false, err
	}
	if j.ArtifactRef(output) != nil {
		return j, false, nil
	}
	if j.Status == target {
		// Redelivery mid-generation: run again, completion is CAS-guarded.
		return j, true, nil
	}
	if !CanTransition(j.Status, target) {
		return j, false, nil
	}
	return s.transition(ctx, j, target, StatusUpdate{})
}

// CompleteGeneration records the artifact for an output and advances to the
// next requested generation phase, or to review when this was the last one.
func (s *Service) CompleteGeneration(ctx context.Context, jobID, output, assetID string) (Job, error) {
	j, err := s.Repo.GetByID(ctx, jobID)
	if err != nil {
		return Job{}, err
	}
	from := GeneratingStatusFor(output)
	if j.Status != from {
		return j, nil
	}
	target := StatusReview
	next := j.NextOutputAfter(output)
	if next != "" {
		target = GeneratingStatusFor(next)
	}
	upd := StatusUpdate{}
	switch output {
	case OutputTeaser:
		upd.TeaserAssetID = &assetID
	case OutputIM:
		upd.IMAssetID = &assetID
	case OutputPitchDeck:
		upd.PitchDeckAssetID = &assetID
	}
	updated, swapped, err := s.transition(ctx, j, target, upd)
	if err != nil {
		return Job{}, err
	}
	if swapped && next != "" {
		s.dispatch(ctx, queue.Message{Event: queue.EventGenerate, JobID: jobID, Output: next})
	}
	return updated, nil
}

// FailPhase records a phase failure. Within the attempt budget the phase is
// re-dispatched; once exhausted the job goes to failed carrying the upstream
// error verbatim and remembering the phase for Retry.
func (s *Service) FailPhase(ctx context.Context, jobID, cause string) (retrying bool, err error) {
	j, err := s.Repo.GetByID(ctx, jobID)
	if err != nil {
		return false, err
	}
	if IsTerminal(j.Status) {
		return false, nil
	}
	attempt := j.RetryCount + 1
	if attempt < s.maxAttempts() {
		upd := StatusUpdate{
			Status:                j.Status,
			Progress:              j.Progress,
			CurrentStep:           j.CurrentStep,
			EstimatedCompletionAt: j.EstimatedCompletionAt,
			ErrorMessage:          &cause,
			IncrementRetry:        true,
		}
		updated, swapped, err := s.Repo.UpdateStatus(ctx, jobID, j.Status, upd)
		if err != nil {
			return false, err
		}
		if !swapped {
			return false, nil
		}
		telemetry.Warn("jobs.phase_retrying", map[string]any{
			"job_id": jobID, "status": j.Status, "attempt": attempt, "error": cause,
		})
		if msg, ok := eventFor(updated, updated.Status); ok {
			s.dispatch(ctx, msg)
		}
		return true, nil
	}
	failedFrom := j.Status
	updated, swapped, err := s.transition(ctx, j, StatusFailed, StatusUpdate{
		ErrorMessage:   &cause,
		FailedFrom:     &failedFrom,
		IncrementRetry: true,
	})
	if err != nil {
		return false, err
	}
	if swapped {
		metrics.IncJobsFailed()
		telemetry.Error("jobs.failed", map[string]any{
			"job_id": jobID, "failed_from": failedFrom, "attempts": updated.RetryCount, "error": cause,
		})
	}
	return false, nil
}

func (s *Service) maxAttempts() int {
	if s.MaxAttempts > 0 {
		return s.MaxAttempts
	}
	return defaultMaxAttempts
}

// transition applies the target status with all derived fields through the
// repo's compare-and-swap, using the status in j as the precondition.
func (s *Service) transition(ctx context.Context, j Job, target string, upd StatusUpdate) (Job, bool, error) {
	if !CanTransition(j.Status, target) {
		return j, false, nil
	}
	now := time.Now().UTC()
	proj := j
	proj.Status = target
	if upd.MarkDocumentsUploaded {
		proj.DocumentsUploaded = true
	}
	upd.Status = target
	upd.Progress = ProgressFor(target)
	upd.CurrentStep = StepLabelFor(target)
	upd.EstimatedCompletionAt = EstimatedCompletionAt(proj, now)
	if IsTerminal(target) {
		upd.CompletedAt = &now
	}
	updated, swapped, err := s.Repo.UpdateStatus(ctx, j.ID, j.Status, upd)
	if err != nil {
		return Job{}, false, err
	}
	if swapped {
		telemetry.Info("jobs.status_transition", map[string]any{
			"job_id": j.ID, "from": j.Status, "to": target,
		})
	} else {
		telemetry.Warn("jobs.stale_transition", map[string]any{
			"job_id": j.ID, "expected": j.Status, "actual": updated.Status, "target": target,
		})
	}
	return updated, swapped, nil
}

// eventFor maps a status back to the phase event that drives it, used when
// re-entering a phase after failure.
func eventFor(j Job, status string) (queue.Message, bool) {
	switch {
	case status == StatusCollectingData:
		return queue.Message{Event: queue.EventCollectData, JobID: j.ID}, true
	case status == StatusQuestionnaireInProgress && j.QuestionnaireCompleted:
		return queue.Message{Event: queue.EventConsolidate, JobID: j.ID}, true
	case IsGenerating(status):
		return queue.Message{Event: queue.EventGenerate, JobID: j.ID, Output: OutputForStatus(status)}, true
	}
	return queue.Message{}, false
}

// dispatch sends a phase event fire-and-forget. A failed send is logged and
// counted; the job record stays consistent and the phase can be re-driven.
func (s *Service) dispatch(ctx context.Context, msg queue.Message) {
	msg.EnqueuedAt = time.Now().UTC().Format(time.RFC3339)
	msg.Version = 1
	if err := s.Queue.Send(ctx, msg); err != nil {
		metrics.IncPhaseEventsDropped()
		telemetry.Error("jobs.dispatch_failed", map[string]any{
			"job_id": msg.JobID, "event": msg.Event, "error": err.Error(),
		})
	}
}
