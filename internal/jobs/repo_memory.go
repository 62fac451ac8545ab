package jobs

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory implementation of Repo with the same
// compare-and-swap semantics as PGRepo.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[string]Job
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{data: make(map[string]Job)}
}

// Create stores a new job.
func (r *MemoryRepo) Create(ctx context.Context, j Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if j.Warnings == nil {
		j.Warnings = []string{}
	}
	r.data[j.ID] = j
	return nil
}

// GetByID returns a job by ID.
func (r *MemoryRepo) GetByID(ctx context.Context, jobID string) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.data[jobID]
	if !ok {
		return Job{}, ErrNotFound
	}
	return j, nil
}

// ListByOrg returns an organization's jobs, newest first.
func (r *MemoryRepo) ListByOrg(ctx context.Context, orgID string, limit, offset int) ([]Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Job
	for _, j := range r.data {
		if j.OrgID == orgID {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// UpdateStatus applies the mutation only while the stored status still equals
// fromStatus.
func (r *MemoryRepo) UpdateStatus(ctx context.Context, jobID, fromStatus string, upd StatusUpdate) (Job, bool, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.data[jobID]
	if !ok {
		return Job{}, false, ErrNotFound
	}
	if j.Status != fromStatus {
		return j, false, nil
	}
	now := time.Now().UTC()
	j.Status = upd.Status
	if upd.Progress > j.Progress {
		j.Progress = upd.Progress
	}
	j.CurrentStep = upd.CurrentStep
	j.EstimatedCompletionAt = upd.EstimatedCompletionAt
	if j.StartedAt == nil {
		j.StartedAt = upd.StartedAt
	}
	if upd.CompletedAt != nil {
		j.CompletedAt = upd.CompletedAt
	}
	if upd.MarkPublicDataCollected && !j.PublicDataCollected {
		j.PublicDataCollected = true
		j.PublicDataCollectedAt = &now
	}
	if upd.MarkDocumentsUploaded && !j.DocumentsUploaded {
		j.DocumentsUploaded = true
		j.DocumentsUploadedAt = &now
	}
	if upd.MarkQuestionnaireCompleted && !j.QuestionnaireCompleted {
		j.QuestionnaireCompleted = true
		j.QuestionnaireCompletedAt = &now
	}
	if upd.MarkDataConsolidated && !j.DataConsolidated {
		j.DataConsolidated = true
		j.DataConsolidatedAt = &now
	}
	if upd.TeaserAssetID != nil {
		j.TeaserAssetID = upd.TeaserAssetID
	}
	if upd.IMAssetID != nil {
		j.IMAssetID = upd.IMAssetID
	}
	if upd.PitchDeckAssetID != nil {
		j.PitchDeckAssetID = upd.PitchDeckAssetID
	}
	if upd.ClearFailure {
		j.ErrorMessage = nil
		j.FailedFrom = ""
		j.RetryCount = 0
	} else {
		if upd.ErrorMessage != nil {
			j.ErrorMessage = upd.ErrorMessage
		}
		if upd.FailedFrom != nil {
			j.FailedFrom = *upd.FailedFrom
		}
	}
	if upd.IncrementRetry {
		j.RetryCount++
	}
	r.data[jobID] = j
	return j, true, nil
}

// AppendWarnings appends entries to the job's warning list.
func (r *MemoryRepo) AppendWarnings(ctx context.Context, jobID string, warnings []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(warnings) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.data[jobID]
	if !ok {
		return ErrNotFound
	}
	j.Warnings = append(j.Warnings, warnings...)
	r.data[jobID] = j
	return nil
}

var _ Repo = (*MemoryRepo)(nil)
