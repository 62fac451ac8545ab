package jobs

import (
	"context"
	"time"
)

// StatusUpdate describes a single atomic mutation of a job record. Only
// non-zero fields are applied; phase flags and artifact refs never unset.
type StatusUpdate struct {
	Status                string
	Progress              int
	CurrentStep           string
	EstimatedCompletionAt *time.Time
	StartedAt             *time.Time
	CompletedAt           *time.Time

	MarkPublicDataCollected    bool
	MarkDocumentsUploaded      bool
	MarkQuestionnaireCompleted bool
	MarkDataConsolidated       bool

	TeaserAssetID    *string
	IMAssetID        *string
	PitchDeckAssetID *string

	ErrorMessage   *string
	FailedFrom     *string
	ClearFailure   bool
	IncrementRetry bool
}

// Repo persists jobs. UpdateStatus is a compare-and-swap: the mutation only
// applies while the stored status still equals fromStatus, and the second
// return value reports whether the swap happened. Either way the current
// record is returned.
type Repo interface {
	Create(ctx context.Context, j Job) error
	GetByID(ctx context.Context, jobID string) (Job, error)
	ListByOrg(ctx context.Context, orgID string, limit, offset int) ([]Job, error)
	UpdateStatus(ctx context.Context, jobID, fromStatus string, upd StatusUpdate) (Job, bool, error)
	AppendWarnings(ctx context.Context, jobID string, warnings []string) error
}
