package assets

import (
	"context"
	"time"
)

// Repo persists asset records.
type Repo interface {
	Create(ctx context.Context, a Asset) error
	GetByID(ctx context.Context, assetID string) (Asset, error)
	ListByJob(ctx context.Context, jobID string) ([]Asset, error)
	ListByJobKind(ctx context.Context, jobID, kind string) ([]Asset, error)
	CountByJobKind(ctx context.Context, jobID, kind string) (int, error)
	SetExtractedText(ctx context.Context, assetID, extractedKey string, at time.Time) error
}
