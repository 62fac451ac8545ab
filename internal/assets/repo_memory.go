package assets

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[string]Asset
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{data: make(map[string]Asset)}
}

// Create inserts an asset record.
func (r *MemoryRepo) Create(ctx context.Context, a Asset) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[a.ID] = a
	return nil
}

// GetByID fetches an asset by ID.
func (r *MemoryRepo) GetByID(ctx context.Context, assetID string) (Asset, error) {
	if err := ctx.Err(); err != nil {
		return Asset{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.data[assetID]
	if !ok {
		return Asset{}, ErrNotFound
	}
	return a, nil
}

// ListByJob returns a job's assets in upload order.
func (r *MemoryRepo) ListByJob(ctx context.Context, jobID string) ([]Asset, error) {
	return r.filter(ctx, func(a Asset) bool { return a.JobID == jobID })
}

// ListByJobKind returns a job's assets of one kind in upload order.
func (r *MemoryRepo) ListByJobKind(ctx context.Context, jobID, kind string) ([]Asset, error) {
	return r.filter(ctx, func(a Asset) bool { return a.JobID == jobID && a.Kind == kind })
}

// CountByJobKind counts a job's assets of one kind.
func (r *MemoryRepo) CountByJobKind(ctx context.Context, jobID, kind string) (int, error) {
	matched, err := r.ListByJobKind(ctx, jobID, kind)
	if err != nil {
		return 0, err
	}
	return len(matched), nil
}

// SetExtractedText records where a document's extracted text lives.
func (r *MemoryRepo) SetExtractedText(ctx context.Context, assetID, extractedKey string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.data[assetID]
	if !ok {
		return ErrNotFound
	}
	a.ExtractedTextKey = &extractedKey
	a.ExtractedAt = &at
	r.data[assetID] = a
	return nil
}

func (r *MemoryRepo) filter(ctx context.Context, keep func(Asset) bool) ([]Asset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Asset
	for _, a := range r.data {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, k int) bool {
		if !out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].CreatedAt.Before(out[k].CreatedAt)
		}
		return out[i].ID < out[k].ID
	})
	return out, nil
}

var _ Repo = (*MemoryRepo)(nil)
