package enrichment

import (
	"context"
	"sync"
)

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[string][]CacheEntry // jobID -> entries, newest first
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{data: make(map[string][]CacheEntry)}
}

// Append inserts a cache entry.
func (r *MemoryRepo) Append(ctx context.Context, e CacheEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[e.JobID] = append([]CacheEntry{e}, r.data[e.JobID]...)
	return nil
}

// ListByJob returns a job's cache entries, newest first.
func (r *MemoryRepo) ListByJob(ctx context.Context, jobID string) ([]CacheEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]CacheEntry(nil), r.data[jobID]...), nil
}

// CountSources counts distinct sources cached for a job.
func (r *MemoryRepo) CountSources(ctx context.Context, jobID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, e := range r.data[jobID] {
		seen[e.Source] = struct{}{}
	}
	return len(seen), nil
}

var _ Repo = (*MemoryRepo)(nil)
