package enrichment

import "context"

// Repo persists enrichment cache entries. The interface deliberately has no
// update or delete: the cache is append-only.
type Repo interface {
	Append(ctx context.Context, e CacheEntry) error
	ListByJob(ctx context.Context, jobID string) ([]CacheEntry, error)
	CountSources(ctx context.Context, jobID string) (int, error)
}
