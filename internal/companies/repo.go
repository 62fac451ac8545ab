package companies

import "context"

// Repo defines persistence operations for companies. Company CRUD itself is
// managed elsewhere in the platform; the pipeline only reads.
type Repo interface {
	GetByID(ctx context.Context, companyID string) (Company, error)
}
