package questionnaire

import "context"

// Repo persists per-job questionnaire responses. Seeding creates one empty
// response row per applicable question; answering fills the row in place.
type Repo interface {
	Seed(ctx context.Context, responses []Response) error
	RecordAnswer(ctx context.Context, jobID, questionID, answer string) error
	ListByJob(ctx context.Context, jobID string) ([]Response, error)
	Completion(ctx context.Context, jobID string) (answered, total int, err error)
}
