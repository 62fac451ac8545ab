package questionnaire

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[string]map[string]Response // jobID -> questionID -> response
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{data: make(map[string]map[string]Response)}
}

// Seed inserts empty response rows, skipping already-seeded questions.
func (r *MemoryRepo) Seed(ctx context.Context, responses []Response) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, resp := range responses {
		byQuestion, ok := r.data[resp.JobID]
		if !ok {
			byQuestion = make(map[string]Response)
			r.data[resp.JobID] = byQuestion
		}
		if _, exists := byQuestion[resp.QuestionID]; !exists {
			byQuestion[resp.QuestionID] = resp
		}
	}
	return nil
}

// RecordAnswer fills a seeded response.
func (r *MemoryRepo) RecordAnswer(ctx context.Context, jobID, questionID, answer string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	resp, ok := r.data[jobID][questionID]
	if !ok {
		return ErrUnknownQuestion
	}
	now := time.Now().UTC()
	resp.Answer = &answer
	resp.AnsweredAt = &now
	r.data[jobID][questionID] = resp
	return nil
}

// ListByJob returns a job's responses in seeding order.
func (r *MemoryRepo) ListByJob(ctx context.Context, jobID string) ([]Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Response
	for _, resp := range r.data[jobID] {
		out = append(out, resp)
	}
	sort.Slice(out, func(i, k int) bool {
		if !out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].CreatedAt.Before(out[k].CreatedAt)
		}
		return out[i].QuestionID < out[k].QuestionID
	})
	return out, nil
}

// Completion counts answered and total seeded questions for a job.
func (r *MemoryRepo) Completion(ctx context.Context, jobID string) (int, int, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	answered, total := 0, 0
	for _, resp := range r.data[jobID] {
		total++
		if resp.Answer != nil {
			answered++
		}
	}
	return answered, total, nil
}

var _ Repo = (*MemoryRepo)(nil)
