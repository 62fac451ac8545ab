package questionnaire

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Service tracks questionnaire completion per job. It owns the catalog and
// the response rows; it never touches job status, which belongs to the job
// orchestrator.
type Service struct {
	Repo Repo
}

// Item pairs a catalog question with the job's current answer.
type Item struct {
	Question   Question
	Answer     *string
	AnsweredAt *time.Time
}

// SeedForJob creates one empty response per question applicable to the
// requested outputs and returns the seeded total. Safe to call again for the
// same job.
func (s *Service) SeedForJob(ctx context.Context, jobID string, outputs []string) (int, error) {
	questions := QuestionsFor(outputs)
	now := time.Now().UTC()
	responses := make([]Response, 0, len(questions))
	for i, q := range questions {
		responses = append(responses, Response{
			ID:         uuid.NewString(),
			JobID:      jobID,
			QuestionID: q.ID,
			// Stagger timestamps so listing preserves catalog order.
			CreatedAt: now.Add(time.Duration(i) * time.Millisecond),
		})
	}
	if err := s.Repo.Seed(ctx, responses); err != nil {
		return 0, err
	}
	return len(questions), nil
}

// Answer records an answer and returns the job's updated completion counts.
// Re-answering an already answered question overwrites and does not change
// the counts.
func (s *Service) Answer(ctx context.Context, jobID, questionID, answer string) (answered, total int, err error) {
	if strings.TrimSpace(answer) == "" {
		return 0, 0, ErrEmptyAnswer
	}
	if err := s.Repo.RecordAnswer(ctx, jobID, questionID, answer); err != nil {
		return 0, 0, err
	}
	return s.Repo.Completion(ctx, jobID)
}

// Completion returns answered and total counts for a job.
func (s *Service) Completion(ctx context.Context, jobID string) (answered, total int, err error) {
	return s.Repo.Completion(ctx, jobID)
}

// CompletionPct converts counts to a whole percentage. Zero total reads as
// fully complete so output combinations without questions don't stall.
func CompletionPct(answered, total int) int {
	if total == 0 {
		return 100
	}
	return answered * 100 / total
}

// List returns the job's questions with any answers, in seeding order.
func (s *Service) List(ctx context.Context, jobID string) ([]Item, error) {
	responses, err := s.Repo.ListByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(responses))
	for _, resp := range responses {
		q, ok := QuestionByID(resp.QuestionID)
		if !ok {
			// Catalog drift: a seeded question no longer in the build. Keep
			// the row visible rather than hiding the user's answer.
			q = Question{ID: resp.QuestionID, Text: resp.QuestionID}
		}
		items = append(items, Item{Question: q, Answer: resp.Answer, AnsweredAt: resp.AnsweredAt})
	}
	return items, nil
}

// AnswersByQuestion returns the answered subset keyed by question ID, for
// building generation input.
func (s *Service) AnswersByQuestion(ctx context.Context, jobID string) (map[string]string, error) {
	responses, err := s.Repo.ListByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	answers := make(map[string]string, len(responses))
	for _, resp := range responses {
		if resp.Answer != nil {
			answers[resp.QuestionID] = *resp.Answer
		}
	}
	return answers, nil
}
