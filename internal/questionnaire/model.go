package questionnaire

import "time"

// Question is a catalog entry. The catalog is static per build; responses
// are seeded per job from the outputs the job requested.
type Question struct {
	ID     string
	Text   string
	Fields []string
}

// Response is one job's slot for a question. Answer stays nil until the user
// answers; re-answering overwrites.
type Response struct {
	ID         string
	JobID      string
	QuestionID string
	Answer     *string
	AnsweredAt *time.Time
	CreatedAt  time.Time
}
