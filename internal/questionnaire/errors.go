package questionnaire

import "errors"

var (
	ErrUnknownQuestion = errors.New("question not part of this job's questionnaire")
	ErrEmptyAnswer     = errors.New("answer must not be empty")
)
