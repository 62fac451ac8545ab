package jobs

import "errors"

var (
	ErrNotFound           = errors.New("job not found")
	ErrCompanyNotFound    = errors.New("company not found")
	ErrForbidden          = errors.New("job belongs to another organization")
	ErrInvalidState       = errors.New("action not allowed in current job state")
	ErrNoOutputsRequested = errors.New("at least one output must be requested")
	ErrNoDocuments        = errors.New("no documents uploaded for this job")
)
