package jobs

import "time"

// Requested output kinds, in generation order.
const (
	OutputTeaser    = "teaser"
	OutputIM        = "im"
	OutputPitchDeck = "pitch_deck"
)

// Job is the persistent record tracking one materials-generation request end
// to end. It exclusively owns its phase flags and derived progress; cache
// entries, documents and questionnaire responses are referenced by ID and
// persisted independently.
type Job struct {
	ID        string
	OrgID     string
	CompanyID string
	CreatedBy string

	GenerateTeaser    bool
	GenerateIM        bool
	GeneratePitchDeck bool

	Status      string
	FailedFrom  string
	Progress    int
	CurrentStep string

	PublicDataCollected      bool
	PublicDataCollectedAt    *time.Time
	DocumentsUploaded        bool
	DocumentsUploadedAt      *time.Time
	QuestionnaireCompleted   bool
	QuestionnaireCompletedAt *time.Time
	DataConsolidated         bool
	DataConsolidatedAt       *time.Time

	TeaserAssetID    *string
	IMAssetID        *string
	PitchDeckAssetID *string

	ErrorMessage *string
	RetryCount   int
	Warnings     []string

	CreatedAt             time.Time
	StartedAt             *time.Time
	CompletedAt           *time.Time
	EstimatedCompletionAt *time.Time
}

// RequestedOutputs returns the requested output kinds in generation order.
func (j Job) RequestedOutputs() []string {
	var out []string
	if j.GenerateTeaser {
		out = append(out, OutputTeaser)
	}
	if j.GenerateIM {
		out = append(out, OutputIM)
	}
	if j.GeneratePitchDeck {
		out = append(out, OutputPitchDeck)
	}
	return out
}

// UploadsRequired reports whether the job needs user-uploaded financial
// documents. IM and pitch deck imply strictly more prerequisite data than a
// teaser alone.
func (j Job) UploadsRequired() bool {
	return j.GenerateIM || j.GeneratePitchDeck
}

// ArtifactRef returns the stored asset reference for an output, nil until
// that output's generation succeeded.
func (j Job) ArtifactRef(output string) *string {
	switch output {
	case OutputTeaser:
		return j.TeaserAssetID
	case OutputIM:
		return j.IMAssetID
	case OutputPitchDeck:
		return j.PitchDeckAssetID
	}
	return nil
}

// NextOutputAfter returns the next requested output following the given one,
// or "" when generation is done and the job should move to review.
func (j Job) NextOutputAfter(output string) string {
	outputs := j.RequestedOutputs()
	for i, o := range outputs {
		if o == output && i+1 < len(outputs) {
			return outputs[i+1]
		}
	}
	return ""
}

// FirstOutput returns the first requested output, or "" when none.
func (j Job) FirstOutput() string {
	outputs := j.RequestedOutputs()
	if len(outputs) == 0 {
		return ""
	}
	return outputs[0]
}
