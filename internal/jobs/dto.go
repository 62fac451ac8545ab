package jobs

import (
	"time"

	"dealroom-backend/internal/questionnaire"
)

// CreateJobRequest is the POST /jobs body.
type CreateJobRequest struct {
	CompanyID         string `json:"companyId" binding:"required"`
	GenerateTeaser    bool   `json:"generateTeaser"`
	GenerateIM        bool   `json:"generateIm"`
	GeneratePitchDeck bool   `json:"generatePitchDeck"`
}

// AnswerRequest is the body for answering one questionnaire question.
type AnswerRequest struct {
	Answer string `json:"answer" binding:"required"`
}

// JobView is the API shape of a job.
type JobView struct {
	ID               string     `json:"id"`
	CompanyID        string     `json:"companyId"`
	Status           string     `json:"status"`
	Progress         int        `json:"progress"`
	CurrentStep      string     `json:"currentStep"`
	Outputs          []string   `json:"outputs"`
	RetryCount       int        `json:"retryCount"`
	ErrorMessage     *string    `json:"errorMessage,omitempty"`
	Warnings         []string   `json:"warnings"`
	CreatedAt        time.Time  `json:"createdAt"`
	StartedAt        *time.Time `json:"startedAt,omitempty"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
	EstimatedDoneAt  *time.Time `json:"estimatedCompletionAt,omitempty"`
	AvailableActions []string   `json:"availableActions"`
	EstimatedMinutes int        `json:"estimatedMinutesRemaining"`
}

// PhaseView reports one pipeline phase flag with its completion time.
type PhaseView struct {
	Done bool       `json:"done"`
	At   *time.Time `json:"at,omitempty"`
}

// PhasesView groups the four pipeline phase flags.
type PhasesView struct {
	PublicDataCollected    PhaseView `json:"publicDataCollected"`
	DocumentsUploaded      PhaseView `json:"documentsUploaded"`
	QuestionnaireCompleted PhaseView `json:"questionnaireCompleted"`
	DataConsolidated       PhaseView `json:"dataConsolidated"`
}

// ArtifactsView references the generated outputs.
type ArtifactsView struct {
	TeaserAssetID    *string `json:"teaserAssetId,omitempty"`
	IMAssetID        *string `json:"imAssetId,omitempty"`
	PitchDeckAssetID *string `json:"pitchDeckAssetId,omitempty"`
}

// StatusResponse is the aggregated GET /jobs/:id/status payload.
type StatusResponse struct {
	JobView
	Phases                     PhasesView    `json:"phases"`
	QuestionnaireAnswered      int           `json:"questionnaireAnswered"`
	QuestionnaireTotal         int           `json:"questionnaireTotal"`
	QuestionnaireCompletionPct int           `json:"questionnaireCompletionPct"`
	CachedDataSources          int           `json:"cachedDataSources"`
	UploadedDocuments          int           `json:"uploadedDocuments"`
	Artifacts                  ArtifactsView `json:"artifacts"`
}

// QuestionnaireItemView is one question with the job's current answer.
type QuestionnaireItemView struct {
	QuestionID string     `json:"questionId"`
	Text       string     `json:"text"`
	Answer     *string    `json:"answer,omitempty"`
	AnsweredAt *time.Time `json:"answeredAt,omitempty"`
}

// QuestionnaireResponse is the GET /jobs/:id/questionnaire payload.
type QuestionnaireResponse struct {
	Items         []QuestionnaireItemView `json:"items"`
	Answered      int                     `json:"answered"`
	Total         int                     `json:"total"`
	CompletionPct int                     `json:"completionPct"`
}

// AnswerResponse reports completion after answering one question.
type AnswerResponse struct {
	Answered      int `json:"answered"`
	Total         int `json:"total"`
	CompletionPct int `json:"completionPct"`
}

func toJobView(j Job) JobView {
	warnings := j.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	return JobView{
		ID:               j.ID,
		CompanyID:        j.CompanyID,
		Status:           j.Status,
		Progress:         j.Progress,
		CurrentStep:      j.CurrentStep,
		Outputs:          j.RequestedOutputs(),
		RetryCount:       j.RetryCount,
		ErrorMessage:     j.ErrorMessage,
		Warnings:         warnings,
		CreatedAt:        j.CreatedAt,
		StartedAt:        j.StartedAt,
		CompletedAt:      j.CompletedAt,
		EstimatedDoneAt:  j.EstimatedCompletionAt,
		AvailableActions: AvailableActions(j.Status),
		EstimatedMinutes: EstimateMinutesRemaining(j),
	}
}

func toStatusResponse(j Job, counts StatusCounts) StatusResponse {
	return StatusResponse{
		JobView: toJobView(j),
		Phases: PhasesView{
			PublicDataCollected:    PhaseView{Done: j.PublicDataCollected, At: j.PublicDataCollectedAt},
			DocumentsUploaded:      PhaseView{Done: j.DocumentsUploaded, At: j.DocumentsUploadedAt},
			QuestionnaireCompleted: PhaseView{Done: j.QuestionnaireCompleted, At: j.QuestionnaireCompletedAt},
			DataConsolidated:       PhaseView{Done: j.DataConsolidated, At: j.DataConsolidatedAt},
		},
		QuestionnaireAnswered:      counts.QuestionnaireAnswered,
		QuestionnaireTotal:         counts.QuestionnaireTotal,
		QuestionnaireCompletionPct: questionnaire.CompletionPct(counts.QuestionnaireAnswered, counts.QuestionnaireTotal),
		CachedDataSources:          counts.CachedSources,
		UploadedDocuments:          counts.UploadedDocuments,
		Artifacts: ArtifactsView{
			TeaserAssetID:    j.TeaserAssetID,
			IMAssetID:        j.IMAssetID,
			PitchDeckAssetID: j.PitchDeckAssetID,
		},
	}
}

func toQuestionnaireResponse(items []questionnaire.Item, answered, total int) QuestionnaireResponse {
	views := make([]QuestionnaireItemView, 0, len(items))
	for _, it := range items {
		views = append(views, QuestionnaireItemView{
			QuestionID: it.Question.ID,
			Text:       it.Question.Text,
			Answer:     it.Answer,
			AnsweredAt: it.AnsweredAt,
		})
	}
	return QuestionnaireResponse{
		Items:         views,
		Answered:      answered,
		Total:         total,
		CompletionPct: questionnaire.CompletionPct(answered, total),
	}
}
