package jobs

import "time"

// Job statuses. A job moves strictly forward through these, terminating in
// completed, failed or cancelled. Failed jobs can re-enter the phase they
// failed from via Retry.
const (
	StatusInitiated               = "initiated"
	StatusCollectingData          = "collecting_data"
	StatusAwaitingUploads         = "awaiting_uploads"
	StatusQuestionnairePending    = "questionnaire_pending"
	StatusQuestionnaireInProgress = "questionnaire_in_progress"
	StatusDataConsolidated        = "data_consolidated"
	StatusGeneratingTeaser        = "generating_teaser"
	StatusGeneratingIM            = "generating_im"
	StatusGeneratingPitchDeck     = "generating_pitch_deck"
	StatusReview                  = "review"
	StatusCompleted               = "completed"
	StatusFailed                  = "failed"
	StatusCancelled               = "cancelled"
)

// forwardEdges holds the legal forward transitions. Transitions into failed
// and cancelled are rule-based and handled in CanTransition.
var forwardEdges = map[string][]string{
	StatusInitiated:               {StatusCollectingData},
	StatusCollectingData:          {StatusAwaitingUploads, StatusQuestionnairePending},
	StatusAwaitingUploads:         {StatusQuestionnaireInProgress},
	StatusQuestionnairePending:    {StatusQuestionnaireInProgress},
	StatusQuestionnaireInProgress: {StatusDataConsolidated},
	StatusDataConsolidated:        {StatusGeneratingTeaser, StatusGeneratingIM, StatusGeneratingPitchDeck},
	StatusGeneratingTeaser:        {StatusGeneratingIM, StatusGeneratingPitchDeck, StatusReview},
	StatusGeneratingIM:            {StatusGeneratingPitchDeck, StatusReview},
	StatusGeneratingPitchDeck:     {StatusReview},
	StatusReview:                  {StatusCompleted},
}

// IsTerminal reports whether a status admits no further transitions other
// than retry-from-failure.
func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// IsCancellable reports whether a user may cancel a job in this status.
// Review and terminal states are past the point of cancellation.
func IsCancellable(status string) bool {
	return !IsTerminal(status) && status != StatusReview
}

// IsGenerating reports whether the status is one of the generation phases.
func IsGenerating(status string) bool {
	switch status {
	case StatusGeneratingTeaser, StatusGeneratingIM, StatusGeneratingPitchDeck:
		return true
	}
	return false
}

// CanTransition reports whether moving from one status to another is legal.
// Any non-terminal status may fail; any cancellable status may be cancelled.
// Everything else must follow a forward edge.
func CanTransition(from, to string) bool {
	switch to {
	case StatusFailed:
		return !IsTerminal(from)
	case StatusCancelled:
		return IsCancellable(from)
	}
	for _, next := range forwardEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// GeneratingStatusFor maps an output kind to its generation status.
func GeneratingStatusFor(output string) string {
	switch output {
	case OutputTeaser:
		return StatusGeneratingTeaser
	case OutputIM:
		return StatusGeneratingIM
	case OutputPitchDeck:
		return StatusGeneratingPitchDeck
	}
	return ""
}

// OutputForStatus is the inverse of GeneratingStatusFor, "" for non-generation
// statuses.
func OutputForStatus(status string) string {
	switch status {
	case StatusGeneratingTeaser:
		return OutputTeaser
	case StatusGeneratingIM:
		return OutputIM
	case StatusGeneratingPitchDeck:
		return OutputPitchDeck
	}
	return ""
}

// progressSteps assigns each status a completion percentage. Stored progress
// only ever ratchets up (failed and cancelled map to 0 so they preserve the
// value reached before the terminal transition).
var progressSteps = map[string]int{
	StatusInitiated:               0,
	StatusCollectingData:          10,
	StatusAwaitingUploads:         25,
	StatusQuestionnairePending:    35,
	StatusQuestionnaireInProgress: 45,
	StatusDataConsolidated:        55,
	StatusGeneratingTeaser:        65,
	StatusGeneratingIM:            75,
	StatusGeneratingPitchDeck:     85,
	StatusReview:                  95,
	StatusCompleted:               100,
	StatusFailed:                  0,
	StatusCancelled:               0,
}

// ProgressFor returns the completion percentage a job reaches on entering a
// status.
func ProgressFor(status string) int {
	return progressSteps[status]
}

var stepLabels = map[string]string{
	StatusInitiated:               "Job created",
	StatusCollectingData:          "Collecting public company data",
	StatusAwaitingUploads:         "Waiting for financial documents",
	StatusQuestionnairePending:    "Waiting for questionnaire",
	StatusQuestionnaireInProgress: "Answering questionnaire",
	StatusDataConsolidated:        "Data consolidated",
	StatusGeneratingTeaser:        "Generating teaser",
	StatusGeneratingIM:            "Generating information memorandum",
	StatusGeneratingPitchDeck:     "Generating pitch deck",
	StatusReview:                  "Ready for review",
	StatusCompleted:               "Completed",
	StatusFailed:                  "Failed",
	StatusCancelled:               "Cancelled",
}

// StepLabelFor returns the human-readable label for a status.
func StepLabelFor(status string) string {
	return stepLabels[status]
}

// Available user actions keyed by job status.
const (
	ActionUploadDocuments = "upload_documents"
	ActionConfirmUploads  = "confirm_uploads"
	ActionAnswerQuestions = "answer_questions"
	ActionApprove         = "approve"
	ActionRetry           = "retry"
	ActionCancel          = "cancel"
)

// AvailableActions lists what a user can do with a job right now, derived
// from status alone.
func AvailableActions(status string) []string {
	var actions []string
	switch status {
	case StatusAwaitingUploads:
		actions = append(actions, ActionUploadDocuments, ActionConfirmUploads)
	case StatusQuestionnairePending, StatusQuestionnaireInProgress:
		actions = append(actions, ActionAnswerQuestions)
	case StatusReview:
		actions = append(actions, ActionApprove)
	case StatusFailed:
		actions = append(actions, ActionRetry)
	}
	if IsCancellable(status) {
		actions = append(actions, ActionCancel)
	}
	return actions
}

// Rough per-phase duration estimates in minutes. The user-driven phases
// dominate; automated phases are short.
const (
	minutesCollection    = 2
	minutesUploads       = 15
	minutesQuestionnaire = 20
	minutesConsolidation = 1
	minutesPerGeneration = 5
)

// phaseOrder ranks statuses along the pipeline so remaining work can be
// summed from the current position.
var phaseOrder = map[string]int{
	StatusInitiated:               0,
	StatusCollectingData:          1,
	StatusAwaitingUploads:         2,
	StatusQuestionnairePending:    3,
	StatusQuestionnaireInProgress: 3,
	StatusDataConsolidated:        4,
	StatusGeneratingTeaser:        5,
	StatusGeneratingIM:            6,
	StatusGeneratingPitchDeck:     7,
	StatusReview:                  8,
}

// EstimateMinutesRemaining sums the expected duration of the phases still
// ahead of the job, honoring which outputs were requested. Terminal statuses
// estimate zero.
func EstimateMinutesRemaining(j Job) int {
	if IsTerminal(j.Status) {
		return 0
	}
	pos, ok := phaseOrder[j.Status]
	if !ok {
		return 0
	}
	minutes := 0
	if pos <= phaseOrder[StatusCollectingData] {
		minutes += minutesCollection
	}
	if pos <= phaseOrder[StatusAwaitingUploads] && j.UploadsRequired() && !j.DocumentsUploaded {
		minutes += minutesUploads
	}
	if pos <= phaseOrder[StatusQuestionnairePending] {
		minutes += minutesQuestionnaire
	}
	if pos < phaseOrder[StatusDataConsolidated] {
		minutes += minutesConsolidation
	}
	for _, output := range j.RequestedOutputs() {
		target := phaseOrder[GeneratingStatusFor(output)]
		if pos < target || (pos == target && j.ArtifactRef(output) == nil) {
			minutes += minutesPerGeneration
		}
	}
	return minutes
}

// EstimatedCompletionAt projects a wall-clock completion time from now.
func EstimatedCompletionAt(j Job, now time.Time) *time.Time {
	if IsTerminal(j.Status) {
		return nil
	}
	t := now.Add(time.Duration(EstimateMinutesRemaining(j)) * time.Minute)
	return &t
}
