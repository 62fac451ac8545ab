package jobs

import (
	"testing"
	"time"
)

func TestCanTransitionForwardEdges(t *testing.T) {
	allowed := []struct{ from, to string }{
		{StatusInitiated, StatusCollectingData},
		{StatusCollectingData, StatusAwaitingUploads},
		{StatusCollectingData, StatusQuestionnairePending},
		{StatusAwaitingUploads, StatusQuestionnaireInProgress},
		{StatusQuestionnairePending, StatusQuestionnaireInProgress},
		{StatusQuestionnaireInProgress, StatusDataConsolidated},
		{StatusDataConsolidated, StatusGeneratingTeaser},
		{StatusDataConsolidated, StatusGeneratingIM},
		{StatusGeneratingTeaser, StatusGeneratingIM},
		{StatusGeneratingTeaser, StatusReview},
		{StatusGeneratingIM, StatusGeneratingPitchDeck},
		{StatusGeneratingPitchDeck, StatusReview},
		{StatusReview, StatusCompleted},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be legal", tc.from, tc.to)
		}
	}

	denied := []struct{ from, to string }{
		{StatusInitiated, StatusReview},
		{StatusReview, StatusGeneratingTeaser},
		{StatusCompleted, StatusReview},
		{StatusCancelled, StatusCollectingData},
		{StatusFailed, StatusGeneratingTeaser},
		{StatusDataConsolidated, StatusQuestionnairePending},
		{StatusGeneratingIM, StatusGeneratingTeaser},
	}
	for _, tc := range denied {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be illegal", tc.from, tc.to)
		}
	}
}

func TestCanTransitionFailureAndCancel(t *testing.T) {
	for _, from := range []string{StatusInitiated, StatusCollectingData, StatusGeneratingPitchDeck, StatusReview} {
		if !CanTransition(from, StatusFailed) {
			t.Errorf("expected %s -> failed to be legal", from)
		}
	}
	for _, from := range []string{StatusCompleted, StatusFailed, StatusCancelled} {
		if CanTransition(from, StatusFailed) {
			t.Errorf("expected terminal %s -> failed to be illegal", from)
		}
	}

	if !CanTransition(StatusQuestionnairePending, StatusCancelled) {
		t.Error("expected questionnaire_pending to be cancellable")
	}
	if CanTransition(StatusReview, StatusCancelled) {
		t.Error("expected review not to be cancellable")
	}
	if CanTransition(StatusCompleted, StatusCancelled) {
		t.Error("expected completed not to be cancellable")
	}
}

func TestProgressIncreasesAlongPipeline(t *testing.T) {
	path := []string{
		StatusInitiated,
		StatusCollectingData,
		StatusAwaitingUploads,
		StatusQuestionnaireInProgress,
		StatusDataConsolidated,
		StatusGeneratingTeaser,
		StatusGeneratingIM,
		StatusGeneratingPitchDeck,
		StatusReview,
		StatusCompleted,
	}
	prev := -1
	for _, status := range path {
		p := ProgressFor(status)
		if p <= prev {
			t.Fatalf("progress for %s is %d, not above previous %d", status, p, prev)
		}
		prev = p
	}
	if ProgressFor(StatusCompleted) != 100 {
		t.Errorf("completed progress = %d, want 100", ProgressFor(StatusCompleted))
	}
}

func TestAvailableActions(t *testing.T) {
	cases := []struct {
		status string
		want   []string
	}{
		{StatusAwaitingUploads, []string{ActionUploadDocuments, ActionConfirmUploads, ActionCancel}},
		{StatusQuestionnairePending, []string{ActionAnswerQuestions, ActionCancel}},
		{StatusGeneratingTeaser, []string{ActionCancel}},
		{StatusReview, []string{ActionApprove}},
		{StatusFailed, []string{ActionRetry}},
		{StatusCompleted, nil},
		{StatusCancelled, nil},
	}
	for _, tc := range cases {
		got := AvailableActions(tc.status)
		if len(got) != len(tc.want) {
			t.Errorf("%s: actions = %v, want %v", tc.status, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("%s: actions = %v, want %v", tc.status, got, tc.want)
				break
			}
		}
	}
}

func TestEstimateMinutesRemainingShrinks(t *testing.T) {
	j := Job{GenerateTeaser: true, GenerateIM: true, Status: StatusInitiated}
	path := []string{
		StatusInitiated,
		StatusCollectingData,
		StatusAwaitingUploads,
		StatusQuestionnaireInProgress,
		StatusDataConsolidated,
		StatusGeneratingTeaser,
		StatusGeneratingIM,
		StatusReview,
	}
	prev := EstimateMinutesRemaining(j) + 1
	for _, status := range path {
		j.Status = status
		if status == StatusQuestionnaireInProgress {
			j.DocumentsUploaded = true
		}
		if status == StatusGeneratingIM {
			ref := "asset-1"
			j.TeaserAssetID = &ref
		}
		got := EstimateMinutesRemaining(j)
		if got >= prev {
			t.Fatalf("estimate at %s is %d, not below previous %d", status, got, prev)
		}
		prev = got
	}

	j.Status = StatusCompleted
	if got := EstimateMinutesRemaining(j); got != 0 {
		t.Errorf("estimate for completed = %d, want 0", got)
	}
}

func TestEstimateSkipsUploadsForTeaserOnly(t *testing.T) {
	withUploads := Job{GenerateTeaser: true, GenerateIM: true, Status: StatusCollectingData}
	teaserOnly := Job{GenerateTeaser: true, Status: StatusCollectingData}
	if EstimateMinutesRemaining(teaserOnly) >= EstimateMinutesRemaining(withUploads) {
		t.Errorf("teaser-only estimate %d should be below upload-requiring estimate %d",
			EstimateMinutesRemaining(teaserOnly), EstimateMinutesRemaining(withUploads))
	}
}

func TestEstimatedCompletionAt(t *testing.T) {
	now := time.Now().UTC()
	j := Job{GenerateTeaser: true, Status: StatusInitiated}
	got := EstimatedCompletionAt(j, now)
	if got == nil || !got.After(now) {
		t.Fatalf("expected a future completion estimate, got %v", got)
	}
	j.Status = StatusCancelled
	if got := EstimatedCompletionAt(j, now); got != nil {
		t.Errorf("expected nil estimate for terminal job, got %v", got)
	}
}

func TestOutputHelpers(t *testing.T) {
	j := Job{GenerateTeaser: true, GeneratePitchDeck: true}
	outputs := j.RequestedOutputs()
	if len(outputs) != 2 || outputs[0] != OutputTeaser || outputs[1] != OutputPitchDeck {
		t.Fatalf("outputs = %v", outputs)
	}
	if j.FirstOutput() != OutputTeaser {
		t.Errorf("first output = %s", j.FirstOutput())
	}
	if next := j.NextOutputAfter(OutputTeaser); next != OutputPitchDeck {
		t.Errorf("next after teaser = %s, want pitch_deck", next)
	}
	if next := j.NextOutputAfter(OutputPitchDeck); next != "" {
		t.Errorf("next after pitch_deck = %s, want empty", next)
	}
	if !j.UploadsRequired() {
		t.Error("pitch deck should require uploads")
	}
	if (Job{GenerateTeaser: true}).UploadsRequired() {
		t.Error("teaser-only job should not require uploads")
	}
}
