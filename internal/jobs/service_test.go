package jobs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"dealroom-backend/internal/assets"
	"dealroom-backend/internal/companies"
	"dealroom-backend/internal/enrichment"
	"dealroom-backend/internal/questionnaire"
	"dealroom-backend/internal/queue"
)

type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte)}
}

func (s *fakeStore) Save(ctx context.Context, ownerID, fileName string, r io.Reader) (string, int64, string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", 0, "", err
	}
	key := ownerID + "/" + fileName
	s.mu.Lock()
	s.objects[key] = data
	s.mu.Unlock()
	return key, int64(len(data)), "text/plain", nil
}

func (s *fakeStore) Open(ctx context.Context, storageKey string) (io.ReadCloser, error) {
	s.mu.Lock()
	data, ok := s.objects[storageKey]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no object %s", storageKey)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *fakeStore) SaveWithKey(ctx context.Context, storageKey, contentType string, r io.Reader) (int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.objects[storageKey] = data
	s.mu.Unlock()
	return int64(len(data)), nil
}

type testEnv struct {
	svc       *Service
	companies *companies.MemoryRepo
	assets    assets.Repo
	queue     *queue.MemoryClient
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	companiesRepo := companies.NewMemoryRepo()
	assetsRepo := assets.NewMemoryRepo()
	q := queue.NewMemoryClient()
	svc := &Service{
		Repo:          NewMemoryRepo(),
		Companies:     companiesRepo,
		Questionnaire: &questionnaire.Service{Repo: questionnaire.NewMemoryRepo()},
		Enrichment:    enrichment.NewMemoryRepo(),
		Intake:        &assets.Service{Repo: assetsRepo, Store: newFakeStore()},
		Queue:         q,
	}
	if err := companiesRepo.Put(context.Background(), companies.Company{
		ID:         "comp-1",
		OrgID:      "org-1",
		Name:       "Kuusikoski Konepaja Oy",
		BusinessID: "1234567-8",
		Industry:   "machinery",
	}); err != nil {
		t.Fatalf("seed company: %v", err)
	}
	return &testEnv{svc: svc, companies: companiesRepo, assets: assetsRepo, queue: q}
}

func (e *testEnv) createJob(t *testing.T, in CreateInput) Job {
	t.Helper()
	j, err := e.svc.Create(context.Background(), "org-1", "user-1", in)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	return j
}

func (e *testEnv) lastEvent(t *testing.T) queue.Message {
	t.Helper()
	sent := e.queue.Sent()
	if len(sent) == 0 {
		t.Fatal("no events dispatched")
	}
	return sent[len(sent)-1]
}

func TestCreateDispatchesCollection(t *testing.T) {
	env := newTestEnv(t)
	j := env.createJob(t, CreateInput{CompanyID: "comp-1", Teaser: true, IM: true})

	if j.Status != StatusInitiated {
		t.Errorf("status = %s, want initiated", j.Status)
	}
	if j.EstimatedCompletionAt == nil {
		t.Error("expected an initial completion estimate")
	}
	msg := env.lastEvent(t)
	if msg.Event != queue.EventCollectData || msg.JobID != j.ID {
		t.Errorf("dispatched %+v, want collect_data for %s", msg, j.ID)
	}

	answered, total, err := env.svc.Questionnaire.Completion(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("completion: %v", err)
	}
	if answered != 0 || total == 0 {
		t.Errorf("questionnaire seeded answered=%d total=%d", answered, total)
	}
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.svc.Create(ctx, "org-1", "user-1", CreateInput{CompanyID: "comp-1"}); !errors.Is(err, ErrNoOutputsRequested) {
		t.Errorf("no outputs: err = %v", err)
	}
	if _, err := env.svc.Create(ctx, "org-1", "user-1", CreateInput{CompanyID: "nope", Teaser: true}); !errors.Is(err, ErrCompanyNotFound) {
		t.Errorf("unknown company: err = %v", err)
	}
	if _, err := env.svc.Create(ctx, "org-2", "user-1", CreateInput{CompanyID: "comp-1", Teaser: true}); !errors.Is(err, ErrForbidden) {
		t.Errorf("cross-org company: err = %v", err)
	}
}

func TestCollectionRoutesByOutputs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	teaserOnly := env.createJob(t, CreateInput{CompanyID: "comp-1", Teaser: true})
	if _, run, err := env.svc.BeginCollection(ctx, teaserOnly.ID); err != nil || !run {
		t.Fatalf("begin collection: run=%v err=%v", run, err)
	}
	j, err := env.svc.CompleteCollection(ctx, teaserOnly.ID, []string{"registry returned no financial periods"})
	if err != nil {
		t.Fatalf("complete collection: %v", err)
	}
	if j.Status != StatusQuestionnairePending {
		t.Errorf("teaser-only job status = %s, want questionnaire_pending", j.Status)
	}
	if !j.PublicDataCollected || j.PublicDataCollectedAt == nil {
		t.Error("expected public data phase marked")
	}
	if j.StartedAt == nil {
		t.Error("expected started_at set on collection start")
	}
	if len(j.Warnings) != 1 {
		t.Errorf("warnings = %v, want the collection warning", j.Warnings)
	}

	withIM := env.createJob(t, CreateInput{CompanyID: "comp-1", Teaser: true, IM: true})
	if _, run, err := env.svc.BeginCollection(ctx, withIM.ID); err != nil || !run {
		t.Fatalf("begin collection: run=%v err=%v", run, err)
	}
	j, err = env.svc.CompleteCollection(ctx, withIM.ID, nil)
	if err != nil {
		t.Fatalf("complete collection: %v", err)
	}
	if j.Status != StatusAwaitingUploads {
		t.Errorf("IM job status = %s, want awaiting_uploads", j.Status)
	}
}

func TestRedeliveredCollectEventIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	j := env.createJob(t, CreateInput{CompanyID: "comp-1", Teaser: true})
	if _, run, err := env.svc.BeginCollection(ctx, j.ID); err != nil || !run {
		t.Fatalf("begin collection: run=%v err=%v", run, err)
	}
	if _, err := env.svc.CompleteCollection(ctx, j.ID, nil); err != nil {
		t.Fatalf("complete collection: %v", err)
	}

	cur, run, err := env.svc.BeginCollection(ctx, j.ID)
	if err != nil {
		t.Fatalf("redelivered begin collection: %v", err)
	}
	if run {
		t.Error("redelivered collect event should not run again")
	}
	if cur.Status != StatusQuestionnairePending {
		t.Errorf("status moved to %s on redelivery", cur.Status)
	}
}

func TestAnswerQuestionFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	j := env.createJob(t, CreateInput{CompanyID: "comp-1", Teaser: true})
	if _, run, err := env.svc.BeginCollection(ctx, j.ID); err != nil || !run {
		t.Fatalf("begin collection: run=%v err=%v", run, err)
	}
	if _, err := env.svc.CompleteCollection(ctx, j.ID, nil); err != nil {
		t.Fatalf("complete collection: %v", err)
	}

	questions := questionnaire.QuestionsFor([]string{"teaser"})
	res, err := env.svc.AnswerQuestion(ctx, j.ID, "org-1", questions[0].ID, "We make machines.")
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if res.Answered != 1 || res.CompletionPct != 100/len(questions) {
		t.Errorf("after first answer: %+v", res)
	}
	cur, err := env.svc.Get(ctx, j.ID, "org-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cur.Status != StatusQuestionnaireInProgress {
		t.Errorf("status after first answer = %s, want questionnaire_in_progress", cur.Status)
	}

	for _, q := range questions[1:] {
		if res, err = env.svc.AnswerQuestion(ctx, j.ID, "org-1", q.ID, "answer for "+q.ID); err != nil {
			t.Fatalf("answer %s: %v", q.ID, err)
		}
	}
	if res.CompletionPct != 100 {
		t.Errorf("completion = %d%%, want 100%%", res.CompletionPct)
	}
	cur, _ = env.svc.Get(ctx, j.ID, "org-1")
	if !cur.QuestionnaireCompleted {
		t.Error("expected questionnaire phase marked complete")
	}
	msg := env.lastEvent(t)
	if msg.Event != queue.EventConsolidate {
		t.Errorf("last event = %s, want consolidate", msg.Event)
	}
	countConsolidates := func() int {
		n := 0
		for _, m := range env.queue.Sent() {
			if m.Event == queue.EventConsolidate {
				n++
			}
		}
		return n
	}
	if n := countConsolidates(); n != 1 {
		t.Errorf("consolidate dispatched %d times, want 1", n)
	}

	// Overwriting an answer must not re-dispatch consolidation.
	if _, err := env.svc.AnswerQuestion(ctx, j.ID, "org-1", questions[0].ID, "We make better machines."); err != nil {
		t.Fatalf("re-answer: %v", err)
	}
	if n := countConsolidates(); n != 1 {
		t.Errorf("re-answering changed consolidate dispatch count to %d", n)
	}

	if _, err := env.svc.AnswerQuestion(ctx, j.ID, "org-1", "bogus_question", "x"); !errors.Is(err, questionnaire.ErrUnknownQuestion) {
		t.Errorf("unknown question: err = %v", err)
	}
}

func TestUploadAndConfirmDocuments(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	j := env.createJob(t, CreateInput{CompanyID: "comp-1", Teaser: true, IM: true})
	if _, run, err := env.svc.BeginCollection(ctx, j.ID); err != nil || !run {
		t.Fatalf("begin collection: run=%v err=%v", run, err)
	}
	if _, err := env.svc.CompleteCollection(ctx, j.ID, nil); err != nil {
		t.Fatalf("complete collection: %v", err)
	}

	if _, err := env.svc.ConfirmDocuments(ctx, j.ID, "org-1"); !errors.Is(err, ErrNoDocuments) {
		t.Errorf("confirm without uploads: err = %v", err)
	}

	res, err := env.svc.UploadDocuments(ctx, j.ID, "org-1", []assets.FileInput{
		{Name: "financials.csv", Reader: strings.NewReader("year,revenue\n2025,1200000\n")},
		{Name: "malware.exe", Reader: strings.NewReader("MZ")},
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if len(res.Accepted) != 1 || len(res.Rejected) != 1 {
		t.Fatalf("accepted=%d rejected=%d, want 1/1", len(res.Accepted), len(res.Rejected))
	}
	msg := env.lastEvent(t)
	if msg.Event != queue.EventProcessUploads {
		t.Errorf("last event = %s, want process_uploads", msg.Event)
	}

	cur, err := env.svc.ConfirmDocuments(ctx, j.ID, "org-1")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if cur.Status != StatusQuestionnaireInProgress {
		t.Errorf("status after confirm = %s, want questionnaire_in_progress", cur.Status)
	}
	if !cur.DocumentsUploaded {
		t.Error("expected documents phase marked")
	}

	if _, err := env.svc.UploadDocuments(ctx, j.ID, "org-1", nil); !errors.Is(err, ErrInvalidState) {
		t.Errorf("upload after confirm: err = %v", err)
	}
}

func TestGenerationChainAndApprove(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	j := env.createJob(t, CreateInput{CompanyID: "comp-1", Teaser: true, IM: true})
	seedToConsolidated(t, env, j.ID)

	cur, run, err := env.svc.BeginGeneration(ctx, j.ID, OutputTeaser)
	if err != nil || !run {
		t.Fatalf("begin teaser: run=%v err=%v", run, err)
	}
	if cur.Status != StatusGeneratingTeaser {
		t.Fatalf("status = %s", cur.Status)
	}
	cur, err = env.svc.CompleteGeneration(ctx, j.ID, OutputTeaser, "asset-teaser")
	if err != nil {
		t.Fatalf("complete teaser: %v", err)
	}
	if cur.Status != StatusGeneratingIM {
		t.Errorf("status after teaser = %s, want generating_im", cur.Status)
	}
	if cur.TeaserAssetID == nil || *cur.TeaserAssetID != "asset-teaser" {
		t.Errorf("teaser asset ref = %v", cur.TeaserAssetID)
	}
	msg := env.lastEvent(t)
	if msg.Event != queue.EventGenerate || msg.Output != OutputIM {
		t.Errorf("chained event = %+v, want generate im", msg)
	}

	// A redelivered teaser event finds the artifact recorded and skips.
	if _, run, err := env.svc.BeginGeneration(ctx, j.ID, OutputTeaser); err != nil || run {
		t.Errorf("redelivered teaser: run=%v err=%v, want no-op", run, err)
	}

	cur, err = env.svc.CompleteGeneration(ctx, j.ID, OutputIM, "asset-im")
	if err != nil {
		t.Fatalf("complete im: %v", err)
	}
	if cur.Status != StatusReview {
		t.Errorf("status after last output = %s, want review", cur.Status)
	}

	if _, err := env.svc.Cancel(ctx, j.ID, "org-1"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("cancel in review: err = %v", err)
	}
	cur, err = env.svc.Approve(ctx, j.ID, "org-1")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if cur.Status != StatusCompleted || cur.CompletedAt == nil || cur.Progress != 100 {
		t.Errorf("approved job: status=%s progress=%d completedAt=%v", cur.Status, cur.Progress, cur.CompletedAt)
	}
	if _, err := env.svc.Approve(ctx, j.ID, "org-1"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("double approve: err = %v", err)
	}
}

func TestFailPhaseBudgetAndRetry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	j := env.createJob(t, CreateInput{CompanyID: "comp-1", Teaser: true})
	seedToConsolidated(t, env, j.ID)
	if _, run, err := env.svc.BeginGeneration(ctx, j.ID, OutputTeaser); err != nil || !run {
		t.Fatalf("begin teaser: run=%v err=%v", run, err)
	}

	upstream := "openai: 503 model overloaded"
	for attempt := 1; attempt <= 2; attempt++ {
		retrying, err := env.svc.FailPhase(ctx, j.ID, upstream)
		if err != nil {
			t.Fatalf("fail attempt %d: %v", attempt, err)
		}
		if !retrying {
			t.Fatalf("attempt %d should still be within budget", attempt)
		}
		cur, _ := env.svc.Get(ctx, j.ID, "org-1")
		if cur.Status != StatusGeneratingTeaser || cur.RetryCount != attempt {
			t.Fatalf("after attempt %d: status=%s retries=%d", attempt, cur.Status, cur.RetryCount)
		}
		msg := env.lastEvent(t)
		if msg.Event != queue.EventGenerate || msg.Output != OutputTeaser {
			t.Fatalf("attempt %d did not re-dispatch generation: %+v", attempt, msg)
		}
	}

	retrying, err := env.svc.FailPhase(ctx, j.ID, upstream)
	if err != nil {
		t.Fatalf("final failure: %v", err)
	}
	if retrying {
		t.Fatal("third failure should exhaust the budget")
	}
	cur, _ := env.svc.Get(ctx, j.ID, "org-1")
	if cur.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", cur.Status)
	}
	if cur.ErrorMessage == nil || *cur.ErrorMessage != upstream {
		t.Errorf("error message = %v, want the upstream error verbatim", cur.ErrorMessage)
	}
	if cur.FailedFrom != StatusGeneratingTeaser {
		t.Errorf("failed_from = %s", cur.FailedFrom)
	}
	if cur.Progress == 0 {
		t.Error("failure should preserve reached progress")
	}

	cur, err = env.svc.Retry(ctx, j.ID, "org-1")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if cur.Status != StatusGeneratingTeaser {
		t.Errorf("status after retry = %s, want generating_teaser", cur.Status)
	}
	if cur.ErrorMessage != nil || cur.FailedFrom != "" || cur.RetryCount != 0 {
		t.Errorf("failure record not cleared: %+v", cur)
	}
	msg := env.lastEvent(t)
	if msg.Event != queue.EventGenerate || msg.Output != OutputTeaser {
		t.Errorf("retry did not re-dispatch generation: %+v", msg)
	}

	if _, err := env.svc.Retry(ctx, j.ID, "org-1"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("retry on non-failed job: err = %v", err)
	}
}

func TestCancelPreservesProgress(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	j := env.createJob(t, CreateInput{CompanyID: "comp-1", Teaser: true})
	if _, run, err := env.svc.BeginCollection(ctx, j.ID); err != nil || !run {
		t.Fatalf("begin collection: run=%v err=%v", run, err)
	}
	if _, err := env.svc.CompleteCollection(ctx, j.ID, nil); err != nil {
		t.Fatalf("complete collection: %v", err)
	}
	before, _ := env.svc.Get(ctx, j.ID, "org-1")

	cur, err := env.svc.Cancel(ctx, j.ID, "org-1")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cur.Status != StatusCancelled || cur.CompletedAt == nil {
		t.Errorf("cancelled job: status=%s completedAt=%v", cur.Status, cur.CompletedAt)
	}
	if cur.Progress != before.Progress {
		t.Errorf("progress changed on cancel: %d -> %d", before.Progress, cur.Progress)
	}
	if _, err := env.svc.Cancel(ctx, j.ID, "org-1"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("double cancel: err = %v", err)
	}
}

func TestTenantScoping(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	j := env.createJob(t, CreateInput{CompanyID: "comp-1", Teaser: true})

	if _, err := env.svc.Get(ctx, j.ID, "org-2"); !errors.Is(err, ErrForbidden) {
		t.Errorf("cross-org get: err = %v", err)
	}
	if _, err := env.svc.Cancel(ctx, j.ID, "org-2"); !errors.Is(err, ErrForbidden) {
		t.Errorf("cross-org cancel: err = %v", err)
	}
	if _, err := env.svc.Get(ctx, "missing", "org-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing job: err = %v", err)
	}

	list, err := env.svc.List(ctx, "org-2", 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("org-2 sees %d jobs", len(list))
	}
}

// seedToConsolidated drives a job through collection and questionnaire to
// data_consolidated using the public service surface.
func seedToConsolidated(t *testing.T, env *testEnv, jobID string) {
	t.Helper()
	ctx := context.Background()
	if _, run, err := env.svc.BeginCollection(ctx, jobID); err != nil || !run {
		t.Fatalf("begin collection: run=%v err=%v", run, err)
	}
	if _, err := env.svc.CompleteCollection(ctx, jobID, nil); err != nil {
		t.Fatalf("complete collection: %v", err)
	}
	j, err := env.svc.Get(ctx, jobID, "org-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if j.Status == StatusAwaitingUploads {
		if _, err := env.svc.UploadDocuments(ctx, jobID, "org-1", []assets.FileInput{
			{Name: "financials.csv", Reader: strings.NewReader("year,revenue\n2025,1\n")},
		}); err != nil {
			t.Fatalf("upload: %v", err)
		}
		if _, err := env.svc.ConfirmDocuments(ctx, jobID, "org-1"); err != nil {
			t.Fatalf("confirm: %v", err)
		}
	}
	for _, q := range questionnaire.QuestionsFor(j.RequestedOutputs()) {
		if _, err := env.svc.AnswerQuestion(ctx, jobID, "org-1", q.ID, "answer for "+q.ID); err != nil {
			t.Fatalf("answer %s: %v", q.ID, err)
		}
	}
	if _, _, err := env.svc.CompleteConsolidation(ctx, jobID); err != nil {
		t.Fatalf("consolidate: %v", err)
	}
	j, _ = env.svc.Get(ctx, jobID, "org-1")
	if j.Status != StatusDataConsolidated {
		t.Fatalf("seed ended at %s, want data_consolidated", j.Status)
	}
}
