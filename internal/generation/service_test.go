package generation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"dealroom-backend/internal/ai"
	"dealroom-backend/internal/assets"
	"dealroom-backend/internal/companies"
	"dealroom-backend/internal/enrichment"
	"dealroom-backend/internal/jobs"
	"dealroom-backend/internal/queue"
	"dealroom-backend/internal/questionnaire"
	"dealroom-backend/internal/shared/storage/object/local"
)

type fakeAI struct {
	payload json.RawMessage
	err     error
	inputs  []ai.GenerateInput
}

func (f *fakeAI) Generate(ctx context.Context, input ai.GenerateInput) (json.RawMessage, error) {
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return nil, f.err
	}
	return f.payload, nil
}

type testEnv struct {
	gen    *Service
	jobs   *jobs.Service
	queue  *queue.MemoryClient
	ai     *fakeAI
	assets *assets.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	companyRepo := companies.NewMemoryRepo()
	if err := companyRepo.Put(context.Background(), companies.Company{
		ID:       "comp-1",
		OrgID:    "org-1",
		Name:     "Kuusikoski Konepaja Oy",
		Industry: "machinery",
	}); err != nil {
		t.Fatalf("seed company: %v", err)
	}

	q := queue.NewMemoryClient()
	questions := &questionnaire.Service{Repo: questionnaire.NewMemoryRepo()}
	intake := &assets.Service{Repo: assets.NewMemoryRepo(), Store: local.New(t.TempDir())}
	enrichmentRepo := enrichment.NewMemoryRepo()
	jobSvc := &jobs.Service{
		Repo:          jobs.NewMemoryRepo(),
		Companies:     companyRepo,
		Questionnaire: questions,
		Enrichment:    enrichmentRepo,
		Intake:        intake,
		Queue:         q,
	}
	backend := &fakeAI{payload: json.RawMessage(`{"headline":"Profitable machine shop for sale"}`)}
	return &testEnv{
		gen: &Service{
			Jobs:          jobSvc,
			Companies:     companyRepo,
			Enrichment:    enrichmentRepo,
			Questionnaire: questions,
			Assets:        intake,
			AI:            backend,
		},
		jobs:   jobSvc,
		queue:  q,
		ai:     backend,
		assets: intake,
	}
}

// seedConsolidatedJob plants a job ready for generation, with an enrichment
// entry and one answered question so buildInput has material to consolidate.
func seedConsolidatedJob(t *testing.T, env *testEnv, teaser, im bool) jobs.Job {
	t.Helper()
	ctx := context.Background()
	j := jobs.Job{
		ID:                     "job-1",
		OrgID:                  "org-1",
		CompanyID:              "comp-1",
		CreatedBy:              "user-1",
		GenerateTeaser:         teaser,
		GenerateIM:             im,
		Status:                 jobs.StatusDataConsolidated,
		Progress:               jobs.ProgressFor(jobs.StatusDataConsolidated),
		PublicDataCollected:    true,
		DocumentsUploaded:      im,
		QuestionnaireCompleted: true,
		Warnings:               []string{},
		CreatedAt:              time.Now().UTC(),
	}
	if err := env.jobs.Repo.Create(ctx, j); err != nil {
		t.Fatalf("seed job: %v", err)
	}
	if err := env.gen.Enrichment.Append(ctx, enrichment.CacheEntry{
		ID:              "cache-1",
		JobID:           j.ID,
		CompanyID:       j.CompanyID,
		Source:          enrichment.SourceRegistry,
		Payload:         json.RawMessage(`{"legalName":"Kuusikoski Konepaja Oy","foundedYear":1987}`),
		ConfidenceScore: enrichment.ConfidenceRegistry,
		CreatedAt:       time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed cache: %v", err)
	}
	if _, err := env.gen.Questionnaire.SeedForJob(ctx, j.ID, j.RequestedOutputs()); err != nil {
		t.Fatalf("seed questionnaire: %v", err)
	}
	if _, _, err := env.gen.Questionnaire.Answer(ctx, j.ID, "business_overview", "CNC machining for Nordic industry."); err != nil {
		t.Fatalf("answer: %v", err)
	}
	return j
}

func TestGenerateStoresArtifactAndChains(t *testing.T) {
	env := newTestEnv(t)
	j := seedConsolidatedJob(t, env, true, true)
	ctx := context.Background()

	if err := env.gen.Generate(ctx, j.ID, jobs.OutputTeaser); err != nil {
		t.Fatalf("generate: %v", err)
	}

	updated, err := env.jobs.Repo.GetByID(ctx, j.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if updated.Status != jobs.StatusGeneratingIM {
		t.Errorf("status = %s, want %s", updated.Status, jobs.StatusGeneratingIM)
	}
	if updated.TeaserAssetID == nil {
		t.Fatal("teaser asset not recorded")
	}
	artifact, err := env.assets.Repo.GetByID(ctx, *updated.TeaserAssetID)
	if err != nil {
		t.Fatalf("get artifact: %v", err)
	}
	if artifact.Kind != assets.KindGeneratedTeaser {
		t.Errorf("artifact kind = %s", artifact.Kind)
	}

	// The next phase was dispatched.
	sent := env.queue.Sent()
	if len(sent) != 1 || sent[0].Event != queue.EventGenerate || sent[0].Output != jobs.OutputIM {
		t.Errorf("dispatched = %+v", sent)
	}

	// The AI saw the consolidated input.
	if len(env.ai.inputs) != 1 {
		t.Fatalf("ai calls = %d", len(env.ai.inputs))
	}
	in := env.ai.inputs[0]
	if in.Task != ai.TaskTeaser || in.CompanyName != "Kuusikoski Konepaja Oy" {
		t.Errorf("input = %+v", in)
	}
	if in.RegistryFacts["legalName"] != "Kuusikoski Konepaja Oy" {
		t.Errorf("registry facts = %+v", in.RegistryFacts)
	}
	if in.FieldConfidence["legalName"] != enrichment.FieldVerified {
		t.Errorf("field confidence = %+v", in.FieldConfidence)
	}
	if in.Answers["business_overview"] == "" {
		t.Errorf("answers = %+v", in.Answers)
	}
}

func TestGenerateStaleEventIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	j := seedConsolidatedJob(t, env, true, true)
	ctx := context.Background()

	if err := env.gen.Generate(ctx, j.ID, jobs.OutputTeaser); err != nil {
		t.Fatalf("generate: %v", err)
	}
	// Redelivered teaser event after the artifact exists must not regenerate.
	if err := env.gen.Generate(ctx, j.ID, jobs.OutputTeaser); err != nil {
		t.Fatalf("redelivered generate: %v", err)
	}
	if len(env.ai.inputs) != 1 {
		t.Errorf("ai calls = %d, want 1", len(env.ai.inputs))
	}
	updated, _ := env.jobs.Repo.GetByID(ctx, j.ID)
	if updated.Status != jobs.StatusGeneratingIM {
		t.Errorf("status = %s", updated.Status)
	}
}

func TestGenerateFailureExhaustsAttemptBudget(t *testing.T) {
	env := newTestEnv(t)
	j := seedConsolidatedJob(t, env, true, false)
	env.ai.err = errors.New("openai: 503 model overloaded")
	ctx := context.Background()

	// Each attempt is absorbed by the budget; re-dispatch is recorded on the
	// queue and driven manually here.
	for attempt := 1; attempt <= 3; attempt++ {
		if err := env.gen.Generate(ctx, j.ID, jobs.OutputTeaser); err != nil {
			t.Fatalf("attempt %d: %v", attempt, err)
		}
	}

	updated, err := env.jobs.Repo.GetByID(ctx, j.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if updated.Status != jobs.StatusFailed {
		t.Fatalf("status = %s, want failed", updated.Status)
	}
	if updated.ErrorMessage == nil || *updated.ErrorMessage != "openai: 503 model overloaded" {
		t.Errorf("error message = %v", updated.ErrorMessage)
	}
	if updated.FailedFrom != jobs.StatusGeneratingTeaser {
		t.Errorf("failed from = %s", updated.FailedFrom)
	}
	if updated.RetryCount != 3 {
		t.Errorf("retry count = %d", updated.RetryCount)
	}

	// Two retrying attempts re-dispatched the phase; the terminal one did not.
	regenerates := 0
	for _, msg := range env.queue.Sent() {
		if msg.Event == queue.EventGenerate {
			regenerates++
		}
	}
	if regenerates != 2 {
		t.Errorf("re-dispatched generate events = %d, want 2", regenerates)
	}
}

func TestGenerateUnknownOutput(t *testing.T) {
	env := newTestEnv(t)
	j := seedConsolidatedJob(t, env, true, false)

	err := env.gen.Generate(context.Background(), j.ID, "brochure")
	if !errors.Is(err, jobs.ErrInvalidState) {
		t.Errorf("err = %v, want ErrInvalidState", err)
	}
}
