package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"dealroom-backend/internal/ai"
	"dealroom-backend/internal/companies"
	"dealroom-backend/internal/jobs"
	"dealroom-backend/internal/queue"
	"dealroom-backend/internal/registry"
	"dealroom-backend/internal/shared/config"
	"dealroom-backend/internal/shared/storage/object/local"
)

type fakeRegistry struct {
	err error
}

func (f *fakeRegistry) Lookup(ctx context.Context, businessID string) (registry.CompanyFacts, error) {
	if f.err != nil {
		return registry.CompanyFacts{}, f.err
	}
	return registry.CompanyFacts{
		BusinessID: businessID,
		LegalName:  "Kuusikoski Konepaja Oy",
		Industry:   "machinery",
		Status:     "active",
		FinancialPeriods: []registry.FinancialPeriod{
			{Year: 2024, Revenue: 1200000, OperatingProfit: 140000, EmployeeCount: 11},
			{Year: 2025, Revenue: 1350000, OperatingProfit: 180000, EmployeeCount: 12},
		},
	}, nil
}

type fakeAI struct {
	failTask string
	failErr  error
	calls    int
}

func (f *fakeAI) Generate(ctx context.Context, input ai.GenerateInput) (json.RawMessage, error) {
	f.calls++
	if f.failTask != "" && input.Task == f.failTask {
		return nil, f.failErr
	}
	payload, _ := json.Marshal(map[string]string{"task": input.Task, "company": input.CompanyName})
	return payload, nil
}

type env struct {
	app *App
	ai  *fakeAI
}

// newTestApp wires the app with memory repos, a temp-dir object store and a
// synchronous queue, so one HTTP request drives all resulting phases inline.
func newTestApp(t *testing.T, generator *fakeAI) *env {
	t.Helper()
	cfg := config.Config{Env: "local", GenerationMaxRetries: 3}
	q := queue.NewMemoryClient()
	app, err := Build(context.Background(), cfg, Options{
		Queue:    q,
		AI:       generator,
		Registry: &fakeRegistry{},
		Store:    local.New(t.TempDir()),
	})
	if err != nil {
		t.Fatalf("build app: %v", err)
	}
	q.Handler = func(ctx context.Context, msg queue.Message) error {
		return app.Processor.ProcessEvent(ctx, msg)
	}
	memCompanies, ok := app.Companies.(*companies.MemoryRepo)
	if !ok {
		t.Fatal("expected memory companies repo")
	}
	if err := memCompanies.Put(context.Background(), companies.Company{
		ID:         "comp-1",
		OrgID:      "org-1",
		Name:       "Kuusikoski Konepaja Oy",
		BusinessID: "1234567-8",
		Industry:   "machinery",
	}); err != nil {
		t.Fatalf("seed company: %v", err)
	}
	return &env{app: app, ai: generator}
}

func (e *env) request(t *testing.T, method, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("X-Org-Id", "org-1")
	req.Header.Set("X-User-Id", "user-1")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.app.Router.ServeHTTP(rec, req)
	return rec
}

func (e *env) postJSON(t *testing.T, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return e.request(t, http.MethodPost, path, bytes.NewBuffer(raw), "application/json")
}

func (e *env) getStatus(t *testing.T, jobID string) map[string]any {
	t.Helper()
	rec := e.request(t, http.MethodGet, "/api/v1/jobs/"+jobID+"/status", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status request: %d %s", rec.Code, rec.Body.String())
	}
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	return out
}

func (e *env) answerAll(t *testing.T, jobID string) {
	t.Helper()
	rec := e.request(t, http.MethodGet, "/api/v1/jobs/"+jobID+"/questionnaire", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("questionnaire: %d %s", rec.Code, rec.Body.String())
	}
	var q struct {
		Items []struct {
			QuestionID string `json:"questionId"`
		} `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &q); err != nil {
		t.Fatalf("decode questionnaire: %v", err)
	}
	for _, item := range q.Items {
		rec := e.postJSON(t, fmt.Sprintf("/api/v1/jobs/%s/questionnaire/%s", jobID, item.QuestionID),
			map[string]string{"answer": "answer for " + item.QuestionID})
		if rec.Code != http.StatusOK {
			t.Fatalf("answer %s: %d %s", item.QuestionID, rec.Code, rec.Body.String())
		}
	}
}

func (e *env) uploadCSV(t *testing.T, jobID string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("files", "financials.csv")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	if _, err := part.Write([]byte("year,revenue\n2024,1200000\n2025,1350000\n")); err != nil {
		t.Fatalf("write file: %v", err)
	}
	mw.Close()
	return e.request(t, http.MethodPost, "/api/v1/jobs/"+jobID+"/uploads", &buf, mw.FormDataContentType())
}

func TestFullPipelineTeaserAndIM(t *testing.T) {
	e := newTestApp(t, &fakeAI{})

	rec := e.postJSON(t, "/api/v1/jobs", map[string]any{
		"companyId":      "comp-1",
		"generateTeaser": true,
		"generateIm":     true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create: %v", err)
	}

	// The synchronous queue ran collection inline; uploads are required.
	status := e.getStatus(t, created.ID)
	if status["status"] != jobs.StatusAwaitingUploads {
		t.Fatalf("status after create = %v", status["status"])
	}
	if status["cachedDataSources"].(float64) != 2 {
		t.Errorf("cachedDataSources = %v, want registry + ai research", status["cachedDataSources"])
	}
	phases := status["phases"].(map[string]any)
	if done := phases["publicDataCollected"].(map[string]any)["done"]; done != true {
		t.Error("public data phase not marked")
	}

	if rec := e.uploadCSV(t, created.ID); rec.Code != http.StatusCreated {
		t.Fatalf("upload: %d %s", rec.Code, rec.Body.String())
	}
	if rec := e.request(t, http.MethodPost, "/api/v1/jobs/"+created.ID+"/uploads/complete", nil, ""); rec.Code != http.StatusOK {
		t.Fatalf("uploads complete: %d %s", rec.Code, rec.Body.String())
	}

	// Answering the last question consolidates and generates both documents
	// inline through the chained events.
	e.answerAll(t, created.ID)

	status = e.getStatus(t, created.ID)
	if status["status"] != jobs.StatusReview {
		t.Fatalf("status after questionnaire = %v, body %v", status["status"], status)
	}
	artifacts := status["artifacts"].(map[string]any)
	if artifacts["teaserAssetId"] == nil || artifacts["imAssetId"] == nil {
		t.Errorf("artifacts missing: %v", artifacts)
	}
	if status["questionnaireCompletionPct"].(float64) != 100 {
		t.Errorf("questionnaire pct = %v", status["questionnaireCompletionPct"])
	}
	if status["progress"].(float64) != float64(jobs.ProgressFor(jobs.StatusReview)) {
		t.Errorf("progress = %v", status["progress"])
	}

	if rec := e.request(t, http.MethodPost, "/api/v1/jobs/"+created.ID+"/approve", nil, ""); rec.Code != http.StatusOK {
		t.Fatalf("approve: %d %s", rec.Code, rec.Body.String())
	}
	status = e.getStatus(t, created.ID)
	if status["status"] != jobs.StatusCompleted || status["progress"].(float64) != 100 {
		t.Errorf("final status = %v progress = %v", status["status"], status["progress"])
	}
}

func TestGenerationFailureThenUserRetry(t *testing.T) {
	generator := &fakeAI{failTask: ai.TaskTeaser, failErr: errors.New("openai: 503 model overloaded")}
	e := newTestApp(t, generator)

	rec := e.postJSON(t, "/api/v1/jobs", map[string]any{
		"companyId":      "comp-1",
		"generateTeaser": true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	var created struct {
		ID string `json:"id"`
	}
	json.Unmarshal(rec.Body.Bytes(), &created)

	// Teaser-only jobs skip uploads; answering everything drives straight
	// into generation, which fails three times and lands in failed.
	e.answerAll(t, created.ID)

	status := e.getStatus(t, created.ID)
	if status["status"] != jobs.StatusFailed {
		t.Fatalf("status = %v, want failed", status["status"])
	}
	if status["errorMessage"] != "openai: 503 model overloaded" {
		t.Errorf("errorMessage = %v, want the upstream error verbatim", status["errorMessage"])
	}
	if status["retryCount"].(float64) != 3 {
		t.Errorf("retryCount = %v, want 3", status["retryCount"])
	}
	actions := status["availableActions"].([]any)
	if len(actions) != 1 || actions[0] != jobs.ActionRetry {
		t.Errorf("availableActions = %v, want [retry]", actions)
	}

	generator.failTask = ""
	if rec := e.request(t, http.MethodPost, "/api/v1/jobs/"+created.ID+"/retry", nil, ""); rec.Code != http.StatusOK {
		t.Fatalf("retry: %d %s", rec.Code, rec.Body.String())
	}
	status = e.getStatus(t, created.ID)
	if status["status"] != jobs.StatusReview {
		t.Errorf("status after retry = %v, want review", status["status"])
	}
	if status["errorMessage"] != nil {
		t.Errorf("errorMessage not cleared: %v", status["errorMessage"])
	}
}

func TestAuthAndTenancy(t *testing.T) {
	e := newTestApp(t, &fakeAI{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
	rec := httptest.NewRecorder()
	e.app.Router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no identity: %d, want 401", rec.Code)
	}

	create := e.postJSON(t, "/api/v1/jobs", map[string]any{"companyId": "comp-1", "generateTeaser": true})
	if create.Code != http.StatusCreated {
		t.Fatalf("create: %d", create.Code)
	}
	var created struct {
		ID string `json:"id"`
	}
	json.Unmarshal(create.Body.Bytes(), &created)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+created.ID+"/status", nil)
	req.Header.Set("X-Org-Id", "org-2")
	rec = httptest.NewRecorder()
	e.app.Router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("cross-org status: %d, want 403", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "forbidden") {
		t.Errorf("cross-org body = %s", rec.Body.String())
	}

	missing := e.request(t, http.MethodGet, "/api/v1/jobs/00000000-0000-0000-0000-000000000000/status", nil, "")
	if missing.Code != http.StatusNotFound {
		t.Errorf("missing job: %d, want 404", missing.Code)
	}
}

func TestInvalidStateConflicts(t *testing.T) {
	e := newTestApp(t, &fakeAI{})
	create := e.postJSON(t, "/api/v1/jobs", map[string]any{"companyId": "comp-1", "generateTeaser": true})
	var created struct {
		ID string `json:"id"`
	}
	json.Unmarshal(create.Body.Bytes(), &created)

	// Teaser-only: job sits in questionnaire_pending, uploads are not part
	// of this pipeline.
	if rec := e.uploadCSV(t, created.ID); rec.Code != http.StatusConflict {
		t.Errorf("upload in questionnaire_pending: %d, want 409", rec.Code)
	}
	if rec := e.request(t, http.MethodPost, "/api/v1/jobs/"+created.ID+"/approve", nil, ""); rec.Code != http.StatusConflict {
		t.Errorf("approve before review: %d, want 409", rec.Code)
	}
	if rec := e.request(t, http.MethodPost, "/api/v1/jobs/"+created.ID+"/retry", nil, ""); rec.Code != http.StatusConflict {
		t.Errorf("retry on non-failed: %d, want 409", rec.Code)
	}

	if rec := e.request(t, http.MethodPost, "/api/v1/jobs/"+created.ID+"/cancel", nil, ""); rec.Code != http.StatusOK {
		t.Fatalf("cancel: %d", rec.Code)
	}
	if rec := e.request(t, http.MethodPost, "/api/v1/jobs/"+created.ID+"/cancel", nil, ""); rec.Code != http.StatusConflict {
		t.Errorf("double cancel: %d, want 409", rec.Code)
	}

	noOutputs := e.postJSON(t, "/api/v1/jobs", map[string]any{"companyId": "comp-1"})
	if noOutputs.Code != http.StatusUnprocessableEntity {
		t.Errorf("no outputs: %d, want 422", noOutputs.Code)
	}
}
