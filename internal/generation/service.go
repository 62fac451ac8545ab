package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"dealroom-backend/internal/ai"
	"dealroom-backend/internal/assets"
	"dealroom-backend/internal/companies"
	"dealroom-backend/internal/enrichment"
	"dealroom-backend/internal/jobs"
	"dealroom-backend/internal/questionnaire"
	"dealroom-backend/internal/shared/metrics"
	"dealroom-backend/internal/shared/telemetry"
)

// Service produces the sale documents. Each Generate call handles one output
// of one job: it claims the generation phase through the orchestrator,
// consolidates everything known about the company into a single input, calls
// the AI backend and stores the artifact. Failures are routed back through
// the orchestrator's attempt budget, so a redelivered or re-dispatched event
// picks up cleanly.
type Service struct {
	Jobs          *jobs.Service
	Companies     companies.Repo
	Enrichment    enrichment.Repo
	Questionnaire *questionnaire.Service
	Assets        *assets.Service
	AI            ai.Generator
}

// Generate runs the generation phase for one output. Stale events (artifact
// already stored, job elsewhere in the pipeline) are no-ops. Domain failures
// are absorbed via the job's attempt budget; only infrastructure errors
// propagate to the caller.
func (s *Service) Generate(ctx context.Context, jobID, output string) error {
	j, run, err := s.Jobs.BeginGeneration(ctx, jobID, output)
	if err != nil {
		return err
	}
	if !run {
		telemetry.Info("generation.skipped", map[string]any{
			"job_id": jobID, "output": output, "status": j.Status,
		})
		return nil
	}

	input, err := s.buildInput(ctx, j, output)
	if err != nil {
		return s.failPhase(ctx, jobID, output, err)
	}

	start := time.Now()
	raw, err := s.AI.Generate(ctx, input)
	metrics.ObserveGenerationDurationMs(float64(time.Since(start).Milliseconds()))
	if err != nil {
		return s.failPhase(ctx, jobID, output, err)
	}

	artifact, err := s.Assets.StoreGenerated(ctx, j.OrgID, j.CompanyID, jobID, output, raw)
	if err != nil {
		return s.failPhase(ctx, jobID, output, err)
	}

	if _, err := s.Jobs.CompleteGeneration(ctx, jobID, output, artifact.ID); err != nil {
		return err
	}
	telemetry.Info("generation.completed", map[string]any{
		"job_id":      jobID,
		"output":      output,
		"asset_id":    artifact.ID,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return nil
}

// failPhase hands the failure to the orchestrator, which either re-dispatches
// the phase or fails the job with this error recorded verbatim.
func (s *Service) failPhase(ctx context.Context, jobID, output string, cause error) error {
	telemetry.Warn("generation.attempt_failed", map[string]any{
		"job_id": jobID, "output": output, "error": cause.Error(),
	})
	_, err := s.Jobs.FailPhase(ctx, jobID, cause.Error())
	return err
}

// buildInput consolidates enrichment cache, extracted document text and
// questionnaire answers into one generation input.
func (s *Service) buildInput(ctx context.Context, j jobs.Job, output string) (ai.GenerateInput, error) {
	task, err := taskFor(output)
	if err != nil {
		return ai.GenerateInput{}, err
	}
	c, err := s.Companies.GetByID(ctx, j.CompanyID)
	if err != nil {
		return ai.GenerateInput{}, fmt.Errorf("load company: %w", err)
	}
	entries, err := s.Enrichment.ListByJob(ctx, j.ID)
	if err != nil {
		return ai.GenerateInput{}, fmt.Errorf("load enrichment cache: %w", err)
	}
	documentsText, err := s.Assets.CollectExtractedText(ctx, j.ID)
	if err != nil {
		return ai.GenerateInput{}, fmt.Errorf("load document text: %w", err)
	}
	answers, err := s.Questionnaire.AnswersByQuestion(ctx, j.ID)
	if err != nil {
		return ai.GenerateInput{}, fmt.Errorf("load questionnaire answers: %w", err)
	}
	return ai.GenerateInput{
		Task:            task,
		CompanyName:     c.Name,
		Industry:        c.Industry,
		Website:         c.Website,
		RegistryFacts:   factsFromCache(entries),
		FieldConfidence: enrichment.FieldConfidence(c, entries),
		DocumentsText:   documentsText,
		Answers:         answers,
	}, nil
}

func taskFor(output string) (string, error) {
	switch output {
	case jobs.OutputTeaser:
		return ai.TaskTeaser, nil
	case jobs.OutputIM:
		return ai.TaskIM, nil
	case jobs.OutputPitchDeck:
		return ai.TaskPitchDeck, nil
	}
	return "", fmt.Errorf("unknown output %q", output)
}

// factsFromCache flattens the latest cache entry per source into one map.
// Registry facts take their natural keys; AI research sits under its source
// name so verified and unverified data stay distinguishable.
func factsFromCache(entries []enrichment.CacheEntry) map[string]any {
	latest := enrichment.LatestBySource(entries)
	if len(latest) == 0 {
		return nil
	}
	facts := make(map[string]any)
	if e, ok := latest[enrichment.SourceRegistry]; ok {
		var m map[string]any
		if err := json.Unmarshal(e.Payload, &m); err == nil {
			facts = m
		}
	}
	if e, ok := latest[enrichment.SourceAIResearch]; ok {
		var v any
		if err := json.Unmarshal(e.Payload, &v); err == nil {
			facts[enrichment.SourceAIResearch] = v
		}
	}
	return facts
}
