// Package workerproc routes phase events to the pipeline services. It is the
// single consumer-side entry point shared by the SQS worker and the
// in-process queue used in development and tests.
package workerproc

import (
	"context"
	"errors"
	"fmt"

	"dealroom-backend/internal/assets"
	"dealroom-backend/internal/companies"
	"dealroom-backend/internal/enrichment"
	"dealroom-backend/internal/generation"
	"dealroom-backend/internal/jobs"
	"dealroom-backend/internal/queue"
	"dealroom-backend/internal/shared/metrics"
	"dealroom-backend/internal/shared/telemetry"
)

// ErrBadMessage marks payloads that can never be processed. Consumers should
// drop these instead of redelivering them.
var ErrBadMessage = errors.New("unprocessable phase event")

// Processor routes phase events. Every handler is idempotent: redelivered
// events find the job already past the phase and become no-ops.
type Processor struct {
	Jobs       *jobs.Service
	Companies  companies.Repo
	Enrichment *enrichment.Service
	Generation *generation.Service
	Assets     *assets.Service
}

// ProcessEvent validates and dispatches one phase event.
func (p *Processor) ProcessEvent(ctx context.Context, msg queue.Message) error {
	metrics.IncPhaseEventsReceived()
	if err := validate(msg); err != nil {
		metrics.IncPhaseEventsDropped()
		telemetry.Error("worker.bad_message", map[string]any{
			"event": msg.Event, "job_id": msg.JobID, "error": err.Error(),
		})
		return err
	}
	var err error
	switch msg.Event {
	case queue.EventCollectData:
		err = p.collectData(ctx, msg.JobID)
	case queue.EventProcessUploads:
		err = p.processUploads(ctx, msg.JobID)
	case queue.EventConsolidate:
		_, _, err = p.Jobs.CompleteConsolidation(ctx, msg.JobID)
	case queue.EventGenerate:
		err = p.Generation.Generate(ctx, msg.JobID, msg.Output)
	}
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			// The job is gone; redelivering won't bring it back.
			metrics.IncPhaseEventsDropped()
			telemetry.Warn("worker.job_missing", map[string]any{
				"event": msg.Event, "job_id": msg.JobID,
			})
			return fmt.Errorf("%w: %s", ErrBadMessage, err)
		}
		metrics.IncPhaseEventsFailed()
		telemetry.Error("worker.event_failed", map[string]any{
			"event": msg.Event, "job_id": msg.JobID, "error": err.Error(),
		})
		return err
	}
	return nil
}

func validate(msg queue.Message) error {
	if msg.JobID == "" {
		return fmt.Errorf("%w: missing job ID", ErrBadMessage)
	}
	switch msg.Event {
	case queue.EventCollectData, queue.EventProcessUploads, queue.EventConsolidate:
		return nil
	case queue.EventGenerate:
		if jobs.GeneratingStatusFor(msg.Output) == "" {
			return fmt.Errorf("%w: unknown output %q", ErrBadMessage, msg.Output)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown event %q", ErrBadMessage, msg.Event)
}

// collectData runs the enrichment phase. Upstream degradations become job
// warnings; only storage failures count against the attempt budget.
func (p *Processor) collectData(ctx context.Context, jobID string) error {
	j, run, err := p.Jobs.BeginCollection(ctx, jobID)
	if err != nil {
		return err
	}
	if !run {
		telemetry.Info("worker.collect_skipped", map[string]any{
			"job_id": jobID, "status": j.Status,
		})
		return nil
	}
	c, err := p.Companies.GetByID(ctx, j.CompanyID)
	if err != nil {
		_, ferr := p.Jobs.FailPhase(ctx, jobID, err.Error())
		return ferr
	}
	res, err := p.Enrichment.Collect(ctx, jobID, c)
	if err != nil {
		_, ferr := p.Jobs.FailPhase(ctx, jobID, err.Error())
		return ferr
	}
	_, err = p.Jobs.CompleteCollection(ctx, jobID, res.Warnings)
	return err
}

// processUploads extracts text from newly uploaded documents. Per-document
// extraction failures become job warnings; the phase itself never fails the
// job.
func (p *Processor) processUploads(ctx context.Context, jobID string) error {
	warnings, err := p.Assets.ProcessUploads(ctx, jobID)
	if err != nil {
		return err
	}
	if len(warnings) > 0 {
		return p.Jobs.RecordWarnings(ctx, jobID, warnings)
	}
	return nil
}
