// -----------------------------------------------------------------------
// Job Dispatcher - Routes a claimed run to its job type's pipeline
// -----------------------------------------------------------------------

package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/sonar/internal/interfaces"
	"github.com/ternarybob/sonar/internal/models"
)

// Stage names recorded on runs that fail mid-pipeline
const (
	StageCollection = "collection"
	StageScoring    = "scoring"
)

// Dispatcher implements interfaces.JobDispatcher
type Dispatcher struct {
	storage interfaces.StorageManager
	engine  interfaces.ExecutionEngine
	scoring interfaces.ScoringService
	events  interfaces.EventService
	logger  arbor.ILogger
}

// NewDispatcher creates the job dispatcher
func NewDispatcher(storage interfaces.StorageManager, engine interfaces.ExecutionEngine, scoring interfaces.ScoringService, events interfaces.EventService, logger arbor.ILogger) *Dispatcher {
	return &Dispatcher{
		storage: storage,
		engine:  engine,
		scoring: scoring,
		events:  events,
		logger:  logger,
	}
}

// Dispatch executes the pipeline the run's job type names. The run must
// already be claimed (running); stage failures land on the run record.
func (d *Dispatcher) Dispatch(ctx context.Context, run *models.JobRun) error {
	if run.Status != models.RunStatusRunning {
		return fmt.Errorf("run %s is %s, expected running", run.ID, run.Status)
	}

	log := d.logger.WithCorrelationId(run.ID)
	log.Info().
		Str("job_id", run.JobID).
		Str("type", string(run.Type)).
		Str("trigger", string(run.Trigger)).
		Msg("Dispatching job run")

	switch run.Type {
	case models.JobTypeCollection:
		return d.runCollection(ctx, run, false, log)
	case models.JobTypeScoring:
		return d.runScoring(ctx, run, nil, log)
	case models.JobTypeCollectionAndScoring:
		return d.runCollection(ctx, run, true, log)
	case models.JobTypeCollectionRetry:
		return d.runRetry(ctx, run, log)
	default:
		d.failRun(ctx, run, StageCollection, fmt.Sprintf("unknown job type %s", run.Type), log)
		return nil
	}
}

// runCollection executes the collection stage and, when scoreAfter is set and
// at least one result succeeded, the scoring stage.
func (d *Dispatcher) runCollection(ctx context.Context, run *models.JobRun, scoreAfter bool, log arbor.ILogger) error {
	job, err := d.storage.ScheduledJobStorage().GetJob(ctx, run.JobID)
	if err != nil {
		d.failRun(ctx, run, StageCollection, fmt.Sprintf("job %s not found: %v", run.JobID, err), log)
		return nil
	}

	queries, err := d.storage.QueryStorage().ListActiveQueries(ctx, run.BrandID, run.CustomerID)
	if err != nil {
		d.failRun(ctx, run, StageCollection, fmt.Sprintf("failed to load queries: %v", err), log)
		return nil
	}

	if len(queries) == 0 {
		log.Info().Str("brand_id", run.BrandID).Msg("No active queries for brand, completing run")
		return d.finalizeRun(ctx, run, &interfaces.ExecutionSummary{}, log)
	}

	batch := make([]interfaces.WorkItem, 0, len(queries))
	for _, query := range queries {
		batch = append(batch, interfaces.WorkItem{Query: query, Engines: job.Engines})
	}

	summary, err := d.engine.ExecuteQueries(ctx, run, batch)
	if err != nil {
		d.failRun(ctx, run, StageCollection, fmt.Sprintf("collection stage failed: %v", err), log)
		return nil
	}

	if scoreAfter {
		if summary.Succeeded == 0 {
			log.Warn().
				Int("total", summary.Total).
				Msg("No collection successes, skipping scoring stage")
			return d.finalizeRun(ctx, run, summary, log)
		}
		if err := d.scoreAfterCollection(ctx, run, summary, log); err != nil {
			return nil
		}
	}

	return d.finalizeRun(ctx, run, summary, log)
}

// scoreAfterCollection runs the scoring stage over results collected in this
// run. Returns an error when scoring failed and the run was already failed.
func (d *Dispatcher) scoreAfterCollection(ctx context.Context, run *models.JobRun, summary *interfaces.ExecutionSummary, log arbor.ILogger) error {
	if d.scoring == nil {
		run.TotalQueries = summary.Total
		run.Succeeded = summary.Succeeded
		run.Failed = summary.Failed
		d.failRun(ctx, run, StageScoring, "scoring service not configured", log)
		return fmt.Errorf("scoring service not configured")
	}

	since := run.StartedAt
	if since == nil {
		since = &run.CreatedAt
	}

	resp, err := d.scoring.ScoreBrand(ctx, interfaces.ScoreRequest{
		BrandID:    run.BrandID,
		CustomerID: run.CustomerID,
		Since:      since,
	})
	if err != nil {
		// Keep the collection counters on the failed run for the audit trail
		run.TotalQueries = summary.Total
		run.Succeeded = summary.Succeeded
		run.Failed = summary.Failed
		d.failRun(ctx, run, StageScoring, fmt.Sprintf("scoring stage failed: %v", err), log)
		return err
	}

	log.Info().
		Int("positions", resp.PositionsProcessed).
		Int("sentiments", resp.SentimentsProcessed).
		Msg("Scoring stage completed")
	return nil
}

// runScoring executes a standalone scoring run
func (d *Dispatcher) runScoring(ctx context.Context, run *models.JobRun, since *time.Time, log arbor.ILogger) error {
	if d.scoring == nil {
		d.failRun(ctx, run, StageScoring, "scoring service not configured", log)
		return nil
	}

	resp, err := d.scoring.ScoreBrand(ctx, interfaces.ScoreRequest{
		BrandID:    run.BrandID,
		CustomerID: run.CustomerID,
		Since:      since,
	})
	if err != nil {
		d.failRun(ctx, run, StageScoring, fmt.Sprintf("scoring failed: %v", err), log)
		return nil
	}

	log.Info().
		Int("positions", resp.PositionsProcessed).
		Int("sentiments", resp.SentimentsProcessed).
		Msg("Scoring run completed")

	return d.finalizeRun(ctx, run, &interfaces.ExecutionSummary{}, log)
}

// runRetry re-dispatches failed results within the job's lookback window.
// Only failed results are selected; successes are never re-executed.
func (d *Dispatcher) runRetry(ctx context.Context, run *models.JobRun, log arbor.ILogger) error {
	job, err := d.storage.ScheduledJobStorage().GetJob(ctx, run.JobID)
	if err != nil {
		d.failRun(ctx, run, StageCollection, fmt.Sprintf("job %s not found: %v", run.JobID, err), log)
		return nil
	}

	since := time.Now().Add(-job.LookbackWindow())
	failed, err := d.storage.ResultStorage().ListFailedResults(ctx, run.BrandID, since)
	if err != nil {
		d.failRun(ctx, run, StageCollection, fmt.Sprintf("failed to load retry candidates: %v", err), log)
		return nil
	}

	if len(failed) == 0 {
		log.Info().Str("brand_id", run.BrandID).Msg("No failed results within lookback window, completing run")
		return d.finalizeRun(ctx, run, &interfaces.ExecutionSummary{}, log)
	}

	log.Info().
		Int("candidates", len(failed)).
		Str("lookback", job.LookbackWindow().String()).
		Msg("Re-dispatching failed results")

	summary, err := d.engine.RetryResults(ctx, run, failed)
	if err != nil {
		d.failRun(ctx, run, StageCollection, fmt.Sprintf("retry stage failed: %v", err), log)
		return nil
	}

	return d.finalizeRun(ctx, run, summary, log)
}

// finalizeRun moves the run to its terminal status from the stage summary.
// A zero-success finalize also records the failed stage so the run reports
// where and why it died, not just the counters.
func (d *Dispatcher) finalizeRun(ctx context.Context, run *models.JobRun, summary *interfaces.ExecutionSummary, log arbor.ILogger) error {
	if err := run.Finalize(summary.Total, summary.Succeeded, summary.Failed); err != nil {
		return fmt.Errorf("failed to finalize run %s: %w", run.ID, err)
	}
	if run.Status == models.RunStatusFailed && run.Error == "" {
		run.Stage = StageCollection
		run.Error = fmt.Sprintf("all %d collection attempts failed", summary.Total)
	}
	if err := d.storage.JobRunStorage().UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("failed to persist finalized run %s: %w", run.ID, err)
	}

	log.Info().
		Str("status", string(run.Status)).
		Int("total", run.TotalQueries).
		Int("succeeded", run.Succeeded).
		Int("failed", run.Failed).
		Msg("Job run finalized")

	d.publishFinished(ctx, run)
	return nil
}

// failRun records a stage-level failure on the run
func (d *Dispatcher) failRun(ctx context.Context, run *models.JobRun, stage, errorMsg string, log arbor.ILogger) {
	if err := run.MarkFailed(stage, errorMsg); err != nil {
		log.Error().Err(err).Msg("Could not mark run failed")
		return
	}
	if err := d.storage.JobRunStorage().UpdateRun(ctx, run); err != nil {
		log.Error().Err(err).Msg("Could not persist failed run")
	}

	log.Warn().
		Str("stage", stage).
		Str("error", errorMsg).
		Msg("Job run failed")

	d.publishFinished(ctx, run)
}

func (d *Dispatcher) publishFinished(ctx context.Context, run *models.JobRun) {
	if d.events == nil {
		return
	}
	if err := d.events.Publish(ctx, interfaces.Event{Type: interfaces.EventRunFinished, Payload: run}); err != nil {
		d.logger.Warn().Err(err).Str("run_id", run.ID).Msg("Failed to publish run finished event")
	}
}
