// -----------------------------------------------------------------------
// Execution Engine - Fans (query x engine) pairs across provider chains
// -----------------------------------------------------------------------

package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/sonar/internal/collectors"
	"github.com/ternarybob/sonar/internal/common"
	"github.com/ternarybob/sonar/internal/interfaces"
	"github.com/ternarybob/sonar/internal/models"
)

// ChainBuilder assembles provider chains and resolves async pollers.
// Satisfied by collectors.Registry.
type ChainBuilder interface {
	BuildChain(ctx context.Context, config *models.CollectorConfig, defaultTimeout time.Duration) (*collectors.Chain, error)
	AsyncPoller(ctx context.Context, name string) (collectors.AsyncPoller, error)
}

// Executor implements interfaces.ExecutionEngine over the provider registry
type Executor struct {
	storage  interfaces.StorageManager
	registry ChainBuilder
	events   interfaces.EventService
	logger   arbor.ILogger

	defaultConcurrency int
	defaultTimeout     time.Duration
}

// NewExecutor creates the execution engine
func NewExecutor(storage interfaces.StorageManager, registry ChainBuilder, events interfaces.EventService, config *common.Config, logger arbor.ILogger) *Executor {
	concurrency := config.Engines.DefaultConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	return &Executor{
		storage:            storage,
		registry:           registry,
		events:             events,
		logger:             logger,
		defaultConcurrency: concurrency,
		defaultTimeout:     common.ParseDuration(config.Engines.DefaultTimeout, 60*time.Second),
	}
}

// enginePlan is the per-engine execution context built once per dispatch.
// A nil chain means the engine could not be serviced and every pair fails.
type enginePlan struct {
	chain       *collectors.Chain
	concurrency chan struct{}
	unavailable string // failure reason when chain is nil
}

// ExecuteQueries executes every (query x engine) pair in the batch. Collector
// configs are read once at dispatch time; mutations made while the batch is
// in flight apply to the next dispatch.
func (e *Executor) ExecuteQueries(ctx context.Context, run *models.JobRun, batch []interfaces.WorkItem) (*interfaces.ExecutionSummary, error) {
	plans := e.buildPlans(ctx, batch)

	summary := &interfaces.ExecutionSummary{}
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, item := range batch {
		for _, engineName := range item.Engines {
			plan, ok := plans[engineName]
			if !ok {
				continue
			}

			wg.Add(1)
			query := item.Query
			name := engineName
			common.SafeGo(e.logger, "executePair", func() {
				defer wg.Done()

				if plan.concurrency != nil {
					select {
					case plan.concurrency <- struct{}{}:
						defer func() { <-plan.concurrency }()
					case <-ctx.Done():
						e.abortPair(run, query, name)
						mu.Lock()
						summary.Total++
						summary.Failed++
						mu.Unlock()
						return
					}
				}

				outcome := e.executePair(ctx, run, query, name, plan)

				mu.Lock()
				summary.Total++
				switch outcome {
				case models.ResultStatusCompleted:
					summary.Succeeded++
				case models.ResultStatusRunning:
					summary.Running++
					summary.Succeeded++
				default:
					summary.Failed++
				}
				mu.Unlock()
			})
		}
	}

	wg.Wait()

	e.logger.Info().
		Str("run_id", run.ID).
		Int("total", summary.Total).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("running", summary.Running).
		Msg("Batch execution finished")

	return summary, nil
}

// RetryResults re-dispatches previously failed results as fresh rows. The
// failed originals are left untouched as the audit trail.
func (e *Executor) RetryResults(ctx context.Context, run *models.JobRun, failed []*models.ExecutionResult) (*interfaces.ExecutionSummary, error) {
	batch := make([]interfaces.WorkItem, 0, len(failed))
	for _, result := range failed {
		query, err := e.storage.QueryStorage().GetQuery(ctx, result.QueryID)
		if err != nil {
			e.logger.Warn().
				Err(err).
				Str("result_id", result.ID).
				Str("query_id", result.QueryID).
				Msg("Query behind failed result no longer exists, skipping retry")
			continue
		}
		batch = append(batch, interfaces.WorkItem{Query: query, Engines: []string{result.Engine}})
	}

	return e.ExecuteQueries(ctx, run, batch)
}

// buildPlans reads each distinct engine's collector config once and builds
// its chain and concurrency gate.
func (e *Executor) buildPlans(ctx context.Context, batch []interfaces.WorkItem) map[string]*enginePlan {
	plans := make(map[string]*enginePlan)

	for _, item := range batch {
		for _, engineName := range item.Engines {
			if _, ok := plans[engineName]; ok {
				continue
			}
			plans[engineName] = e.buildPlan(ctx, engineName)
		}
	}

	return plans
}

func (e *Executor) buildPlan(ctx context.Context, engineName string) *enginePlan {
	config, err := e.storage.CollectorStorage().GetConfig(ctx, engineName)
	if err != nil {
		e.logger.Warn().Err(err).Str("engine", engineName).Msg("No collector config for engine")
		return &enginePlan{unavailable: fmt.Sprintf("no collector config for engine %s", engineName)}
	}

	chain, err := e.registry.BuildChain(ctx, config, e.defaultTimeout)
	if err != nil {
		e.logger.Warn().Err(err).Str("engine", engineName).Msg("Could not build provider chain for engine")
		return &enginePlan{unavailable: err.Error()}
	}

	concurrency := config.Concurrency
	if concurrency <= 0 {
		concurrency = e.defaultConcurrency
	}

	return &enginePlan{
		chain:       chain,
		concurrency: make(chan struct{}, concurrency),
	}
}

// executePair runs one (query, engine) pair through its chain and persists
// the result lifecycle. Returns the terminal (or parked) status.
func (e *Executor) executePair(ctx context.Context, run *models.JobRun, query *models.Query, engineName string, plan *enginePlan) models.ResultStatus {
	result := models.NewExecutionResult(common.NewResultID(), run, query, engineName)

	if err := e.storage.ResultStorage().SaveResult(ctx, result); err != nil {
		e.logger.Error().Err(err).Str("run_id", run.ID).Str("query_id", query.ID).Msg("Failed to create execution result")
		return models.ResultStatusFailed
	}

	if plan.unavailable != "" {
		e.failResult(ctx, result, plan.unavailable)
		return models.ResultStatusFailed
	}

	if err := result.MarkRunning("", ""); err != nil {
		e.logger.Error().Err(err).Str("result_id", result.ID).Msg("Failed to mark result running")
		return models.ResultStatusFailed
	}
	if err := e.storage.ResultStorage().UpdateResult(ctx, result); err != nil {
		e.logger.Error().Err(err).Str("result_id", result.ID).Msg("Failed to persist running result")
	}

	req := &collectors.Request{
		QueryText: query.Text,
		Topic:     query.Topic,
		Country:   query.Country,
		Engine:    engineName,
	}

	start := time.Now()
	resp, providerName, attempts, err := plan.chain.Execute(ctx, req)
	for _, attempt := range attempts {
		result.RecordAttempt(attempt)
	}

	if err != nil {
		e.failResult(ctx, result, err.Error())
		return models.ResultStatusFailed
	}

	if resp.IsAsync() {
		// Result stays running, parked on the handle for the sweep
		result.Provider = providerName
		result.Handle = resp.Handle
		if err := e.storage.ResultStorage().UpdateResult(ctx, result); err != nil {
			e.logger.Error().Err(err).Str("result_id", result.ID).Msg("Failed to persist async handle")
		}
		e.publishResult(ctx, result)
		return models.ResultStatusRunning
	}

	if err := result.MarkCompleted(providerName, resp.RawAnswer, time.Since(start)); err != nil {
		e.logger.Error().Err(err).Str("result_id", result.ID).Msg("Failed to mark result completed")
		return models.ResultStatusFailed
	}
	if err := e.storage.ResultStorage().UpdateResult(ctx, result); err != nil {
		e.logger.Error().Err(err).Str("result_id", result.ID).Msg("Failed to persist completed result")
	}
	e.publishResult(ctx, result)

	return models.ResultStatusCompleted
}

// abortPair records a failed result for a pair cancelled before it ran, so
// the run counters and the result history stay in step. Uses a fresh context
// because the run's context is already cancelled.
func (e *Executor) abortPair(run *models.JobRun, query *models.Query, engineName string) {
	result := models.NewExecutionResult(common.NewResultID(), run, query, engineName)
	if err := result.MarkFailed("run cancelled before execution"); err != nil {
		e.logger.Error().Err(err).Str("run_id", run.ID).Str("query_id", query.ID).Msg("Failed to mark aborted result")
		return
	}
	if err := e.storage.ResultStorage().SaveResult(context.Background(), result); err != nil {
		e.logger.Error().Err(err).Str("run_id", run.ID).Str("query_id", query.ID).Msg("Failed to persist aborted result")
		return
	}
	e.publishResult(context.Background(), result)
}

func (e *Executor) failResult(ctx context.Context, result *models.ExecutionResult, errorMsg string) {
	if err := result.MarkFailed(errorMsg); err != nil {
		e.logger.Error().Err(err).Str("result_id", result.ID).Msg("Failed to mark result failed")
		return
	}
	if err := e.storage.ResultStorage().UpdateResult(ctx, result); err != nil {
		e.logger.Error().Err(err).Str("result_id", result.ID).Msg("Failed to persist failed result")
	}
	e.publishResult(ctx, result)
}

func (e *Executor) publishResult(ctx context.Context, result *models.ExecutionResult) {
	if e.events == nil {
		return
	}
	if err := e.events.Publish(ctx, interfaces.Event{Type: interfaces.EventResultUpdated, Payload: result}); err != nil {
		e.logger.Warn().Err(err).Str("result_id", result.ID).Msg("Failed to publish result event")
	}
}
