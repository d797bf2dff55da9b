package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/sonar/internal/common"
	"github.com/ternarybob/sonar/internal/interfaces"
	"github.com/ternarybob/sonar/internal/models"
)

// Service implements interfaces.SchedulerService. It ticks on a fixed
// interval, materializes a queued run for each (job, slot) pair that came due
// since the last tick, claims it, and hands it to the dispatcher.
type Service struct {
	storage    interfaces.StorageManager
	dispatcher interfaces.JobDispatcher
	events     interfaces.EventService
	logger     arbor.ILogger

	tickInterval time.Duration
	staleRunAge  time.Duration

	mu       sync.Mutex
	running  bool
	stop     chan struct{}
	loopDone chan struct{}
	inflight sync.WaitGroup // In-flight dispatches, waited on during Stop
}

// NewService creates the scheduler service
func NewService(storage interfaces.StorageManager, dispatcher interfaces.JobDispatcher, events interfaces.EventService, config *common.Config, logger arbor.ILogger) *Service {
	return &Service{
		storage:      storage,
		dispatcher:   dispatcher,
		events:       events,
		logger:       logger,
		tickInterval: common.ParseDuration(config.Scheduler.TickInterval, 30*time.Second),
		staleRunAge:  common.ParseDuration(config.Scheduler.StaleRunAge, 2*time.Hour),
	}
}

// Start begins the tick loop
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.stop = make(chan struct{})
	s.loopDone = make(chan struct{})

	common.SafeGo(s.logger, "schedulerTick", s.loop)

	s.logger.Info().
		Str("tick_interval", s.tickInterval.String()).
		Str("stale_run_age", s.staleRunAge.String()).
		Msg("Scheduler started")

	return nil
}

// Stop halts the tick loop and waits for in-flight dispatches to finish
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stop)
	loopDone := s.loopDone
	s.mu.Unlock()

	<-loopDone
	s.inflight.Wait()

	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

// IsRunning returns true if the tick loop is active
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Service) loop() {
	defer close(s.loopDone)

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.Tick(context.Background(), now)
		}
	}
}

// dueJob is a job that came due within the tick window, paired with the fire
// time it owes a run for so the schedule is only evaluated once per tick.
type dueJob struct {
	job    *models.ScheduledJob
	fireAt time.Time
}

// Tick evaluates one scheduler tick at the given instant. Exported so tests
// and operator tooling can drive the loop deterministically.
func (s *Service) Tick(ctx context.Context, now time.Time) {
	due, err := s.dueJobs(ctx, now)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Due job evaluation failed")
		return
	}

	for _, d := range due {
		run, err := s.EnqueueJobRun(ctx, d.job.ID, models.TriggerCron, d.fireAt)
		if err != nil {
			s.logger.Warn().Err(err).Str("job_id", d.job.ID).Msg("Failed to enqueue due job run")
			continue
		}

		s.dispatchRun(ctx, run.ID)
	}

	if failed := s.failStaleRuns(ctx); failed > 0 {
		s.logger.Warn().Int("count", failed).Msg("Failed stale runs")
	}
}

// ListDueJobs returns enabled jobs whose schedule fired within the tick
// window ending at now, excluding jobs whose slot already has a queued or
// running run.
func (s *Service) ListDueJobs(ctx context.Context, now time.Time) ([]*models.ScheduledJob, error) {
	due, err := s.dueJobs(ctx, now)
	if err != nil {
		return nil, err
	}

	jobs := make([]*models.ScheduledJob, 0, len(due))
	for _, d := range due {
		jobs = append(jobs, d.job)
	}
	return jobs, nil
}

// dueJobs evaluates every enabled job's schedule once against the tick window
// ending at now, skipping slots that already have an active run.
func (s *Service) dueJobs(ctx context.Context, now time.Time) ([]dueJob, error) {
	jobs, err := s.storage.ScheduledJobStorage().ListEnabledJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled jobs: %w", err)
	}

	due := make([]dueJob, 0)
	for _, job := range jobs {
		fireAt, ok := s.dueAt(job, now)
		if !ok {
			continue
		}

		slotKey := models.RunSlotKey(job.ID, fireAt)
		active, err := s.storage.JobRunStorage().HasActiveRunForSlot(ctx, slotKey)
		if err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Slot lookup failed")
			continue
		}
		if active {
			continue
		}

		due = append(due, dueJob{job: job, fireAt: fireAt})
	}

	return due, nil
}

// dueAt returns the fire time a job came due at within the tick window ending
// at now. One-off jobs never come due on their own.
func (s *Service) dueAt(job *models.ScheduledJob, now time.Time) (time.Time, bool) {
	if job.IsOneOff() {
		return time.Time{}, false
	}

	next, err := job.NextFireAfter(now.Add(-s.tickInterval))
	if err != nil {
		s.logger.Warn().Err(err).Str("job_id", job.ID).Str("schedule", job.Schedule).Msg("Unparseable schedule on stored job")
		return time.Time{}, false
	}
	if next.IsZero() || next.After(now) {
		return time.Time{}, false
	}

	return next, true
}

// EnqueueJobRun creates a queued run for a job. Disabled jobs can still be
// enqueued by manual triggers; the tick loop only sees enabled jobs.
func (s *Service) EnqueueJobRun(ctx context.Context, jobID string, trigger models.TriggerKind, scheduledFor time.Time) (*models.JobRun, error) {
	job, err := s.storage.ScheduledJobStorage().GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("job %s not found: %w", jobID, err)
	}

	run := models.NewJobRun(common.NewRunID(), job, trigger, scheduledFor)
	if err := s.storage.JobRunStorage().SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to save job run: %w", err)
	}

	s.logger.Info().
		Str("run_id", run.ID).
		Str("job_id", job.ID).
		Str("trigger", string(trigger)).
		Str("slot_key", run.SlotKey).
		Msg("Job run queued")
	s.publish(ctx, interfaces.EventRunQueued, run)

	return run, nil
}

// TriggerJob enqueues and dispatches a run for a job right now
func (s *Service) TriggerJob(ctx context.Context, jobID string) (*models.JobRun, error) {
	run, err := s.EnqueueJobRun(ctx, jobID, models.TriggerManual, time.Now())
	if err != nil {
		return nil, err
	}

	s.dispatchRun(ctx, run.ID)

	// Re-read so the caller sees the claimed status
	return s.storage.JobRunStorage().GetRun(ctx, run.ID)
}

// dispatchRun claims the run and hands it to the dispatcher in the
// background. Losing the claim race is not an error; the winner dispatches.
func (s *Service) dispatchRun(ctx context.Context, runID string) {
	claimed, err := s.storage.JobRunStorage().ClaimRun(ctx, runID)
	if err != nil {
		s.logger.Warn().Err(err).Str("run_id", runID).Msg("Run claim failed")
		return
	}
	if !claimed {
		s.logger.Debug().Str("run_id", runID).Msg("Run already claimed elsewhere")
		return
	}

	run, err := s.storage.JobRunStorage().GetRun(ctx, runID)
	if err != nil {
		s.logger.Warn().Err(err).Str("run_id", runID).Msg("Claimed run vanished")
		return
	}

	s.publish(ctx, interfaces.EventRunStarted, run)

	s.inflight.Add(1)
	common.SafeGo(s.logger, "dispatchRun", func() {
		defer s.inflight.Done()
		if err := s.dispatcher.Dispatch(context.Background(), run); err != nil {
			s.logger.Error().Err(err).Str("run_id", run.ID).Msg("Run dispatch failed")
		}
	})
}

// CleanupOrphanedRuns fails runs a previous process left queued or running.
// Called once at startup, before the tick loop starts.
func (s *Service) CleanupOrphanedRuns(ctx context.Context) (int, error) {
	count := 0
	for _, status := range []models.RunStatus{models.RunStatusQueued, models.RunStatusRunning} {
		runs, err := s.storage.JobRunStorage().ListRunsByStatus(ctx, status)
		if err != nil {
			return count, fmt.Errorf("failed to list %s runs: %w", status, err)
		}

		for _, run := range runs {
			if err := run.MarkFailed("startup", "orphaned by previous process"); err != nil {
				s.logger.Warn().Err(err).Str("run_id", run.ID).Msg("Could not fail orphaned run")
				continue
			}
			if err := s.storage.JobRunStorage().UpdateRun(ctx, run); err != nil {
				s.logger.Warn().Err(err).Str("run_id", run.ID).Msg("Could not persist orphaned run")
				continue
			}
			count++
		}
	}

	if count > 0 {
		s.logger.Warn().Int("count", count).Msg("Cleaned up orphaned runs from previous process")
	}

	return count, nil
}

// failStaleRuns fails running runs with no progress past the stale age
func (s *Service) failStaleRuns(ctx context.Context) int {
	runs, err := s.storage.JobRunStorage().ListRunsByStatus(ctx, models.RunStatusRunning)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Stale run lookup failed")
		return 0
	}

	count := 0
	cutoff := time.Now().Add(-s.staleRunAge)
	for _, run := range runs {
		startedAt := run.CreatedAt
		if run.StartedAt != nil {
			startedAt = *run.StartedAt
		}
		if startedAt.After(cutoff) {
			continue
		}

		msg := fmt.Sprintf("no progress for %s, marking stale", time.Since(startedAt).Round(time.Second))
		if err := run.MarkFailed("stale", msg); err != nil {
			continue
		}
		if err := s.storage.JobRunStorage().UpdateRun(ctx, run); err != nil {
			s.logger.Warn().Err(err).Str("run_id", run.ID).Msg("Could not persist stale run")
			continue
		}

		s.logger.Warn().Str("run_id", run.ID).Str("job_id", run.JobID).Msg("Run marked stale")
		s.publish(ctx, interfaces.EventRunFinished, run)
		count++
	}

	return count
}

func (s *Service) publish(ctx context.Context, eventType interfaces.EventType, run *models.JobRun) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, interfaces.Event{Type: eventType, Payload: run}); err != nil {
		s.logger.Warn().Err(err).Str("run_id", run.ID).Msg("Failed to publish run event")
	}
}
