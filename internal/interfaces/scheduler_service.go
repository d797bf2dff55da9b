package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/sonar/internal/models"
)

// SchedulerService evaluates cron schedules, materializes job runs, and hands
// claimed runs to the dispatcher.
type SchedulerService interface {
	// Start begins the tick loop
	Start() error

	// Stop halts the tick loop and waits for in-flight dispatches
	Stop() error

	// IsRunning returns true if the tick loop is active
	IsRunning() bool

	// ListDueJobs returns enabled jobs whose schedule matches the tick
	// window ending at now, excluding jobs with a queued or running run
	// already claimed for the same slot.
	ListDueJobs(ctx context.Context, now time.Time) ([]*models.ScheduledJob, error)

	// EnqueueJobRun creates a queued run for a job. Used by the tick loop
	// and by manual/API triggers; returns immediately with the run, which
	// callers poll rather than blocking on completion.
	EnqueueJobRun(ctx context.Context, jobID string, trigger models.TriggerKind, scheduledFor time.Time) (*models.JobRun, error)

	// TriggerJob enqueues and dispatches a run for a job right now
	TriggerJob(ctx context.Context, jobID string) (*models.JobRun, error)

	// CleanupOrphanedRuns fails runs left queued or running by a previous
	// process. Called once at startup. Returns the number of runs failed.
	CleanupOrphanedRuns(ctx context.Context) (int, error)
}
