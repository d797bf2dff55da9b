package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/sonar/internal/models"
)

// ScheduledJobStorage - interface for scheduled job persistence
type ScheduledJobStorage interface {
	SaveJob(ctx context.Context, job *models.ScheduledJob) error
	GetJob(ctx context.Context, id string) (*models.ScheduledJob, error)
	ListJobs(ctx context.Context) ([]*models.ScheduledJob, error)
	ListEnabledJobs(ctx context.Context) ([]*models.ScheduledJob, error)
	ListJobsByBrand(ctx context.Context, brandID string) ([]*models.ScheduledJob, error)
	// DeleteJob hard-deletes a job definition. Callers must verify no run
	// history references the job first; soft-disable is preferred otherwise.
	DeleteJob(ctx context.Context, id string) error
	CountJobs(ctx context.Context) (int, error)
	CountJobsByType(ctx context.Context) (map[models.JobType]int, error)
}

// JobRunStorage - interface for job run persistence.
// Runs are the audit trail: they are created, claimed, and finalized but
// never deleted.
type JobRunStorage interface {
	SaveRun(ctx context.Context, run *models.JobRun) error
	GetRun(ctx context.Context, id string) (*models.JobRun, error)
	ListRuns(ctx context.Context, limit int) ([]*models.JobRun, error)
	ListRunsForJob(ctx context.Context, jobID string, limit int) ([]*models.JobRun, error)
	ListRunsByStatus(ctx context.Context, status models.RunStatus) ([]*models.JobRun, error)

	// ClaimRun performs the optimistic queued -> running transition.
	// Returns false without error when another claimant already won.
	ClaimRun(ctx context.Context, runID string) (bool, error)

	// HasActiveRunForSlot reports whether a queued or running run already
	// exists for the slot key, making due-job evaluation idempotent.
	HasActiveRunForSlot(ctx context.Context, slotKey string) (bool, error)

	UpdateRun(ctx context.Context, run *models.JobRun) error
	CountRunsForJob(ctx context.Context, jobID string) (int, error)
	CountRunsByStatus(ctx context.Context) (map[models.RunStatus]int, error)
}

// QueryStorage - interface for brand query persistence
type QueryStorage interface {
	SaveQuery(ctx context.Context, query *models.Query) error
	GetQuery(ctx context.Context, id string) (*models.Query, error)
	// ListActiveQueries returns the queries eligible for a collection run
	ListActiveQueries(ctx context.Context, brandID, customerID string) ([]*models.Query, error)
	ListQueriesByBrand(ctx context.Context, brandID string) ([]*models.Query, error)
	DeleteQuery(ctx context.Context, id string) error
	CountQueries(ctx context.Context) (int, error)
}

// ResultStorage - interface for execution result persistence.
// Results are append-only; retries create new rows rather than mutating old
// ones. Status changes go through the state-guarded update methods so illegal
// transitions are rejected at the storage layer too.
type ResultStorage interface {
	SaveResult(ctx context.Context, result *models.ExecutionResult) error
	GetResult(ctx context.Context, id string) (*models.ExecutionResult, error)
	UpdateResult(ctx context.Context, result *models.ExecutionResult) error
	ListResultsForRun(ctx context.Context, runID string) ([]*models.ExecutionResult, error)

	// ListFailedResults selects the retry slice: failed results for a brand
	// created at or after the lookback cutoff. Never returns successes.
	ListFailedResults(ctx context.Context, brandID string, since time.Time) ([]*models.ExecutionResult, error)

	// ListRunningWithHandle returns running results carrying an async
	// provider handle, for the background sweep to resolve.
	ListRunningWithHandle(ctx context.Context) ([]*models.ExecutionResult, error)

	// CompleteRunning and FailRunning are the only transitions the sweep may
	// perform: running -> completed / running -> failed. Rows in any other
	// status are left untouched and an error is returned.
	CompleteRunning(ctx context.Context, id, rawAnswer string) error
	FailRunning(ctx context.Context, id, errorMsg string) error

	CountResultsByStatus(ctx context.Context) (map[models.ResultStatus]int, error)
}

// CollectorStorage - interface for per-engine collector configuration
type CollectorStorage interface {
	SaveConfig(ctx context.Context, config *models.CollectorConfig) error
	// GetConfig returns a fresh copy; callers keep the snapshot they fetched
	GetConfig(ctx context.Context, engine string) (*models.CollectorConfig, error)
	ListConfigs(ctx context.Context) ([]*models.CollectorConfig, error)
	DeleteConfig(ctx context.Context, engine string) error
}

// StorageManager - composite interface for all storage operations
type StorageManager interface {
	ScheduledJobStorage() ScheduledJobStorage
	JobRunStorage() JobRunStorage
	QueryStorage() QueryStorage
	ResultStorage() ResultStorage
	CollectorStorage() CollectorStorage
	DB() interface{}
	Close() error
}
