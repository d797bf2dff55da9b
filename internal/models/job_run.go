// -----------------------------------------------------------------------
// Job Run - One concrete execution instance of a scheduled job
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"time"

	"github.com/ternarybob/sonar/internal/common"
)

// RunStatus represents the lifecycle state of a job run
type RunStatus string

// RunStatus constants
const (
	RunStatusQueued              RunStatus = "queued"
	RunStatusRunning             RunStatus = "running"
	RunStatusCompleted           RunStatus = "completed"
	RunStatusCompletedWithErrors RunStatus = "completed_with_errors"
	RunStatusFailed              RunStatus = "failed"
)

// runStatusRank orders statuses so transitions can only move forward.
// Terminal statuses share a rank; a run never reverts to an earlier status.
var runStatusRank = map[RunStatus]int{
	RunStatusQueued:              0,
	RunStatusRunning:             1,
	RunStatusCompleted:           2,
	RunStatusCompletedWithErrors: 2,
	RunStatusFailed:              2,
}

// TriggerKind records how a run came to exist
type TriggerKind string

// TriggerKind constants
const (
	TriggerCron   TriggerKind = "cron"
	TriggerManual TriggerKind = "manual"
	TriggerRetry  TriggerKind = "retry"
)

// JobRun represents one concrete execution instance of a ScheduledJob
// (or an ad-hoc trigger with no parent job).
type JobRun struct {
	ID           string      `json:"id"`                     // Unique identifier (run_<uuid>)
	JobID        string      `json:"job_id"`                 // Parent scheduled job, empty for pure ad-hoc runs
	BrandID      string      `json:"brand_id"`
	CustomerID   string      `json:"customer_id"`
	Type         JobType     `json:"type"`                   // Snapshot of the job type at trigger time
	Status       RunStatus   `json:"status"`
	Trigger      TriggerKind `json:"trigger"`
	ScheduledFor time.Time   `json:"scheduled_for"`          // The slot this run services
	SlotKey      string      `json:"slot_key"`               // Dedup key: job ID + slot truncated to the minute
	StartedAt    *time.Time  `json:"started_at,omitempty"`
	FinishedAt   *time.Time  `json:"finished_at,omitempty"`
	Error        string      `json:"error,omitempty"`        // Stage-level failure reason
	Stage        string      `json:"stage,omitempty"`        // Stage the error occurred in (collection, scoring)
	TotalQueries int         `json:"total_queries"`          // Summary counters over execution results
	Succeeded    int         `json:"succeeded"`
	Failed       int         `json:"failed"`
	CreatedAt    time.Time   `json:"created_at"`
}

// RunSlotKey builds the claim key that makes a (job, cron slot) pair execute
// at most once. The slot is truncated to the minute, cron's base resolution.
func RunSlotKey(jobID string, scheduledFor time.Time) string {
	return jobID + "@" + common.SlotFor(scheduledFor).Format(time.RFC3339)
}

// NewJobRun creates a queued run for a scheduled job
func NewJobRun(id string, job *ScheduledJob, trigger TriggerKind, scheduledFor time.Time) *JobRun {
	return &JobRun{
		ID:           id,
		JobID:        job.ID,
		BrandID:      job.BrandID,
		CustomerID:   job.CustomerID,
		Type:         job.Type,
		Status:       RunStatusQueued,
		Trigger:      trigger,
		ScheduledFor: scheduledFor,
		SlotKey:      RunSlotKey(job.ID, scheduledFor),
		CreatedAt:    time.Now(),
	}
}

// CanTransition reports whether moving to the target status is legal.
// Transitions are monotonic: queued -> running -> terminal, never backward,
// and a terminal run never changes again.
func (r *JobRun) CanTransition(to RunStatus) bool {
	fromRank, ok := runStatusRank[r.Status]
	if !ok {
		return false
	}
	toRank, ok := runStatusRank[to]
	if !ok {
		return false
	}
	if r.IsTerminal() {
		return false
	}
	return toRank > fromRank
}

// MarkRunning transitions the run to running
func (r *JobRun) MarkRunning() error {
	if !r.CanTransition(RunStatusRunning) {
		return fmt.Errorf("illegal run transition %s -> %s for run %s", r.Status, RunStatusRunning, r.ID)
	}
	r.Status = RunStatusRunning
	now := time.Now()
	r.StartedAt = &now
	return nil
}

// Finalize moves the run to its terminal status from the summary counters:
// completed when nothing failed, failed when nothing succeeded, and
// completed_with_errors for the partial-failure case in between.
func (r *JobRun) Finalize(total, succeeded, failed int) error {
	status := RunStatusCompleted
	if total > 0 && succeeded == 0 {
		status = RunStatusFailed
	} else if failed > 0 {
		status = RunStatusCompletedWithErrors
	}

	if !r.CanTransition(status) {
		return fmt.Errorf("illegal run transition %s -> %s for run %s", r.Status, status, r.ID)
	}
	r.Status = status
	r.TotalQueries = total
	r.Succeeded = succeeded
	r.Failed = failed
	now := time.Now()
	r.FinishedAt = &now
	return nil
}

// MarkFailed records a stage-level failure. Used when a run errors before any
// execution result starts, or when a pipeline stage throws.
func (r *JobRun) MarkFailed(stage, errorMsg string) error {
	if !r.CanTransition(RunStatusFailed) {
		return fmt.Errorf("illegal run transition %s -> %s for run %s", r.Status, RunStatusFailed, r.ID)
	}
	r.Status = RunStatusFailed
	r.Stage = stage
	r.Error = errorMsg
	now := time.Now()
	r.FinishedAt = &now
	return nil
}

// IsTerminal returns true if the run reached a terminal state
func (r *JobRun) IsTerminal() bool {
	return r.Status == RunStatusCompleted ||
		r.Status == RunStatusCompletedWithErrors ||
		r.Status == RunStatusFailed
}
