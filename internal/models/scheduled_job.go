package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/sonar/internal/common"
)

// JobType represents the pipeline a triggered run executes
type JobType string

// JobType constants
const (
	JobTypeCollection           JobType = "collection"
	JobTypeScoring              JobType = "scoring"
	JobTypeCollectionAndScoring JobType = "collection_and_scoring"
	JobTypeCollectionRetry      JobType = "collection_retry"
)

// IsValidJobType checks if a given JobType is one of the valid constants
func IsValidJobType(jobType JobType) bool {
	switch jobType {
	case JobTypeCollection, JobTypeScoring, JobTypeCollectionAndScoring, JobTypeCollectionRetry:
		return true
	default:
		return false
	}
}

// ScheduleNever is the sentinel schedule for one-off jobs. It validates as a
// legal schedule but the tick loop never fires it; such jobs run only when
// triggered manually.
const ScheduleNever = common.ScheduleNever

// DefaultRetryLookback bounds which failed results a collection_retry run
// re-dispatches when the job metadata does not set a lookback window.
const DefaultRetryLookback = 72 * time.Hour

// ScheduledJob represents a recurring or one-off unit of collection work for a brand
type ScheduledJob struct {
	ID         string                 `json:"id"`          // Unique identifier (job_<uuid>)
	BrandID    string                 `json:"brand_id"`    // Brand this job collects for
	CustomerID string                 `json:"customer_id"` // Owning customer
	Name       string                 `json:"name"`        // Human-readable job name
	Type       JobType                `json:"type"`        // Pipeline variant (collection, scoring, ...)
	Schedule   string                 `json:"schedule"`    // Cron expression or @never for one-off jobs
	Timezone   string                 `json:"timezone"`    // IANA timezone the schedule is evaluated in
	Engines    []string               `json:"engines"`     // Answer engines this job collects from
	Enabled    bool                   `json:"enabled"`     // Disabled jobs never auto-fire but remain manually triggerable
	Metadata   map[string]interface{} `json:"metadata"`    // Free-form (lookback_window, one_off marker, ...)
	CreatedBy  string                 `json:"created_by"`  // Operator or onboarding flow that created the job
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// Validate validates the scheduled job definition.
// Schedule syntax is checked here so bad expressions are rejected at creation
// time and never reach the tick loop.
func (j *ScheduledJob) Validate() error {
	if j.ID == "" {
		return errors.New("scheduled job ID is required")
	}
	if j.BrandID == "" {
		return errors.New("scheduled job brand ID is required")
	}
	if j.CustomerID == "" {
		return errors.New("scheduled job customer ID is required")
	}
	if j.Name == "" {
		return errors.New("scheduled job name is required")
	}
	if !IsValidJobType(j.Type) {
		return fmt.Errorf("invalid job type: %s (must be one of: collection, scoring, collection_and_scoring, collection_retry)", j.Type)
	}
	if err := common.ValidateJobSchedule(j.Schedule); err != nil {
		return fmt.Errorf("invalid schedule '%s': %w", j.Schedule, err)
	}
	if j.Type != JobTypeScoring && len(j.Engines) == 0 {
		return errors.New("scheduled job must target at least one engine")
	}
	if j.Timezone != "" {
		if _, err := time.LoadLocation(j.Timezone); err != nil {
			return fmt.Errorf("invalid timezone '%s': %w", j.Timezone, err)
		}
	}
	return nil
}

// IsOneOff returns true for jobs that never auto-fire
func (j *ScheduledJob) IsOneOff() bool {
	return j.Schedule == ScheduleNever
}

// Location returns the timezone the schedule is evaluated in, defaulting to UTC
func (j *ScheduledJob) Location() *time.Location {
	if j.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(j.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// NextFireAfter returns the next instant the schedule fires strictly after t,
// evaluated in the job's timezone. Returns a zero time for one-off jobs.
func (j *ScheduledJob) NextFireAfter(t time.Time) (time.Time, error) {
	return common.NextFireTime(j.Schedule, t, j.Location())
}

// LookbackWindow returns the retry lookback window carried in job metadata,
// falling back to DefaultRetryLookback when absent or malformed.
func (j *ScheduledJob) LookbackWindow() time.Duration {
	if j.Metadata == nil {
		return DefaultRetryLookback
	}
	val, ok := j.Metadata["lookback_window"]
	if !ok {
		return DefaultRetryLookback
	}
	str, ok := val.(string)
	if !ok {
		return DefaultRetryLookback
	}
	d, err := time.ParseDuration(str)
	if err != nil || d <= 0 {
		return DefaultRetryLookback
	}
	return d
}

// SetLookbackWindow records the retry lookback window in job metadata
func (j *ScheduledJob) SetLookbackWindow(d time.Duration) {
	if j.Metadata == nil {
		j.Metadata = make(map[string]interface{})
	}
	j.Metadata["lookback_window"] = d.String()
}
