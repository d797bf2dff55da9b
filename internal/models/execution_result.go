// -----------------------------------------------------------------------
// Execution Result - The atomic unit of collection work (query x engine)
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"time"
)

// ResultStatus represents the lifecycle state of an execution result
type ResultStatus string

// ResultStatus constants
const (
	ResultStatusPending   ResultStatus = "pending"
	ResultStatusRunning   ResultStatus = "running"
	ResultStatusCompleted ResultStatus = "completed"
	ResultStatusFailed    ResultStatus = "failed"
)

// resultStatusRank orders statuses so transitions can only move forward
var resultStatusRank = map[ResultStatus]int{
	ResultStatusPending:   0,
	ResultStatusRunning:   1,
	ResultStatusCompleted: 2,
	ResultStatusFailed:    2,
}

// ProviderAttempt records one provider call made while servicing a result,
// including transient failures that caused fallback to the next provider.
type ProviderAttempt struct {
	Provider   string        `json:"provider"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
	Transient  bool          `json:"transient,omitempty"` // True when the failure allowed fallback
}

// ExecutionResult tracks one query executed against one answer engine within
// a run. Results are append-only: re-executing the same (query, engine) pair
// creates a new result rather than mutating an old one.
type ExecutionResult struct {
	ID         string            `json:"id"`       // Unique identifier (res_<uuid>)
	RunID      string            `json:"run_id"`
	JobID      string            `json:"job_id,omitempty"`
	QueryID    string            `json:"query_id"`
	BrandID    string            `json:"brand_id"`
	CustomerID string            `json:"customer_id"`
	Engine     string            `json:"engine"`   // Answer engine identifier (chatgpt, claude, ...)
	Status     ResultStatus      `json:"status"`
	Provider   string            `json:"provider,omitempty"`  // Provider that produced the terminal outcome
	RawAnswer  string            `json:"raw_answer,omitempty"` // Nullable until async providers complete
	Handle     string            `json:"handle,omitempty"`     // Async provider handle, resolved by the sweep
	Duration   time.Duration     `json:"duration"`
	Error      string            `json:"error,omitempty"`
	Attempts   []ProviderAttempt `json:"attempts,omitempty"`

	// Scoring sub-status, populated by the external scoring collaborator
	ScoringStatus string     `json:"scoring_status,omitempty"`
	ScoredAt      *time.Time `json:"scored_at,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewExecutionResult creates a pending result for a (query, engine) pair
func NewExecutionResult(id string, run *JobRun, query *Query, engine string) *ExecutionResult {
	return &ExecutionResult{
		ID:         id,
		RunID:      run.ID,
		JobID:      run.JobID,
		QueryID:    query.ID,
		BrandID:    query.BrandID,
		CustomerID: query.CustomerID,
		Engine:     engine,
		Status:     ResultStatusPending,
		CreatedAt:  time.Now(),
	}
}

// CanTransition reports whether moving to the target status is legal.
// Exactly one path exists: pending -> running -> {completed | failed}.
func (r *ExecutionResult) CanTransition(to ResultStatus) bool {
	fromRank, ok := resultStatusRank[r.Status]
	if !ok {
		return false
	}
	toRank, ok := resultStatusRank[to]
	if !ok {
		return false
	}
	if r.IsTerminal() {
		return false
	}
	return toRank > fromRank
}

// MarkRunning transitions the result to running. An async provider records
// its handle here so the background sweep can resolve the answer later.
func (r *ExecutionResult) MarkRunning(provider, handle string) error {
	if !r.CanTransition(ResultStatusRunning) {
		return fmt.Errorf("illegal result transition %s -> %s for result %s", r.Status, ResultStatusRunning, r.ID)
	}
	r.Status = ResultStatusRunning
	r.Provider = provider
	r.Handle = handle
	now := time.Now()
	r.StartedAt = &now
	return nil
}

// MarkCompleted records the raw answer and transitions to completed
func (r *ExecutionResult) MarkCompleted(provider, rawAnswer string, duration time.Duration) error {
	if !r.CanTransition(ResultStatusCompleted) {
		return fmt.Errorf("illegal result transition %s -> %s for result %s", r.Status, ResultStatusCompleted, r.ID)
	}
	r.Status = ResultStatusCompleted
	r.Provider = provider
	r.RawAnswer = rawAnswer
	r.Duration = duration
	now := time.Now()
	r.CompletedAt = &now
	return nil
}

// MarkFailed transitions to failed with an error detail
func (r *ExecutionResult) MarkFailed(errorMsg string) error {
	if !r.CanTransition(ResultStatusFailed) {
		return fmt.Errorf("illegal result transition %s -> %s for result %s", r.Status, ResultStatusFailed, r.ID)
	}
	r.Status = ResultStatusFailed
	r.Error = errorMsg
	now := time.Now()
	r.CompletedAt = &now
	return nil
}

// RecordAttempt appends a provider attempt to the result's audit trail
func (r *ExecutionResult) RecordAttempt(attempt ProviderAttempt) {
	r.Attempts = append(r.Attempts, attempt)
}

// IsTerminal returns true if the result reached a terminal state
func (r *ExecutionResult) IsTerminal() bool {
	return r.Status == ResultStatusCompleted || r.Status == ResultStatusFailed
}
