package interfaces

import (
	"context"

	"github.com/ternarybob/sonar/internal/models"
)

// WorkItem is one query to execute against a set of answer engines
type WorkItem struct {
	Query   *models.Query
	Engines []string
}

// ExecutionSummary aggregates the terminal outcomes of a batch.
// Running counts results parked on an async provider handle; they count
// toward Succeeded for run finalization and are reconciled by the sweep.
type ExecutionSummary struct {
	Total     int
	Succeeded int
	Failed    int
	Running   int
}

// ExecutionEngine fans (query x engine) pairs out across provider chains and
// records a normalized ExecutionResult per pair.
type ExecutionEngine interface {
	// ExecuteQueries executes every item x engine pair in the batch,
	// reading each engine's collector config once at dispatch time.
	ExecuteQueries(ctx context.Context, run *models.JobRun, batch []WorkItem) (*ExecutionSummary, error)

	// RetryResults re-dispatches previously failed results, creating new
	// ExecutionResult rows and leaving the failed originals untouched.
	RetryResults(ctx context.Context, run *models.JobRun, failed []*models.ExecutionResult) (*ExecutionSummary, error)
}
