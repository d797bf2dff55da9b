package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/sonar/internal/interfaces"
	"github.com/ternarybob/sonar/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ResultStorage implements the ResultStorage interface for Badger.
// Results are append-only run history; the only in-place mutations are the
// state-guarded transitions below.
type ResultStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewResultStorage creates a new ResultStorage instance
func NewResultStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ResultStorage {
	return &ResultStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ResultStorage) SaveResult(ctx context.Context, result *models.ExecutionResult) error {
	if result.ID == "" {
		return fmt.Errorf("execution result ID is required")
	}

	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now()
	}

	if err := s.db.Store().Upsert(result.ID, result); err != nil {
		return fmt.Errorf("failed to save execution result: %w", err)
	}
	return nil
}

func (s *ResultStorage) GetResult(ctx context.Context, id string) (*models.ExecutionResult, error) {
	var result models.ExecutionResult
	if err := s.db.Store().Get(id, &result); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("execution result not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get execution result: %w", err)
	}
	return &result, nil
}

func (s *ResultStorage) UpdateResult(ctx context.Context, result *models.ExecutionResult) error {
	if err := s.db.Store().Update(result.ID, result); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("execution result not found: %s", result.ID)
		}
		return fmt.Errorf("failed to update execution result: %w", err)
	}
	return nil
}

func (s *ResultStorage) ListResultsForRun(ctx context.Context, runID string) ([]*models.ExecutionResult, error) {
	var results []models.ExecutionResult
	query := badgerhold.Where("RunID").Eq(runID).SortBy("CreatedAt")
	if err := s.db.Store().Find(&results, query); err != nil {
		return nil, fmt.Errorf("failed to list execution results for run: %w", err)
	}

	out := make([]*models.ExecutionResult, len(results))
	for i := range results {
		out[i] = &results[i]
	}
	return out, nil
}

// ListFailedResults selects the retry slice: only failed results for the
// brand created at or after the cutoff. Completed, running, and pending rows
// are never returned, so retries cannot touch successes or in-flight work.
func (s *ResultStorage) ListFailedResults(ctx context.Context, brandID string, since time.Time) ([]*models.ExecutionResult, error) {
	var results []models.ExecutionResult
	query := badgerhold.Where("BrandID").Eq(brandID).
		And("Status").Eq(models.ResultStatusFailed).
		And("CreatedAt").Ge(since)
	if err := s.db.Store().Find(&results, query); err != nil {
		return nil, fmt.Errorf("failed to list failed execution results: %w", err)
	}

	out := make([]*models.ExecutionResult, len(results))
	for i := range results {
		out[i] = &results[i]
	}
	return out, nil
}

func (s *ResultStorage) ListRunningWithHandle(ctx context.Context) ([]*models.ExecutionResult, error) {
	var results []models.ExecutionResult
	query := badgerhold.Where("Status").Eq(models.ResultStatusRunning).
		And("Handle").Ne("")
	if err := s.db.Store().Find(&results, query); err != nil {
		return nil, fmt.Errorf("failed to list running execution results: %w", err)
	}

	out := make([]*models.ExecutionResult, len(results))
	for i := range results {
		out[i] = &results[i]
	}
	return out, nil
}

// CompleteRunning flips a running result to completed with the resolved
// answer. The status guard lives in the query: rows that are pending or
// already terminal do not match and the call fails, so the sweep can never
// race the execution engine's own writes.
func (s *ResultStorage) CompleteRunning(ctx context.Context, id, rawAnswer string) error {
	return s.resolveRunning(id, func(result *models.ExecutionResult) error {
		return result.MarkCompleted(result.Provider, rawAnswer, time.Since(result.CreatedAt))
	})
}

// FailRunning flips a running result to failed with an error detail
func (s *ResultStorage) FailRunning(ctx context.Context, id, errorMsg string) error {
	return s.resolveRunning(id, func(result *models.ExecutionResult) error {
		return result.MarkFailed(errorMsg)
	})
}

func (s *ResultStorage) resolveRunning(id string, mutate func(*models.ExecutionResult) error) error {
	matched := false
	err := s.db.Store().UpdateMatching(&models.ExecutionResult{},
		badgerhold.Where("ID").Eq(id).And("Status").Eq(models.ResultStatusRunning),
		func(record interface{}) error {
			result, ok := record.(*models.ExecutionResult)
			if !ok {
				return fmt.Errorf("unexpected record type %T", record)
			}
			if err := mutate(result); err != nil {
				return err
			}
			matched = true
			return nil
		})
	if err != nil {
		return fmt.Errorf("failed to resolve running execution result: %w", err)
	}
	if !matched {
		return fmt.Errorf("execution result %s is not in running status", id)
	}
	return nil
}

func (s *ResultStorage) CountResultsByStatus(ctx context.Context) (map[models.ResultStatus]int, error) {
	var results []models.ExecutionResult
	if err := s.db.Store().Find(&results, badgerhold.Where("ID").Ne("")); err != nil {
		return nil, fmt.Errorf("failed to count execution results by status: %w", err)
	}

	counts := make(map[models.ResultStatus]int)
	for i := range results {
		counts[results[i].Status]++
	}
	return counts, nil
}
