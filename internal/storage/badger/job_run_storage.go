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

// JobRunStorage implements the JobRunStorage interface for Badger
type JobRunStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobRunStorage creates a new JobRunStorage instance
func NewJobRunStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobRunStorage {
	return &JobRunStorage{
		db:     db,
		logger: logger,
	}
}

func (s *JobRunStorage) SaveRun(ctx context.Context, run *models.JobRun) error {
	if run.ID == "" {
		return fmt.Errorf("job run ID is required")
	}

	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	if err := s.db.Store().Upsert(run.ID, run); err != nil {
		return fmt.Errorf("failed to save job run: %w", err)
	}
	return nil
}

func (s *JobRunStorage) GetRun(ctx context.Context, id string) (*models.JobRun, error) {
	var run models.JobRun
	if err := s.db.Store().Get(id, &run); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("job run not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get job run: %w", err)
	}
	return &run, nil
}

func (s *JobRunStorage) ListRuns(ctx context.Context, limit int) ([]*models.JobRun, error) {
	query := badgerhold.Where("ID").Ne("").SortBy("CreatedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var runs []models.JobRun
	if err := s.db.Store().Find(&runs, query); err != nil {
		return nil, fmt.Errorf("failed to list job runs: %w", err)
	}

	result := make([]*models.JobRun, len(runs))
	for i := range runs {
		result[i] = &runs[i]
	}
	return result, nil
}

func (s *JobRunStorage) ListRunsForJob(ctx context.Context, jobID string, limit int) ([]*models.JobRun, error) {
	query := badgerhold.Where("JobID").Eq(jobID).SortBy("CreatedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var runs []models.JobRun
	if err := s.db.Store().Find(&runs, query); err != nil {
		return nil, fmt.Errorf("failed to list job runs for job: %w", err)
	}

	result := make([]*models.JobRun, len(runs))
	for i := range runs {
		result[i] = &runs[i]
	}
	return result, nil
}

func (s *JobRunStorage) ListRunsByStatus(ctx context.Context, status models.RunStatus) ([]*models.JobRun, error) {
	var runs []models.JobRun
	if err := s.db.Store().Find(&runs, badgerhold.Where("Status").Eq(status)); err != nil {
		return nil, fmt.Errorf("failed to list job runs by status: %w", err)
	}

	result := make([]*models.JobRun, len(runs))
	for i := range runs {
		result[i] = &runs[i]
	}
	return result, nil
}

// ClaimRun performs the optimistic queued -> running transition inside a
// single store transaction: "set status=running where status=queued". When
// multiple scheduler processes race on the same run, exactly one sees the
// queued row and wins; the others get claimed=false with no error.
func (s *JobRunStorage) ClaimRun(ctx context.Context, runID string) (bool, error) {
	claimed := false
	err := s.db.Store().UpdateMatching(&models.JobRun{},
		badgerhold.Where("ID").Eq(runID).And("Status").Eq(models.RunStatusQueued),
		func(record interface{}) error {
			run, ok := record.(*models.JobRun)
			if !ok {
				return fmt.Errorf("unexpected record type %T", record)
			}
			if err := run.MarkRunning(); err != nil {
				return err
			}
			claimed = true
			return nil
		})
	if err != nil {
		return false, fmt.Errorf("failed to claim job run: %w", err)
	}
	return claimed, nil
}

func (s *JobRunStorage) HasActiveRunForSlot(ctx context.Context, slotKey string) (bool, error) {
	count, err := s.db.Store().Count(&models.JobRun{},
		badgerhold.Where("SlotKey").Eq(slotKey).
			And("Status").In(models.RunStatusQueued, models.RunStatusRunning))
	if err != nil {
		return false, fmt.Errorf("failed to check slot for active runs: %w", err)
	}
	return count > 0, nil
}

func (s *JobRunStorage) UpdateRun(ctx context.Context, run *models.JobRun) error {
	if err := s.db.Store().Update(run.ID, run); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("job run not found: %s", run.ID)
		}
		return fmt.Errorf("failed to update job run: %w", err)
	}
	return nil
}

func (s *JobRunStorage) CountRunsForJob(ctx context.Context, jobID string) (int, error) {
	count, err := s.db.Store().Count(&models.JobRun{}, badgerhold.Where("JobID").Eq(jobID))
	if err != nil {
		return 0, fmt.Errorf("failed to count job runs for job: %w", err)
	}
	return int(count), nil
}

func (s *JobRunStorage) CountRunsByStatus(ctx context.Context) (map[models.RunStatus]int, error) {
	var runs []models.JobRun
	if err := s.db.Store().Find(&runs, badgerhold.Where("ID").Ne("")); err != nil {
		return nil, fmt.Errorf("failed to count job runs by status: %w", err)
	}

	counts := make(map[models.RunStatus]int)
	for i := range runs {
		counts[runs[i].Status]++
	}
	return counts, nil
}
