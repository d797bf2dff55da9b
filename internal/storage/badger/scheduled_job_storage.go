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

// ScheduledJobStorage implements the ScheduledJobStorage interface for Badger
type ScheduledJobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewScheduledJobStorage creates a new ScheduledJobStorage instance
func NewScheduledJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ScheduledJobStorage {
	return &ScheduledJobStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ScheduledJobStorage) SaveJob(ctx context.Context, job *models.ScheduledJob) error {
	if job.ID == "" {
		return fmt.Errorf("scheduled job ID is required")
	}

	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	if err := s.db.Store().Upsert(job.ID, job); err != nil {
		return fmt.Errorf("failed to save scheduled job: %w", err)
	}
	return nil
}

func (s *ScheduledJobStorage) GetJob(ctx context.Context, id string) (*models.ScheduledJob, error) {
	var job models.ScheduledJob
	if err := s.db.Store().Get(id, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("scheduled job not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get scheduled job: %w", err)
	}
	return &job, nil
}

func (s *ScheduledJobStorage) ListJobs(ctx context.Context) ([]*models.ScheduledJob, error) {
	var jobs []models.ScheduledJob
	query := badgerhold.Where("ID").Ne("").SortBy("CreatedAt").Reverse()
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list scheduled jobs: %w", err)
	}

	result := make([]*models.ScheduledJob, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

func (s *ScheduledJobStorage) ListEnabledJobs(ctx context.Context) ([]*models.ScheduledJob, error) {
	var jobs []models.ScheduledJob
	if err := s.db.Store().Find(&jobs, badgerhold.Where("Enabled").Eq(true)); err != nil {
		return nil, fmt.Errorf("failed to list enabled scheduled jobs: %w", err)
	}

	result := make([]*models.ScheduledJob, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

func (s *ScheduledJobStorage) ListJobsByBrand(ctx context.Context, brandID string) ([]*models.ScheduledJob, error) {
	var jobs []models.ScheduledJob
	if err := s.db.Store().Find(&jobs, badgerhold.Where("BrandID").Eq(brandID)); err != nil {
		return nil, fmt.Errorf("failed to list scheduled jobs for brand: %w", err)
	}

	result := make([]*models.ScheduledJob, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

func (s *ScheduledJobStorage) DeleteJob(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, &models.ScheduledJob{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete scheduled job: %w", err)
	}
	return nil
}

func (s *ScheduledJobStorage) CountJobs(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.ScheduledJob{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count scheduled jobs: %w", err)
	}
	return int(count), nil
}

func (s *ScheduledJobStorage) CountJobsByType(ctx context.Context) (map[models.JobType]int, error) {
	var jobs []models.ScheduledJob
	if err := s.db.Store().Find(&jobs, badgerhold.Where("ID").Ne("")); err != nil {
		return nil, fmt.Errorf("failed to count scheduled jobs by type: %w", err)
	}

	counts := make(map[models.JobType]int)
	for i := range jobs {
		counts[jobs[i].Type]++
	}
	return counts, nil
}
