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

// QueryStorage implements the QueryStorage interface for Badger
type QueryStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewQueryStorage creates a new QueryStorage instance
func NewQueryStorage(db *BadgerDB, logger arbor.ILogger) interfaces.QueryStorage {
	return &QueryStorage{
		db:     db,
		logger: logger,
	}
}

func (s *QueryStorage) SaveQuery(ctx context.Context, query *models.Query) error {
	if query.ID == "" {
		return fmt.Errorf("query ID is required")
	}

	now := time.Now()
	if query.CreatedAt.IsZero() {
		query.CreatedAt = now
	}
	query.UpdatedAt = now

	if err := s.db.Store().Upsert(query.ID, query); err != nil {
		return fmt.Errorf("failed to save query: %w", err)
	}
	return nil
}

func (s *QueryStorage) GetQuery(ctx context.Context, id string) (*models.Query, error) {
	var query models.Query
	if err := s.db.Store().Get(id, &query); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("query not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get query: %w", err)
	}
	return &query, nil
}

func (s *QueryStorage) ListActiveQueries(ctx context.Context, brandID, customerID string) ([]*models.Query, error) {
	var queries []models.Query
	q := badgerhold.Where("BrandID").Eq(brandID).
		And("CustomerID").Eq(customerID).
		And("Active").Eq(true)
	if err := s.db.Store().Find(&queries, q); err != nil {
		return nil, fmt.Errorf("failed to list active queries: %w", err)
	}

	result := make([]*models.Query, len(queries))
	for i := range queries {
		result[i] = &queries[i]
	}
	return result, nil
}

func (s *QueryStorage) ListQueriesByBrand(ctx context.Context, brandID string) ([]*models.Query, error) {
	var queries []models.Query
	if err := s.db.Store().Find(&queries, badgerhold.Where("BrandID").Eq(brandID)); err != nil {
		return nil, fmt.Errorf("failed to list queries for brand: %w", err)
	}

	result := make([]*models.Query, len(queries))
	for i := range queries {
		result[i] = &queries[i]
	}
	return result, nil
}

func (s *QueryStorage) DeleteQuery(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, &models.Query{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete query: %w", err)
	}
	return nil
}

func (s *QueryStorage) CountQueries(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.Query{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count queries: %w", err)
	}
	return int(count), nil
}
