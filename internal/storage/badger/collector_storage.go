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

// CollectorStorage implements the CollectorStorage interface for Badger.
// Configs are keyed by engine; GetConfig hands out copies so in-flight
// dispatches keep their snapshot while operators mutate the stored config.
type CollectorStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewCollectorStorage creates a new CollectorStorage instance
func NewCollectorStorage(db *BadgerDB, logger arbor.ILogger) interfaces.CollectorStorage {
	return &CollectorStorage{
		db:     db,
		logger: logger,
	}
}

func (s *CollectorStorage) SaveConfig(ctx context.Context, config *models.CollectorConfig) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid collector config: %w", err)
	}

	config.UpdatedAt = time.Now()

	if err := s.db.Store().Upsert(config.Engine, config); err != nil {
		return fmt.Errorf("failed to save collector config: %w", err)
	}
	return nil
}

func (s *CollectorStorage) GetConfig(ctx context.Context, engine string) (*models.CollectorConfig, error) {
	var config models.CollectorConfig
	if err := s.db.Store().Get(engine, &config); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("collector config not found for engine: %s", engine)
		}
		return nil, fmt.Errorf("failed to get collector config: %w", err)
	}
	return config.Clone(), nil
}

func (s *CollectorStorage) ListConfigs(ctx context.Context) ([]*models.CollectorConfig, error) {
	var configs []models.CollectorConfig
	if err := s.db.Store().Find(&configs, badgerhold.Where("Engine").Ne("")); err != nil {
		return nil, fmt.Errorf("failed to list collector configs: %w", err)
	}

	result := make([]*models.CollectorConfig, len(configs))
	for i := range configs {
		result[i] = configs[i].Clone()
	}
	return result, nil
}

func (s *CollectorStorage) DeleteConfig(ctx context.Context, engine string) error {
	if err := s.db.Store().Delete(engine, &models.CollectorConfig{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete collector config: %w", err)
	}
	return nil
}
