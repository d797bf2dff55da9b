package badger

import (
	"context"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/sonar/internal/common"
	"github.com/ternarybob/sonar/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db        *BadgerDB
	job       interfaces.ScheduledJobStorage
	run       interfaces.JobRunStorage
	query     interfaces.QueryStorage
	result    interfaces.ResultStorage
	collector interfaces.CollectorStorage
	logger    arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:        db,
		job:       NewScheduledJobStorage(db, logger),
		run:       NewJobRunStorage(db, logger),
		query:     NewQueryStorage(db, logger),
		result:    NewResultStorage(db, logger),
		collector: NewCollectorStorage(db, logger),
		logger:    logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// ScheduledJobStorage returns the ScheduledJob storage interface
func (m *Manager) ScheduledJobStorage() interfaces.ScheduledJobStorage {
	return m.job
}

// JobRunStorage returns the JobRun storage interface
func (m *Manager) JobRunStorage() interfaces.JobRunStorage {
	return m.run
}

// QueryStorage returns the Query storage interface
func (m *Manager) QueryStorage() interfaces.QueryStorage {
	return m.query
}

// ResultStorage returns the ExecutionResult storage interface
func (m *Manager) ResultStorage() interfaces.ResultStorage {
	return m.result
}

// CollectorStorage returns the CollectorConfig storage interface
func (m *Manager) CollectorStorage() interfaces.CollectorStorage {
	return m.collector
}

// DB returns the underlying database connection
func (m *Manager) DB() interface{} {
	if m.db != nil {
		return m.db.Store()
	}
	return nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

// LoadCollectorConfigsFromFiles seeds per-engine collector configs from TOML files
func (m *Manager) LoadCollectorConfigsFromFiles(ctx context.Context, dirPath string) error {
	return LoadCollectorConfigsFromFiles(ctx, m.collector, dirPath, m.logger)
}

// LoadQueriesFromFiles seeds brand queries from YAML files
func (m *Manager) LoadQueriesFromFiles(ctx context.Context, dirPath string) error {
	return LoadQueriesFromFiles(ctx, m.query, dirPath, m.logger)
}
