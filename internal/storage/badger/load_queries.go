package badger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/sonar/internal/common"
	"github.com/ternarybob/sonar/internal/interfaces"
	"github.com/ternarybob/sonar/internal/models"
	"gopkg.in/yaml.v3"
)

// querySeedFile is one YAML seed file: a brand with its query set
type querySeedFile struct {
	BrandID    string `yaml:"brand_id"`
	CustomerID string `yaml:"customer_id"`
	Queries    []struct {
		ID      string `yaml:"id"`
		Text    string `yaml:"text"`
		Topic   string `yaml:"topic"`
		Country string `yaml:"country"`
		Active  *bool  `yaml:"active"`
	} `yaml:"queries"`
}

// LoadQueriesFromFiles seeds brand queries from YAML files in the specified
// directory. Queries with explicit IDs are upserted; queries without get a
// generated ID on first load.
func LoadQueriesFromFiles(ctx context.Context, storage interfaces.QueryStorage, seedDir string, logger arbor.ILogger) error {
	if _, err := os.Stat(seedDir); os.IsNotExist(err) {
		logger.Debug().Str("dir", seedDir).Msg("Query seed directory does not exist, skipping")
		return nil
	}

	logger.Info().Str("dir", seedDir).Msg("Loading queries from files")

	entries, err := os.ReadDir(seedDir)
	if err != nil {
		return fmt.Errorf("failed to read query seed directory: %w", err)
	}

	loadedCount := 0
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}

		filePath := filepath.Join(seedDir, entry.Name())

		yamlBytes, err := os.ReadFile(filePath)
		if err != nil {
			logger.Warn().Err(err).Str("file", entry.Name()).Msg("Failed to read query seed file")
			continue
		}

		var seed querySeedFile
		if err := yaml.Unmarshal(yamlBytes, &seed); err != nil {
			logger.Warn().Err(err).Str("file", entry.Name()).Msg("Failed to parse query seed YAML")
			continue
		}

		if seed.BrandID == "" || seed.CustomerID == "" {
			logger.Warn().Str("file", entry.Name()).Msg("Query seed file missing brand_id or customer_id, skipping")
			continue
		}

		for _, q := range seed.Queries {
			query := &models.Query{
				ID:         q.ID,
				BrandID:    seed.BrandID,
				CustomerID: seed.CustomerID,
				Text:       q.Text,
				Topic:      q.Topic,
				Country:    q.Country,
				Active:     q.Active == nil || *q.Active,
			}
			if query.ID == "" {
				query.ID = common.NewQueryID()
			}

			if err := query.Validate(); err != nil {
				logger.Warn().Err(err).Str("file", entry.Name()).Msg("Invalid query in seed file, skipping")
				continue
			}

			if err := storage.SaveQuery(ctx, query); err != nil {
				logger.Warn().Err(err).Str("file", entry.Name()).Str("query_id", query.ID).Msg("Failed to save query")
				continue
			}
			loadedCount++
		}
	}

	if loadedCount > 0 {
		logger.Info().Int("count", loadedCount).Msg("Queries loaded from files")
	} else {
		logger.Debug().Msg("No queries loaded from files")
	}

	return nil
}
