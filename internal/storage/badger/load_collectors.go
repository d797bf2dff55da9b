package badger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/sonar/internal/interfaces"
	"github.com/ternarybob/sonar/internal/models"
)

// LoadCollectorConfigsFromFiles seeds per-engine collector configs from TOML
// files in the specified directory. Existing configs are not overwritten so
// operator mutations via the API survive restarts.
func LoadCollectorConfigsFromFiles(ctx context.Context, storage interfaces.CollectorStorage, seedDir string, logger arbor.ILogger) error {
	if _, err := os.Stat(seedDir); os.IsNotExist(err) {
		logger.Debug().Str("dir", seedDir).Msg("Collector seed directory does not exist, skipping")
		return nil
	}

	logger.Info().Str("dir", seedDir).Msg("Loading collector configs from files")

	entries, err := os.ReadDir(seedDir)
	if err != nil {
		return fmt.Errorf("failed to read collector seed directory: %w", err)
	}

	loadedCount := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".toml" {
			continue
		}

		filePath := filepath.Join(seedDir, entry.Name())

		tomlBytes, err := os.ReadFile(filePath)
		if err != nil {
			logger.Warn().Err(err).Str("file", entry.Name()).Msg("Failed to read collector config file")
			continue
		}

		var config models.CollectorConfig
		if err := toml.Unmarshal(tomlBytes, &config); err != nil {
			logger.Warn().Err(err).Str("file", entry.Name()).Msg("Failed to parse collector config TOML")
			continue
		}

		if err := config.Validate(); err != nil {
			logger.Warn().Err(err).Str("file", entry.Name()).Msg("Invalid collector config, skipping")
			continue
		}

		// Operator mutations win over seed files
		if existing, err := storage.GetConfig(ctx, config.Engine); err == nil && existing != nil {
			logger.Debug().Str("engine", config.Engine).Str("file", entry.Name()).Msg("Collector config already exists, keeping stored version")
			continue
		}

		if err := storage.SaveConfig(ctx, &config); err != nil {
			logger.Warn().Err(err).Str("file", entry.Name()).Str("engine", config.Engine).Msg("Failed to save collector config")
			continue
		}

		logger.Info().Str("file", entry.Name()).Str("engine", config.Engine).Int("providers", len(config.Providers)).Msg("Collector config loaded from file")
		loadedCount++
	}

	if loadedCount > 0 {
		logger.Info().Int("count", loadedCount).Msg("Collector configs loaded from files")
	} else {
		logger.Debug().Msg("No collector configs loaded from files")
	}

	return nil
}
