package badger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/sonar/internal/common"
	"github.com/ternarybob/sonar/internal/models"
)

func overviewConfig() *models.CollectorConfig {
	return &models.CollectorConfig{
		Engine:      models.EngineAIOverview,
		Enabled:     true,
		Concurrency: 2,
		Timeout:     "120s",
		Providers: []models.ProviderRef{
			{Name: models.ProviderOverviewScrape, Priority: 1, Enabled: true},
			{Name: models.ProviderOverviewBrowser, Priority: 2, Enabled: true},
		},
	}
}

func TestGetConfigReturnsCopy(t *testing.T) {
	manager := newTestManager(t)
	configs := manager.CollectorStorage()

	require.NoError(t, configs.SaveConfig(context.Background(), overviewConfig()))

	first, err := configs.GetConfig(context.Background(), models.EngineAIOverview)
	require.NoError(t, err)

	// Mutating the snapshot must not leak into later reads
	first.Providers[0].Enabled = false
	first.Providers = first.Providers[:1]

	second, err := configs.GetConfig(context.Background(), models.EngineAIOverview)
	require.NoError(t, err)
	require.Len(t, second.Providers, 2)
	assert.True(t, second.Providers[0].Enabled)
}

func TestSaveConfigRejectsInvalid(t *testing.T) {
	manager := newTestManager(t)

	err := manager.CollectorStorage().SaveConfig(context.Background(), &models.CollectorConfig{
		Engine: models.EngineClaude,
	})
	assert.Error(t, err)
}

func TestDeleteConfigIsIdempotent(t *testing.T) {
	manager := newTestManager(t)
	configs := manager.CollectorStorage()

	require.NoError(t, configs.SaveConfig(context.Background(), overviewConfig()))
	require.NoError(t, configs.DeleteConfig(context.Background(), models.EngineAIOverview))
	require.NoError(t, configs.DeleteConfig(context.Background(), models.EngineAIOverview))

	_, err := configs.GetConfig(context.Background(), models.EngineAIOverview)
	assert.Error(t, err)
}

func writeSeedFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestLoadCollectorConfigsFromFiles(t *testing.T) {
	manager := newTestManager(t)
	configs := manager.CollectorStorage()
	seedDir := t.TempDir()

	writeSeedFile(t, seedDir, "claude.toml", `
engine = "claude"
enabled = true
concurrency = 4

[[providers]]
name = "anthropic"
priority = 1
enabled = true
`)
	writeSeedFile(t, seedDir, "broken.toml", `engine = "nothing"`)
	writeSeedFile(t, seedDir, "notes.txt", "ignored")

	err := LoadCollectorConfigsFromFiles(context.Background(), configs, seedDir, common.GetLogger())
	require.NoError(t, err)

	loaded, err := configs.GetConfig(context.Background(), models.EngineClaude)
	require.NoError(t, err)
	assert.Equal(t, 4, loaded.Concurrency)
	require.Len(t, loaded.Providers, 1)
	assert.Equal(t, models.ProviderAnthropic, loaded.Providers[0].Name)

	// The invalid file is skipped, not fatal
	_, err = configs.GetConfig(context.Background(), "nothing")
	assert.Error(t, err)
}

func TestLoadCollectorConfigsKeepsStoredVersion(t *testing.T) {
	manager := newTestManager(t)
	configs := manager.CollectorStorage()
	seedDir := t.TempDir()

	// Operator already tuned concurrency via the API
	stored := overviewConfig()
	stored.Concurrency = 8
	require.NoError(t, configs.SaveConfig(context.Background(), stored))

	writeSeedFile(t, seedDir, "ai_overview.toml", `
engine = "ai_overview"
enabled = true
concurrency = 1

[[providers]]
name = "overview_scrape"
priority = 1
enabled = true
`)

	err := LoadCollectorConfigsFromFiles(context.Background(), configs, seedDir, common.GetLogger())
	require.NoError(t, err)

	loaded, err := configs.GetConfig(context.Background(), models.EngineAIOverview)
	require.NoError(t, err)
	assert.Equal(t, 8, loaded.Concurrency)
	assert.Len(t, loaded.Providers, 2)
}

func TestLoadQueriesFromFiles(t *testing.T) {
	manager := newTestManager(t)
	queries := manager.QueryStorage()
	seedDir := t.TempDir()

	writeSeedFile(t, seedDir, "brand.yaml", `
brand_id: brand_1
customer_id: cust_1
queries:
  - id: qry_fixed
    text: "best crm for startups"
    topic: crm
  - text: "top accounting tools"
    active: false
`)

	err := LoadQueriesFromFiles(context.Background(), queries, seedDir, common.GetLogger())
	require.NoError(t, err)

	all, err := queries.ListQueriesByBrand(context.Background(), "brand_1")
	require.NoError(t, err)
	require.Len(t, all, 2)

	fixed, err := queries.GetQuery(context.Background(), "qry_fixed")
	require.NoError(t, err)
	assert.True(t, fixed.Active)
	assert.Equal(t, "crm", fixed.Topic)

	active, err := queries.ListActiveQueries(context.Background(), "brand_1", "cust_1")
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestLoadQueriesMissingDirIsNotFatal(t *testing.T) {
	manager := newTestManager(t)

	err := LoadQueriesFromFiles(context.Background(), manager.QueryStorage(), filepath.Join(t.TempDir(), "missing"), common.GetLogger())
	assert.NoError(t, err)
}
