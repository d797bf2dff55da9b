package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderedProvidersFiltersAndSorts(t *testing.T) {
	config := &CollectorConfig{
		Engine:  EngineAIOverview,
		Enabled: true,
		Providers: []ProviderRef{
			{Name: ProviderOverviewAsync, Priority: 3, Enabled: true},
			{Name: ProviderOverviewScrape, Priority: 1, Enabled: true},
			{Name: ProviderOverviewBrowser, Priority: 2, Enabled: false},
		},
	}

	ordered := config.OrderedProviders()
	require.Len(t, ordered, 2)
	assert.Equal(t, ProviderOverviewScrape, ordered[0].Name)
	assert.Equal(t, ProviderOverviewAsync, ordered[1].Name)
}

func TestCallTimeoutFallback(t *testing.T) {
	config := &CollectorConfig{Engine: EngineClaude}
	assert.Equal(t, time.Minute, config.CallTimeout(time.Minute))

	config.Timeout = "90s"
	assert.Equal(t, 90*time.Second, config.CallTimeout(time.Minute))

	config.Timeout = "banana"
	assert.Equal(t, time.Minute, config.CallTimeout(time.Minute))

	config.Timeout = "-5s"
	assert.Equal(t, time.Minute, config.CallTimeout(time.Minute))
}

func TestCollectorConfigValidate(t *testing.T) {
	config := &CollectorConfig{
		Engine:    EngineClaude,
		Providers: []ProviderRef{{Name: ProviderAnthropic, Priority: 1, Enabled: true}},
	}
	assert.NoError(t, config.Validate())

	assert.Error(t, (&CollectorConfig{Providers: config.Providers}).Validate())
	assert.Error(t, (&CollectorConfig{Engine: EngineClaude}).Validate())

	config.Providers = append(config.Providers, ProviderRef{Priority: 2})
	assert.Error(t, config.Validate())
}

func TestCloneIsDeep(t *testing.T) {
	config := &CollectorConfig{
		Engine: EngineGemini,
		Providers: []ProviderRef{
			{Name: ProviderGemini, Priority: 1, Enabled: true, Params: map[string]string{"model": "flash"}},
		},
	}

	clone := config.Clone()
	clone.Providers[0].Params["model"] = "pro"
	clone.Providers[0].Enabled = false

	assert.Equal(t, "flash", config.Providers[0].Params["model"])
	assert.True(t, config.Providers[0].Enabled)
}
