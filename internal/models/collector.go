// -----------------------------------------------------------------------
// Collector Config - Per-engine provider chain configuration
// -----------------------------------------------------------------------

package models

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Answer engine identifiers
const (
	EngineChatGPT    = "chatgpt"
	EngineClaude     = "claude"
	EngineGemini     = "gemini"
	EnginePerplexity = "perplexity"
	EngineAIOverview = "ai_overview"
)

// Provider names. Multiple providers can back one engine as a fallback chain.
const (
	ProviderAnthropic       = "anthropic"
	ProviderGemini          = "gemini"
	ProviderOpenAI          = "openai"
	ProviderPerplexity      = "perplexity"
	ProviderOverviewScrape  = "overview_scrape"
	ProviderOverviewBrowser = "overview_browser"
	ProviderOverviewAsync   = "overview_async"
)

// ProviderRef is one entry in an engine's provider priority list
type ProviderRef struct {
	Name     string            `json:"name" toml:"name"`
	Priority int               `json:"priority" toml:"priority"` // Lower fires first
	Enabled  bool              `json:"enabled" toml:"enabled"`
	Model    string            `json:"model,omitempty" toml:"model,omitempty"`
	Params   map[string]string `json:"params,omitempty" toml:"params,omitempty"`
}

// ProviderHealth is an operator-visible snapshot of recent provider behavior
type ProviderHealth struct {
	Provider    string     `json:"provider"`
	LastSuccess *time.Time `json:"last_success,omitempty"`
	LastFailure *time.Time `json:"last_failure,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

// CollectorConfig is the per-engine configuration read fresh by the execution
// engine on every dispatch. Operator mutations take effect on the next
// dispatch; in-flight work keeps the snapshot it started with.
type CollectorConfig struct {
	Engine      string           `json:"engine" toml:"engine"`
	Enabled     bool             `json:"enabled" toml:"enabled"`
	Concurrency int              `json:"concurrency" toml:"concurrency"` // Fan-out ceiling for this engine
	Timeout     string           `json:"timeout" toml:"timeout"`         // Per-provider call timeout
	Providers   []ProviderRef    `json:"providers" toml:"providers"`
	Health      []ProviderHealth `json:"health,omitempty" toml:"-"`
	UpdatedAt   time.Time        `json:"updated_at" toml:"-"`
}

// Validate validates the collector configuration
func (c *CollectorConfig) Validate() error {
	if c.Engine == "" {
		return errors.New("collector engine is required")
	}
	if len(c.Providers) == 0 {
		return fmt.Errorf("collector for engine %s must have at least one provider", c.Engine)
	}
	for i, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("collector for engine %s: provider %d has no name", c.Engine, i)
		}
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("collector for engine %s: concurrency cannot be negative", c.Engine)
	}
	return nil
}

// OrderedProviders returns the enabled providers sorted by priority
// (lowest first). The returned slice is a copy.
func (c *CollectorConfig) OrderedProviders() []ProviderRef {
	ordered := make([]ProviderRef, 0, len(c.Providers))
	for _, p := range c.Providers {
		if p.Enabled {
			ordered = append(ordered, p)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})
	return ordered
}

// CallTimeout parses the per-provider timeout, falling back when unset
func (c *CollectorConfig) CallTimeout(fallback time.Duration) time.Duration {
	if c.Timeout == "" {
		return fallback
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Clone returns a deep copy so in-flight dispatches keep their snapshot while
// operators mutate the stored configuration.
func (c *CollectorConfig) Clone() *CollectorConfig {
	clone := &CollectorConfig{
		Engine:      c.Engine,
		Enabled:     c.Enabled,
		Concurrency: c.Concurrency,
		Timeout:     c.Timeout,
		UpdatedAt:   c.UpdatedAt,
	}
	clone.Providers = make([]ProviderRef, len(c.Providers))
	for i, p := range c.Providers {
		pc := p
		if p.Params != nil {
			pc.Params = make(map[string]string, len(p.Params))
			for k, v := range p.Params {
				pc.Params[k] = v
			}
		}
		clone.Providers[i] = pc
	}
	if c.Health != nil {
		clone.Health = make([]ProviderHealth, len(c.Health))
		copy(clone.Health, c.Health)
	}
	return clone
}
