package collectors

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/sonar/internal/common"
	"github.com/ternarybob/sonar/internal/models"
)

// Registry constructs and caches provider instances. Providers are cached by
// name so rate limiters and upstream clients persist across dispatches.
type Registry struct {
	config *common.Config
	logger arbor.ILogger

	mu        sync.Mutex
	providers map[string]Provider
}

// NewRegistry creates a provider registry over the application config
func NewRegistry(config *common.Config, logger arbor.ILogger) *Registry {
	return &Registry{
		config:    config,
		logger:    logger,
		providers: make(map[string]Provider),
	}
}

// BuildChain assembles the fallback chain for an engine from its collector
// config snapshot. Providers that cannot be constructed (missing credentials)
// are skipped with a warning so the rest of the chain still serves.
func (r *Registry) BuildChain(ctx context.Context, config *models.CollectorConfig, defaultTimeout time.Duration) (*Chain, error) {
	if !config.Enabled {
		return nil, fmt.Errorf("engine %s is disabled", config.Engine)
	}

	ordered := config.OrderedProviders()
	links := make([]ChainLink, 0, len(ordered))
	for _, ref := range ordered {
		provider, err := r.Provider(ctx, ref.Name)
		if err != nil {
			r.logger.Warn().
				Err(err).
				Str("engine", config.Engine).
				Str("provider", ref.Name).
				Msg("Skipping unavailable provider")
			continue
		}
		links = append(links, ChainLink{Provider: provider, Ref: ref})
	}

	if len(links) == 0 {
		return nil, fmt.Errorf("no usable providers for engine %s", config.Engine)
	}

	return NewChain(config.Engine, links, config.CallTimeout(defaultTimeout), r.logger), nil
}

// Provider returns the cached provider instance for a name, constructing it
// on first use.
func (r *Registry) Provider(ctx context.Context, name string) (Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if provider, ok := r.providers[name]; ok {
		return provider, nil
	}

	provider, err := r.construct(ctx, name)
	if err != nil {
		return nil, err
	}

	r.providers[name] = provider
	return provider, nil
}

// AsyncPoller returns the poller behind an async provider name. Used by the
// sweep to resolve parked handles.
func (r *Registry) AsyncPoller(ctx context.Context, name string) (AsyncPoller, error) {
	provider, err := r.Provider(ctx, name)
	if err != nil {
		return nil, err
	}
	poller, ok := provider.(AsyncPoller)
	if !ok {
		return nil, fmt.Errorf("provider %s does not support polling", name)
	}
	return poller, nil
}

func (r *Registry) construct(ctx context.Context, name string) (Provider, error) {
	switch name {
	case models.ProviderAnthropic:
		return NewAnthropicProvider(r.config.Anthropic, r.logger)
	case models.ProviderGemini:
		return NewGeminiProvider(ctx, r.config.Gemini, r.logger)
	case models.ProviderOpenAI:
		return NewOpenAICompatProvider(models.ProviderOpenAI, r.config.OpenAI)
	case models.ProviderPerplexity:
		return NewOpenAICompatProvider(models.ProviderPerplexity, r.config.Perplexity)
	case models.ProviderOverviewScrape:
		return NewOverviewScrapeProvider(r.config.Overview)
	case models.ProviderOverviewBrowser:
		return NewOverviewBrowserProvider(r.config.Overview)
	case models.ProviderOverviewAsync:
		return NewOverviewAsyncProvider(r.config.Overview)
	default:
		return nil, fmt.Errorf("unknown provider %s", name)
	}
}
