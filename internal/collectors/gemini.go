package collectors

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/sonar/internal/common"
	"github.com/ternarybob/sonar/internal/models"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// GeminiProvider services the gemini engine via the Google GenAI API
type GeminiProvider struct {
	client  *genai.Client
	config  common.GeminiConfig
	retry   *RetryConfig
	limiter *rate.Limiter
	logger  arbor.ILogger
}

// NewGeminiProvider creates a Gemini provider from application config
func NewGeminiProvider(ctx context.Context, config common.GeminiConfig, logger arbor.ILogger) (*GeminiProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("gemini api key not configured")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	spacing := common.ParseDuration(config.RateLimit, 4*time.Second)

	return &GeminiProvider{
		client:  client,
		config:  config,
		retry:   NewDefaultRetryConfig(),
		limiter: rate.NewLimiter(rate.Every(spacing), 1),
		logger:  logger,
	}, nil
}

func (p *GeminiProvider) Name() string {
	return models.ProviderGemini
}

// Execute sends the query to the configured Gemini model. Free-tier quota
// errors carry an API-suggested retry delay which is honored on backoff.
func (p *GeminiProvider) Execute(ctx context.Context, req *Request) (*Response, error) {
	model := p.config.Model
	if req.Model != "" {
		model = req.Model
	}

	genConfig := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(p.config.Temperature),
	}

	var lastErr error
	for attempt := 0; attempt <= p.retry.MaxRetries; attempt++ {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		result, err := p.client.Models.GenerateContent(ctx, model, genai.Text(req.QueryText), genConfig)
		if err == nil {
			answer := strings.TrimSpace(result.Text())
			if answer == "" {
				return nil, Hard(p.Name(), fmt.Errorf("empty response from model %s", model))
			}
			return &Response{RawAnswer: answer}, nil
		}
		lastErr = err

		if !IsRateLimitError(err) {
			return nil, classifyGeminiError(p.Name(), err)
		}

		if attempt < p.retry.MaxRetries {
			backoff := p.retry.CalculateBackoff(attempt, ExtractRetryDelay(err))
			p.logger.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Str("backoff", backoff.String()).
				Msg("Gemini rate limited, backing off")

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return nil, Transient(p.Name(), fmt.Errorf("rate limited after %d retries: %w", p.retry.MaxRetries, lastErr))
}

func classifyGeminiError(provider string, err error) *ProviderError {
	errStr := err.Error()
	if strings.Contains(errStr, "API key") ||
		strings.Contains(errStr, "PERMISSION_DENIED") ||
		strings.Contains(errStr, "INVALID_ARGUMENT") {
		return Hard(provider, err)
	}
	return Transient(provider, err)
}
