package collectors

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/sonar/internal/common"
	"github.com/ternarybob/sonar/internal/models"
	"golang.org/x/time/rate"
)

// AnthropicProvider services the claude engine via the Anthropic Messages API
type AnthropicProvider struct {
	client  anthropic.Client
	config  common.AnthropicConfig
	retry   *RetryConfig
	limiter *rate.Limiter
	logger  arbor.ILogger
}

// NewAnthropicProvider creates an Anthropic provider from application config
func NewAnthropicProvider(config common.AnthropicConfig, logger arbor.ILogger) (*AnthropicProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("anthropic api key not configured")
	}

	spacing := common.ParseDuration(config.RateLimit, time.Second)

	return &AnthropicProvider{
		client:  anthropic.NewClient(option.WithAPIKey(config.APIKey)),
		config:  config,
		retry:   NewDefaultRetryConfig(),
		limiter: rate.NewLimiter(rate.Every(spacing), 1),
		logger:  logger,
	}, nil
}

func (p *AnthropicProvider) Name() string {
	return models.ProviderAnthropic
}

// Execute sends the query as a single user message and returns the text
// answer. Rate limit responses are retried in place before the failure is
// surfaced as transient.
func (p *AnthropicProvider) Execute(ctx context.Context, req *Request) (*Response, error) {
	model := p.config.Model
	if req.Model != "" {
		model = req.Model
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(p.config.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.QueryText)),
		},
		Temperature: anthropic.Float(float64(p.config.Temperature)),
	}

	var lastErr error
	for attempt := 0; attempt <= p.retry.MaxRetries; attempt++ {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		message, err := p.client.Messages.New(ctx, params)
		if err == nil {
			answer := extractAnthropicText(message)
			if answer == "" {
				return nil, Hard(p.Name(), fmt.Errorf("empty response from model %s", model))
			}
			return &Response{RawAnswer: answer}, nil
		}
		lastErr = err

		if !IsRateLimitError(err) {
			return nil, classifyAnthropicError(p.Name(), err)
		}

		if attempt < p.retry.MaxRetries {
			backoff := p.retry.CalculateBackoff(attempt, ExtractRetryDelay(err))
			p.logger.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Str("backoff", backoff.String()).
				Msg("Anthropic rate limited, backing off")

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return nil, Transient(p.Name(), fmt.Errorf("rate limited after %d retries: %w", p.retry.MaxRetries, lastErr))
}

// extractAnthropicText concatenates the text blocks of a message response
func extractAnthropicText(message *anthropic.Message) string {
	if message == nil {
		return ""
	}
	var sb strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return strings.TrimSpace(sb.String())
}

// classifyAnthropicError maps SDK errors onto the fallback policy.
// Auth and request-shape failures are hard; everything else falls through.
func classifyAnthropicError(provider string, err error) *ProviderError {
	errStr := err.Error()
	if strings.Contains(errStr, "401") ||
		strings.Contains(errStr, "403") ||
		strings.Contains(errStr, "authentication") ||
		strings.Contains(errStr, "invalid_request") {
		return Hard(provider, err)
	}
	return Transient(provider, err)
}
