// -----------------------------------------------------------------------
// Scoring Service - Client for the external scoring collaborator
// -----------------------------------------------------------------------

package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/sonar/internal/common"
	"github.com/ternarybob/sonar/internal/interfaces"
	"golang.org/x/time/rate"
)

// Default client settings
const (
	DefaultTimeout   = 5 * time.Minute
	DefaultRateLimit = time.Second
	scorePath        = "/score"
)

// ClientOption configures the scoring client
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithBaseURL overrides the configured base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithRateLimit sets the minimum spacing between scoring calls
func WithRateLimit(spacing time.Duration) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Every(spacing), 1)
	}
}

// Client implements interfaces.ScoringService over the collaborator's HTTP
// API. Sentiment and position algorithms run in that service; this client
// only asks it to process a brand's collected answers.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     arbor.ILogger
}

// NewClient creates a scoring client from application config
func NewClient(config common.ScoringConfig, logger arbor.ILogger, opts ...ClientOption) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("scoring base url not configured")
	}

	c := &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		apiKey:     config.APIKey,
		httpClient: &http.Client{Timeout: common.ParseDuration(config.Timeout, DefaultTimeout)},
		limiter:    rate.NewLimiter(rate.Every(common.ParseDuration(config.RateLimit, DefaultRateLimit)), 1),
		logger:     logger,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// APIError carries a non-2xx response from the scoring collaborator
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("scoring API error %d: %s", e.StatusCode, e.Message)
}

// ScoreBrand asks the collaborator to score a brand's answers since the
// cutoff. Blocks until the collaborator finishes or the request times out.
func (c *Client) ScoreBrand(ctx context.Context, req interfaces.ScoreRequest) (*interfaces.ScoreResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal score request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+scorePath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create score request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("score request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read score response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(respBody))
		if len(msg) > 512 {
			msg = msg[:512]
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	var scoreResp interfaces.ScoreResponse
	if err := json.Unmarshal(respBody, &scoreResp); err != nil {
		return nil, fmt.Errorf("failed to decode score response: %w", err)
	}

	c.logger.Info().
		Str("brand_id", req.BrandID).
		Int("positions", scoreResp.PositionsProcessed).
		Int("sentiments", scoreResp.SentimentsProcessed).
		Str("duration", time.Since(start).Round(time.Millisecond).String()).
		Msg("Brand scored")

	return &scoreResp, nil
}
