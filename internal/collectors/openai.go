package collectors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/sonar/internal/common"
	"golang.org/x/time/rate"
)

// Default settings for OpenAI-compatible chat completion providers
const (
	chatCompletionsPath = "/chat/completions"
	defaultChatTimeout  = 60 * time.Second
)

// ChatClientOption configures an OpenAICompatProvider
type ChatClientOption func(*OpenAICompatProvider)

// WithChatHTTPClient sets a custom HTTP client
func WithChatHTTPClient(client *http.Client) ChatClientOption {
	return func(p *OpenAICompatProvider) {
		p.httpClient = client
	}
}

// WithChatRateLimit sets the minimum spacing between upstream calls
func WithChatRateLimit(spacing time.Duration) ChatClientOption {
	return func(p *OpenAICompatProvider) {
		p.limiter = rate.NewLimiter(rate.Every(spacing), 1)
	}
}

// OpenAICompatProvider services engines whose upstreams speak the OpenAI
// chat-completions wire format. Both the chatgpt and perplexity engines use
// this provider with different base URLs and credentials.
type OpenAICompatProvider struct {
	name       string
	baseURL    string
	apiKey     string
	model      string
	temp       float32
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewOpenAICompatProvider creates a chat-completions provider. The name
// identifies which configured upstream this instance fronts.
func NewOpenAICompatProvider(name string, config common.OpenAIConfig, opts ...ChatClientOption) (*OpenAICompatProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("%s api key not configured", name)
	}
	if config.BaseURL == "" {
		return nil, fmt.Errorf("%s base url not configured", name)
	}

	p := &OpenAICompatProvider{
		name:       name,
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		apiKey:     config.APIKey,
		model:      config.Model,
		temp:       config.Temperature,
		httpClient: &http.Client{Timeout: defaultChatTimeout},
		limiter:    rate.NewLimiter(rate.Every(common.ParseDuration(config.RateLimit, time.Second)), 1),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

func (p *OpenAICompatProvider) Name() string {
	return p.name
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Execute posts the query as a single user message to the chat completions
// endpoint and returns the first choice.
func (p *OpenAICompatProvider) Execute(ctx context.Context, req *Request) (*Response, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	model := p.model
	if req.Model != "" {
		model = req.Model
	}

	payload := chatCompletionRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: "user", Content: req.QueryText}},
		Temperature: p.temp,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, Hard(p.name, fmt.Errorf("failed to marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+chatCompletionsPath, bytes.NewReader(body))
	if err != nil {
		return nil, Hard(p.name, fmt.Errorf("failed to create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, Transient(p.name, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Transient(p.name, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, ClassifyStatus(p.name, resp.StatusCode, truncateBody(respBody))
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(respBody, &completion); err != nil {
		return nil, Transient(p.name, fmt.Errorf("failed to decode response: %w", err))
	}
	if completion.Error != nil {
		return nil, Hard(p.name, fmt.Errorf("api error %s: %s", completion.Error.Type, completion.Error.Message))
	}
	if len(completion.Choices) == 0 {
		return nil, Hard(p.name, fmt.Errorf("no choices in response from model %s", model))
	}

	answer := strings.TrimSpace(completion.Choices[0].Message.Content)
	if answer == "" {
		return nil, Hard(p.name, fmt.Errorf("empty answer from model %s", model))
	}

	return &Response{RawAnswer: answer}, nil
}

// truncateBody keeps error payloads short enough to store on the attempt trail
func truncateBody(body []byte) string {
	const maxLen = 512
	s := string(body)
	if len(s) > maxLen {
		return s[:maxLen]
	}
	return s
}
