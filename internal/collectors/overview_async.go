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
	"github.com/ternarybob/sonar/internal/models"
)

// PollState reports where an async capture stands
type PollState struct {
	Done      bool
	RawAnswer string
	Error     string
}

// AsyncPoller resolves handles parked by an asynchronous provider. The
// background sweep uses this to reconcile running results.
type AsyncPoller interface {
	Poll(ctx context.Context, handle string) (*PollState, error)
}

// OverviewAsyncProvider services the ai_overview engine through a handle-based
// capture API. Execute submits the capture and parks the result on a handle;
// the sweep polls the handle until the capture resolves.
type OverviewAsyncProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewOverviewAsyncProvider creates an async capture provider from application config
func NewOverviewAsyncProvider(config common.OverviewConfig) (*OverviewAsyncProvider, error) {
	if config.AsyncBaseURL == "" {
		return nil, fmt.Errorf("overview async base url not configured")
	}

	return &OverviewAsyncProvider{
		baseURL:    strings.TrimRight(config.AsyncBaseURL, "/"),
		apiKey:     config.AsyncAPIKey,
		httpClient: &http.Client{Timeout: common.ParseDuration(config.RequestTimeout, 30*time.Second)},
	}, nil
}

func (p *OverviewAsyncProvider) Name() string {
	return models.ProviderOverviewAsync
}

type captureSubmitRequest struct {
	Query   string `json:"query"`
	Country string `json:"country,omitempty"`
}

type captureSubmitResponse struct {
	ID string `json:"id"`
}

type captureStatusResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"` // "pending", "completed", "failed"
	Answer string `json:"answer,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Execute submits the capture and returns its handle. The answer arrives
// later via Poll.
func (p *OverviewAsyncProvider) Execute(ctx context.Context, req *Request) (*Response, error) {
	payload := captureSubmitRequest{
		Query:   req.QueryText,
		Country: req.Country,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, Hard(p.Name(), fmt.Errorf("failed to marshal capture request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/captures", bytes.NewReader(body))
	if err != nil {
		return nil, Hard(p.Name(), fmt.Errorf("failed to create request: %w", err))
	}
	p.setHeaders(httpReq)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, Transient(p.Name(), fmt.Errorf("capture submit failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Transient(p.Name(), fmt.Errorf("failed to read submit response: %w", err))
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusCreated {
		return nil, ClassifyStatus(p.Name(), resp.StatusCode, truncateBody(respBody))
	}

	var submitted captureSubmitResponse
	if err := json.Unmarshal(respBody, &submitted); err != nil {
		return nil, Transient(p.Name(), fmt.Errorf("failed to decode submit response: %w", err))
	}
	if submitted.ID == "" {
		return nil, Transient(p.Name(), fmt.Errorf("capture submit returned no handle"))
	}

	return &Response{Handle: submitted.ID}, nil
}

// Poll checks where a previously submitted capture stands
func (p *OverviewAsyncProvider) Poll(ctx context.Context, handle string) (*PollState, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/captures/"+handle, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create poll request: %w", err)
	}
	p.setHeaders(httpReq)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("capture poll failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read poll response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return &PollState{Done: true, Error: fmt.Sprintf("capture %s no longer exists upstream", handle)}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("capture poll returned status %d: %s", resp.StatusCode, truncateBody(respBody))
	}

	var status captureStatusResponse
	if err := json.Unmarshal(respBody, &status); err != nil {
		return nil, fmt.Errorf("failed to decode poll response: %w", err)
	}

	switch status.Status {
	case "completed":
		if strings.TrimSpace(status.Answer) == "" {
			return &PollState{Done: true, Error: "capture completed with empty answer"}, nil
		}
		return &PollState{Done: true, RawAnswer: status.Answer}, nil
	case "failed":
		msg := status.Error
		if msg == "" {
			msg = "capture failed upstream"
		}
		return &PollState{Done: true, Error: msg}, nil
	default:
		return &PollState{Done: false}, nil
	}
}

func (p *OverviewAsyncProvider) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
}
