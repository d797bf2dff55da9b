// -----------------------------------------------------------------------
// Collector Providers - Upstream integrations backing the answer engines
// -----------------------------------------------------------------------

package collectors

import (
	"context"
	"fmt"
	"net/http"
)

// Request is a provider-agnostic execution request for one query against one
// answer engine.
type Request struct {
	QueryText string
	Topic     string
	Country   string
	Engine    string
	Model     string            // Provider model override from the collector config
	Params    map[string]string // Provider-specific parameters from the collector config
}

// Response is a provider-agnostic execution response. Synchronous providers
// return RawAnswer; asynchronous providers return a Handle and an empty
// answer, to be resolved later by the background sweep.
type Response struct {
	RawAnswer string
	Handle    string
}

// IsAsync reports whether the response parks the result on a handle
func (r *Response) IsAsync() bool {
	return r.Handle != "" && r.RawAnswer == ""
}

// Provider is a concrete upstream integration capable of servicing queries
// for an answer engine.
type Provider interface {
	Name() string
	Execute(ctx context.Context, req *Request) (*Response, error)
}

// ErrorKind classifies provider failures for the fallback policy
type ErrorKind string

const (
	// ErrorKindTransient - timeout, rate limit, 5xx. The chain falls through
	// to the next provider in priority order.
	ErrorKindTransient ErrorKind = "transient"

	// ErrorKindHard - auth failure, malformed request. Retrying with a
	// different provider for the same upstream account would not help, so
	// the chain stops and the result fails immediately.
	ErrorKindHard ErrorKind = "hard"
)

// ProviderError carries the failure classification so the chain can branch
// without string matching.
type ProviderError struct {
	Provider string
	Kind     ErrorKind
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s error: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Transient wraps an error as a transient provider failure
func Transient(provider string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: ErrorKindTransient, Err: err}
}

// Hard wraps an error as a hard provider failure
func Hard(provider string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: ErrorKindHard, Err: err}
}

// IsTransient reports whether an error allows fallback to the next provider.
// Unclassified errors are treated as transient so a single misbehaving
// provider cannot take an engine down when an alternative exists.
func IsTransient(err error) bool {
	if pe, ok := err.(*ProviderError); ok {
		return pe.Kind == ErrorKindTransient
	}
	return true
}

// ClassifyStatus wraps an HTTP status as the appropriate provider error.
// 408/429/5xx are transient; 4xx (auth, malformed request) are hard.
func ClassifyStatus(provider string, status int, body string) *ProviderError {
	err := fmt.Errorf("unexpected status %d: %s", status, body)
	if status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500 {
		return Transient(provider, err)
	}
	return Hard(provider, err)
}
