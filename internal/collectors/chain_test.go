package collectors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/sonar/internal/common"
	"github.com/ternarybob/sonar/internal/models"
)

// fakeProvider scripts one provider's behavior for chain tests
type fakeProvider struct {
	name      string
	resp      *Response
	err       error
	delay     time.Duration
	calls     int
	gotModel  string
	gotParams map[string]string
}

func (f *fakeProvider) Name() string {
	return f.name
}

func (f *fakeProvider) Execute(ctx context.Context, req *Request) (*Response, error) {
	f.calls++
	f.gotModel = req.Model
	f.gotParams = req.Params
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func newTestChain(providers ...Provider) *Chain {
	links := make([]ChainLink, 0, len(providers))
	for _, p := range providers {
		links = append(links, ChainLink{Provider: p, Ref: models.ProviderRef{Name: p.Name(), Enabled: true}})
	}
	return NewChain("claude", links, 5*time.Second, common.GetLogger())
}

func TestChainFallsThroughOnTransientFailure(t *testing.T) {
	primary := &fakeProvider{name: "primary", err: Transient("primary", errors.New("upstream 503"))}
	fallback := &fakeProvider{name: "fallback", resp: &Response{RawAnswer: "answer from fallback"}}

	chain := newTestChain(primary, fallback)
	resp, providerName, attempts, err := chain.Execute(context.Background(), &Request{QueryText: "best crm software"})

	require.NoError(t, err)
	assert.Equal(t, "answer from fallback", resp.RawAnswer)
	assert.Equal(t, "fallback", providerName)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, fallback.calls)

	require.Len(t, attempts, 2)
	assert.Equal(t, "primary", attempts[0].Provider)
	assert.True(t, attempts[0].Transient)
	assert.NotEmpty(t, attempts[0].Error)
	assert.Equal(t, "fallback", attempts[1].Provider)
	assert.Empty(t, attempts[1].Error)
}

func TestChainStopsOnHardFailure(t *testing.T) {
	primary := &fakeProvider{name: "primary", err: Hard("primary", errors.New("invalid api key"))}
	fallback := &fakeProvider{name: "fallback", resp: &Response{RawAnswer: "should not be reached"}}

	chain := newTestChain(primary, fallback)
	resp, providerName, attempts, err := chain.Execute(context.Background(), &Request{QueryText: "best crm software"})

	require.Error(t, err)
	assert.Nil(t, resp)
	assert.Empty(t, providerName)
	assert.Equal(t, 0, fallback.calls)

	require.Len(t, attempts, 1)
	assert.False(t, attempts[0].Transient)
}

func TestChainExhaustsAllProviders(t *testing.T) {
	first := &fakeProvider{name: "first", err: Transient("first", errors.New("timeout"))}
	second := &fakeProvider{name: "second", err: Transient("second", errors.New("rate limited"))}

	chain := newTestChain(first, second)
	resp, _, attempts, err := chain.Execute(context.Background(), &Request{QueryText: "best crm software"})

	require.Error(t, err)
	assert.Nil(t, resp)
	assert.Contains(t, err.Error(), "all providers exhausted")
	assert.Contains(t, err.Error(), "rate limited")
	assert.Len(t, attempts, 2)
}

func TestChainFirstProviderSucceeds(t *testing.T) {
	primary := &fakeProvider{name: "primary", resp: &Response{RawAnswer: "direct answer"}}
	fallback := &fakeProvider{name: "fallback"}

	chain := newTestChain(primary, fallback)
	resp, providerName, attempts, err := chain.Execute(context.Background(), &Request{QueryText: "best crm software"})

	require.NoError(t, err)
	assert.Equal(t, "direct answer", resp.RawAnswer)
	assert.Equal(t, "primary", providerName)
	assert.Equal(t, 0, fallback.calls)
	assert.Len(t, attempts, 1)
}

func TestChainUnclassifiedErrorFallsThrough(t *testing.T) {
	primary := &fakeProvider{name: "primary", err: errors.New("something unexpected")}
	fallback := &fakeProvider{name: "fallback", resp: &Response{RawAnswer: "recovered"}}

	chain := newTestChain(primary, fallback)
	resp, providerName, _, err := chain.Execute(context.Background(), &Request{QueryText: "best crm software"})

	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.RawAnswer)
	assert.Equal(t, "fallback", providerName)
}

func TestChainAbortsOnParentCancellation(t *testing.T) {
	slow := &fakeProvider{name: "slow", delay: time.Second, resp: &Response{RawAnswer: "never"}}
	fallback := &fakeProvider{name: "fallback", resp: &Response{RawAnswer: "never either"}}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	chain := newTestChain(slow, fallback)
	_, _, _, err := chain.Execute(ctx, &Request{QueryText: "best crm software"})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, fallback.calls)
}

func TestChainAppliesPerProviderModelAndParams(t *testing.T) {
	primary := &fakeProvider{name: "primary", err: Transient("primary", errors.New("upstream 503"))}
	fallback := &fakeProvider{name: "fallback", resp: &Response{RawAnswer: "answer"}}

	chain := NewChain("claude", []ChainLink{
		{Provider: primary, Ref: models.ProviderRef{Name: "primary", Enabled: true, Model: "claude-opus", Params: map[string]string{"region": "us"}}},
		{Provider: fallback, Ref: models.ProviderRef{Name: "fallback", Enabled: true, Model: "claude-haiku"}},
	}, 5*time.Second, common.GetLogger())

	_, providerName, _, err := chain.Execute(context.Background(), &Request{QueryText: "best crm software"})
	require.NoError(t, err)
	assert.Equal(t, "fallback", providerName)

	// Each call carries its own config entry's model and params
	assert.Equal(t, "claude-opus", primary.gotModel)
	assert.Equal(t, "us", primary.gotParams["region"])
	assert.Equal(t, "claude-haiku", fallback.gotModel)
	assert.Nil(t, fallback.gotParams)
}

func TestChainWithNoProviders(t *testing.T) {
	chain := newTestChain()
	_, _, _, err := chain.Execute(context.Background(), &Request{QueryText: "best crm software"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no enabled providers")
}

func TestIsTransientClassification(t *testing.T) {
	assert.True(t, IsTransient(Transient("p", errors.New("429"))))
	assert.False(t, IsTransient(Hard("p", errors.New("401"))))
	assert.True(t, IsTransient(errors.New("bare error")))
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{408, true},
		{429, true},
		{500, true},
		{503, true},
		{400, false},
		{401, false},
		{403, false},
		{404, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			err := ClassifyStatus("p", tt.status, "body")
			assert.Equal(t, tt.transient, IsTransient(err))
		})
	}
}

func TestResponseIsAsync(t *testing.T) {
	assert.True(t, (&Response{Handle: "cap_123"}).IsAsync())
	assert.False(t, (&Response{RawAnswer: "text"}).IsAsync())
	assert.False(t, (&Response{RawAnswer: "text", Handle: "cap_123"}).IsAsync())
	assert.False(t, (&Response{}).IsAsync())
}
