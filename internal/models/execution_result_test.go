package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingResult(t *testing.T) *ExecutionResult {
	t.Helper()

	run := NewJobRun("run_1", testRunJob(), TriggerCron, time.Now())
	query := &Query{ID: "qry_1", BrandID: "brand_1", CustomerID: "cust_1", Text: "best crm", Active: true}
	return NewExecutionResult("res_1", run, query, EngineClaude)
}

func TestResultLifecycle(t *testing.T) {
	result := pendingResult(t)
	assert.Equal(t, ResultStatusPending, result.Status)

	require.NoError(t, result.MarkRunning("anthropic", ""))
	assert.NotNil(t, result.StartedAt)

	require.NoError(t, result.MarkCompleted("anthropic", "the answer", 3*time.Second))
	assert.Equal(t, ResultStatusCompleted, result.Status)
	assert.Equal(t, "the answer", result.RawAnswer)
	assert.True(t, result.IsTerminal())

	// Terminal results are immutable
	assert.Error(t, result.MarkFailed("too late"))
	assert.Error(t, result.MarkRunning("anthropic", ""))
}

func TestResultCannotCompleteFromPending(t *testing.T) {
	result := pendingResult(t)
	assert.Error(t, result.MarkCompleted("anthropic", "answer", time.Second))
}

func TestResultFailsDirectlyFromPending(t *testing.T) {
	result := pendingResult(t)

	require.NoError(t, result.MarkFailed("engine disabled"))
	assert.Equal(t, ResultStatusFailed, result.Status)
	assert.NotNil(t, result.CompletedAt)
}

func TestAsyncHandleParksResult(t *testing.T) {
	result := pendingResult(t)

	require.NoError(t, result.MarkRunning("overview_async", "cap_42"))
	assert.Equal(t, "cap_42", result.Handle)
	assert.Equal(t, "overview_async", result.Provider)
	assert.False(t, result.IsTerminal())
}

func TestRecordAttemptKeepsOrder(t *testing.T) {
	result := pendingResult(t)

	result.RecordAttempt(ProviderAttempt{Provider: "overview_scrape", Error: "no overview block", Transient: true})
	result.RecordAttempt(ProviderAttempt{Provider: "overview_browser"})

	require.Len(t, result.Attempts, 2)
	assert.Equal(t, "overview_scrape", result.Attempts[0].Provider)
	assert.True(t, result.Attempts[0].Transient)
	assert.Equal(t, "overview_browser", result.Attempts[1].Provider)
}
