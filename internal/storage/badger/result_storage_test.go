package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/sonar/internal/common"
	"github.com/ternarybob/sonar/internal/interfaces"
	"github.com/ternarybob/sonar/internal/models"
)

func seedResult(t *testing.T, storage interfaces.ResultStorage, brandID string, status models.ResultStatus, createdAt time.Time) *models.ExecutionResult {
	t.Helper()

	result := &models.ExecutionResult{
		ID:         common.NewResultID(),
		RunID:      "run_1",
		QueryID:    "qry_1",
		BrandID:    brandID,
		CustomerID: "cust_1",
		Engine:     models.EngineClaude,
		Status:     models.ResultStatusPending,
		CreatedAt:  createdAt,
	}

	switch status {
	case models.ResultStatusRunning:
		require.NoError(t, result.MarkRunning("overview_async", "cap_123"))
	case models.ResultStatusCompleted:
		require.NoError(t, result.MarkRunning("anthropic", ""))
		require.NoError(t, result.MarkCompleted("anthropic", "answer", time.Second))
	case models.ResultStatusFailed:
		require.NoError(t, result.MarkRunning("anthropic", ""))
		require.NoError(t, result.MarkFailed("provider exhausted"))
	}

	require.NoError(t, storage.SaveResult(context.Background(), result))
	return result
}

func TestListFailedResultsScoping(t *testing.T) {
	manager := newTestManager(t)
	results := manager.ResultStorage()
	now := time.Now()

	recentFailed := seedResult(t, results, "brand_1", models.ResultStatusFailed, now.Add(-1*time.Hour))
	seedResult(t, results, "brand_1", models.ResultStatusFailed, now.Add(-90*time.Hour))   // outside window
	seedResult(t, results, "brand_1", models.ResultStatusCompleted, now.Add(-1*time.Hour)) // success
	seedResult(t, results, "brand_1", models.ResultStatusRunning, now.Add(-1*time.Hour))   // in flight
	seedResult(t, results, "brand_2", models.ResultStatusFailed, now.Add(-1*time.Hour))    // other brand

	failed, err := results.ListFailedResults(context.Background(), "brand_1", now.Add(-72*time.Hour))
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, recentFailed.ID, failed[0].ID)
}

func TestListRunningWithHandle(t *testing.T) {
	manager := newTestManager(t)
	results := manager.ResultStorage()
	now := time.Now()

	parked := seedResult(t, results, "brand_1", models.ResultStatusRunning, now)

	// Running without a handle is the engine's own in-flight work, not the sweep's
	sync := seedResult(t, results, "brand_1", models.ResultStatusPending, now)
	require.NoError(t, sync.MarkRunning("anthropic", ""))
	require.NoError(t, results.UpdateResult(context.Background(), sync))

	seedResult(t, results, "brand_1", models.ResultStatusCompleted, now)

	rows, err := results.ListRunningWithHandle(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, parked.ID, rows[0].ID)
	assert.Equal(t, "cap_123", rows[0].Handle)
}

func TestCompleteRunningResolvesParkedResult(t *testing.T) {
	manager := newTestManager(t)
	results := manager.ResultStorage()

	parked := seedResult(t, results, "brand_1", models.ResultStatusRunning, time.Now())

	require.NoError(t, results.CompleteRunning(context.Background(), parked.ID, "resolved answer"))

	resolved, err := results.GetResult(context.Background(), parked.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ResultStatusCompleted, resolved.Status)
	assert.Equal(t, "resolved answer", resolved.RawAnswer)
	assert.Equal(t, "overview_async", resolved.Provider)
	assert.NotNil(t, resolved.CompletedAt)
}

func TestFailRunningResolvesParkedResult(t *testing.T) {
	manager := newTestManager(t)
	results := manager.ResultStorage()

	parked := seedResult(t, results, "brand_1", models.ResultStatusRunning, time.Now())

	require.NoError(t, results.FailRunning(context.Background(), parked.ID, "capture failed"))

	resolved, err := results.GetResult(context.Background(), parked.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ResultStatusFailed, resolved.Status)
	assert.Equal(t, "capture failed", resolved.Error)
}

func TestResolveRunningRejectsNonRunningRows(t *testing.T) {
	manager := newTestManager(t)
	results := manager.ResultStorage()

	completed := seedResult(t, results, "brand_1", models.ResultStatusCompleted, time.Now())
	err := results.CompleteRunning(context.Background(), completed.ID, "late answer")
	assert.Error(t, err)

	pending := seedResult(t, results, "brand_1", models.ResultStatusPending, time.Now())
	err = results.FailRunning(context.Background(), pending.ID, "too soon")
	assert.Error(t, err)

	// Neither row changed
	row, err := results.GetResult(context.Background(), completed.ID)
	require.NoError(t, err)
	assert.Equal(t, "answer", row.RawAnswer)

	row, err = results.GetResult(context.Background(), pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ResultStatusPending, row.Status)
}

func TestCountResultsByStatus(t *testing.T) {
	manager := newTestManager(t)
	results := manager.ResultStorage()
	now := time.Now()

	seedResult(t, results, "brand_1", models.ResultStatusCompleted, now)
	seedResult(t, results, "brand_1", models.ResultStatusCompleted, now)
	seedResult(t, results, "brand_1", models.ResultStatusFailed, now)

	counts, err := results.CountResultsByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, counts[models.ResultStatusCompleted])
	assert.Equal(t, 1, counts[models.ResultStatusFailed])
}
