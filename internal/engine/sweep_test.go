package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/sonar/internal/collectors"
	"github.com/ternarybob/sonar/internal/common"
	"github.com/ternarybob/sonar/internal/interfaces"
	"github.com/ternarybob/sonar/internal/models"
)

// stubPoller scripts poll responses keyed by handle
type stubPoller struct {
	states map[string]*collectors.PollState
}

func (s *stubPoller) Poll(ctx context.Context, handle string) (*collectors.PollState, error) {
	state, ok := s.states[handle]
	if !ok {
		return &collectors.PollState{Done: false}, nil
	}
	return state, nil
}

func parkResult(t *testing.T, storage interfaces.StorageManager, run *models.JobRun, query *models.Query, handle string) *models.ExecutionResult {
	t.Helper()

	result := models.NewExecutionResult(common.NewResultID(), run, query, models.EngineAIOverview)
	require.NoError(t, result.MarkRunning("async", handle))
	require.NoError(t, storage.ResultStorage().SaveResult(context.Background(), result))
	return result
}

func TestSweepResolvesCompletedHandles(t *testing.T) {
	storage := newTestStorage(t)
	run := newTestRun(t, storage)
	query := seedQuery(t, storage, "best crm software")

	done := parkResult(t, storage, run, query, "cap_done")
	pending := parkResult(t, storage, run, query, "cap_pending")
	broken := parkResult(t, storage, run, query, "cap_broken")

	builder := &stubBuilder{pollers: map[string]collectors.AsyncPoller{
		"async": &stubPoller{states: map[string]*collectors.PollState{
			"cap_done":    {Done: true, RawAnswer: "overview markdown"},
			"cap_pending": {Done: false},
			"cap_broken":  {Done: true, Error: "capture failed upstream"},
		}},
	}}

	sweep := NewSweep(storage, builder, nil, newTestConfig(), common.GetLogger())
	resolved, err := sweep.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, resolved)

	completed, err := storage.ResultStorage().GetResult(context.Background(), done.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ResultStatusCompleted, completed.Status)
	assert.Equal(t, "overview markdown", completed.RawAnswer)

	stillRunning, err := storage.ResultStorage().GetResult(context.Background(), pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ResultStatusRunning, stillRunning.Status)

	failed, err := storage.ResultStorage().GetResult(context.Background(), broken.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ResultStatusFailed, failed.Status)
	assert.Equal(t, "capture failed upstream", failed.Error)
}

func TestSweepExpiresStaleHandles(t *testing.T) {
	storage := newTestStorage(t)
	run := newTestRun(t, storage)
	query := seedQuery(t, storage, "best crm software")

	stale := parkResult(t, storage, run, query, "cap_stale")

	// Backdate the result past the handle age limit
	stale.CreatedAt = time.Now().Add(-2 * time.Hour)
	require.NoError(t, storage.ResultStorage().UpdateResult(context.Background(), stale))

	builder := &stubBuilder{pollers: map[string]collectors.AsyncPoller{
		"async": &stubPoller{states: map[string]*collectors.PollState{}},
	}}

	config := newTestConfig()
	config.Sweep.MaxHandleAge = "30m"

	sweep := NewSweep(storage, builder, nil, config, common.GetLogger())
	resolved, err := sweep.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)

	expired, err := storage.ResultStorage().GetResult(context.Background(), stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ResultStatusFailed, expired.Status)
	assert.Contains(t, expired.Error, "unresolved after")
}

func TestSweepLeavesTerminalResultsAlone(t *testing.T) {
	storage := newTestStorage(t)
	run := newTestRun(t, storage)
	query := seedQuery(t, storage, "best crm software")

	result := models.NewExecutionResult(common.NewResultID(), run, query, models.EngineClaude)
	require.NoError(t, result.MarkRunning("ok", ""))
	require.NoError(t, result.MarkCompleted("ok", "already done", time.Second))
	require.NoError(t, storage.ResultStorage().SaveResult(context.Background(), result))

	sweep := NewSweep(storage, &stubBuilder{}, nil, newTestConfig(), common.GetLogger())
	resolved, err := sweep.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, resolved)

	unchanged, err := storage.ResultStorage().GetResult(context.Background(), result.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ResultStatusCompleted, unchanged.Status)
	assert.Equal(t, "already done", unchanged.RawAnswer)
}
