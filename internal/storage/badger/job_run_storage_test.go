package badger

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/sonar/internal/common"
	"github.com/ternarybob/sonar/internal/interfaces"
	"github.com/ternarybob/sonar/internal/models"
)

func newTestManager(t *testing.T) interfaces.StorageManager {
	t.Helper()

	manager, err := NewManager(common.GetLogger(), &common.BadgerConfig{
		Path: filepath.Join(t.TempDir(), "db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	return manager
}

func testJob() *models.ScheduledJob {
	return &models.ScheduledJob{
		ID:         common.NewJobID(),
		BrandID:    "brand_1",
		CustomerID: "cust_1",
		Name:       "nightly collection",
		Type:       models.JobTypeCollection,
		Schedule:   "0 2 * * *",
		Engines:    []string{models.EngineClaude},
		Enabled:    true,
	}
}

func seedQueuedRun(t *testing.T, storage interfaces.JobRunStorage, job *models.ScheduledJob, scheduledFor time.Time) *models.JobRun {
	t.Helper()

	run := models.NewJobRun(common.NewRunID(), job, models.TriggerCron, scheduledFor)
	require.NoError(t, storage.SaveRun(context.Background(), run))
	return run
}

func TestClaimRunSingleWinner(t *testing.T) {
	manager := newTestManager(t)
	runs := manager.JobRunStorage()

	run := seedQueuedRun(t, runs, testJob(), time.Now())

	const claimants = 8
	var wg sync.WaitGroup
	wins := make(chan bool, claimants)

	for i := 0; i < claimants; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := runs.ClaimRun(context.Background(), run.ID)
			require.NoError(t, err)
			wins <- claimed
		}()
	}
	wg.Wait()
	close(wins)

	winners := 0
	for claimed := range wins {
		if claimed {
			winners++
		}
	}
	assert.Equal(t, 1, winners)

	claimed, err := runs.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, claimed.Status)
	assert.NotNil(t, claimed.StartedAt)
}

func TestClaimRunAlreadyTerminal(t *testing.T) {
	manager := newTestManager(t)
	runs := manager.JobRunStorage()

	run := seedQueuedRun(t, runs, testJob(), time.Now())
	require.NoError(t, run.MarkRunning())
	require.NoError(t, run.Finalize(1, 1, 0))
	require.NoError(t, runs.UpdateRun(context.Background(), run))

	claimed, err := runs.ClaimRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestHasActiveRunForSlot(t *testing.T) {
	manager := newTestManager(t)
	runs := manager.JobRunStorage()
	job := testJob()

	slot := time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC)
	run := seedQueuedRun(t, runs, job, slot)

	active, err := runs.HasActiveRunForSlot(context.Background(), run.SlotKey)
	require.NoError(t, err)
	assert.True(t, active)

	// A different slot is free
	other, err := runs.HasActiveRunForSlot(context.Background(), models.RunSlotKey(job.ID, slot.Add(24*time.Hour)))
	require.NoError(t, err)
	assert.False(t, other)

	// Terminal runs release the slot
	require.NoError(t, run.MarkRunning())
	require.NoError(t, run.Finalize(2, 2, 0))
	require.NoError(t, runs.UpdateRun(context.Background(), run))

	active, err = runs.HasActiveRunForSlot(context.Background(), run.SlotKey)
	require.NoError(t, err)
	assert.False(t, active)
}

func TestListRunsByStatusAndCounts(t *testing.T) {
	manager := newTestManager(t)
	runs := manager.JobRunStorage()
	job := testJob()

	queued := seedQueuedRun(t, runs, job, time.Now())
	_ = queued

	failed := seedQueuedRun(t, runs, job, time.Now().Add(time.Minute))
	require.NoError(t, failed.MarkFailed("collection", "boom"))
	require.NoError(t, runs.UpdateRun(context.Background(), failed))

	byStatus, err := runs.ListRunsByStatus(context.Background(), models.RunStatusFailed)
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, failed.ID, byStatus[0].ID)

	count, err := runs.CountRunsForJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	counts, err := runs.CountRunsByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, counts[models.RunStatusQueued])
	assert.Equal(t, 1, counts[models.RunStatusFailed])
}

func TestUpdateRunNotFound(t *testing.T) {
	manager := newTestManager(t)

	missing := &models.JobRun{ID: "run_missing", Status: models.RunStatusQueued}
	err := manager.JobRunStorage().UpdateRun(context.Background(), missing)
	assert.Error(t, err)
}
