package scheduler

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
	"github.com/ternarybob/sonar/internal/storage/badger"
)

// fakeDispatcher records dispatched runs and finalizes them
type fakeDispatcher struct {
	storage interfaces.StorageManager

	mu   sync.Mutex
	runs []*models.JobRun
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, run *models.JobRun) error {
	f.mu.Lock()
	f.runs = append(f.runs, run)
	f.mu.Unlock()

	if err := run.Finalize(1, 1, 0); err != nil {
		return err
	}
	return f.storage.JobRunStorage().UpdateRun(ctx, run)
}

func (f *fakeDispatcher) dispatched() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.runs)
}

func newTestStorage(t *testing.T) interfaces.StorageManager {
	t.Helper()

	manager, err := badger.NewManager(common.GetLogger(), &common.BadgerConfig{
		Path: filepath.Join(t.TempDir(), "db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	return manager
}

func newTestService(t *testing.T, storage interfaces.StorageManager) (*Service, *fakeDispatcher) {
	t.Helper()

	dispatcher := &fakeDispatcher{storage: storage}
	config := common.NewDefaultConfig()
	config.Scheduler.TickInterval = "2m"
	config.Scheduler.StaleRunAge = "1h"

	return NewService(storage, dispatcher, nil, config, common.GetLogger()), dispatcher
}

func seedJob(t *testing.T, storage interfaces.StorageManager, schedule string, enabled bool) *models.ScheduledJob {
	t.Helper()

	job := &models.ScheduledJob{
		ID:         common.NewJobID(),
		BrandID:    "brand_1",
		CustomerID: "cust_1",
		Name:       "minutely collection",
		Type:       models.JobTypeCollection,
		Schedule:   schedule,
		Engines:    []string{models.EngineClaude},
		Enabled:    enabled,
	}
	require.NoError(t, storage.ScheduledJobStorage().SaveJob(context.Background(), job))
	return job
}

func waitForDispatches(t *testing.T, dispatcher *fakeDispatcher, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return dispatcher.dispatched() >= want
	}, 3*time.Second, 10*time.Millisecond)
}

func TestTickMaterializesDueRun(t *testing.T) {
	storage := newTestStorage(t)
	service, dispatcher := newTestService(t, storage)
	job := seedJob(t, storage, "* * * * *", true)

	now := time.Now()
	service.Tick(context.Background(), now)
	waitForDispatches(t, dispatcher, 1)

	runs, err := storage.JobRunStorage().ListRunsForJob(context.Background(), job.ID, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	run := runs[0]
	assert.Equal(t, models.TriggerCron, run.Trigger)
	assert.Equal(t, models.RunSlotKey(job.ID, run.ScheduledFor), run.SlotKey)
	assert.True(t, run.IsTerminal())
}

func TestTickRunCarriesEvaluatedFireTime(t *testing.T) {
	storage := newTestStorage(t)
	service, dispatcher := newTestService(t, storage)
	job := seedJob(t, storage, "* * * * *", true)

	now := time.Now()
	fireAt, ok := service.dueAt(job, now)
	require.True(t, ok)

	due, err := service.dueJobs(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.True(t, due[0].fireAt.Equal(fireAt))

	service.Tick(context.Background(), now)
	waitForDispatches(t, dispatcher, 1)

	// The materialized run services exactly the fire time the due evaluation
	// produced; the tick does not re-derive it
	runs, err := storage.JobRunStorage().ListRunsForJob(context.Background(), job.ID, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].ScheduledFor.Equal(fireAt))
	assert.Equal(t, models.RunSlotKey(job.ID, fireAt), runs[0].SlotKey)
}

func TestTickIsIdempotentPerSlot(t *testing.T) {
	storage := newTestStorage(t)
	service, _ := newTestService(t, storage)
	job := seedJob(t, storage, "* * * * *", true)

	// A run is already active for the slot the tick would fire
	now := time.Now()
	fireAt, ok := service.dueAt(job, now)
	require.True(t, ok)

	existing := models.NewJobRun(common.NewRunID(), job, models.TriggerCron, fireAt)
	require.NoError(t, storage.JobRunStorage().SaveRun(context.Background(), existing))

	service.Tick(context.Background(), now)

	count, err := storage.JobRunStorage().CountRunsForJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestListDueJobsSkipsDisabledAndOneOff(t *testing.T) {
	storage := newTestStorage(t)
	service, _ := newTestService(t, storage)

	seedJob(t, storage, "* * * * *", false)
	seedJob(t, storage, models.ScheduleNever, true)
	active := seedJob(t, storage, "* * * * *", true)

	due, err := service.ListDueJobs(context.Background(), time.Now())
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, active.ID, due[0].ID)
}

func TestListDueJobsRespectsSchedule(t *testing.T) {
	storage := newTestStorage(t)
	service, _ := newTestService(t, storage)

	// Fires at 02:00 daily; a 10:00 tick window never contains it
	seedJob(t, storage, "0 2 * * *", true)

	now := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	due, err := service.ListDueJobs(context.Background(), now)
	require.NoError(t, err)
	assert.Empty(t, due)

	justPastTwo := time.Date(2026, 8, 24, 2, 1, 0, 0, time.UTC)
	due, err = service.ListDueJobs(context.Background(), justPastTwo)
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestTriggerJobDispatchesImmediately(t *testing.T) {
	storage := newTestStorage(t)
	service, dispatcher := newTestService(t, storage)
	job := seedJob(t, storage, models.ScheduleNever, true)

	run, err := service.TriggerJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TriggerManual, run.Trigger)

	waitForDispatches(t, dispatcher, 1)

	final, err := storage.JobRunStorage().GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.True(t, final.IsTerminal())
}

func TestTriggerJobUnknownJob(t *testing.T) {
	storage := newTestStorage(t)
	service, _ := newTestService(t, storage)

	_, err := service.TriggerJob(context.Background(), "job_missing")
	require.Error(t, err)
}

func TestCleanupOrphanedRuns(t *testing.T) {
	storage := newTestStorage(t)
	service, _ := newTestService(t, storage)
	job := seedJob(t, storage, "* * * * *", true)

	queued := models.NewJobRun(common.NewRunID(), job, models.TriggerCron, time.Now())
	require.NoError(t, storage.JobRunStorage().SaveRun(context.Background(), queued))

	running := models.NewJobRun(common.NewRunID(), job, models.TriggerCron, time.Now().Add(time.Minute))
	require.NoError(t, running.MarkRunning())
	require.NoError(t, storage.JobRunStorage().SaveRun(context.Background(), running))

	terminal := models.NewJobRun(common.NewRunID(), job, models.TriggerCron, time.Now().Add(2*time.Minute))
	require.NoError(t, terminal.MarkRunning())
	require.NoError(t, terminal.Finalize(1, 1, 0))
	require.NoError(t, storage.JobRunStorage().SaveRun(context.Background(), terminal))

	count, err := service.CleanupOrphanedRuns(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	for _, id := range []string{queued.ID, running.ID} {
		run, err := storage.JobRunStorage().GetRun(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, models.RunStatusFailed, run.Status)
		assert.Equal(t, "startup", run.Stage)
	}

	untouched, err := storage.JobRunStorage().GetRun(context.Background(), terminal.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, untouched.Status)
}

func TestStaleRunningRunsAreFailed(t *testing.T) {
	storage := newTestStorage(t)
	service, _ := newTestService(t, storage)
	job := seedJob(t, storage, models.ScheduleNever, true)

	stale := models.NewJobRun(common.NewRunID(), job, models.TriggerManual, time.Now())
	require.NoError(t, stale.MarkRunning())
	past := time.Now().Add(-3 * time.Hour)
	stale.StartedAt = &past
	require.NoError(t, storage.JobRunStorage().SaveRun(context.Background(), stale))

	fresh := models.NewJobRun(common.NewRunID(), job, models.TriggerManual, time.Now())
	require.NoError(t, fresh.MarkRunning())
	require.NoError(t, storage.JobRunStorage().SaveRun(context.Background(), fresh))

	failed := service.failStaleRuns(context.Background())
	assert.Equal(t, 1, failed)

	staleRun, err := storage.JobRunStorage().GetRun(context.Background(), stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, staleRun.Status)
	assert.Equal(t, "stale", staleRun.Stage)

	freshRun, err := storage.JobRunStorage().GetRun(context.Background(), fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, freshRun.Status)
}

func TestStartStopLifecycle(t *testing.T) {
	storage := newTestStorage(t)
	service, _ := newTestService(t, storage)

	require.NoError(t, service.Start())
	assert.True(t, service.IsRunning())
	require.Error(t, service.Start())

	require.NoError(t, service.Stop())
	assert.False(t, service.IsRunning())
	require.NoError(t, service.Stop())
}
