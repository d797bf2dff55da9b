package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validJob() *ScheduledJob {
	return &ScheduledJob{
		ID:         "job_1",
		BrandID:    "brand_1",
		CustomerID: "cust_1",
		Name:       "nightly collection",
		Type:       JobTypeCollection,
		Schedule:   "0 2 * * *",
		Engines:    []string{EngineClaude, EngineGemini},
		Enabled:    true,
	}
}

func TestScheduledJobValidate(t *testing.T) {
	assert.NoError(t, validJob().Validate())

	job := validJob()
	job.Schedule = "not a cron"
	assert.Error(t, job.Validate())

	job = validJob()
	job.Type = "compaction"
	assert.Error(t, job.Validate())

	job = validJob()
	job.Engines = nil
	assert.Error(t, job.Validate())

	// Scoring jobs run no collectors, so engines are optional
	job = validJob()
	job.Type = JobTypeScoring
	job.Engines = nil
	assert.NoError(t, job.Validate())

	job = validJob()
	job.Timezone = "Mars/Olympus_Mons"
	assert.Error(t, job.Validate())

	job = validJob()
	job.Timezone = "Australia/Sydney"
	assert.NoError(t, job.Validate())
}

func TestScheduleNeverIsValidButOneOff(t *testing.T) {
	job := validJob()
	job.Schedule = ScheduleNever

	assert.NoError(t, job.Validate())
	assert.True(t, job.IsOneOff())

	next, err := job.NextFireAfter(time.Now())
	require.NoError(t, err)
	assert.True(t, next.IsZero())
}

func TestNextFireAfterHonorsTimezone(t *testing.T) {
	job := validJob()
	job.Schedule = "0 2 * * *"
	job.Timezone = "Australia/Sydney"

	// 2026-03-01 14:00 UTC is 2026-03-02 01:00 in Sydney (AEDT, UTC+11),
	// so the next 02:00 Sydney fire is an hour later
	after := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)
	next, err := job.NextFireAfter(after)
	require.NoError(t, err)

	sydney := job.Location()
	assert.Equal(t, 2, next.In(sydney).Hour())
	assert.Equal(t, time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC).Unix(), next.Unix())
}

func TestNextFireAfterDescriptor(t *testing.T) {
	job := validJob()
	job.Schedule = "@daily"

	after := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	next, err := job.NextFireAfter(after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), next.UTC())
}

func TestLookbackWindow(t *testing.T) {
	job := validJob()
	assert.Equal(t, DefaultRetryLookback, job.LookbackWindow())

	job.SetLookbackWindow(24 * time.Hour)
	assert.Equal(t, 24*time.Hour, job.LookbackWindow())

	job.Metadata["lookback_window"] = "garbage"
	assert.Equal(t, DefaultRetryLookback, job.LookbackWindow())

	job.Metadata["lookback_window"] = "-6h"
	assert.Equal(t, DefaultRetryLookback, job.LookbackWindow())

	job.Metadata["lookback_window"] = 42
	assert.Equal(t, DefaultRetryLookback, job.LookbackWindow())
}
