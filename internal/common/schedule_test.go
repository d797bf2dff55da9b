package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateJobSchedule(t *testing.T) {
	assert.NoError(t, ValidateJobSchedule("0 2 * * *"))
	assert.NoError(t, ValidateJobSchedule("*/30 * * * * *")) // seconds field accepted
	assert.NoError(t, ValidateJobSchedule("@daily"))
	assert.NoError(t, ValidateJobSchedule("@never"))
	assert.NoError(t, ValidateJobSchedule("  @never  "))

	assert.Error(t, ValidateJobSchedule(""))
	assert.Error(t, ValidateJobSchedule("   "))
	assert.Error(t, ValidateJobSchedule("every day at 2am"))
	assert.Error(t, ValidateJobSchedule("99 * * * *"))
}

func TestNextFireTime(t *testing.T) {
	after := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)

	next, err := NextFireTime("0 2 * * *", after, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC), next.UTC())

	next, err = NextFireTime(ScheduleNever, after, time.UTC)
	require.NoError(t, err)
	assert.True(t, next.IsZero())

	_, err = NextFireTime("bogus", after, time.UTC)
	assert.Error(t, err)
}

func TestNextFireTimeNilLocationDefaultsToUTC(t *testing.T) {
	after := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)

	next, err := NextFireTime("0 2 * * *", after, nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC), next.UTC())
}

func TestSlotFor(t *testing.T) {
	sydney, err := time.LoadLocation("Australia/Sydney")
	require.NoError(t, err)

	instant := time.Date(2026, 3, 1, 2, 15, 42, 999, time.UTC)
	slot := SlotFor(instant)

	assert.Equal(t, time.Date(2026, 3, 1, 2, 15, 0, 0, time.UTC), slot)
	assert.Equal(t, slot, SlotFor(instant.In(sydney)))
	assert.Equal(t, slot, SlotFor(instant.Add(10*time.Second)))
}
