package common

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ScheduleNever is the sentinel schedule for one-off jobs that only run when
// triggered manually. It parses as valid but never fires on its own.
const ScheduleNever = "@never"

// scheduleParser accepts standard 5-field cron expressions, optional
// seconds-resolution 6-field expressions, and descriptors like @daily.
var scheduleParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateJobSchedule validates a job schedule expression at creation time.
// Accepts the @never sentinel for manually triggered jobs.
func ValidateJobSchedule(schedule string) error {
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		return fmt.Errorf("schedule is required")
	}
	if schedule == ScheduleNever {
		return nil
	}

	if _, err := scheduleParser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	return nil
}

// NextFireTime returns the next time a schedule fires at or after the given
// instant, evaluated in the supplied location. Returns a zero time for @never.
func NextFireTime(schedule string, after time.Time, loc *time.Location) (time.Time, error) {
	schedule = strings.TrimSpace(schedule)
	if schedule == ScheduleNever {
		return time.Time{}, nil
	}
	if loc == nil {
		loc = time.UTC
	}

	spec, err := scheduleParser.Parse(schedule)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression: %w", err)
	}

	return spec.Next(after.In(loc)), nil
}

// SlotFor truncates a scheduled fire time to the cron base resolution of one
// minute. Jobs claim runs keyed on this slot so a given (job, slot) pair
// executes at most once.
func SlotFor(t time.Time) time.Time {
	return t.UTC().Truncate(time.Minute)
}
