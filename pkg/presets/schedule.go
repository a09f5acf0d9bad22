package presets

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hexlane/reconchain/pkg/schema"
)

// scheduleParser accepts standard 5-field cron expressions plus the
// @hourly/@daily style descriptors.
var scheduleParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateSchedule checks that a preset's cron expression parses.
func ValidateSchedule(expr string) error {
	_, err := scheduleParser.Parse(expr)
	return err
}

// NextRun returns the first activation of the schedule after the given
// time. A blank schedule means the preset is manual-only.
func NextRun(expr string, after time.Time) (time.Time, error) {
	if expr == "" {
		return time.Time{}, schema.NewError(schema.ErrCodeValidation, "preset has no schedule")
	}
	sched, err := scheduleParser.Parse(expr)
	if err != nil {
		return time.Time{}, schema.NewErrorf(schema.ErrCodeValidation, "invalid schedule %q", expr).WithCause(err)
	}
	return sched.Next(after), nil
}
