package application

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/AzielCF/az-bulk/bulkmessage/domain/job"
	"github.com/AzielCF/az-bulk/pkg/timeutils"
)

var intervalPattern = regexp.MustCompile(`(?i)^(\d+)\s*(day|days|hour|hours|minute|minutes)$`)

// maxCatchUpSteps bounds the calendar walk when a monthly job is far behind.
const maxCatchUpSteps = 10000

// ParseInterval turns "2 hours", "15minutes" or "1 Day" into a duration.
func ParseInterval(raw string) (time.Duration, error) {
	m := intervalPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return 0, fmt.Errorf("%w: %q", job.ErrInvalidIntervalFormat, raw)
	}

	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", job.ErrInvalidIntervalFormat, raw)
	}

	unit := time.Minute
	switch strings.ToLower(m[2]) {
	case "day", "days":
		unit = 24 * time.Hour
	case "hour", "hours":
		unit = time.Hour
	}

	if n > math.MaxInt64/int64(unit) {
		return 0, fmt.Errorf("%w: %q is too large", job.ErrInvalidIntervalFormat, raw)
	}
	return time.Duration(n) * unit, nil
}

// fixedStep returns the step for rules with a constant period.
func fixedStep(rule job.Recurrence) (time.Duration, bool, error) {
	switch rule.Type {
	case job.ScheduleDaily:
		return 24 * time.Hour, true, nil
	case job.ScheduleWeekly:
		return 7 * 24 * time.Hour, true, nil
	case job.ScheduleCustom:
		d, err := ParseInterval(rule.Interval)
		if err != nil {
			return 0, false, err
		}
		return d, true, nil
	case job.ScheduleMonthly, job.ScheduleOnce:
		return 0, false, nil
	}
	return 0, false, fmt.Errorf("%w: %q", job.ErrInvalidScheduleType, rule.Type)
}

// NextRun computes the occurrence following base. A nil time means the job has
// no further runs: one-shot jobs, or a next run past the end date.
// Monthly rules clamp the day of month; pass base in the job's zone so the
// calendar math follows local dates.
func NextRun(rule job.Recurrence, base time.Time) (*time.Time, error) {
	var next time.Time
	switch rule.Type {
	case job.ScheduleOnce:
		return nil, nil
	case job.ScheduleMonthly:
		next = timeutils.AddMonthsClamped(base, 1)
	default:
		step, _, err := fixedStep(rule)
		if err != nil {
			return nil, err
		}
		next = base.Add(step)
	}
	return withinEnd(rule, next), nil
}

// NextAfter advances from the slot that just ran until the result is strictly
// after now, skipping the slots missed while the job was running or offline.
func NextAfter(rule job.Recurrence, base, now time.Time) (*time.Time, error) {
	step, fixed, err := fixedStep(rule)
	if err != nil {
		return nil, err
	}
	if rule.Type == job.ScheduleOnce {
		return nil, nil
	}

	if fixed {
		next := base.Add(step)
		if !next.After(now) {
			behind := now.Sub(next)
			next = next.Add((behind/step + 1) * step)
		}
		return withinEnd(rule, next), nil
	}

	// monthly: keep the original day of month while walking, clamping per month
	for i := 1; i <= maxCatchUpSteps; i++ {
		next := timeutils.AddMonthsClamped(base, i)
		if rule.EndDate != nil && next.After(*rule.EndDate) {
			return nil, nil
		}
		if next.After(now) {
			return &next, nil
		}
	}
	return nil, fmt.Errorf("no monthly occurrence after %s within %d steps", now.Format(time.RFC3339), maxCatchUpSteps)
}

func withinEnd(rule job.Recurrence, next time.Time) *time.Time {
	if rule.EndDate != nil && next.After(*rule.EndDate) {
		return nil
	}
	return &next
}
