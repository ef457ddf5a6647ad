package application

import (
	"testing"
	"time"

	"github.com/AzielCF/az-bulk/bulkmessage/domain/job"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func TestNextRun(t *testing.T) {
	cases := []struct {
		name string
		rule job.Recurrence
		want time.Time
	}{
		{"daily", job.Recurrence{Type: job.ScheduleDaily}, time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)},
		{"weekly", job.Recurrence{Type: job.ScheduleWeekly}, time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)},
		{"monthly", job.Recurrence{Type: job.ScheduleMonthly}, time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)},
		{"custom hours", job.Recurrence{Type: job.ScheduleCustom, Interval: "2 hours"}, time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)},
		{"custom minutes no space", job.Recurrence{Type: job.ScheduleCustom, Interval: "45minutes"}, time.Date(2024, 1, 1, 10, 45, 0, 0, time.UTC)},
		{"custom day uppercase", job.Recurrence{Type: job.ScheduleCustom, Interval: "3 DAY"}, time.Date(2024, 1, 4, 10, 0, 0, 0, time.UTC)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			next, err := NextRun(tc.rule, baseTime)
			require.NoError(t, err)
			require.NotNil(t, next)
			assert.True(t, tc.want.Equal(*next), "got %s", next)
		})
	}
}

func TestNextRun_Once(t *testing.T) {
	next, err := NextRun(job.Recurrence{Type: job.ScheduleOnce}, baseTime)
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestNextRun_MonthlyClampsDay(t *testing.T) {
	next, err := NextRun(job.Recurrence{Type: job.ScheduleMonthly}, time.Date(2024, 1, 31, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2024, 2, 29, 9, 0, 0, 0, time.UTC), *next)
}

func TestNextRun_InvalidInterval(t *testing.T) {
	for _, raw := range []string{"abc", "", "0 hours", "2 weeks", "hours 2", "-1 day"} {
		_, err := NextRun(job.Recurrence{Type: job.ScheduleCustom, Interval: raw}, baseTime)
		assert.ErrorIs(t, err, job.ErrInvalidIntervalFormat, raw)
	}
}

func TestNextRun_UnknownType(t *testing.T) {
	_, err := NextRun(job.Recurrence{Type: "yearly"}, baseTime)
	assert.ErrorIs(t, err, job.ErrInvalidScheduleType)
}

func TestNextRun_EndDateCutoff(t *testing.T) {
	end := time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC)
	next, err := NextRun(job.Recurrence{Type: job.ScheduleDaily, EndDate: &end}, baseTime)
	require.NoError(t, err)
	assert.Nil(t, next)

	// exactly on the end date is still allowed
	end = time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	next, err = NextRun(job.Recurrence{Type: job.ScheduleDaily, EndDate: &end}, baseTime)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, end, *next)
}

func TestNextAfter_CatchesUpFixed(t *testing.T) {
	now := time.Date(2024, 1, 5, 11, 0, 0, 0, time.UTC)
	next, err := NextAfter(job.Recurrence{Type: job.ScheduleDaily}, baseTime, now)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2024, 1, 6, 10, 0, 0, 0, time.UTC), *next)

	// a slot exactly at now is skipped
	now = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	next, err = NextAfter(job.Recurrence{Type: job.ScheduleCustom, Interval: "1 hour"}, baseTime, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC), *next)
}

func TestNextAfter_NoCatchUpNeeded(t *testing.T) {
	next, err := NextAfter(job.Recurrence{Type: job.ScheduleDaily}, baseTime, baseTime.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC), *next)
}

func TestNextAfter_MonthlyKeepsAnchorDay(t *testing.T) {
	base := time.Date(2024, 1, 31, 9, 0, 0, 0, time.UTC)
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	next, err := NextAfter(job.Recurrence{Type: job.ScheduleMonthly}, base, now)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2024, 3, 31, 9, 0, 0, 0, time.UTC), *next)
}

func TestNextAfter_EndDate(t *testing.T) {
	end := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	now := time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC)

	next, err := NextAfter(job.Recurrence{Type: job.ScheduleDaily, EndDate: &end}, baseTime, now)
	require.NoError(t, err)
	assert.Nil(t, next)

	next, err = NextAfter(job.Recurrence{Type: job.ScheduleMonthly, EndDate: &end}, baseTime, now)
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestParseInterval(t *testing.T) {
	d, err := ParseInterval("  90 minutes ")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, d)

	_, err = ParseInterval("99999999999999 days")
	assert.ErrorIs(t, err, job.ErrInvalidIntervalFormat)
}
