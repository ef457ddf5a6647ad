package timeutils

import (
	"time"
	_ "time/tzdata"

	"github.com/sirupsen/logrus"
)

// DaysIn returns the number of days of month in year.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// AddMonthsClamped moves t forward by n calendar months keeping the wall clock.
// When the target month is shorter, the day is clamped to its last day
// (Jan 31 + 1 month = Feb 28, or Feb 29 on leap years).
func AddMonthsClamped(t time.Time, n int) time.Time {
	year, month, day := t.Date()
	hour, minute, sec := t.Clock()

	// normalize month overflow through time.Date on the first of the month
	first := time.Date(year, month+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	targetYear, targetMonth := first.Year(), first.Month()

	if last := DaysIn(targetYear, targetMonth); day > last {
		day = last
	}
	return time.Date(targetYear, targetMonth, day, hour, minute, sec, t.Nanosecond(), t.Location())
}

// LoadLocation resolves an IANA zone name, falling back to UTC when unknown.
func LoadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		logrus.WithError(err).Warnf("[TIME] Unknown timezone %q, using UTC", name)
		return time.UTC
	}
	return loc
}
