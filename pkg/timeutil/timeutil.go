// Package timeutil provides timezone utilities for the Europe/Paris timezone.
// Usage timestamps in the platform log are instants; the analysis rules
// (evening cutoffs, weekends, calendar days) are defined in French local time.
// No external dependencies - uses only standard library.
package timeutil

import (
	"math"
	"time"
)

// ParisTZ is the Europe/Paris timezone. Falls back to a fixed UTC+1 zone when
// the host has no tzdata; that loses DST but keeps the pipeline running.
var ParisTZ = loadParis()

func loadParis() *time.Location {
	loc, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		return time.FixedZone("Europe/Paris", 1*60*60)
	}
	return loc
}

// Now returns the current time in Paris timezone.
func Now() time.Time {
	return time.Now().In(ParisTZ)
}

// ToParis converts a time to Paris timezone.
func ToParis(t time.Time) time.Time {
	return t.In(ParisTZ)
}

// StartOfDay returns the start of the day (00:00:00) preserving the time's
// location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// IsWeekend checks if the given time falls on a Saturday or Sunday.
// The time is interpreted in its own location; callers localize first.
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// IsSameDay checks if two times are on the same calendar day.
// Both times are interpreted in their own locations.
func IsSameDay(t1, t2 time.Time) bool {
	return t1.Year() == t2.Year() && t1.YearDay() == t2.YearDay()
}

// DaysBetween calculates the number of days between two instants, rounded to
// the nearest whole day. The order of the arguments does not matter.
func DaysBetween(t1, t2 time.Time) int {
	d := t2.Sub(t1)
	if d < 0 {
		d = -d
	}
	return int(math.Round(d.Hours() / 24))
}

// Common date/time formats.
const (
	// FormatDate is the standard date format (YYYY-MM-DD).
	FormatDate = "2006-01-02"
	// FormatDateTime is the standard datetime format.
	FormatDateTime = "2006-01-02 15:04"
	// FormatDateTimeSeconds includes seconds.
	FormatDateTimeSeconds = "2006-01-02 15:04:05"
)

// FormatDateStr formats a time as a date string (YYYY-MM-DD) in its location.
func FormatDateStr(t time.Time) string {
	return t.Format(FormatDate)
}
