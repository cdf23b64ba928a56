// Package weekkey handles ISO week keys in the YYYY-Www format used
// throughout the store and the API.
package weekkey

import (
	"fmt"
	"time"
)

// DaysPerWeek is the fixed length of a daily-values slot array.
const DaysPerWeek = 7

// FromTime returns the ISO week key for t, e.g. "2025-W31".
func FromTime(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// Parse validates a week key and returns its year and ISO week number.
// Only canonical keys are accepted: anything Parse takes, FromTime could
// have produced, so stored keys always compare and sort correctly.
func Parse(key string) (year, week int, err error) {
	if _, err := fmt.Sscanf(key, "%4d-W%2d", &year, &week); err != nil {
		return 0, 0, fmt.Errorf("invalid week key %q: %w", key, err)
	}
	if week < 1 || week > 53 {
		return 0, 0, fmt.Errorf("invalid week key %q: week %d out of range", key, week)
	}
	if fmt.Sprintf("%d-W%02d", year, week) != key {
		return 0, 0, fmt.Errorf("invalid week key %q: not canonical", key)
	}
	return year, week, nil
}

// Valid reports whether key is a well-formed week key.
func Valid(key string) bool {
	_, _, err := Parse(key)
	return err == nil
}

// PaceYear returns the ISO week-year of t together with t's clamped
// position inside that year. Week keys carry the ISO week-year, so
// yearly totals select by it; on the few days around New Year where the
// ISO week-year differs from the calendar year, the elapsed-day count is
// clamped into [1, daysInYear] instead of going out of range.
func PaceYear(t time.Time) (year, dayOfYear, daysInYear int) {
	year, _ = t.ISOWeek()

	daysInYear = 365
	if isLeapYear(year) {
		daysInYear = 366
	}

	jan1 := time.Date(year, 1, 1, 0, 0, 0, 0, t.Location())
	dayOfYear = int(t.Sub(jan1).Hours()/24) + 1
	if dayOfYear < 1 {
		dayOfYear = 1
	}
	if dayOfYear > daysInYear {
		dayOfYear = daysInYear
	}
	return year, dayOfYear, daysInYear
}

func isLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// DayIndex returns the Monday-first day index (0-6) of t within its week.
func DayIndex(t time.Time) int {
	// time.Weekday is Sunday-first
	wd := int(t.Weekday())
	if wd == 0 {
		return 6
	}
	return wd - 1
}
