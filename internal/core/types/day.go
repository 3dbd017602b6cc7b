package types

import "time"

const day = 24 * time.Hour

// Day returns the calendar date of t, read in t's own zone, as UTC midnight.
// Purchase and expiry dates are calendar days; comparing them against a
// clock in another zone must compare dates, not instants.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween counts calendar days from from to to; negative when to is earlier.
func DaysBetween(from, to time.Time) int {
	return int(Day(to).Sub(Day(from)) / day)
}
