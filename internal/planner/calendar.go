package planner

import "time"

// DayLayout is the calendar-day form used in storage and slot keys.
const DayLayout = "2006-01-02"

// Day normalizes a timestamp to midnight UTC so calendar days compare
// without timezone-induced off-by-one errors.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD value into a normalized day.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DayLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return Day(t), nil
}

// IsWorkingDay reports whether production can run on the day: weekends
// and holidays are blocked.
func IsWorkingDay(day time.Time, holidays map[string]bool) bool {
	switch day.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return !holidays[day.Format(DayLayout)]
}
