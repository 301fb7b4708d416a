package service

import "time"

// CurrentMonthPeriod returns the calendar month containing now, in UTC: the
// first day at midnight through the last day at 23:59:59.999999.
func CurrentMonthPeriod(now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0).Add(-time.Microsecond)
	return start, end
}

// lookbackWindow returns [today-days, today] as UTC dates.
func lookbackWindow(now time.Time, days int) (time.Time, time.Time) {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return today.AddDate(0, 0, -days), today
}
