package sales

import "time"

// dateOnly drops the clock part of t, keeping its calendar day
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// OverdueCutoff is the instant installments due strictly before are overdue at now
func OverdueCutoff(now time.Time) time.Time {
	return dateOnly(now)
}

// daysBetween counts calendar days from a to b (negative when b is earlier)
func daysBetween(a, b time.Time) int {
	return int(dateOnly(b).Sub(dateOnly(a)).Hours() / 24)
}

// addMonths adds n calendar months, clamping to the last day of the target month
// so that Jan 31 + 1 month lands on Feb 28/29 instead of rolling into March.
func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	firstOfTarget := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()
	if d > lastDay {
		d = lastDay
	}
	return firstOfTarget.AddDate(0, 0, d-1)
}
