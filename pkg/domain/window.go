package domain

import "time"

// DateWindow is the inclusive time range used to decide "new enough" articles
type DateWindow struct {
	Start time.Time
	End   time.Time
}

// WindowFor computes the window for a run starting at now.
// A Monday run reaches back to Friday 00:00 to cover the weekend; any other day
// covers the preceding 24 hours.
func WindowFor(now time.Time) DateWindow {
	if now.Weekday() == time.Monday {
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		return DateWindow{Start: midnight.AddDate(0, 0, -3), End: now}
	}
	return DateWindow{Start: now.Add(-24 * time.Hour), End: now}
}

// Contains reports whether t falls inside the window
func (w DateWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}
