package calendar

import (
	"time"

	"cybercal/internal/models"
)

// Day is one cell of a month grid.
type Day struct {
	Date       time.Time
	Key        string // YYYY-MM-DD
	InMonth    bool
	Today      bool
	Selected   bool
	HasSession bool
}

// Month is a Sunday-first grid of whole weeks covering one month.
type Month struct {
	Title string // e.g. "March 2025"
	Prev  string // day key of the first of the previous month
	Next  string // day key of the first of the next month
	Weeks [][]Day
}

// MonthGrid builds the grid for the month containing selected, marking the days that
// have sessions.
func (b Binder) MonthGrid(sessions []models.Session, selected, now time.Time) Month {
	selected = selected.In(b.loc)
	first := time.Date(selected.Year(), selected.Month(), 1, 0, 0, 0, 0, b.loc)
	start := first.AddDate(0, 0, -int(first.Weekday()))

	withSessions := make(map[string]bool, len(sessions))
	for _, s := range sessions {
		if key := b.sessionDay(s); key != "" {
			withSessions[key] = true
		}
	}

	todayKey := b.DayKey(now)
	selectedKey := b.DayKey(selected)
	m := Month{
		Title: first.Format("January 2006"),
		Prev:  b.DayKey(first.AddDate(0, -1, 0)),
		Next:  b.DayKey(first.AddDate(0, 1, 0)),
	}
	for d := start; ; {
		week := make([]Day, 0, 7)
		for i := 0; i < 7; i++ {
			key := b.DayKey(d)
			week = append(week, Day{
				Date:       d,
				Key:        key,
				InMonth:    d.Month() == first.Month(),
				Today:      key == todayKey,
				Selected:   key == selectedKey,
				HasSession: withSessions[key],
			})
			d = d.AddDate(0, 0, 1)
		}
		m.Weeks = append(m.Weeks, week)
		if d.Month() != first.Month() {
			break
		}
	}
	return m
}

// Stats summarizes the collection for the admin dashboard.
type Stats struct {
	Total     int
	Upcoming  int
	Completed int
}

// Summarize counts sessions starting at or after now as upcoming and earlier ones as
// completed. Sessions with unparseable dates only count towards the total.
func (b Binder) Summarize(sessions []models.Session, now time.Time) Stats {
	st := Stats{Total: len(sessions)}
	for _, s := range sessions {
		start, err := s.Start(b.loc)
		if err != nil {
			continue
		}
		if start.Before(now) {
			st.Completed++
		} else {
			st.Upcoming++
		}
	}
	return st
}
