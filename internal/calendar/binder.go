// Package calendar projects the session collection onto calendar days.
// Everything here is a pure function of its inputs; nothing is cached between calls.
package calendar

import (
	"strings"
	"time"

	"cybercal/internal/models"
)

// Binder bins sessions by calendar day in the viewer's zone.
type Binder struct {
	loc *time.Location
}

// NewBinder returns a binder for viewers in loc. A nil loc means time.Local.
func NewBinder(loc *time.Location) Binder {
	if loc == nil {
		loc = time.Local
	}
	return Binder{loc: loc}
}

// Location returns the viewer's zone.
func (b Binder) Location() *time.Location {
	return b.loc
}

// DayKey formats t's calendar day in the viewer's zone.
func (b Binder) DayKey(t time.Time) string {
	return t.In(b.loc).Format(models.DayLayout)
}

// sessionDay returns the day key of a session, or "" when its date does not parse.
func (b Binder) sessionDay(s models.Session) string {
	start, err := s.Start(b.loc)
	if err != nil {
		return ""
	}
	return b.DayKey(start)
}

// SessionsOnDay returns the sessions whose date falls on day's calendar day, keeping
// collection order. Days are compared as formatted YYYY-MM-DD strings in the viewer's
// zone; the stored offset of a session's date plays no other role.
func (b Binder) SessionsOnDay(sessions []models.Session, day time.Time) []models.Session {
	key := b.DayKey(day)
	var out []models.Session
	for _, s := range sessions {
		if b.sessionDay(s) == key {
			out = append(out, s)
		}
	}
	return out
}

// HasSessionOn reports whether any session falls on day.
func (b Binder) HasSessionOn(sessions []models.Session, day time.Time) bool {
	key := b.DayKey(day)
	for _, s := range sessions {
		if b.sessionDay(s) == key {
			return true
		}
	}
	return false
}

// Window is a session's start and end instants.
type Window struct {
	Start time.Time
	End   time.Time
}

// windowLayout renders a time of day as "hh:mm AM".
const windowLayout = "03:04 PM"

// Label formats the window as "hh:mm AM - hh:mm PM" in the window's zone.
// A window crossing midnight still shows only times of day.
func (w Window) Label() string {
	return w.Start.Format(windowLayout) + " - " + w.End.Format(windowLayout)
}

// DisplayWindow returns the session's window in the viewer's zone. The end is start plus
// the session's duration (60 minutes when absent or zero). ok is false when the date does
// not parse.
func (b Binder) DisplayWindow(s models.Session) (w Window, ok bool) {
	start, err := s.Start(b.loc)
	if err != nil {
		return Window{}, false
	}
	start = start.In(b.loc)
	return Window{
		Start: start,
		End:   start.Add(time.Duration(s.Minutes()) * time.Minute),
	}, true
}

// Style is the visual treatment of a topic badge.
type Style struct {
	Name  string // colour family
	Class string // CSS classes
}

var (
	styleSOC         = Style{Name: "blue", Class: "topic topic-blue"}
	styleGRC         = Style{Name: "green", Class: "topic topic-green"}
	styleThreatIntel = Style{Name: "orange", Class: "topic topic-orange"}
	// DefaultStyle is the neutral treatment of uncategorized topics.
	DefaultStyle = Style{Name: "gray", Class: "topic topic-gray"}
)

// TopicStyle maps a topic label to its style, case-insensitively.
func TopicStyle(topic string) Style {
	switch strings.ToLower(topic) {
	case "soc":
		return styleSOC
	case "grc":
		return styleGRC
	case "threat intel":
		return styleThreatIntel
	default:
		return DefaultStyle
	}
}
