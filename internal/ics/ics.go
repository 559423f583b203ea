// Package ics renders sessions as iCalendar data.
package ics

import (
	"fmt"
	"io"
	"net/url"
	"time"

	"cybercal/internal/calendar"
	"cybercal/internal/models"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"
)

const productID = "-//cybercal//EN"

// namespace scopes session UIDs so they never collide with other generators.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:cybercal:session"))

// UID returns the stable iCalendar UID of a session id.
func UID(sessionID string) string {
	return uuid.NewSHA1(namespace, []byte(sessionID)).String()
}

// Event converts a session into a VEVENT. ok is false when the session's date does not
// parse; such sessions cannot be placed on a calendar.
func Event(s models.Session, b calendar.Binder, stamp time.Time) (*ical.Component, bool) {
	w, ok := b.DisplayWindow(s)
	if !ok {
		return nil, false
	}

	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, UID(s.ID))
	ve.Props.SetText(ical.PropSummary, s.Title)
	ve.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
	ve.Props.SetDateTime(ical.PropDateTimeStart, w.Start.UTC())
	ve.Props.SetDateTime(ical.PropDateTimeEnd, w.End.UTC())

	if s.Description != "" {
		ve.Props.SetText(ical.PropDescription, s.Description)
	}
	if s.MeetingLink != "" {
		ve.Props.SetText(ical.PropLocation, s.MeetingLink)
		if u, err := url.Parse(s.MeetingLink); err == nil && u.Scheme != "" {
			ve.Props.SetURI(ical.PropURL, u)
		}
	}
	if s.Topic != "" {
		ve.Props.SetText(ical.PropCategories, s.Topic)
	}
	ve.Props.SetText(ical.PropContact, s.TrainerName())
	return ve, true
}

// Calendar wraps events in a VCALENDAR.
func Calendar(name string, events ...*ical.Component) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	if name != "" {
		cal.Props.SetText("X-WR-CALNAME", name)
	}
	cal.Children = append(cal.Children, events...)
	return cal
}

// Encode writes every placeable session as one calendar. It returns the number of
// events written; sessions with unparseable dates are skipped.
func Encode(w io.Writer, name string, sessions []models.Session, b calendar.Binder, stamp time.Time) (int, error) {
	var events []*ical.Component
	for _, s := range sessions {
		if ve, ok := Event(s, b, stamp); ok {
			events = append(events, ve)
		}
	}
	if err := ical.NewEncoder(w).Encode(Calendar(name, events...)); err != nil {
		return 0, fmt.Errorf("failed to encode sessions to iCal format: %w", err)
	}
	return len(events), nil
}
