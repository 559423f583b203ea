// Package form converts sessions to and from the flat field set used by edit forms.
package form

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"cybercal/internal/models"
)

// Fields is the editable shape of a session.
type Fields struct {
	Title           string
	Date            string // YYYY-MM-DD, viewer zone
	Time            string // HH:MM, viewer zone
	Description     string
	MeetingLink     string
	Trainer         string
	Topic           string
	DurationMinutes int
}

// Blank returns the fields of a new session form.
func Blank() Fields {
	return Fields{Topic: models.DefaultTopic, DurationMinutes: models.DefaultDurationMinutes}
}

// FromSession prefills the form from an authoritative record. The combined date is split
// into a calendar date and a time of day in loc.
func FromSession(s models.Session, loc *time.Location) Fields {
	f := Fields{
		Title:           s.Title,
		Description:     s.Description,
		MeetingLink:     s.MeetingLink,
		Trainer:         s.Trainer,
		Topic:           s.Topic,
		DurationMinutes: models.DefaultDurationMinutes,
	}
	if f.Topic == "" {
		f.Topic = models.DefaultTopic
	}
	if s.DurationMinutes != nil {
		f.DurationMinutes = *s.DurationMinutes
	}
	if start, err := models.ParseInstant(s.Date, loc); err == nil {
		start = start.In(loc)
		f.Date = start.Format(models.DayLayout)
		f.Time = start.Format(models.ClockLayout)
	}
	return f
}

// Session builds the wire payload. Date and time are joined as "{date}T{time}", read in
// loc and serialized as a canonical instant; malformed input yields models.InvalidDate.
// The id is set only when editing an existing record.
func (f Fields) Session(id string, loc *time.Location) models.Session {
	topic := f.Topic
	if topic == "" {
		topic = models.DefaultTopic
	}
	return models.Session{
		ID:              id,
		Title:           f.Title,
		Date:            combine(f.Date, f.Time, loc),
		DurationMinutes: models.IntPtr(f.DurationMinutes),
		Description:     f.Description,
		MeetingLink:     f.MeetingLink,
		Trainer:         f.Trainer,
		Topic:           topic,
	}
}

func combine(date, clock string, loc *time.Location) string {
	t, err := time.ParseInLocation(models.DayLayout+"T"+models.ClockLayout, date+"T"+clock, loc)
	if err != nil {
		return models.InvalidDate
	}
	return models.FormatInstant(t)
}

// Parse reads submitted form values. A missing or malformed duration falls back to 60
// and a missing topic to SOC.
func Parse(values url.Values) Fields {
	f := Fields{
		Title:           strings.TrimSpace(values.Get("title")),
		Date:            strings.TrimSpace(values.Get("date")),
		Time:            strings.TrimSpace(values.Get("time")),
		Description:     strings.TrimSpace(values.Get("description")),
		MeetingLink:     strings.TrimSpace(values.Get("meetingLink")),
		Trainer:         strings.TrimSpace(values.Get("trainer")),
		Topic:           strings.TrimSpace(values.Get("topic")),
		DurationMinutes: models.DefaultDurationMinutes,
	}
	if f.Topic == "" {
		f.Topic = models.DefaultTopic
	}
	if v := strings.TrimSpace(values.Get("durationMinutes")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			f.DurationMinutes = n
		}
	}
	return f
}

// Missing lists the required fields left empty, in form order. This is the only guard
// before submission; Session itself never rejects input.
func (f Fields) Missing() []string {
	var missing []string
	for _, field := range []struct{ name, value string }{
		{"title", f.Title},
		{"date", f.Date},
		{"time", f.Time},
		{"trainer", f.Trainer},
		{"description", f.Description},
		{"meetingLink", f.MeetingLink},
	} {
		if field.value == "" {
			missing = append(missing, field.name)
		}
	}
	return missing
}
