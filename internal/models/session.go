package models

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	// DefaultDurationMinutes applies when a session carries no duration.
	DefaultDurationMinutes = 60
	// DefaultTopic is the topic a new or incomplete form is given.
	DefaultTopic = "SOC"
	// UnknownTrainer is displayed when a session has no trainer.
	UnknownTrainer = "TBD"
	// InvalidDate is what an unparseable form date/time serializes to.
	InvalidDate = "Invalid Date"

	// DayLayout formats the calendar-day component of an instant.
	DayLayout = "2006-01-02"
	// ClockLayout formats the time-of-day used by edit forms.
	ClockLayout = "15:04"
	// InstantLayout is the canonical wire representation (always UTC, millisecond precision).
	InstantLayout = "2006-01-02T15:04:05.000Z"
)

// Known topic labels. Any other value is uncategorized.
const (
	TopicSOC         = "SOC"
	TopicGRC         = "GRC"
	TopicThreatIntel = "Threat Intel"
)

// Topics lists the topic labels offered by forms, in display order.
var Topics = []string{TopicSOC, TopicGRC, TopicThreatIntel}

// Session is a scheduled training session as stored by the remote session API.
type Session struct {
	ID              string `json:"id,omitempty"`
	Title           string `json:"title"`
	Date            string `json:"date"`
	DurationMinutes *int   `json:"durationMinutes,omitempty"`
	Description     string `json:"description"`
	MeetingLink     string `json:"meetingLink"`
	Trainer         string `json:"trainer"`
	Topic           string `json:"topic"`
}

// UnmarshalJSON accepts the legacy "_id" key when "id" is absent.
func (s *Session) UnmarshalJSON(data []byte) error {
	type plain Session
	var wire struct {
		plain
		LegacyID string `json:"_id"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*s = Session(wire.plain)
	if s.ID == "" {
		s.ID = wire.LegacyID
	}
	return nil
}

// Minutes returns the stored duration, or DefaultDurationMinutes when it is absent or zero.
func (s Session) Minutes() int {
	if s.DurationMinutes == nil || *s.DurationMinutes == 0 {
		return DefaultDurationMinutes
	}
	return *s.DurationMinutes
}

// TrainerName returns the trainer, falling back to UnknownTrainer.
func (s Session) TrainerName() string {
	if s.Trainer == "" {
		return UnknownTrainer
	}
	return s.Trainer
}

// Start parses the session's date. Values without an offset are read in loc.
func (s Session) Start(loc *time.Location) (time.Time, error) {
	return ParseInstant(s.Date, loc)
}

// IntPtr returns a pointer to v, for building sessions with an explicit duration.
func IntPtr(v int) *int {
	return &v
}

// localLayouts are date-times without an offset.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// ParseInstant parses an ISO-8601 date-time. Offset-less date-times are local to loc,
// a bare date is midnight UTC.
func ParseInstant(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	if t, err := time.Parse(DayLayout, value); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid session date %q", value)
}

// FormatInstant renders t in the canonical wire representation.
func FormatInstant(t time.Time) string {
	return t.UTC().Format(InstantLayout)
}
