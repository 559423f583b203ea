package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestSession_UnmarshalLegacyID(t *testing.T) {
	var s Session
	if err := json.Unmarshal([]byte(`{"_id":"abc","title":"SOC 101","date":"2025-03-10T09:00:00Z"}`), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if s.ID != "abc" {
		t.Fatalf("expected legacy _id to become ID, got %q", s.ID)
	}
	if s.DurationMinutes != nil {
		t.Fatalf("expected absent duration to stay nil, got %d", *s.DurationMinutes)
	}

	var both Session
	if err := json.Unmarshal([]byte(`{"id":"1","_id":"legacy"}`), &both); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if both.ID != "1" {
		t.Fatalf("expected id to win over _id, got %q", both.ID)
	}
}

func TestSession_MarshalOmitsEmptyID(t *testing.T) {
	data, err := json.Marshal(Session{Title: "Draft", Topic: TopicSOC, DurationMinutes: IntPtr(60)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := raw["id"]; ok {
		t.Fatalf("draft payload must not carry an id: %s", data)
	}
	if raw["durationMinutes"] != float64(60) {
		t.Fatalf("expected durationMinutes 60, got %v", raw["durationMinutes"])
	}
}

func TestSession_Minutes(t *testing.T) {
	tests := []struct {
		name     string
		duration *int
		want     int
	}{
		{"absent", nil, 60},
		{"zero", IntPtr(0), 60},
		{"explicit", IntPtr(90), 90},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := Session{DurationMinutes: tc.duration}
			if got := s.Minutes(); got != tc.want {
				t.Fatalf("Minutes() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestSession_TrainerName(t *testing.T) {
	if got := (Session{}).TrainerName(); got != UnknownTrainer {
		t.Fatalf("expected fallback %q, got %q", UnknownTrainer, got)
	}
	if got := (Session{Trainer: "Sohail"}).TrainerName(); got != "Sohail" {
		t.Fatalf("expected trainer verbatim, got %q", got)
	}
}

func TestParseInstant(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	tests := []struct {
		value string
		want  time.Time
	}{
		{"2025-03-10T09:00:00Z", time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)},
		{"2025-03-10T09:00:00.000Z", time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)},
		{"2025-03-10T09:00:00+02:00", time.Date(2025, 3, 10, 7, 0, 0, 0, time.UTC)},
		{"2025-03-10T09:00", time.Date(2025, 3, 10, 9, 0, 0, 0, loc)},
		{"2025-03-10T09:00:30", time.Date(2025, 3, 10, 9, 0, 30, 0, loc)},
		{"2025-03-10", time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range tests {
		t.Run(tc.value, func(t *testing.T) {
			got, err := ParseInstant(tc.value, loc)
			if err != nil {
				t.Fatalf("ParseInstant: %v", err)
			}
			if !got.Equal(tc.want) {
				t.Fatalf("ParseInstant(%q) = %v, want %v", tc.value, got, tc.want)
			}
		})
	}

	for _, bad := range []string{"", "tomorrow", InvalidDate, "2025-13-40T99:99"} {
		if _, err := ParseInstant(bad, loc); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestFormatInstant(t *testing.T) {
	in := time.Date(2025, 3, 10, 14, 30, 0, 0, time.FixedZone("UTC+5", 5*3600))
	if got := FormatInstant(in); got != "2025-03-10T09:30:00.000Z" {
		t.Fatalf("FormatInstant = %q", got)
	}
}
