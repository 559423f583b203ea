package google

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"cybercal/internal/calendar"
	"cybercal/internal/models"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

type fakeGoogle struct {
	mu     sync.Mutex
	events map[string]gcal.Event
	calls  []string
}

func (f *fakeGoogle) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, r.Method)

	const prefix = "/calendars/primary/events"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		http.Error(w, `{"error":{"code":400,"message":"bad path"}}`, http.StatusBadRequest)
		return
	}
	id := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, prefix), "/")

	switch r.Method {
	case http.MethodPut:
		if _, ok := f.events[id]; !ok {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":{"code":404,"message":"Not Found"}}`))
			return
		}
		fallthrough
	case http.MethodPost:
		var ev gcal.Event
		json.NewDecoder(r.Body).Decode(&ev)
		f.events[ev.Id] = ev
		json.NewEncoder(w).Encode(ev)
	case http.MethodDelete:
		if _, ok := f.events[id]; !ok {
			w.WriteHeader(http.StatusGone)
			w.Write([]byte(`{"error":{"code":410,"message":"Resource has been deleted"}}`))
			return
		}
		delete(f.events, id)
		w.WriteHeader(http.StatusNoContent)
	}
}

func newFakeTarget(t *testing.T) (*Target, *fakeGoogle) {
	t.Helper()
	fake := &fakeGoogle{events: map[string]gcal.Event{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc, err := gcal.NewService(context.Background(), option.WithHTTPClient(srv.Client()), option.WithEndpoint(srv.URL+"/"))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return newTarget(svc, logger, calendar.NewBinder(time.UTC), ""), fake
}

func TestTarget_PutInsertsThenUpdates(t *testing.T) {
	target, fake := newFakeTarget(t)
	ctx := context.Background()
	s := models.Session{ID: "1", Title: "GRC Basics", Date: "2025-03-10T09:00:00Z", DurationMinutes: models.IntPtr(90)}

	if err := target.Put(ctx, s); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if got := strings.Join(fake.calls, ","); got != "PUT,POST" {
		t.Fatalf("expected update miss then insert, got %s", got)
	}
	ev, ok := fake.events[EventID("1")]
	if !ok {
		t.Fatalf("expected event stored under %s", EventID("1"))
	}
	if ev.Start.DateTime != "2025-03-10T09:00:00Z" || ev.End.DateTime != "2025-03-10T10:30:00Z" {
		t.Fatalf("unexpected window %s - %s", ev.Start.DateTime, ev.End.DateTime)
	}
	if !strings.Contains(ev.Description, "Trainer: TBD") {
		t.Fatalf("expected trainer fallback in description, got %q", ev.Description)
	}

	fake.calls = nil
	s.Title = "GRC Advanced"
	if err := target.Put(ctx, s); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if got := strings.Join(fake.calls, ","); got != "PUT" {
		t.Fatalf("expected a single update, got %s", got)
	}
	if fake.events[EventID("1")].Summary != "GRC Advanced" {
		t.Fatal("expected event to be updated")
	}
}

func TestTarget_Remove(t *testing.T) {
	target, fake := newFakeTarget(t)
	ctx := context.Background()
	target.Put(ctx, models.Session{ID: "1", Title: "x", Date: "2025-03-10T09:00:00Z"})

	if err := target.Remove(ctx, "1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if len(fake.events) != 0 {
		t.Fatal("expected event removed")
	}
	if err := target.Remove(ctx, "1"); err != nil {
		t.Fatalf("removing a gone event should succeed, got %v", err)
	}
}

func TestTarget_PutRejectsUnparseableDate(t *testing.T) {
	target, fake := newFakeTarget(t)
	if err := target.Put(context.Background(), models.Session{ID: "1", Date: "soon"}); err == nil {
		t.Fatal("expected error")
	}
	if len(fake.calls) != 0 {
		t.Fatal("no request should be sent for an unplaceable session")
	}
}

func TestEventID(t *testing.T) {
	id := EventID("abc")
	if len(id) != 32 || strings.ContainsAny(id, "-wxyz") {
		t.Fatalf("unexpected event id %q", id)
	}
}
