package web

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"cybercal/internal/ics"
	"cybercal/internal/models"
)

// loadSessions refreshes the collection the way a page mount does. When the reload fails
// the last good collection is served and a message is returned for the page.
func (s *Server) loadSessions(ctx context.Context) ([]models.Session, string) {
	sessions, err := s.store.ListAll(ctx)
	if err != nil {
		return s.store.Sessions(), "Failed to fetch sessions"
	}
	return sessions, ""
}

// findSession looks id up in the cached collection, loading it first if needed.
func (s *Server) findSession(ctx context.Context, id string) (models.Session, bool) {
	if !s.store.Loaded() {
		if _, err := s.store.ListAll(ctx); err != nil {
			s.logger.Debug("Failed to load sessions for lookup", "id", id, "error", err)
		}
	}
	for _, sess := range s.store.Sessions() {
		if sess.ID == id {
			return sess, true
		}
	}
	return models.Session{}, false
}

// handleCalendar renders the month grid and the sessions of the selected day.
// An unreadable ?date= falls back to today.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	selected := now
	var notice string
	if v := r.URL.Query().Get("date"); v != "" {
		d, err := time.ParseInLocation(models.DayLayout, v, s.binder.Location())
		if err != nil {
			s.logger.Debug("Ignoring invalid calendar date", "date", v, "error", err)
			notice = "Invalid date, showing today"
		} else {
			selected = d
		}
	}

	sessions, loadErr := s.loadSessions(r.Context())
	switch {
	case notice == "":
		notice = loadErr
	case loadErr != "":
		notice += ". " + loadErr
	}
	s.render(w, r, http.StatusOK, "calendar.html", map[string]any{
		"Month":       s.binder.MonthGrid(sessions, selected, now),
		"SelectedDay": selected.In(s.binder.Location()).Format("Monday, January 2, 2006"),
		"Sessions":    s.views(s.binder.SessionsOnDay(sessions, selected)),
		"Error":       notice,
	})
}

// handleSession shows one session from the collection.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.findSession(r.Context(), r.PathValue("id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	s.render(w, r, http.StatusOK, "session.html", map[string]any{
		"Session": s.view(sess),
		"DayKey":  s.dayKey(sess),
	})
}

// handleReminder acknowledges a reminder request. Nothing is scheduled.
func (s *Server) handleReminder(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.findSession(r.Context(), id); !ok {
		http.NotFound(w, r)
		return
	}
	s.setFlash(w, flashSuccess, "Reminder added successfully!")
	http.Redirect(w, r, "/sessions/"+id, http.StatusSeeOther)
}

// handleICS serves the collection as an iCalendar feed.
func (s *Server) handleICS(w http.ResponseWriter, r *http.Request) {
	sessions, _ := s.loadSessions(r.Context())

	var buf bytes.Buffer
	n, err := ics.Encode(&buf, s.calendarName, sessions, s.binder, s.now())
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.logger.Debug("Serving calendar feed", "events", n)
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="cybercal.ics"`)
	buf.WriteTo(w)
}

// dayKey returns the calendar day of a session in the viewer zone, or "".
func (s *Server) dayKey(sess models.Session) string {
	start, err := sess.Start(s.binder.Location())
	if err != nil {
		return ""
	}
	return s.binder.DayKey(start)
}
