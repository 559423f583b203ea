package web

import (
	"errors"
	"net/http"

	"cybercal/internal/api"
	"cybercal/internal/form"
	"cybercal/internal/models"
	"cybercal/internal/store"
)

const adminSessionsPath = "/admin/sessions"

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, _ *store.Admin) {
	sessions, loadErr := s.loadSessions(r.Context())
	s.render(w, r, http.StatusOK, "admin_dashboard.html", map[string]any{
		"Stats":    s.binder.Summarize(sessions, s.now()),
		"Sessions": s.views(sessions),
		"Error":    loadErr,
	})
}

func (s *Server) handleAdminSessions(w http.ResponseWriter, r *http.Request, _ *store.Admin) {
	sessions, loadErr := s.loadSessions(r.Context())
	s.render(w, r, http.StatusOK, "admin_sessions.html", map[string]any{
		"Sessions": s.views(sessions),
		"Error":    loadErr,
	})
}

func (s *Server) handleAddForm(w http.ResponseWriter, r *http.Request, _ *store.Admin) {
	s.renderForm(w, r, http.StatusOK, "", form.Blank(), "")
}

// handleEditForm prefills the form from the authoritative record, never from the cache.
func (s *Server) handleEditForm(w http.ResponseWriter, r *http.Request, admin *store.Admin) {
	id := r.PathValue("id")
	sess, err := admin.GetByID(r.Context(), id)
	if err != nil {
		s.logger.Warn("Failed to load session for editing", "id", id, "error", err)
		message := "Unable to load session for editing"
		if api.IsUnauthorized(err) {
			message = api.Message(err, "Not authorized to load this session")
		}
		s.setFlash(w, flashError, message)
		http.Redirect(w, r, adminSessionsPath, http.StatusSeeOther)
		return
	}
	s.renderForm(w, r, http.StatusOK, id, form.FromSession(sess, s.binder.Location()), "")
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request, admin *store.Admin) {
	fields, ok := s.parseForm(w, r, "")
	if !ok {
		return
	}
	_, err := admin.Create(r.Context(), fields.Session("", s.binder.Location()))
	if s.finishMutation(w, r, err, "Session added successfully!") {
		return
	}
	s.renderForm(w, r, statusFor(err), "", fields, api.Message(err, "Error creating session"))
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request, admin *store.Admin) {
	id := r.PathValue("id")
	fields, ok := s.parseForm(w, r, id)
	if !ok {
		return
	}
	_, err := admin.Update(r.Context(), fields.Session(id, s.binder.Location()))
	if s.finishMutation(w, r, err, "Session updated successfully!") {
		return
	}
	s.renderForm(w, r, statusFor(err), id, fields, api.Message(err, "Update failed"))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, admin *store.Admin) {
	err := admin.Remove(r.Context(), r.PathValue("id"))
	if s.finishMutation(w, r, err, "Session deleted successfully!") {
		return
	}
	s.logger.Warn("Failed to delete session", "id", r.PathValue("id"), "error", err)
	s.setFlash(w, flashError, api.Message(err, "Delete failed"))
	http.Redirect(w, r, adminSessionsPath, http.StatusSeeOther)
}

// handleNotify acknowledges a notification request. Nothing is delivered.
func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request, _ *store.Admin) {
	sess, ok := s.findSession(r.Context(), r.PathValue("id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	s.setFlash(w, flashSuccess, `Notification sent for "`+sess.Title+`"!`)
	http.Redirect(w, r, adminSessionsPath, http.StatusSeeOther)
}

// parseForm reads and checks the submitted fields. On a missing required field the form
// is rendered again and ok is false.
func (s *Server) parseForm(w http.ResponseWriter, r *http.Request, id string) (form.Fields, bool) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return form.Fields{}, false
	}
	fields := form.Parse(r.PostForm)
	if missing := fields.Missing(); len(missing) > 0 {
		s.renderForm(w, r, http.StatusUnprocessableEntity, id, fields, "Please fill in all required fields")
		return fields, false
	}
	return fields, true
}

// finishMutation redirects to the session list when the mutation was accepted, even if the
// reload that followed failed. It reports false when the caller must handle err.
func (s *Server) finishMutation(w http.ResponseWriter, r *http.Request, err error, success string) bool {
	var reloadErr *store.ReloadError
	switch {
	case err == nil:
		s.setFlash(w, flashSuccess, success)
	case errors.As(err, &reloadErr):
		s.logger.Warn("Session list is stale after mutation", "error", reloadErr.Err)
		s.setFlash(w, flashSuccess, success+" The list could not be refreshed.")
	default:
		return false
	}
	http.Redirect(w, r, adminSessionsPath, http.StatusSeeOther)
	return true
}

func (s *Server) renderForm(w http.ResponseWriter, r *http.Request, status int, id string, fields form.Fields, message string) {
	action, heading := adminSessionsPath, "Add Session"
	if id != "" {
		action, heading = adminSessionsPath+"/"+id, "Edit Session"
	}
	var missing []string
	if status == http.StatusUnprocessableEntity {
		missing = fields.Missing()
	}
	s.render(w, r, status, "admin_form.html", map[string]any{
		"ID":      id,
		"Action":  action,
		"Heading": heading,
		"Form":    fields,
		"Missing": missing,
		"Topics":  models.Topics,
		"Error":   message,
	})
}

// statusFor maps a failed mutation to the status of the re-rendered form. Client errors
// reported by the API keep their status; anything else is a bad gateway.
func statusFor(err error) int {
	var apiErr *api.APIError
	switch {
	case api.IsUnauthorized(err):
		return http.StatusUnauthorized
	case errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500:
		return apiErr.Status
	default:
		return http.StatusBadGateway
	}
}
