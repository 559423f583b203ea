package web

import (
	"errors"
	"net/http"
	"strings"

	"cybercal/internal/api"
	"cybercal/internal/auth"
	"cybercal/internal/store"
)

type adminHandler func(w http.ResponseWriter, r *http.Request, admin *store.Admin)

// requireAdmin redirects to the login page unless the browser holds a token.
// The token itself is not checked here; the remote API decides.
func (s *Server) requireAdmin(next adminHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokens := s.tokens(w, r)
		if !auth.LoggedIn(tokens) {
			s.setFlash(w, flashError, "Please login first")
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next(w, r, s.store.As(tokens))
	}
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if auth.LoggedIn(s.tokens(w, r)) {
		http.Redirect(w, r, "/admin", http.StatusSeeOther)
		return
	}
	s.render(w, r, http.StatusOK, "login.html", nil)
}

// handleLogin exchanges the submitted credentials for a token kept in an encrypted cookie.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}
	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")

	result, err := s.auth.Login(r.Context(), email, password)
	if err != nil {
		status, message := http.StatusUnauthorized, api.Message(err, "Invalid credentials")
		if !errors.Is(err, api.ErrLoginFailed) {
			s.logger.Warn("Login request failed", "error", err)
			status, message = http.StatusBadGateway, "Server error. Please try again later."
		}
		s.render(w, r, status, "login.html", map[string]any{"Email": email, "Error": message})
		return
	}

	if err := s.tokens(w, r).Set(result.Token); err != nil {
		s.internalError(w, err)
		return
	}
	s.logger.Info("Admin logged in", "name", result.Admin.Name)
	s.setFlash(w, flashSuccess, "Welcome "+result.Admin.Name+"!")
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.tokens(w, r).Clear(); err != nil {
		s.internalError(w, err)
		return
	}
	s.setFlash(w, flashInfo, "Logged out")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
