package web

import (
	"net/http"
	"time"
)

const flashCookie = "cybercal_flash"

// Flash kinds, used as CSS modifiers.
const (
	flashSuccess = "success"
	flashInfo    = "info"
	flashError   = "error"
)

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Kind    string
	Message string
}

func (s *Server) setFlash(w http.ResponseWriter, kind, message string) {
	encoded, err := s.cookies.Encode(flashCookie, Flash{Kind: kind, Message: message})
	if err != nil {
		s.logger.Warn("Failed to encode flash", "error", err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    encoded,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// popFlash returns the pending flash, if any, and expires its cookie.
func (s *Server) popFlash(w http.ResponseWriter, r *http.Request) *Flash {
	c, err := r.Cookie(flashCookie)
	if err != nil {
		return nil
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	var f Flash
	if err := s.cookies.Decode(flashCookie, c.Value, &f); err != nil {
		return nil
	}
	return &f
}
