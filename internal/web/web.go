// Package web serves the public training calendar and the admin console.
package web

import (
	"bytes"
	"context"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"cybercal/internal/api"
	"cybercal/internal/auth"
	"cybercal/internal/calendar"
	"cybercal/internal/models"
	"cybercal/internal/store"

	"github.com/gorilla/csrf"
	"github.com/gorilla/securecookie"
	"github.com/yuin/goldmark"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"
)

//go:embed templates/*.html
var templatesFS embed.FS

// mdRenderer is a goldmark instance configured for safe HTML output.
// Raw HTML in markdown input is escaped (WithUnsafe is NOT set).
var mdRenderer = goldmark.New(
	goldmark.WithRendererOptions(
		goldmarkHTML.WithHardWraps(),
	),
)

// Authenticator exchanges admin credentials for a bearer token.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (api.LoginResult, error)
}

// Options configures a Server.
type Options struct {
	Binder         calendar.Binder
	CSRFKey        []byte
	CookieHashKey  []byte
	CookieBlockKey []byte
	// Secure marks cookies Secure; set it when served over HTTPS.
	Secure         bool
	TrustedOrigins []string
	CalendarName   string
}

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	logger       *slog.Logger
	store        *store.Store
	auth         Authenticator
	binder       calendar.Binder
	cookies      *securecookie.SecureCookie
	secure       bool
	calendarName string
	now          func() time.Time

	csrfKey        []byte
	trustedOrigins []string
}

// New creates a Server reading sessions through st and logging in through authn.
func New(logger *slog.Logger, st *store.Store, authn Authenticator, opts Options) *Server {
	name := opts.CalendarName
	if name == "" {
		name = "Cybersecurity Training"
	}
	return &Server{
		logger:         logger,
		store:          st,
		auth:           authn,
		binder:         opts.Binder,
		cookies:        auth.NewCookieCodec(opts.CookieHashKey, opts.CookieBlockKey),
		secure:         opts.Secure,
		calendarName:   name,
		now:            time.Now,
		csrfKey:        opts.CSRFKey,
		trustedOrigins: opts.TrustedOrigins,
	}
}

// Handler returns the routes wrapped in the middleware stack:
// RequestLog -> SecurityHeaders -> CSRF -> mux.
func (s *Server) Handler() http.Handler {
	return Chain(s.routes(),
		CSRF(s.csrfKey, s.secure, s.trustedOrigins),
		SecurityHeaders,
		RequestLog(s.logger),
	)
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleCalendar)
	mux.HandleFunc("GET /sessions/{id}", s.handleSession)
	mux.HandleFunc("POST /sessions/{id}/reminder", s.handleReminder)
	mux.HandleFunc("GET /calendar.ics", s.handleICS)

	mux.HandleFunc("GET /login", s.handleLoginPage)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("POST /logout", s.handleLogout)

	mux.HandleFunc("GET /admin", s.requireAdmin(s.handleDashboard))
	mux.HandleFunc("GET /admin/sessions", s.requireAdmin(s.handleAdminSessions))
	mux.HandleFunc("GET /admin/add", s.requireAdmin(s.handleAddForm))
	mux.HandleFunc("GET /admin/sessions/{id}/edit", s.requireAdmin(s.handleEditForm))
	mux.HandleFunc("POST /admin/sessions", s.requireAdmin(s.handleCreate))
	mux.HandleFunc("POST /admin/sessions/{id}", s.requireAdmin(s.handleUpdate))
	mux.HandleFunc("POST /admin/sessions/{id}/delete", s.requireAdmin(s.handleDelete))
	mux.HandleFunc("POST /admin/sessions/{id}/notify", s.requireAdmin(s.handleNotify))

	return mux
}

// tokens returns the token store of the requesting browser.
func (s *Server) tokens(w http.ResponseWriter, r *http.Request) *auth.CookieStore {
	return auth.NewCookieStore(w, r, s.cookies, s.secure)
}

// internalError logs the real error and returns a generic message to the client.
func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.logger.Error("internal_error", "error", err.Error())
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

// sessionView is a session prepared for display.
type sessionView struct {
	models.Session
	Window string
	Style  calendar.Style
}

func (s *Server) views(sessions []models.Session) []sessionView {
	out := make([]sessionView, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, s.view(sess))
	}
	return out
}

func (s *Server) view(sess models.Session) sessionView {
	v := sessionView{Session: sess, Style: calendar.TopicStyle(sess.Topic)}
	if w, ok := s.binder.DisplayWindow(sess); ok {
		v.Window = w.Label()
	}
	return v
}

// render executes layout.html plus the named page. data may be nil.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	data["Flash"] = s.popFlash(w, r)
	data["LoggedIn"] = auth.LoggedIn(s.tokens(w, r))
	data["CalendarName"] = s.calendarName

	loc := s.binder.Location()
	funcMap := template.FuncMap{
		"csrfToken":  func() string { return csrf.Token(r) },
		"topicStyle": calendar.TopicStyle,
		"renderMarkdown": func(md string) template.HTML {
			var buf bytes.Buffer
			if err := mdRenderer.Convert([]byte(md), &buf); err != nil {
				return template.HTML(template.HTMLEscapeString(md))
			}
			return template.HTML(buf.String())
		},
		"longDate": func(date string) string {
			start, err := models.ParseInstant(date, loc)
			if err != nil {
				return date
			}
			return start.In(loc).Format("Monday, January 2, 2006")
		},
		"join": strings.Join,
	}

	tpl, err := template.New("layout.html").Funcs(funcMap).ParseFS(templatesFS, "templates/layout.html", "templates/"+name)
	if err != nil {
		s.internalError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		s.internalError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}
