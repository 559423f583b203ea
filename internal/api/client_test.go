package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"cybercal/internal/models"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(slog.New(slog.NewTextHandler(io.Discard, nil)), srv.URL, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestNewClient_RejectsInvalidBaseURL(t *testing.T) {
	if _, err := NewClient(slog.Default(), "localhost", nil); err == nil {
		t.Fatal("expected error for base url without scheme")
	}
}

func TestListSessions(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sessions" || r.Method != http.MethodGet {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if h := r.Header.Get("Authorization"); h != "" {
			t.Errorf("listing must be unauthenticated, got Authorization %q", h)
		}
		if ua := r.Header.Get("User-Agent"); ua != userAgent {
			t.Errorf("expected User-Agent %q, got %q", userAgent, ua)
		}
		w.Write([]byte(`[{"id":"1","title":"SOC 101","date":"2025-03-10T09:00:00Z","durationMinutes":90,"topic":"GRC"}]`))
	}))

	sessions, err := c.ListSessions(context.Background())
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != "1" || sessions[0].Minutes() != 90 {
		t.Fatalf("unexpected sessions: %+v", sessions)
	}
}

func TestListSessions_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"object instead of array", http.StatusOK, `{"sessions":[]}`, ErrInvalidResponseShape},
		{"null", http.StatusOK, `null`, ErrInvalidResponseShape},
		{"empty body", http.StatusOK, ``, ErrFetchFailed},
		{"html error page", http.StatusOK, `<!doctype html><title>Bad Gateway</title>`, ErrFetchFailed},
		{"malformed array", http.StatusOK, `[{"id":`, ErrFetchFailed},
		{"server error", http.StatusInternalServerError, `{"error":"boom"}`, ErrFetchFailed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			_, err := c.ListSessions(context.Background())
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestListSessions_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewClient(slog.Default(), url, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := c.ListSessions(context.Background()); !errors.Is(err, ErrFetchFailed) {
		t.Fatalf("expected ErrFetchFailed, got %v", err)
	}
}

func TestGetSession(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Header.Get("Authorization") != "Bearer good":
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"token expired"}`))
		case r.URL.Path == "/api/sessions/1":
			w.Write([]byte(`{"id":"1","title":"SOC 101","date":"2025-03-10T09:00:00Z"}`))
		case r.URL.Path == "/api/sessions/boom":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"Session not found"}`))
		}
	}))
	ctx := context.Background()

	s, err := c.GetSession(ctx, "1", "good")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if s.Title != "SOC 101" {
		t.Fatalf("unexpected session %+v", s)
	}

	if _, err := c.GetSession(ctx, "deleted", "good"); !errors.Is(err, ErrNotFound) || errors.Is(err, ErrFetchFailed) {
		t.Fatalf("expected ErrNotFound only, got %v", err)
	}

	_, err = c.GetSession(ctx, "1", "")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized without token, got %v", err)
	}
	if got := Message(err, "fallback"); got != "token expired" {
		t.Fatalf("expected server message, got %q", got)
	}

	if _, err := c.GetSession(ctx, "boom", "good"); !errors.Is(err, ErrFetchFailed) {
		t.Fatalf("expected ErrFetchFailed, got %v", err)
	}
}

func TestMutations(t *testing.T) {
	var gotMethod, gotPath, gotAuth string
	var gotBody map[string]any
	status := http.StatusOK
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath, gotAuth = r.Method, r.URL.Path, r.Header.Get("Authorization")
		gotBody = nil
		if r.Body != nil {
			json.NewDecoder(r.Body).Decode(&gotBody)
		}
		w.WriteHeader(status)
		switch r.Method {
		case http.MethodPost:
			w.Write([]byte(`{"id":"new","title":"Created"}`))
		case http.MethodPut:
			w.Write([]byte(`{"id":"7","title":"Updated"}`))
		}
	}))
	ctx := context.Background()

	created, err := c.CreateSession(ctx, models.Session{ID: "ignored", Title: "Created", Topic: "SOC"}, "tok")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if gotMethod != http.MethodPost || gotPath != "/api/sessions" || gotAuth != "Bearer tok" {
		t.Fatalf("unexpected create request %s %s %q", gotMethod, gotPath, gotAuth)
	}
	if _, ok := gotBody["id"]; ok {
		t.Fatalf("create payload must not include id: %v", gotBody)
	}
	if created.ID != "new" {
		t.Fatalf("expected created record, got %+v", created)
	}

	if _, err := c.UpdateSession(ctx, models.Session{ID: "7", Title: "Updated"}, "tok"); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}
	if gotMethod != http.MethodPut || gotPath != "/api/sessions/7" || gotBody["id"] != "7" {
		t.Fatalf("unexpected update request %s %s %v", gotMethod, gotPath, gotBody)
	}

	if err := c.DeleteSession(ctx, "7", "tok"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if gotMethod != http.MethodDelete || gotPath != "/api/sessions/7" || gotBody != nil {
		t.Fatalf("unexpected delete request %s %s %v", gotMethod, gotPath, gotBody)
	}

	status = http.StatusUnauthorized
	err = c.DeleteSession(ctx, "7", "expired")
	if !errors.Is(err, ErrMutationFailed) || !IsUnauthorized(err) {
		t.Fatalf("expected mutation failure flagged unauthorized, got %v", err)
	}

	status = http.StatusUnprocessableEntity
	_, err = c.CreateSession(ctx, models.Session{Title: "Bad"}, "tok")
	if !errors.Is(err, ErrMutationFailed) || IsUnauthorized(err) {
		t.Fatalf("expected plain mutation failure, got %v", err)
	}

	if _, err := c.UpdateSession(ctx, models.Session{Title: "no id"}, "tok"); !errors.Is(err, ErrMutationFailed) {
		t.Fatalf("expected update without id to fail, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var creds struct{ Email, Password string }
		json.NewDecoder(r.Body).Decode(&creds)
		if r.URL.Path != "/api/auth/login" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if creds.Password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"Invalid credentials"}`))
			return
		}
		w.Write([]byte(`{"token":"jwt","admin":{"name":"Sohail","email":"admin@example.com"}}`))
	}))
	ctx := context.Background()

	res, err := c.Login(ctx, "admin@example.com", "secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Token != "jwt" || res.Admin.Name != "Sohail" {
		t.Fatalf("unexpected login result %+v", res)
	}

	_, err = c.Login(ctx, "admin@example.com", "wrong")
	if !errors.Is(err, ErrLoginFailed) {
		t.Fatalf("expected ErrLoginFailed, got %v", err)
	}
	if got := Message(err, "Invalid credentials?"); got != "Invalid credentials" {
		t.Fatalf("expected server message, got %q", got)
	}
}
