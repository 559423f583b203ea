package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"cybercal/internal/models"

	"golang.org/x/oauth2"
)

const userAgent = "cybercal/1.0"

// userAgentTransport tags every request sent to the remote API.
type userAgentTransport struct {
	Transport http.RoundTripper
}

// RoundTrip adds the User-Agent header to each request.
func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", userAgent)
	return t.Transport.RoundTrip(req)
}

// Client talks to the remote session collection and the login endpoint.
// It holds no token; callers pass one per authenticated call.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client for the API rooted at baseURL (e.g. http://localhost:4000).
// A nil httpClient uses http.DefaultTransport. No timeout is applied.
func NewClient(logger *slog.Logger, baseURL string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid api base url %q", baseURL)
	}
	transport := http.DefaultTransport
	if httpClient != nil && httpClient.Transport != nil {
		transport = httpClient.Transport
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Transport: &userAgentTransport{Transport: transport}},
		logger:     logger,
	}, nil
}

// BaseURL returns the API root the client was created with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListSessions fetches the whole collection. No token is sent.
func (c *Client) ListSessions(ctx context.Context) ([]models.Session, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/sessions", nil, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if !ok(resp.StatusCode) {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, readAPIError(resp))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %w", ErrFetchFailed, err)
	}
	trimmed := bytes.TrimSpace(body)
	if !json.Valid(trimmed) {
		return nil, fmt.Errorf("%w: response is not json", ErrFetchFailed)
	}
	if trimmed[0] != '[' {
		return nil, ErrInvalidResponseShape
	}

	var sessions []models.Session
	if err := json.Unmarshal(trimmed, &sessions); err != nil {
		return nil, fmt.Errorf("%w: decoding sessions: %w", ErrFetchFailed, err)
	}
	c.logger.Debug("Fetched session collection", "count", len(sessions))
	return sessions, nil
}

// GetSession fetches one session by id with the given bearer token.
func (c *Client) GetSession(ctx context.Context, id, token string) (models.Session, error) {
	resp, err := c.do(ctx, http.MethodGet, sessionPath(id), nil, token)
	if err != nil {
		return models.Session{}, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	switch {
	case isAuthStatus(resp.StatusCode):
		return models.Session{}, fmt.Errorf("%w: %w", ErrUnauthorized, readAPIError(resp))
	case resp.StatusCode == http.StatusNotFound:
		return models.Session{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	case !ok(resp.StatusCode):
		return models.Session{}, fmt.Errorf("%w: %w", ErrFetchFailed, readAPIError(resp))
	}

	var s models.Session
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return models.Session{}, fmt.Errorf("%w: decoding session: %w", ErrFetchFailed, err)
	}
	return s, nil
}

// CreateSession posts a draft. The draft's ID is never sent.
func (c *Client) CreateSession(ctx context.Context, draft models.Session, token string) (models.Session, error) {
	draft.ID = ""
	return c.mutate(ctx, http.MethodPost, "/api/sessions", draft, token)
}

// UpdateSession replaces the full record keyed by s.ID.
func (c *Client) UpdateSession(ctx context.Context, s models.Session, token string) (models.Session, error) {
	if s.ID == "" {
		return models.Session{}, fmt.Errorf("%w: session has no id", ErrMutationFailed)
	}
	return c.mutate(ctx, http.MethodPut, sessionPath(s.ID), s, token)
}

// DeleteSession removes the session keyed by id.
func (c *Client) DeleteSession(ctx context.Context, id, token string) error {
	_, err := c.mutate(ctx, http.MethodDelete, sessionPath(id), nil, token)
	return err
}

// mutate sends a write and decodes the returned record when there is one.
func (c *Client) mutate(ctx context.Context, method, path string, payload any, token string) (models.Session, error) {
	resp, err := c.do(ctx, method, path, payload, token)
	if err != nil {
		return models.Session{}, fmt.Errorf("%w: %w", ErrMutationFailed, err)
	}
	defer resp.Body.Close()

	if !ok(resp.StatusCode) {
		apiErr := readAPIError(resp)
		if isAuthStatus(resp.StatusCode) {
			return models.Session{}, fmt.Errorf("%w: %w: %w", ErrMutationFailed, ErrUnauthorized, apiErr)
		}
		return models.Session{}, fmt.Errorf("%w: %w", ErrMutationFailed, apiErr)
	}

	var s models.Session
	body, err := io.ReadAll(resp.Body)
	if err != nil || len(bytes.TrimSpace(body)) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(body, &s); err != nil {
		c.logger.Debug("Mutation response was not a session record", "method", method, "path", path, "error", err)
	}
	return s, nil
}

// LoginResult is the successful answer of the credential exchange.
type LoginResult struct {
	Token string `json:"token"`
	Admin Admin  `json:"admin"`
}

// Admin describes the logged-in administrator.
type Admin struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	creds := map[string]string{"email": email, "password": password}
	resp, err := c.do(ctx, http.MethodPost, "/api/auth/login", creds, "")
	if err != nil {
		return LoginResult{}, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if !ok(resp.StatusCode) {
		return LoginResult{}, fmt.Errorf("%w: %w", ErrLoginFailed, readAPIError(resp))
	}

	var result LoginResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return LoginResult{}, fmt.Errorf("%w: decoding login response: %w", ErrFetchFailed, err)
	}
	if result.Token == "" {
		return LoginResult{}, fmt.Errorf("%w: response carried no token", ErrLoginFailed)
	}
	return result, nil
}

// do builds and sends a request. A non-empty token is attached as a bearer header.
func (c *Client) do(ctx context.Context, method, path string, payload any, token string) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}).SetAuthHeader(req)
	}

	c.logger.Debug("Calling remote api", "method", method, "path", path, "authenticated", token != "")
	return c.httpClient.Do(req)
}

// readAPIError turns a non-2xx response into an *APIError, keeping the {error} message if any.
func readAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil {
		apiErr.Message = payload.Error
	}
	return apiErr
}

func sessionPath(id string) string {
	return "/api/sessions/" + url.PathEscape(id)
}

func ok(status int) bool {
	return status >= 200 && status < 300
}

// IsUnauthorized reports whether err means the token was missing or rejected.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
