package caldav

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"time"

	"cybercal/internal/calendar"
	"cybercal/internal/ics"
	"cybercal/internal/models"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	gocaldav "github.com/emersion/go-webdav/caldav"
)

const (
	// DefaultEndpoint is iCloud's CalDAV root.
	DefaultEndpoint = "https://caldav.icloud.com/"
)

// basicAuthTransport handles adding Basic Auth and custom headers to requests.
type basicAuthTransport struct {
	Username  string
	Password  string
	Transport http.RoundTripper
}

// RoundTrip adds required headers and authentication to each request.
func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(t.Username, t.Password)
	req.Header.Set("User-Agent", "cybercal/1.0")
	return t.Transport.RoundTrip(req)
}

// Target publishes sessions as events in one CalDAV calendar.
type Target struct {
	caldavClient *gocaldav.Client
	webdavClient *webdav.Client
	httpClient   *http.Client
	endpoint     *url.URL
	logger       *slog.Logger
	binder       calendar.Binder
	calendarPath string
}

// NewTarget connects to endpoint and locates the calendar named calendarName.
func NewTarget(ctx context.Context, logger *slog.Logger, binder calendar.Binder, endpoint, username, password, calendarName string) (*Target, error) {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	root, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid caldav endpoint %q: %w", endpoint, err)
	}
	httpClient := &http.Client{Transport: &basicAuthTransport{
		Username:  username,
		Password:  password,
		Transport: http.DefaultTransport,
	}}

	caldavClient, err := gocaldav.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}

	webdavClient, err := webdav.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create webdav client: %w", err)
	}

	t := &Target{
		caldavClient: caldavClient,
		webdavClient: webdavClient,
		httpClient:   httpClient,
		endpoint:     root,
		logger:       logger,
		binder:       binder,
	}

	logger.Info("Finding CalDAV calendar", "calendarName", calendarName)
	calendarPath, err := t.findCalendar(ctx, calendarName)
	if err != nil {
		return nil, fmt.Errorf("could not find calendar '%s': %w", calendarName, err)
	}
	t.calendarPath = calendarPath
	logger.Info("Successfully found CalDAV calendar", "path", calendarPath)

	return t, nil
}

// Name identifies the target in logs and sync state.
func (t *Target) Name() string {
	return "caldav"
}

// Put creates or replaces the event of a session.
func (t *Target) Put(ctx context.Context, s models.Session) error {
	t.logger.Debug("Publishing session to CalDAV", "title", s.Title, "id", s.ID)

	vevent, ok := ics.Event(s, t.binder, time.Now())
	if !ok {
		return fmt.Errorf("session %s has an unparseable date %q", s.ID, s.Date)
	}
	cal := ics.Calendar("", vevent)

	writer, err := t.webdavClient.Create(ctx, eventPath(t.calendarPath, s.ID))
	if err != nil {
		return fmt.Errorf("failed to create event on CalDAV server: %w", err)
	}
	if err := ical.NewEncoder(writer).Encode(cal); err != nil {
		writer.Close()
		return fmt.Errorf("failed to encode event to iCal format: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to upload event to CalDAV server: %w", err)
	}

	t.logger.Info("Successfully published session to CalDAV", "title", s.Title)
	return nil
}

// Remove deletes the event of a session id. An event that is already gone counts as removed.
func (t *Target) Remove(ctx context.Context, sessionID string) error {
	u := t.endpoint.ResolveReference(&url.URL{Path: eventPath(t.calendarPath, sessionID)})
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to build CalDAV delete request: %w", err)
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to remove event from CalDAV server: %w", err)
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		t.logger.Debug("CalDAV event already gone", "id", sessionID)
		return nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("failed to remove event from CalDAV server: %s", resp.Status)
	}
	t.logger.Info("Removed session from CalDAV", "id", sessionID)
	return nil
}

// eventPath is the resource path of a session's event inside the calendar collection.
func eventPath(calendarPath, sessionID string) string {
	return path.Join(calendarPath, ics.UID(sessionID)+".ics")
}

// findCalendar discovers the user's calendars and returns the path of the one with the matching name.
func (t *Target) findCalendar(ctx context.Context, name string) (string, error) {
	principalPath, err := t.caldavClient.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to find principal path: %w", err)
	}

	homeSetPath, err := t.caldavClient.FindCalendarHomeSet(ctx, principalPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendar home set: %w", err)
	}

	calendars, err := t.caldavClient.FindCalendars(ctx, homeSetPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendars: %w", err)
	}

	for _, cal := range calendars {
		if cal.Name == name {
			return cal.Path, nil
		}
	}

	return "", fmt.Errorf("no calendar found with name '%s'", name)
}
