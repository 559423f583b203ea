package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"cybercal/internal/calendar"
	"cybercal/internal/ics"
	"cybercal/internal/models"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	credentialsFile = "credentials.json"
)

// Target publishes sessions as events in one Google calendar.
type Target struct {
	service    *gcal.Service
	logger     *slog.Logger
	binder     calendar.Binder
	calendarID string
}

// NewTarget creates a Google Calendar target.
// It handles loading credentials and setting up an authenticated HTTP client from the
// token saved by the google-auth command.
func NewTarget(ctx context.Context, logger *slog.Logger, binder calendar.Binder, clientID, clientSecret, tokenFile, calendarID string) (*Target, error) {
	config, err := getOAuthConfig(clientID, clientSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to get OAuth config: %w", err)
	}

	token, err := tokenFromFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("could not load token %s: %w. Please run the 'google-auth' command first", tokenFile, err)
	}

	client := config.Client(ctx, token)
	service, err := gcal.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	return newTarget(service, logger, binder, calendarID), nil
}

func newTarget(service *gcal.Service, logger *slog.Logger, binder calendar.Binder, calendarID string) *Target {
	if calendarID == "" {
		calendarID = "primary"
	}
	return &Target{service: service, logger: logger, binder: binder, calendarID: calendarID}
}

// Name identifies the target in logs and sync state.
func (t *Target) Name() string {
	return "google"
}

// Put updates the session's event, inserting it when Google does not know it yet.
func (t *Target) Put(ctx context.Context, s models.Session) error {
	event, ok := t.toGoogleEvent(s)
	if !ok {
		return fmt.Errorf("session %s has an unparseable date %q", s.ID, s.Date)
	}

	_, err := t.service.Events.Update(t.calendarID, event.Id, event).Context(ctx).Do()
	if err == nil {
		t.logger.Info("Updated session in Google Calendar", "title", s.Title, "calendarID", t.calendarID)
		return nil
	}
	if !isStatus(err, http.StatusNotFound) {
		return fmt.Errorf("failed to update google event: %w", err)
	}

	if _, err := t.service.Events.Insert(t.calendarID, event).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to insert google event: %w", err)
	}
	t.logger.Info("Inserted session into Google Calendar", "title", s.Title, "calendarID", t.calendarID)
	return nil
}

// Remove deletes the session's event. An event that is already gone is not an error.
func (t *Target) Remove(ctx context.Context, sessionID string) error {
	err := t.service.Events.Delete(t.calendarID, EventID(sessionID)).Context(ctx).Do()
	if err != nil && !isStatus(err, http.StatusNotFound) && !isStatus(err, http.StatusGone) {
		return fmt.Errorf("failed to delete google event: %w", err)
	}
	t.logger.Info("Removed session from Google Calendar", "id", sessionID, "calendarID", t.calendarID)
	return nil
}

// EventID derives the Google event id of a session. Google ids use base32hex
// characters, which a dash-less UUID satisfies.
func EventID(sessionID string) string {
	return strings.ReplaceAll(ics.UID(sessionID), "-", "")
}

// toGoogleEvent converts a session to the Google Calendar event model.
func (t *Target) toGoogleEvent(s models.Session) (*gcal.Event, bool) {
	w, ok := t.binder.DisplayWindow(s)
	if !ok {
		return nil, false
	}

	description := s.Description
	if description != "" {
		description += "\n\n"
	}
	description += "Trainer: " + s.TrainerName()
	if s.MeetingLink != "" {
		description += "\nJoin: " + s.MeetingLink
	}

	return &gcal.Event{
		Id:          EventID(s.ID),
		ICalUID:     ics.UID(s.ID),
		Summary:     s.Title,
		Description: description,
		Location:    s.MeetingLink,
		Start:       &gcal.EventDateTime{DateTime: w.Start.Format(time.RFC3339)},
		End:         &gcal.EventDateTime{DateTime: w.End.Format(time.RFC3339)},
	}, true
}

func isStatus(err error, code int) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == code
}

// GetOAuthConfigForAuthFlow is used by the google-auth command to get the config for the web flow.
func GetOAuthConfigForAuthFlow(clientID, clientSecret string) (*oauth2.Config, error) {
	return getOAuthConfig(clientID, clientSecret)
}

// getOAuthConfig reads credentials and returns an OAuth2 config.
// It prioritizes environment variables over a local credentials.json file.
func getOAuthConfig(clientID, clientSecret string) (*oauth2.Config, error) {
	if clientID != "" && clientSecret != "" {
		return &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  "urn:ietf:wg:oauth:2.0:oob",
			Scopes:       []string{gcal.CalendarEventsScope},
			Endpoint:     google.Endpoint,
		}, nil
	}

	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		if _, ok := err.(*fs.PathError); ok {
			return nil, fmt.Errorf("credentials.json not found. Please provide GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET env vars or place credentials.json in the root directory")
		}
		return nil, fmt.Errorf("unable to read client secret file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, gcal.CalendarEventsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	config.RedirectURL = "urn:ietf:wg:oauth:2.0:oob" // For desktop app flow
	return config, nil
}

// TokenFromWeb is called by the auth flow to retrieve a token.
func TokenFromWeb(ctx context.Context, config *oauth2.Config, authCode string) (*oauth2.Token, error) {
	return config.Exchange(ctx, authCode)
}

// SaveToken saves a token to a file path.
func SaveToken(path string, token *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("unable to create token file: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}

// tokenFromFile retrieves a token from a local file.
func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}
