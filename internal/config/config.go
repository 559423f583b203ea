// Package config reads cybercal's settings from the environment.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

const (
	DefaultAPIBaseURL = "http://localhost:4000"
	DefaultAddr       = ":8080"
	DefaultSyncState  = "sync-state.json"
	DefaultTokenFile  = "token-google.json"
)

// Config is the resolved runtime configuration.
type Config struct {
	Env        string
	Addr       string
	APIBaseURL string
	LogLevel   string
	Location   *time.Location

	CSRFKey        []byte
	CookieHashKey  []byte
	CookieBlockKey []byte

	// TokenDir holds the CLI's admin token; empty means the user config dir.
	TokenDir      string
	SyncStateFile string

	CalDAV CalDAV
	Google Google
}

// CalDAV configures the CalDAV publishing target.
type CalDAV struct {
	Endpoint     string
	Username     string
	Password     string
	CalendarName string
}

// Enabled reports whether enough is set to publish to CalDAV.
func (c CalDAV) Enabled() bool {
	return c.Username != "" && c.Password != "" && c.CalendarName != ""
}

// Google configures the Google Calendar publishing target.
type Google struct {
	ClientID     string
	ClientSecret string
	CalendarID   string
	TokenFile    string
}

// Enabled reports whether a Google calendar was asked for.
func (g Google) Enabled() bool {
	return g.CalendarID != ""
}

// Production reports whether CYBERCAL_ENV is "production".
func (c Config) Production() bool {
	return c.Env == "production"
}

// Load resolves the configuration from the process environment.
func Load(logger *slog.Logger) (Config, error) {
	return load(logger, os.Getenv)
}

func load(logger *slog.Logger, getenv func(string) string) (Config, error) {
	get := func(key, fallback string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return fallback
	}

	cfg := Config{
		Env:           get("CYBERCAL_ENV", "development"),
		Addr:          get("CYBERCAL_ADDR", DefaultAddr),
		APIBaseURL:    get("CYBERCAL_API_BASE_URL", DefaultAPIBaseURL),
		LogLevel:      get("LOG_LEVEL", "info"),
		TokenDir:      get("CYBERCAL_TOKEN_DIR", ""),
		SyncStateFile: get("CYBERCAL_SYNC_STATE", DefaultSyncState),
		CalDAV: CalDAV{
			Endpoint:     get("CALDAV_ENDPOINT", ""),
			Username:     get("CALDAV_USERNAME", ""),
			Password:     getenv("CALDAV_PASSWORD"),
			CalendarName: get("CALDAV_CALENDAR_NAME", ""),
		},
		Google: Google{
			ClientID:     get("GOOGLE_CLIENT_ID", ""),
			ClientSecret: get("GOOGLE_CLIENT_SECRET", ""),
			CalendarID:   get("GOOGLE_CALENDAR_ID", ""),
			TokenFile:    get("GOOGLE_TOKEN_FILE", DefaultTokenFile),
		},
	}

	tz := get("CYBERCAL_TIMEZONE", "Local")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Config{}, fmt.Errorf("invalid timezone '%s': %w", tz, err)
	}
	cfg.Location = loc

	keys := []struct {
		env  string
		dest *[]byte
	}{
		{"CYBERCAL_CSRF_KEY", &cfg.CSRFKey},
		{"CYBERCAL_COOKIE_HASH_KEY", &cfg.CookieHashKey},
		{"CYBERCAL_COOKIE_BLOCK_KEY", &cfg.CookieBlockKey},
	}
	for _, k := range keys {
		key, err := loadKey(logger, k.env, getenv(k.env), cfg.Production())
		if err != nil {
			return Config{}, err
		}
		*k.dest = key
	}

	return cfg, nil
}

// loadKey decodes a hex-encoded 32-byte secret. In production the key must be set;
// otherwise a random key is generated per startup.
func loadKey(logger *slog.Logger, name, keyHex string, production bool) ([]byte, error) {
	if keyHex = strings.TrimSpace(keyHex); keyHex != "" {
		key, err := hex.DecodeString(keyHex)
		if err != nil || len(key) != 32 {
			return nil, fmt.Errorf("%s must be 64 hex characters (32 bytes)", name)
		}
		return key, nil
	}
	if production {
		return nil, fmt.Errorf("%s is required in production", name)
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate %s: %w", name, err)
	}
	logger.Warn("Using a random key, browser sessions won't survive restart.", "env", name)
	return key, nil
}
