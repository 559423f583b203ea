package config

import (
	"io"
	"log/slog"
	"strings"
	"testing"
)

func env(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(discard, env(nil))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIBaseURL != DefaultAPIBaseURL || cfg.Addr != DefaultAddr || cfg.SyncStateFile != DefaultSyncState {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Production() {
		t.Fatal("default env should not be production")
	}
	for name, key := range map[string][]byte{"csrf": cfg.CSRFKey, "hash": cfg.CookieHashKey, "block": cfg.CookieBlockKey} {
		if len(key) != 32 {
			t.Errorf("%s key has %d bytes, want 32", name, len(key))
		}
	}
	if cfg.CalDAV.Enabled() || cfg.Google.Enabled() {
		t.Fatal("publishing targets should be disabled by default")
	}
}

func TestLoad_Values(t *testing.T) {
	key := strings.Repeat("ab", 32)
	cfg, err := load(discard, env(map[string]string{
		"CYBERCAL_ENV":              "production",
		"CYBERCAL_API_BASE_URL":     "https://api.example.com",
		"CYBERCAL_TIMEZONE":         "America/Denver",
		"CYBERCAL_CSRF_KEY":         key,
		"CYBERCAL_COOKIE_HASH_KEY":  key,
		"CYBERCAL_COOKIE_BLOCK_KEY": key,
		"CALDAV_USERNAME":           "me",
		"CALDAV_PASSWORD":           "pw",
		"CALDAV_CALENDAR_NAME":      "Training",
		"GOOGLE_CALENDAR_ID":        "primary",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Production() || cfg.APIBaseURL != "https://api.example.com" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Location.String() != "America/Denver" {
		t.Fatalf("unexpected location %s", cfg.Location)
	}
	if cfg.CSRFKey[0] != 0xab {
		t.Fatal("expected decoded key")
	}
	if !cfg.CalDAV.Enabled() || !cfg.Google.Enabled() {
		t.Fatal("expected both targets enabled")
	}
	if cfg.Google.TokenFile != DefaultTokenFile {
		t.Fatalf("unexpected token file %q", cfg.Google.TokenFile)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"bad timezone", map[string]string{"CYBERCAL_TIMEZONE": "Mars/Olympus"}, "invalid timezone"},
		{"short key", map[string]string{"CYBERCAL_CSRF_KEY": "abcd"}, "CYBERCAL_CSRF_KEY must be 64 hex"},
		{"not hex", map[string]string{"CYBERCAL_CSRF_KEY": strings.Repeat("zz", 32)}, "must be 64 hex"},
		{"production without keys", map[string]string{"CYBERCAL_ENV": "production"}, "required in production"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(discard, env(tt.env))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
