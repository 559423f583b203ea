// Package auth holds the admin bearer token. The token is trusted as-is: it is never
// validated, refreshed or checked for expiry. A rejected token surfaces on the next
// authenticated call as api.ErrUnauthorized and is left in place.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/securecookie"
)

// StorageKey is the fixed key the token is persisted under (file name or cookie name).
const StorageKey = "cybercal_token"

// Store is the single source of truth for the current token.
// Get returns "" when no token is held.
type Store interface {
	Get() string
	Set(token string) error
	Clear() error
}

// LoggedIn reports whether s holds a token.
func LoggedIn(s Store) bool {
	return s.Get() != ""
}

// MemoryStore keeps the token in memory.
type MemoryStore struct {
	mu    sync.RWMutex
	token string
}

// NewMemoryStore returns a store pre-loaded with token (may be empty).
func NewMemoryStore(token string) *MemoryStore {
	return &MemoryStore{token: token}
}

func (m *MemoryStore) Get() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

func (m *MemoryStore) Set(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

func (m *MemoryStore) Clear() error {
	return m.Set("")
}

// FileStore persists the token in a file named StorageKey inside dir.
// The file is read once at construction to determine the initial state.
type FileStore struct {
	mu    sync.RWMutex
	path  string
	token string
}

// NewFileStore opens the token file in dir. A missing file means logged out.
func NewFileStore(dir string) (*FileStore, error) {
	fs := &FileStore{path: filepath.Join(dir, StorageKey)}
	data, err := os.ReadFile(fs.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("unable to read token file: %w", err)
	}
	fs.token = strings.TrimSpace(string(data))
	return fs, nil
}

// DefaultDir returns the per-user directory the CLI keeps its token in.
func DefaultDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("unable to locate user config dir: %w", err)
	}
	return filepath.Join(base, "cybercal"), nil
}

// Path returns the token file location.
func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) Get() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.token
}

func (f *FileStore) Set(token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("unable to create token dir: %w", err)
	}
	if err := os.WriteFile(f.path, []byte(token), 0o600); err != nil {
		return fmt.Errorf("unable to save token: %w", err)
	}
	f.token = token
	return nil
}

func (f *FileStore) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("unable to remove token file: %w", err)
	}
	f.token = ""
	return nil
}

// CookieLifetime is how long a browser keeps the token cookie.
const CookieLifetime = 400 * 24 * time.Hour

// NewCookieCodec returns the codec for the token cookie. Encoded values carry no age
// limit; whether a token is still good is up to the remote API.
func NewCookieCodec(hashKey, blockKey []byte) *securecookie.SecureCookie {
	return securecookie.New(hashKey, blockKey).MaxAge(0)
}

// CookieStore keeps one browser's token in an encrypted cookie named StorageKey.
// It is bound to a single request/response pair.
type CookieStore struct {
	w      http.ResponseWriter
	codec  *securecookie.SecureCookie
	secure bool
	token  string
}

// NewCookieStore decodes the token cookie from r. An unreadable cookie counts as logged out.
func NewCookieStore(w http.ResponseWriter, r *http.Request, codec *securecookie.SecureCookie, secure bool) *CookieStore {
	cs := &CookieStore{w: w, codec: codec, secure: secure}
	if c, err := r.Cookie(StorageKey); err == nil {
		var token string
		if err := codec.Decode(StorageKey, c.Value, &token); err == nil {
			cs.token = token
		}
	}
	return cs
}

func (c *CookieStore) Get() string {
	return c.token
}

func (c *CookieStore) Set(token string) error {
	encoded, err := c.codec.Encode(StorageKey, token)
	if err != nil {
		return fmt.Errorf("unable to encode token cookie: %w", err)
	}
	http.SetCookie(c.w, &http.Cookie{
		Name:     StorageKey,
		Value:    encoded,
		Path:     "/",
		Expires:  time.Now().Add(CookieLifetime),
		MaxAge:   int(CookieLifetime / time.Second),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	c.token = token
	return nil
}

func (c *CookieStore) Clear() error {
	http.SetCookie(c.w, &http.Cookie{
		Name:     StorageKey,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	c.token = ""
	return nil
}
