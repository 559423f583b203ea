// Package store is the single point of contact with the remote session collection.
//
// The in-memory collection is a cache, never the source of truth: every successful
// mutation is followed by a full reload of the collection, and a failed reload leaves the
// previously held collection in place.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"cybercal/internal/auth"
	"cybercal/internal/models"
)

// Remote is the session API the store reads from and writes to.
type Remote interface {
	ListSessions(ctx context.Context) ([]models.Session, error)
	GetSession(ctx context.Context, id, token string) (models.Session, error)
	CreateSession(ctx context.Context, draft models.Session, token string) (models.Session, error)
	UpdateSession(ctx context.Context, s models.Session, token string) (models.Session, error)
	DeleteSession(ctx context.Context, id, token string) error
}

// Store owns the cached session collection.
type Store struct {
	remote Remote
	logger *slog.Logger

	mu       sync.RWMutex
	sessions []models.Session
	loaded   bool
}

// New creates a store with an empty collection. Call ListAll to populate it.
func New(logger *slog.Logger, remote Remote) *Store {
	return &Store{remote: remote, logger: logger}
}

// Sessions returns a copy of the cached collection in server order.
func (s *Store) Sessions() []models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.sessions)
}

// Loaded reports whether at least one reload has succeeded.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// ListAll fetches the whole collection without authentication and replaces the cache.
// On failure the cache is left untouched and the error is returned.
func (s *Store) ListAll(ctx context.Context) ([]models.Session, error) {
	sessions, err := s.remote.ListSessions(ctx)
	if err != nil {
		s.logger.Warn("Failed to load sessions, keeping cached collection", "error", err)
		return nil, err
	}

	s.mu.Lock()
	s.sessions = sessions
	s.loaded = true
	s.mu.Unlock()

	s.logger.Debug("Session collection reloaded", "count", len(sessions))
	return slices.Clone(sessions), nil
}

// InvalidateAndReload discards the cached view by fetching the collection again.
// It is the only refresh path used after mutations.
func (s *Store) InvalidateAndReload(ctx context.Context) error {
	_, err := s.ListAll(ctx)
	return err
}

// As returns the authenticated operations bound to tokens.
func (s *Store) As(tokens auth.Store) *Admin {
	return &Admin{store: s, tokens: tokens}
}

// Admin exposes the authenticated operations. Each call reads the current token from
// its auth store; no token validation happens here.
type Admin struct {
	store  *Store
	tokens auth.Store
}

// GetByID fetches the authoritative record for id. The cache is never consulted.
func (a *Admin) GetByID(ctx context.Context, id string) (models.Session, error) {
	return a.store.remote.GetSession(ctx, id, a.tokens.Get())
}

// Create posts draft and reloads the collection once the server accepted it.
func (a *Admin) Create(ctx context.Context, draft models.Session) (models.Session, error) {
	created, err := a.store.remote.CreateSession(ctx, draft, a.tokens.Get())
	if err != nil {
		return models.Session{}, err
	}
	a.store.logger.Info("Session created", "id", created.ID, "title", draft.Title)
	return created, a.reload(ctx)
}

// Update replaces the record keyed by s.ID and reloads the collection.
func (a *Admin) Update(ctx context.Context, s models.Session) (models.Session, error) {
	updated, err := a.store.remote.UpdateSession(ctx, s, a.tokens.Get())
	if err != nil {
		return models.Session{}, err
	}
	a.store.logger.Info("Session updated", "id", s.ID, "title", s.Title)
	return updated, a.reload(ctx)
}

// Remove deletes the record keyed by id and reloads the collection.
func (a *Admin) Remove(ctx context.Context, id string) error {
	if err := a.store.remote.DeleteSession(ctx, id, a.tokens.Get()); err != nil {
		return err
	}
	a.store.logger.Info("Session deleted", "id", id)
	return a.reload(ctx)
}

// reload runs after a successful mutation. A failure here does not undo the mutation;
// it is reported as a *ReloadError so callers can tell the two apart.
func (a *Admin) reload(ctx context.Context) error {
	if err := a.store.InvalidateAndReload(ctx); err != nil {
		return &ReloadError{Err: err}
	}
	return nil
}

// ReloadError means a mutation succeeded but the following reload did not.
// The cache still holds the collection from before the mutation.
type ReloadError struct {
	Err error
}

func (e *ReloadError) Error() string {
	return fmt.Sprintf("mutation applied but reload failed: %v", e.Err)
}

func (e *ReloadError) Unwrap() error {
	return e.Err
}
