package syncer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"cybercal/internal/models"
)

// SyncState keeps track of which sessions have been published.
// The key is the session ID, and the value is a fingerprint of the published content.
type SyncState map[string]string

// Source provides the session collection to mirror.
type Source interface {
	ListAll(ctx context.Context) ([]models.Session, error)
}

// Target is a calendar that receives published sessions.
type Target interface {
	Name() string
	Put(ctx context.Context, s models.Session) error
	Remove(ctx context.Context, sessionID string) error
}

// Syncer mirrors the session collection into calendar targets.
type Syncer struct {
	logger    *slog.Logger
	source    Source
	targets   []Target
	state     SyncState
	stateFile string
	dryRun    bool
}

// NewSyncer creates a new Syncer.
func NewSyncer(logger *slog.Logger, source Source, targets []Target, stateFile string, dryRun bool) (*Syncer, error) {
	state, err := loadState(stateFile)
	if err != nil {
		// If the file doesn't exist, we can start with an empty state.
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("No sync state file found, starting fresh.", "file", stateFile)
			state = make(SyncState)
		} else {
			return nil, fmt.Errorf("failed to load sync state: %w", err)
		}
	}

	return &Syncer{
		logger:    logger,
		source:    source,
		targets:   targets,
		state:     state,
		stateFile: stateFile,
		dryRun:    dryRun,
	}, nil
}

// Sync performs a full synchronization cycle.
func (s *Syncer) Sync(ctx context.Context) error {
	s.logger.Info("Starting sync cycle.")

	sessions, err := s.source.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch sessions: %w", err)
	}
	s.logger.Info("Fetched session collection.", "count", len(sessions))

	seen := make(map[string]bool, len(sessions))
	for _, session := range sessions {
		if session.ID == "" {
			s.logger.Warn("Session has no id, skipping.", "title", session.Title)
			continue
		}
		seen[session.ID] = true
		if err := s.syncSession(ctx, session); err != nil {
			s.logger.Error("Failed to sync session", "title", session.Title, "error", err)
			// Continue with the next session even if one fails.
		}
	}

	for _, id := range s.staleIDs(seen) {
		if err := s.removeSession(ctx, id); err != nil {
			s.logger.Error("Failed to remove session", "id", id, "error", err)
		}
	}

	if !s.dryRun {
		if err := s.saveState(); err != nil {
			s.logger.Error("Failed to save sync state", "error", err)
		}
	}

	s.logger.Info("Sync cycle finished.")
	return nil
}

// syncSession publishes one session to every target unless it is unchanged.
func (s *Syncer) syncSession(ctx context.Context, session models.Session) error {
	fp := Fingerprint(session)
	if s.state[session.ID] == fp {
		s.logger.Debug("Session unchanged, skipping.", "title", session.Title, "id", session.ID)
		return nil
	}

	if s.dryRun {
		s.logger.Info("[DRY RUN] Would publish session", "title", session.Title, "date", session.Date)
		return nil
	}

	var errs []error
	for _, t := range s.targets {
		if err := t.Put(ctx, session); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Name(), err))
		}
	}
	if len(errs) > 0 {
		// Leave the state untouched so the next cycle retries.
		return errors.Join(errs...)
	}

	s.state[session.ID] = fp
	return nil
}

// removeSession withdraws a session that is no longer in the collection.
func (s *Syncer) removeSession(ctx context.Context, id string) error {
	if s.dryRun {
		s.logger.Info("[DRY RUN] Would remove session", "id", id)
		return nil
	}

	var errs []error
	for _, t := range s.targets {
		if err := t.Remove(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Name(), err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	delete(s.state, id)
	return nil
}

// staleIDs lists published ids missing from the collection, sorted for stable logs.
func (s *Syncer) staleIDs(seen map[string]bool) []string {
	var ids []string
	for id := range s.state {
		if !seen[id] {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// State returns a copy of the current sync state.
func (s *Syncer) State() SyncState {
	out := make(SyncState, len(s.state))
	for k, v := range s.state {
		out[k] = v
	}
	return out
}

// Fingerprint hashes the published fields of a session.
func Fingerprint(session models.Session) string {
	data, _ := json.Marshal(struct {
		models.Session
		Minutes int `json:"minutes"`
	}{session, session.Minutes()})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// loadState loads the sync state from the JSON file.
func loadState(path string) (SyncState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var state SyncState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	if state == nil {
		state = make(SyncState)
	}
	return state, nil
}

// saveState saves the current sync state to the JSON file.
func (s *Syncer) saveState() error {
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal sync state: %w", err)
	}
	return os.WriteFile(s.stateFile, data, 0644)
}
