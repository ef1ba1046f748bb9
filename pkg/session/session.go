// Package session keeps the API login sessions: an in-memory map with
// sliding expiry, optional per-user sharing and an optional JSON sync file.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/dapper/internal/logger"
	"github.com/marmos91/dapper/pkg/metrics"
)

// maxExpiryInterval caps how long an expired session can linger.
const maxExpiryInterval = time.Minute

// Session is one login. Timestamp is the last use.
type Session struct {
	ID        string    `json:"id"`
	User      string    `json:"user"`
	Created   time.Time `json:"created"`
	Timestamp time.Time `json:"timestamp"`
}

// Store holds the live sessions. It is safe for concurrent use.
type Store struct {
	config  Config
	metrics metrics.APIMetrics
	path    string

	mu       sync.Mutex
	sessions map[string]*Session
	users    map[string]*Session

	// now is replaced by tests.
	now func() time.Time
}

// New builds an empty store. m may be nil.
func New(config Config, m metrics.APIMetrics) *Store {
	config.applyDefaults()

	s := &Store{
		config:   config,
		metrics:  m,
		sessions: make(map[string]*Session),
		users:    make(map[string]*Session),
		now:      time.Now,
	}
	if config.Sync > 0 {
		s.path = config.File
		if !filepath.IsAbs(s.path) {
			s.path = filepath.Join(os.TempDir(), s.path)
		}
	}
	return s
}

// Config returns the effective configuration.
func (s *Store) Config() Config { return s.config }

// Create starts a session for userID, or refreshes and returns the user's
// live session when sharing is on.
func (s *Store) Create(userID string) Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	if s.config.Shared {
		if existing, ok := s.users[userID]; ok {
			existing.Timestamp = now
			return *existing
		}
	}

	sess := &Session{
		ID:        uuid.NewString(),
		User:      userID,
		Created:   now,
		Timestamp: now,
	}
	s.sessions[sess.ID] = sess
	s.users[userID] = sess
	metrics.SetActiveSessions(s.metrics, len(s.sessions))
	return *sess
}

// Lookup returns the session without touching it.
func (s *Store) Lookup(id string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}

// Touch marks the session used now and returns it. Sessions past their TTL
// are treated as gone even before the expiry loop removes them.
func (s *Store) Touch(id string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, false
	}
	now := s.now().UTC()
	if now.Sub(sess.Timestamp) > s.config.TTL {
		s.remove(sess)
		return Session{}, false
	}
	sess.Timestamp = now
	return *sess, true
}

// Clear removes the session. It reports whether it existed.
func (s *Store) Clear(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if ok {
		s.remove(sess)
	}
	return ok
}

// remove deletes sess from both indexes. Callers hold mu.
func (s *Store) remove(sess *Session) {
	delete(s.sessions, sess.ID)
	if s.users[sess.User] == sess {
		delete(s.users, sess.User)
	}
	metrics.SetActiveSessions(s.metrics, len(s.sessions))
}

// Expire removes every session idle for longer than the TTL and returns how
// many were removed.
func (s *Store) Expire() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	removed := 0
	for _, sess := range s.sessions {
		if now.Sub(sess.Timestamp) > s.config.TTL {
			s.remove(sess)
			removed++
		}
	}
	return removed
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Path returns the sync file, or "" when sync is off.
func (s *Store) Path() string { return s.path }

// Load reads sessions saved by a previous Sync. A missing file is not an
// error.
func (s *Store) Load() (int, error) {
	if s.path == "" {
		return 0, nil
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read session file: %w", err)
	}
	if len(data) == 0 {
		return 0, nil
	}

	var items map[string]*Session
	if err := json.Unmarshal(data, &items); err != nil {
		return 0, fmt.Errorf("decode session file %s: %w", s.path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range items {
		if sess == nil || sess.User == "" {
			continue
		}
		sess.ID = id
		s.sessions[id] = sess
		s.users[sess.User] = sess
	}
	metrics.SetActiveSessions(s.metrics, len(s.sessions))
	return len(items), nil
}

// Sync writes the live sessions to the sync file, replacing it atomically.
func (s *Store) Sync() error {
	if s.path == "" {
		return nil
	}

	s.mu.Lock()
	items := make(map[string]Session, len(s.sessions))
	for id, sess := range s.sessions {
		items[id] = *sess
	}
	s.mu.Unlock()

	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode sessions: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}

// Run loads saved sessions, then expires (and syncs, when enabled) on a
// timer until ctx is cancelled. A final sync runs on the way out.
func (s *Store) Run(ctx context.Context) error {
	if n, err := s.Load(); err != nil {
		logger.Warn("Saved sessions not loaded", "path", s.path, logger.Err(err))
	} else if n > 0 {
		logger.Info("Saved sessions loaded", "count", n, "path", s.path)
	}

	expiry := time.NewTicker(min(s.config.TTL, maxExpiryInterval))
	defer expiry.Stop()

	var syncC <-chan time.Time
	if s.path != "" {
		t := time.NewTicker(s.config.Sync)
		defer t.Stop()
		syncC = t.C
	}

	logger.Info("Session engine started", "ttl", s.config.TTL, "shared", s.config.Shared, "sync", s.config.Sync)
	for {
		select {
		case <-ctx.Done():
			if err := s.Sync(); err != nil {
				logger.Warn("Final session sync failed", logger.Err(err))
				return err
			}
			logger.Debug("Session engine stopped", "sessions", s.Len())
			return nil
		case <-expiry.C:
			if n := s.Expire(); n > 0 {
				logger.Debug("Sessions expired", "count", n)
			}
		case <-syncC:
			if err := s.Sync(); err != nil {
				logger.Warn("Session sync failed", "path", s.path, logger.Err(err))
			}
		}
	}
}
