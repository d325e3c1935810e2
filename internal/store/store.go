// Package store persists browser session metadata in a JSON registry file
// shared between short-lived driver invocations and long-lived daemon
// processes. The registry is read and rewritten wholesale on every mutation;
// there is no locking, so concurrent writers can lose each other's updates.
// Sessions are rarely touched by more than one actor at a time (creator plus
// heartbeat), so the race window is accepted.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Status is the lifecycle state of a session as recorded in the registry.
type Status string

const (
	// StatusReady means the browser is launched but any requested initial
	// navigation has not completed yet.
	StatusReady Status = "ready"
	// StatusActive means the session is fully available for use.
	StatusActive Status = "active"
)

// Session is one live browser instance tracked by the registry.
// Field names match the on-disk JSON produced by the daemon.
type Session struct {
	CDPEndpoint string    `json:"cdpEndpoint"`
	PID         int       `json:"pid"`
	StartedAt   time.Time `json:"startedAt"`
	LastUsed    time.Time `json:"lastUsed"`
	Status      Status    `json:"status"`
	InitialURL  string    `json:"initialUrl,omitempty"`
}

// Ready reports whether the session can be attached to: it has a debugging
// endpoint and is either ready or active.
func (s Session) Ready() bool {
	return s.CDPEndpoint != "" && (s.Status == StatusReady || s.Status == StatusActive)
}

// Store is a file-backed session registry. The path is injected so tests and
// callers never share an implicit singleton.
type Store struct {
	path string
}

// New returns a Store backed by the registry file at path.
func New(path string) *Store {
	return &Store{path: path}
}

// DefaultPath returns the registry location under the user's home directory.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".webpilot", "sessions.json"), nil
}

// Path returns the registry file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the registry. A missing or unparsable file is treated as an
// empty registry, never a fatal error.
func (s *Store) Load() (map[string]Session, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return map[string]Session{}, nil
	}
	sessions := map[string]Session{}
	if err := json.Unmarshal(data, &sessions); err != nil {
		return map[string]Session{}, nil
	}
	return sessions, nil
}

// Save serializes the full mapping and overwrites the registry file,
// creating the containing directory if missing.
func (s *Store) Save(sessions map[string]Session) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create registry directory: %w", err)
	}
	data, err := json.MarshalIndent(sessions, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sessions: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write registry: %w", err)
	}
	return nil
}

// Get looks up one session by id.
func (s *Store) Get(id string) (Session, bool, error) {
	sessions, err := s.Load()
	if err != nil {
		return Session{}, false, err
	}
	sess, ok := sessions[id]
	return sess, ok, nil
}

// Put inserts or replaces a session entry (load-mutate-save).
func (s *Store) Put(id string, sess Session) error {
	sessions, err := s.Load()
	if err != nil {
		return err
	}
	sessions[id] = sess
	return s.Save(sessions)
}

// Update applies fn to an existing entry and writes the registry back.
// It reports whether the entry existed.
func (s *Store) Update(id string, fn func(*Session)) (bool, error) {
	sessions, err := s.Load()
	if err != nil {
		return false, err
	}
	sess, ok := sessions[id]
	if !ok {
		return false, nil
	}
	fn(&sess)
	sessions[id] = sess
	return true, s.Save(sessions)
}

// Touch refreshes a session's lastUsed timestamp.
func (s *Store) Touch(id string) error {
	_, err := s.Update(id, func(sess *Session) {
		sess.LastUsed = time.Now()
	})
	return err
}

// Delete removes a session entry. Deleting an absent id is a no-op.
func (s *Store) Delete(id string) error {
	sessions, err := s.Load()
	if err != nil {
		return err
	}
	if _, ok := sessions[id]; !ok {
		return nil
	}
	delete(sessions, id)
	return s.Save(sessions)
}
