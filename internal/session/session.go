// Package session holds the authenticated session used by the backend
// client and persists it between CLI invocations.
package session

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lizmareco/tablero/internal/board/models"
	"github.com/lizmareco/tablero/internal/common/errors"
)

// Session is passed explicitly to everything that talks to the backend.
type Session struct {
	Token   string
	User    *models.User
	SavedAt time.Time
}

// Valid reports whether the session carries a token.
func (s *Session) Valid() bool {
	return s != nil && s.Token != ""
}

// UserID returns the logged-in user's id, or 0.
func (s *Session) UserID() int64 {
	if s == nil || s.User == nil {
		return 0
	}
	return s.User.ID
}

// sessionFile is the on-disk YAML layout.
type sessionFile struct {
	Token   string    `yaml:"token"`
	UserID  int64     `yaml:"user_id,omitempty"`
	Name    string    `yaml:"name,omitempty"`
	Email   string    `yaml:"email,omitempty"`
	SavedAt time.Time `yaml:"saved_at"`
}

// Store reads and writes the session file.
type Store struct {
	path string
}

// NewStore returns a store backed by path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the session file location.
func (s *Store) Path() string {
	return s.path
}

// Load returns the saved session. A missing file or an empty token yields
// an UNAUTHORIZED error so callers can prompt for login.
func (s *Store) Load() (*Session, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, errors.Unauthorized("not logged in")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var f sessionFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse session file %s: %w", s.path, err)
	}
	if f.Token == "" {
		return nil, errors.Unauthorized("not logged in")
	}

	sess := &Session{Token: f.Token, SavedAt: f.SavedAt}
	if f.UserID != 0 || f.Email != "" {
		sess.User = &models.User{ID: f.UserID, Name: f.Name, Email: f.Email}
	}
	return sess, nil
}

// Save writes the session with owner-only permissions.
func (s *Store) Save(sess *Session) error {
	if !sess.Valid() {
		return errors.ValidationError("token", "session has no token")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	f := sessionFile{Token: sess.Token, SavedAt: sess.SavedAt}
	if f.SavedAt.IsZero() {
		f.SavedAt = time.Now().UTC()
	}
	if sess.User != nil {
		f.UserID = sess.User.ID
		f.Name = sess.User.Name
		f.Email = sess.User.Email
	}
	data, err := yaml.Marshal(&f)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}

// Clear removes the saved session. Clearing a missing session is not an error.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	return nil
}
