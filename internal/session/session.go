// Package session persists the authenticated-session marker. It lives in its
// own small file, independent of the SQLite store, so clearing a session can
// never touch business data.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const fileName = "session.json"

// ErrNoSession is returned by Load when nobody is logged in.
var ErrNoSession = errors.New("no active session")

// Session marks a logged-in clinic user.
type Session struct {
	Token    string    `json:"token"`
	Username string    `json:"username"`
	FullName string    `json:"full_name,omitempty"`
	Role     string    `json:"role,omitempty"`
	SavedAt  time.Time `json:"saved_at"`
}

// New builds a session marker for the given user with a fresh local token.
func New(username, fullName, role string) Session {
	return Session{
		Token:    uuid.New().String(),
		Username: username,
		FullName: fullName,
		Role:     role,
		SavedAt:  time.Now().UTC(),
	}
}

func path(dataDir string) string {
	return filepath.Join(dataDir, fileName)
}

// Save writes the session marker to dataDir.
func Save(dataDir string, s Session) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	return os.WriteFile(path(dataDir), data, 0o600)
}

// Load reads the session marker from dataDir.
func Load(dataDir string) (Session, error) {
	data, err := os.ReadFile(path(dataDir))
	if err != nil {
		if os.IsNotExist(err) {
			return Session{}, ErrNoSession
		}
		return Session{}, fmt.Errorf("reading session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, fmt.Errorf("parsing session: %w", err)
	}
	return s, nil
}

// Clear removes the session marker. Clearing an absent session is not an
// error.
func Clear(dataDir string) error {
	err := os.Remove(path(dataDir))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
