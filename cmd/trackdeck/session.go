package main

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
)

// Session is a stored operator token for one daemon.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Username  string    `json:"username"`
	ServerURL string    `json:"server_url"`
}

// SessionManager handles session storage and retrieval
type SessionManager struct {
	sessionPath string
}

func NewSessionManager() *SessionManager {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return NewSessionManagerAt(filepath.Join(homeDir, ".trackdeck", "session.json"))
}

func NewSessionManagerAt(path string) *SessionManager {
	return &SessionManager{sessionPath: path}
}

func (sm *SessionManager) SaveSession(s *Session) error {
	if err := os.MkdirAll(filepath.Dir(sm.sessionPath), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(sm.sessionPath, data, 0o600)
}

// LoadSession returns the stored session, or nil when there is none or it
// has expired.
func (sm *SessionManager) LoadSession() (*Session, error) {
	data, err := os.ReadFile(sm.sessionPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if time.Now().After(s.ExpiresAt) {
		_ = sm.ClearSession()
		return nil, nil
	}
	return &s, nil
}

func (sm *SessionManager) ClearSession() error {
	if err := os.Remove(sm.sessionPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// TokenFor returns the stored token when it was issued by serverURL.
func (sm *SessionManager) TokenFor(serverURL string) string {
	s, err := sm.LoadSession()
	if err != nil || s == nil || s.ServerURL != serverURL {
		return ""
	}
	return s.Token
}
