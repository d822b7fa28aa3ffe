// Package session persists the authenticated session between runs. It is the
// only component allowed to touch the session file.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/achuthan-s/oasis-chat-client/internal/domain"
)

// ErrNoSession is returned by Load when no usable session is stored. A
// missing file, a half-written file and malformed JSON all look the same to
// callers: there is no session, go authenticate.
var ErrNoSession = errors.New("no stored session")

type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Save persists the token and user profile together. The write goes through
// a temp file and a rename so a crash can never leave one field without the
// other.
func (s *Store) Save(token string, user domain.User) error {
	if token == "" {
		return fmt.Errorf("refusing to save empty token")
	}

	data, err := json.Marshal(domain.Session{Token: token, User: user})
	if err != nil {
		return fmt.Errorf("failed to serialize session: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create session dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to commit session: %w", err)
	}
	return nil
}

// Load returns the stored session, or ErrNoSession when the file is absent,
// malformed, or missing either the token or the user.
func (s *Store) Load() (domain.Session, error) {
	var sess domain.Session

	data, err := os.ReadFile(s.path)
	if err != nil {
		return sess, ErrNoSession
	}
	if err := json.Unmarshal(data, &sess); err != nil {
		return domain.Session{}, ErrNoSession
	}
	if sess.Token == "" || sess.User.Username == "" {
		return domain.Session{}, ErrNoSession
	}
	return sess, nil
}

// Clear removes the stored session. Clearing an absent session is not an
// error.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
