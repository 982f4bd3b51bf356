package adaptive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStore persists one JSON document per user under a profile directory.
// Writes go through a temp file and rename so a crash never leaves a
// half-written profile behind.
type FileStore struct {
	dir string
}

// NewFileStore creates the profile directory if needed
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create profile directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// path maps a user ID onto a file name, stripping separators so an ID can
// never escape the profile directory
func (s *FileStore) path(userID string) string {
	safe := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', '.', ':':
			return '_'
		}
		return r
	}, userID)
	return filepath.Join(s.dir, safe+".json")
}

// Load returns the stored profile, or nil when the user is unknown
func (s *FileStore) Load(userID string) (*UserProfile, error) {
	data, err := os.ReadFile(s.path(userID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}

	var p UserProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	return &p, nil
}

// Save writes the profile atomically
func (s *FileStore) Save(profile *UserProfile) error {
	data, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}

	target := s.path(profile.UserID)
	tmp, err := os.CreateTemp(s.dir, ".profile-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write profile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace profile: %w", err)
	}
	return nil
}

// Delete removes the profile; deleting an unknown user is not an error
func (s *FileStore) Delete(userID string) error {
	if err := os.Remove(s.path(userID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	return nil
}
