// Package state holds the option store backends.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const stateFileName = "mailnotify_options.json"

// FileStore keeps every key in a single JSON document on disk. The mutex is
// held for the whole read-modify-write cycle to avoid lost updates.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store backed by dir/mailnotify_options.json. An
// empty dir means the working directory.
func NewFileStore(dir string) *FileStore {
	if dir == "" {
		if wd, err := os.Getwd(); err == nil {
			dir = wd
		} else {
			dir = os.TempDir()
		}
	}
	return &FileStore{path: filepath.Join(dir, stateFileName)}
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

// Get returns the raw value stored under key.
func (s *FileStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.loadAllUnlocked()
	if err != nil {
		return nil, false, err
	}
	v, ok := m[key]
	if !ok {
		return nil, false, nil
	}
	return []byte(v), true, nil
}

// Set stores value under key. value must be valid JSON.
func (s *FileStore) Set(_ context.Context, key string, value []byte) error {
	if !json.Valid(value) {
		return fmt.Errorf("set %s: value is not valid JSON", key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.loadAllUnlocked()
	if err != nil {
		return err
	}
	m[key] = json.RawMessage(value)
	return s.saveAllUnlocked(m)
}

// loadAllUnlocked reads the state file. Caller must hold the lock.
func (s *FileStore) loadAllUnlocked() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]json.RawMessage), nil
		}
		return nil, fmt.Errorf("load state: %w", err)
	}
	out := make(map[string]json.RawMessage)
	if len(data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return out, nil
}

// saveAllUnlocked writes the state file through a temp file and rename.
// Caller must hold the lock.
func (s *FileStore) saveAllUnlocked(m map[string]json.RawMessage) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("mkdir state dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o640); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
