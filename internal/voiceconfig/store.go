// Package voiceconfig owns the persisted active-voice-profile selection.
//
// The value survives process restarts: it is loaded from a small TOML state
// file at startup and flushed back synchronously on every mutation. All
// access is serialized through one mutex so racing admin commands cannot lose
// updates. Authorization is the dispatch router's job; this store performs no
// identity checks.
package voiceconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pelletier/go-toml/v2"
)

// File and directory permissions.
const (
	filePermissions = 0o600
	dirPermissions  = 0o750
)

const tempPattern = ".voice-*.toml"

// ErrEmptyProfile indicates an attempt to set an empty voice profile.
var ErrEmptyProfile = errors.New("voice profile cannot be empty")

// persistedState is the on-disk shape of the store.
type persistedState struct {
	ActiveProfile string `toml:"active_profile"`
}

// Store holds the process-wide active voice profile.
type Store struct {
	mu       sync.Mutex
	path     string
	fallback string
	current  string
}

// New creates a store backed by the state file at path. The last persisted
// value is loaded immediately; if the file is absent or corrupt the
// compiled-in fallback profile is used instead.
func New(path, fallback string) *Store {
	store := &Store{
		path:     path,
		fallback: fallback,
		current:  fallback,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return store
	}

	var state persistedState

	err = toml.Unmarshal(data, &state)
	if err != nil || state.ActiveProfile == "" {
		return store
	}

	store.current = state.ActiveProfile

	return store
}

// Get returns the active voice profile.
func (s *Store) Get() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.current
}

// Set validates and persists a new active profile. The state file is written
// to a temp path and renamed into place so a crash mid-write never leaves a
// half-written file; the in-memory value only changes after the file is
// safely on disk.
func (s *Store) Set(profile string) error {
	if profile == "" {
		return ErrEmptyProfile
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := toml.Marshal(persistedState{ActiveProfile: profile})
	if err != nil {
		return fmt.Errorf("failed to marshal voice state: %w", err)
	}

	dir := filepath.Dir(s.path)

	err = os.MkdirAll(dir, dirPermissions)
	if err != nil {
		return fmt.Errorf("failed to create state directory '%s': %w", dir, err)
	}

	tempFile, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}

	tempPath := tempFile.Name()

	_, writeErr := tempFile.Write(data)

	closeErr := tempFile.Close()
	if writeErr != nil {
		_ = os.Remove(tempPath)

		return fmt.Errorf("failed to write voice state: %w", writeErr)
	}

	if closeErr != nil {
		_ = os.Remove(tempPath)

		return fmt.Errorf("failed to close temp state file: %w", closeErr)
	}

	err = os.Chmod(tempPath, filePermissions)
	if err != nil {
		_ = os.Remove(tempPath)

		return fmt.Errorf("failed to set state file permissions: %w", err)
	}

	err = os.Rename(tempPath, s.path)
	if err != nil {
		_ = os.Remove(tempPath)

		return fmt.Errorf("failed to move voice state into place: %w", err)
	}

	s.current = profile

	return nil
}
