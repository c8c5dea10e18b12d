// Package state persists the orchestration record that survives between runs.
package state

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"backupflow/internal/services"
)

// State is the only memory carried across invocations.
type State struct {
	RepositoryInitialized     *bool      `toml:"repository_initialized,omitempty"`
	LastMaintenanceAt         *time.Time `toml:"last_maintenance_at,omitempty"`
	LastDeepMaintenanceAt     *time.Time `toml:"last_deep_maintenance_at,omitempty"`
	MaintenanceCounter        int        `toml:"maintenance_counter"`
	LastBackupSuccessful      bool       `toml:"last_backup_successful"`
	LastMaintenanceSuccessful bool       `toml:"last_maintenance_successful"`
}

// Default returns the first-run state.
func Default() State {
	return State{
		LastBackupSuccessful:      true,
		LastMaintenanceSuccessful: true,
	}
}

// Equal reports whether two records hold the same values.
func (s State) Equal(other State) bool {
	return equalBool(s.RepositoryInitialized, other.RepositoryInitialized) &&
		equalTime(s.LastMaintenanceAt, other.LastMaintenanceAt) &&
		equalTime(s.LastDeepMaintenanceAt, other.LastDeepMaintenanceAt) &&
		s.MaintenanceCounter == other.MaintenanceCounter &&
		s.LastBackupSuccessful == other.LastBackupSuccessful &&
		s.LastMaintenanceSuccessful == other.LastMaintenanceSuccessful
}

func equalBool(a, b *bool) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// Store reads and writes State as a TOML file.
type Store struct {
	path string
}

// NewStore returns a store for the given file.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

// Load returns the stored state. A missing file yields defaults with no
// error. An unreadable or corrupt file yields defaults together with an
// error marked services.ErrStateUnreadable, which callers log and ignore.
// Fields absent from a partial file keep their defaults.
func (s *Store) Load() (State, error) {
	st := Default()
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return st, nil
		}
		return Default(), services.Wrap(services.ErrStateUnreadable, "", "load state", "read "+s.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return st, nil
	}
	if err := toml.Unmarshal(data, &st); err != nil {
		return Default(), services.Wrap(services.ErrStateUnreadable, "", "load state", "decode "+s.path, err)
	}
	if st.MaintenanceCounter < 0 {
		st.MaintenanceCounter = 0
	}
	return st, nil
}

// Save rewrites the whole record. The file is replaced atomically so a
// process killed mid-write leaves the previous record intact.
func (s *Store) Save(st State) error {
	data, err := toml.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close state: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}
