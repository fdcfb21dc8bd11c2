package snapshot

// ============================================================================
// Responsibilities:
// 1. Serialise the competition status into a JSON snapshot file
// 2. Write atomically (temp file + rename) so a crash never leaves half a file
// 3. Check the schema version on load
// 4. Together with the results log, make a restart resume where it stopped
// ============================================================================

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ChuLiYu/ringmaster/pkg/types"
)

// SchemaVersion is the snapshot layout written by this package.
const SchemaVersion = 1

// ============================================================================
// Errors
// ============================================================================

var (
	ErrCorruptedSnapshot   = errors.New("snapshot file is corrupted")
	ErrIncompatibleVersion = errors.New("snapshot schema version is incompatible")
)

// ============================================================================
// Manager
// ============================================================================

// Manager reads and writes one snapshot file.
type Manager struct {
	path string
	mu   sync.Mutex // serialises file operations
}

// NewManager returns a manager for the snapshot at path.
func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Write atomically replaces the snapshot.
func (m *Manager) Write(data types.SnapshotData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.write(data)
}

func (m *Manager) write(data types.SnapshotData) error {
	data.SchemaVer = SchemaVersion
	if data.Results == nil {
		data.Results = []types.GameRecord{}
	}

	// Indented so that the file can be inspected by hand.
	jsonBytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	tmpPath := m.path + ".tmp"
	if err := os.WriteFile(tmpPath, jsonBytes, 0o644); err != nil {
		return fmt.Errorf("failed to write temp snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, m.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot. A missing file is a first start and yields an
// empty status.
func (m *Manager) Load() (types.SnapshotData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var data types.SnapshotData
	jsonBytes, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return types.SnapshotData{
				SchemaVer: SchemaVersion,
				Results:   []types.GameRecord{},
			}, nil
		}
		return data, fmt.Errorf("failed to read snapshot: %w", err)
	}

	if err := json.Unmarshal(jsonBytes, &data); err != nil {
		return data, fmt.Errorf("%w: %v", ErrCorruptedSnapshot, err)
	}
	if data.SchemaVer != SchemaVersion {
		return data, fmt.Errorf("%w: got %d, want %d", ErrIncompatibleVersion, data.SchemaVer, SchemaVersion)
	}
	if data.Results == nil {
		data.Results = []types.GameRecord{}
	}
	return data, nil
}

// Exists reports whether a snapshot file is present.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}

// Remove deletes the snapshot and its backups. A missing file is not an error.
func (m *Manager) Remove() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	paths, err := m.backups()
	if err != nil {
		return err
	}
	paths = append(paths, m.path)
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", p, err)
		}
	}
	return nil
}

// GetPath returns the snapshot file path.
func (m *Manager) GetPath() string {
	return m.path
}

// WriteWithBackup renames the current snapshot to a timestamped backup,
// writes the new one, and keeps only the newest keepBackups backups.
func (m *Manager) WriteWithBackup(data types.SnapshotData, keepBackups int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := os.Stat(m.path); err == nil {
		backupPath := fmt.Sprintf("%s.%s", m.path, time.Now().Format("20060102_150405.000000000"))
		if err := os.Rename(m.path, backupPath); err != nil {
			return fmt.Errorf("failed to backup old snapshot: %w", err)
		}
	}
	if err := m.write(data); err != nil {
		return err
	}

	backups, err := m.backups()
	if err != nil {
		return err
	}
	if len(backups) > keepBackups {
		for _, old := range backups[:len(backups)-keepBackups] {
			os.Remove(old)
		}
	}
	return nil
}

// backups lists backup files, oldest first. The timestamp suffix sorts
// chronologically.
func (m *Manager) backups() ([]string, error) {
	matches, err := filepath.Glob(m.path + ".*")
	if err != nil {
		return nil, err
	}
	out := matches[:0]
	for _, p := range matches {
		if !strings.HasSuffix(p, ".tmp") {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}
