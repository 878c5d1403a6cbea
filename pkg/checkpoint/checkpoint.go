package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"waybackscraper/pkg/logger"
	"waybackscraper/pkg/wayback"
)

// FileName is the checkpoint file kept in each account directory
const FileName = ".checkpoint.json"

const currentVersion = 1

// Checkpoint records which snapshots of an account were fully processed
type Checkpoint struct {
	Account            string          `json:"account"`
	RunID              string          `json:"run_id"`
	ProcessedSnapshots map[string]bool `json:"processed_snapshots"`
	TotalDownloaded    int             `json:"total_downloaded"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	Version            int             `json:"version"`
}

// snapshotKey identifies a capture inside the checkpoint
func snapshotKey(s wayback.Snapshot) string {
	return s.Timestamp + " " + s.Original
}

// IsProcessed reports whether s was completed by an earlier run
func (c *Checkpoint) IsProcessed(s wayback.Snapshot) bool {
	return c.ProcessedSnapshots[snapshotKey(s)]
}

// Manager handles checkpoint operations for one account
type Manager struct {
	path   string
	logger logger.Logger
}

// NewManager returns a manager storing its checkpoint in dir
func NewManager(dir string, log logger.Logger) *Manager {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Manager{
		path:   filepath.Join(dir, FileName),
		logger: log,
	}
}

// Path returns the checkpoint file path
func (m *Manager) Path() string {
	return m.path
}

// Create starts a new checkpoint, replacing any existing one
func (m *Manager) Create(account, runID string) (*Checkpoint, error) {
	now := time.Now()
	cp := &Checkpoint{
		Account:            account,
		RunID:              runID,
		ProcessedSnapshots: make(map[string]bool),
		CreatedAt:          now,
		UpdatedAt:          now,
		Version:            currentVersion,
	}

	if err := m.Save(cp); err != nil {
		return nil, fmt.Errorf("failed to save initial checkpoint: %w", err)
	}

	m.logger.DebugWithFields("Checkpoint created", map[string]interface{}{
		"account": account,
		"path":    m.path,
	})
	return cp, nil
}

// Load reads the checkpoint. It returns nil without error when none exists.
func (m *Manager) Load() (*Checkpoint, error) {
	data, err := os.ReadFile(m.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	if cp.Version != currentVersion {
		return nil, fmt.Errorf("unsupported checkpoint version %d", cp.Version)
	}
	if cp.ProcessedSnapshots == nil {
		cp.ProcessedSnapshots = make(map[string]bool)
	}

	m.logger.InfoWithFields("Checkpoint loaded", map[string]interface{}{
		"account":   cp.Account,
		"processed": len(cp.ProcessedSnapshots),
		"updated":   cp.UpdatedAt,
	})
	return &cp, nil
}

// Resume loads the existing checkpoint for account, or creates one
func (m *Manager) Resume(account, runID string) (*Checkpoint, error) {
	cp, err := m.Load()
	if err != nil {
		return nil, err
	}
	if cp == nil || cp.Account != account {
		return m.Create(account, runID)
	}
	return cp, nil
}

// Save writes the checkpoint atomically
func (m *Manager) Save(cp *Checkpoint) error {
	cp.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	tempPath := m.path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary checkpoint file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync checkpoint file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}

	if err := os.Rename(tempPath, m.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}
	return nil
}

// MarkSnapshot records s as processed along with the images it yielded
func (m *Manager) MarkSnapshot(cp *Checkpoint, s wayback.Snapshot, downloaded int) error {
	cp.ProcessedSnapshots[snapshotKey(s)] = true
	cp.TotalDownloaded += downloaded
	return m.Save(cp)
}

// Delete removes the checkpoint file
func (m *Manager) Delete() error {
	if err := os.Remove(m.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// Exists checks if a checkpoint file exists
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}
