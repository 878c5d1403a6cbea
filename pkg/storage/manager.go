package storage

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
)

// Manager owns one account's output directory
type Manager struct {
	dir     string
	account string
	files   map[string]bool
	mu      sync.RWMutex
}

// NewManager creates the directory if needed and indexes the files already
// in it
func NewManager(dir, account string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	m := &Manager{
		dir:     dir,
		account: account,
		files:   make(map[string]bool),
	}
	if err := m.scanExistingFiles(); err != nil {
		return nil, fmt.Errorf("failed to scan existing files: %w", err)
	}

	return m, nil
}

func (m *Manager) scanExistingFiles() error {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() && !strings.HasSuffix(entry.Name(), ".tmp") {
			m.files[entry.Name()] = true
		}
	}
	return nil
}

// FileName returns the deterministic name an image URL is stored under:
// the account, an underscore and the URL's base name, with ".jpg" added
// when the base name has no extension
func (m *Manager) FileName(imageURL string) string {
	return FileName(m.account, imageURL)
}

// FileName is the package level form of Manager.FileName
func FileName(account, imageURL string) string {
	u := imageURL
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	base := path.Base(strings.TrimRight(u, "/"))
	if i := strings.LastIndex(base, ":"); i >= 0 {
		base = base[:i]
	}
	base = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '_'
		}
		return r
	}, base)
	if base == "" || base == "." {
		base = "image"
	}

	name := account + "_" + base
	if !strings.Contains(base, ".") {
		name += ".jpg"
	}
	return name
}

// Exists reports whether filename is already present in the directory
func (m *Manager) Exists(filename string) bool {
	m.mu.RLock()
	known := m.files[filename]
	m.mu.RUnlock()
	if known {
		return true
	}

	if _, err := os.Stat(m.Path(filename)); err == nil {
		m.mu.Lock()
		m.files[filename] = true
		m.mu.Unlock()
		return true
	}
	return false
}

// Save writes r to filename through a temporary file and a rename, so a
// partially written image never carries the final name
func (m *Manager) Save(r io.Reader, filename string) (int64, error) {
	target := m.Path(filename)
	tempFile := target + ".tmp"

	out, err := os.Create(tempFile)
	if err != nil {
		return 0, fmt.Errorf("failed to create temporary file: %w", err)
	}

	n, err := io.Copy(out, r)
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempFile)
		return 0, fmt.Errorf("failed to save image data: %w", err)
	}
	if closeErr != nil {
		os.Remove(tempFile)
		return 0, fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := os.Rename(tempFile, target); err != nil {
		os.Remove(tempFile)
		return 0, fmt.Errorf("failed to rename temporary file: %w", err)
	}

	m.mu.Lock()
	m.files[filename] = true
	m.mu.Unlock()

	return n, nil
}

// Path returns the full path of filename inside the directory
func (m *Manager) Path(filename string) string {
	return filepath.Join(m.dir, filename)
}

// Dir returns the output directory
func (m *Manager) Dir() string {
	return m.dir
}

// Count returns the number of files known to be in the directory
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files)
}
