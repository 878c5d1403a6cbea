package storage

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
)

// Ledger is the append-only list of image URLs already downloaded for an
// account, one URL per line
type Ledger struct {
	path string
	mu   sync.Mutex
}

// NewLedger returns a ledger stored at path. The file is created on the
// first Append.
func NewLedger(path string) *Ledger {
	return &Ledger{path: path}
}

// Path returns the ledger file path
func (l *Ledger) Path() string {
	return l.path
}

// Load reads every recorded URL. A missing ledger is empty.
func (l *Ledger) Load() (map[string]struct{}, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	urls := make(map[string]struct{})

	f, err := os.Open(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return urls, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			urls[line] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}

	return urls, nil
}

// Append records url. Each call reopens the file so every entry reaches
// the disk before the next download starts.
func (l *Ledger) Append(url string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	if _, err := f.WriteString(url + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("failed to append to ledger: %w", err)
	}
	return f.Close()
}
