package storage

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"
)

// FailureKind tells image failures from snapshot failures
type FailureKind string

const (
	FailureImage    FailureKind = "image"
	FailureSnapshot FailureKind = "snapshot"
)

const failureTimeLayout = "2006-01-02 15:04:05"

var failureLine = regexp.MustCompile(`^\[(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2})\] (\S+) (\S+) \| (.*?)(?: \(run ([^()\s]*)\))?$`)

// FailureRecord is one line of a failure log
type FailureRecord struct {
	Time   time.Time
	Kind   FailureKind
	URL    string
	Reason string
	RunID  string
}

// String renders the record as a log line without the trailing newline
func (r FailureRecord) String() string {
	line := fmt.Sprintf("[%s] %s %s | %s", r.Time.Format(failureTimeLayout), r.Kind, r.URL, oneLine(r.Reason))
	if r.RunID != "" {
		line += fmt.Sprintf(" (run %s)", r.RunID)
	}
	return line
}

// ParseFailureRecord parses a line written by FailureLog
func ParseFailureRecord(line string) (FailureRecord, error) {
	m := failureLine.FindStringSubmatch(strings.TrimRight(line, "\r\n"))
	if m == nil {
		return FailureRecord{}, fmt.Errorf("malformed failure line: %q", line)
	}
	t, err := time.ParseInLocation(failureTimeLayout, m[1], time.Local)
	if err != nil {
		return FailureRecord{}, fmt.Errorf("malformed failure time: %w", err)
	}
	return FailureRecord{
		Time:   t,
		Kind:   FailureKind(m[2]),
		URL:    m[3],
		Reason: m[4],
		RunID:  m[5],
	}, nil
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// FailureLog appends FailureRecords of one kind to a file. Records are
// never rewritten; the file accumulates across runs.
type FailureLog struct {
	path  string
	kind  FailureKind
	runID string
	now   func() time.Time

	mu    sync.Mutex
	file  *os.File
	count int
}

// OpenFailureLog opens path for appending, creating it when missing
func OpenFailureLog(path string, kind FailureKind, runID string) (*FailureLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open failure log: %w", err)
	}
	return &FailureLog{
		path:  path,
		kind:  kind,
		runID: runID,
		now:   time.Now,
		file:  f,
	}, nil
}

// Record appends one failure and flushes it to disk
func (l *FailureLog) Record(url, reason string) error {
	rec := FailureRecord{
		Time:   l.now(),
		Kind:   l.kind,
		URL:    url,
		Reason: reason,
		RunID:  l.runID,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return fmt.Errorf("failure log %s is closed", l.path)
	}
	if _, err := l.file.WriteString(rec.String() + "\n"); err != nil {
		return fmt.Errorf("failed to write failure log: %w", err)
	}
	l.count++
	return l.file.Sync()
}

// Count returns how many records this log wrote during the run
func (l *FailureLog) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Path returns the failure log file path
func (l *FailureLog) Path() string {
	return l.path
}

// Close closes the underlying file
func (l *FailureLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// ReadFailures parses every record in a failure log. Lines that do not
// parse are skipped. A missing file holds no records.
func ReadFailures(path string) ([]FailureRecord, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open failure log: %w", err)
	}
	defer f.Close()

	var records []FailureRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if rec, err := ParseFailureRecord(scanner.Text()); err == nil {
			records = append(records, rec)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read failure log: %w", err)
	}
	return records, nil
}
