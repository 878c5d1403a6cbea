package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SummaryFile is the name of the per-account summary written after each run
const SummaryFile = "summary.json"

// FileEntry describes one image saved during a run
type FileEntry struct {
	File         string    `json:"file"`
	URL          string    `json:"url"`
	Snapshot     string    `json:"snapshot,omitempty"`
	CapturedAt   time.Time `json:"captured_at,omitempty"`
	Size         int64     `json:"size"`
	UsedFallback bool      `json:"used_fallback,omitempty"`
	DownloadedAt time.Time `json:"downloaded_at"`
}

// Counts holds the per-run tallies for an account
type Counts struct {
	Snapshots        int   `json:"snapshots"`
	SnapshotsSkipped int   `json:"snapshots_skipped"`
	SnapshotsFailed  int   `json:"snapshots_failed"`
	ImagesFound      int   `json:"images_found"`
	Duplicates       int   `json:"duplicates"`
	AlreadyPresent   int   `json:"already_present"`
	Downloaded       int   `json:"downloaded"`
	Failed           int   `json:"failed"`
	BytesWritten     int64 `json:"bytes_written"`
}

// Add accumulates other into c
func (c *Counts) Add(other Counts) {
	c.Snapshots += other.Snapshots
	c.SnapshotsSkipped += other.SnapshotsSkipped
	c.SnapshotsFailed += other.SnapshotsFailed
	c.ImagesFound += other.ImagesFound
	c.Duplicates += other.Duplicates
	c.AlreadyPresent += other.AlreadyPresent
	c.Downloaded += other.Downloaded
	c.Failed += other.Failed
	c.BytesWritten += other.BytesWritten
}

// Summary is the outcome of one run for one account
type Summary struct {
	Account    string      `json:"account"`
	RunID      string      `json:"run_id"`
	OutputDir  string      `json:"output_dir"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Completed  bool        `json:"completed"`
	Error      string      `json:"error,omitempty"`
	Counts     Counts      `json:"counts"`
	Files      []FileEntry `json:"files"`
}

// NewSummary starts a summary for account
func NewSummary(account, runID, dir string) *Summary {
	return &Summary{
		Account:   account,
		RunID:     runID,
		OutputDir: dir,
		StartedAt: time.Now(),
		Files:     []FileEntry{},
	}
}

// AddFile records a saved image
func (s *Summary) AddFile(entry FileEntry) {
	if entry.DownloadedAt.IsZero() {
		entry.DownloadedAt = time.Now()
	}
	s.Files = append(s.Files, entry)
	s.Counts.Downloaded++
	s.Counts.BytesWritten += entry.Size
}

// Finish stamps the end time. A nil err marks the account as completed.
func (s *Summary) Finish(err error) {
	s.FinishedAt = time.Now()
	s.Completed = err == nil
	if err != nil {
		s.Error = err.Error()
	}
}

// Duration returns how long the account took
func (s *Summary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return time.Since(s.StartedAt)
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Save writes the summary to dir/summary.json
func (s *Summary) Save(dir string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, SummaryFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write summary file: %w", err)
	}

	return nil
}

// Load reads the summary stored in dir
func Load(dir string) (*Summary, error) {
	data, err := os.ReadFile(filepath.Join(dir, SummaryFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read summary file: %w", err)
	}

	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal summary: %w", err)
	}

	return &s, nil
}

// SummaryExists checks if dir holds a summary from an earlier run
func SummaryExists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, SummaryFile))
	return err == nil
}

// RunReport aggregates the summaries of every account in a run
type RunReport struct {
	RunID      string     `json:"run_id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
	Accounts   []*Summary `json:"accounts"`
	Totals     Counts     `json:"totals"`
}

// NewRunReport starts an empty report
func NewRunReport(runID string) *RunReport {
	return &RunReport{RunID: runID, StartedAt: time.Now()}
}

// Add appends an account summary and folds its counts into the totals
func (r *RunReport) Add(s *Summary) {
	r.Accounts = append(r.Accounts, s)
	r.Totals.Add(s.Counts)
}

// Finish stamps the end time of the run
func (r *RunReport) Finish() {
	r.FinishedAt = time.Now()
}

// Incomplete returns the accounts that did not finish
func (r *RunReport) Incomplete() []string {
	var out []string
	for _, s := range r.Accounts {
		if !s.Completed {
			out = append(out, s.Account)
		}
	}
	return out
}
