// Package dedup decides which discovered images still need downloading.
package dedup

import (
	"sync"

	"waybackscraper/pkg/extractor"
	"waybackscraper/pkg/logger"
)

// Verdict is the outcome of checking one image reference
type Verdict int

const (
	// Fresh images have not been seen and should be downloaded
	Fresh Verdict = iota
	// Duplicate images were already admitted earlier in this run
	Duplicate
	// AlreadyDownloaded images are recorded in the ledger
	AlreadyDownloaded
	// OnDisk images exist in the output directory without a ledger entry
	OnDisk
)

func (v Verdict) String() string {
	switch v {
	case Fresh:
		return "fresh"
	case Duplicate:
		return "duplicate"
	case AlreadyDownloaded:
		return "already_downloaded"
	case OnDisk:
		return "on_disk"
	default:
		return "unknown"
	}
}

// FileChecker answers whether an image file is already stored
type FileChecker interface {
	FileName(imageURL string) string
	Exists(filename string) bool
}

// LedgerWriter records downloaded URLs
type LedgerWriter interface {
	Append(url string) error
}

// Set is the per-run seen set for one account. It is seeded with the URLs
// of the persisted ledger and falls back to the output directory, so images
// fetched by an earlier run are not fetched again.
type Set struct {
	mu         sync.Mutex
	seen       map[string]struct{}
	downloaded map[string]struct{}
	files      FileChecker
	ledger     LedgerWriter
	logger     logger.Logger
}

// New creates a Set. persisted holds the ledger contents; files and ledger
// may be nil.
func New(persisted map[string]struct{}, files FileChecker, ledger LedgerWriter, log logger.Logger) *Set {
	if log == nil {
		log = logger.GetLogger()
	}
	downloaded := make(map[string]struct{}, len(persisted))
	for u := range persisted {
		downloaded[extractor.NormalizeURL(u)] = struct{}{}
	}
	return &Set{
		seen:       make(map[string]struct{}),
		downloaded: downloaded,
		files:      files,
		ledger:     ledger,
		logger:     log,
	}
}

// Check classifies ref and marks it seen. Only the first check of a URL in
// a run can return Fresh, whatever happens to the download afterwards. An
// image found on disk but missing from the ledger is added to the ledger.
func (s *Set) Check(ref extractor.ImageRef) Verdict {
	key := ref.Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[key]; ok {
		return Duplicate
	}
	s.seen[key] = struct{}{}

	if _, ok := s.downloaded[key]; ok {
		return AlreadyDownloaded
	}

	if s.files != nil && s.files.Exists(s.files.FileName(key)) {
		s.downloaded[key] = struct{}{}
		if s.ledger != nil {
			if err := s.ledger.Append(key); err != nil {
				s.logger.WithError(err).WithField("url", key).Warn("Failed to backfill ledger")
			}
		}
		return OnDisk
	}

	return Fresh
}

// MarkDownloaded records a successful download so later checks in the same
// run see it as downloaded
func (s *Set) MarkDownloaded(ref extractor.ImageRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.downloaded[ref.Key()] = struct{}{}
}

// Len returns how many distinct URLs were checked this run
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// Downloaded returns how many distinct URLs are known to be stored
func (s *Set) Downloaded() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.downloaded)
}
