package scraper

import (
	"context"
	stderrors "errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"waybackscraper/internal/downloader"
	"waybackscraper/pkg/checkpoint"
	"waybackscraper/pkg/config"
	"waybackscraper/pkg/dedup"
	"waybackscraper/pkg/errors"
	"waybackscraper/pkg/extractor"
	"waybackscraper/pkg/logger"
	"waybackscraper/pkg/metadata"
	"waybackscraper/pkg/metrics"
	"waybackscraper/pkg/storage"
	"waybackscraper/pkg/ui"
	"waybackscraper/pkg/wayback"
)

// Scraper orchestrates the archive image download process
type Scraper struct {
	config    *config.Config
	archive   Archive
	extractor *extractor.Extractor
	logger    logger.Logger
	progress  ui.Progress
	metrics   *metrics.Metrics
	runID     string
	resume    bool

	// digests holds the CDX digests of captures processed this run
	digests *lru.Cache[string, struct{}]
}

// Option configures a Scraper
type Option func(*Scraper)

// WithArchive replaces the Wayback Machine client
func WithArchive(a Archive) Option {
	return func(s *Scraper) { s.archive = a }
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(s *Scraper) { s.logger = l }
}

// WithProgress sets the per-account progress display
func WithProgress(p ui.Progress) Option {
	return func(s *Scraper) { s.progress = p }
}

// WithMetrics enables run metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scraper) { s.metrics = m }
}

// WithRunID sets the id stamped on failure records and summaries
func WithRunID(id string) Option {
	return func(s *Scraper) { s.runID = id }
}

// WithResume makes the scraper continue from existing checkpoints
func WithResume(resume bool) Option {
	return func(s *Scraper) { s.resume = resume }
}

// New creates a new Scraper instance
func New(cfg *config.Config, opts ...Option) (*Scraper, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	s := &Scraper{config: cfg}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.GetLogger()
	}
	if s.runID == "" {
		s.runID = uuid.NewString()
	}
	if s.progress == nil {
		s.progress = ui.NewProgress(nil, false)
	}
	if s.archive == nil {
		s.archive = wayback.NewClientFromConfig(cfg, s.logger)
	}
	if o, ok := s.archive.(observable); ok && s.metrics != nil {
		o.SetObserver(s.metrics)
	}

	if size := cfg.Dedup.DigestCacheSize; size > 0 {
		cache, err := lru.New[string, struct{}](size)
		if err != nil {
			return nil, fmt.Errorf("failed to create digest cache: %w", err)
		}
		s.digests = cache
	}

	s.extractor = extractor.New(s.logger)
	return s, nil
}

// RunID returns the id of this run
func (s *Scraper) RunID() string {
	return s.runID
}

// Run scrapes every account in order. Invalid account names and failures
// inside an account are recorded and skipped; a setup failure or
// cancellation ends the run and is returned together with the report of
// what was done so far.
func (s *Scraper) Run(ctx context.Context, accounts []string) (*metadata.RunReport, error) {
	report := metadata.NewRunReport(s.runID)
	logger.LogComponentStart(s.logger, "scraper", map[string]interface{}{
		"run_id":   s.runID,
		"accounts": len(accounts),
		"resume":   s.resume,
	})

	var runErr error
	for _, account := range accounts {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		if err := config.ValidateAccount(account); err != nil {
			s.logger.WithError(err).WithField("account", account).Error("Skipping invalid account")
			s.metrics.IncError(err)
			rejected := metadata.NewSummary(account, s.runID, "")
			rejected.Finish(err)
			report.Add(rejected)
			continue
		}

		summary, err := s.ScrapeAccount(ctx, account)
		if summary != nil {
			report.Add(summary)
		}
		if err != nil {
			runErr = err
			break
		}
	}
	report.Finish()

	if path := s.config.Metrics.Textfile; path != "" && s.metrics != nil {
		if err := s.metrics.WriteTextfile(path); err != nil {
			s.logger.WithError(err).WithField("path", path).Warn("Failed to write metrics")
		}
	}

	reason := "completed"
	if runErr != nil {
		reason = runErr.Error()
	}
	logger.LogComponentStop(s.logger, "scraper", reason)

	return report, runErr
}

// accountRun holds the per-account state of a run
type accountRun struct {
	account   string
	log       logger.Logger
	store     *storage.Manager
	seen      *dedup.Set
	download  *downloader.Downloader
	snapFails *storage.FailureLog
	summary   *metadata.Summary
	cpMgr     *checkpoint.Manager
	cp        *checkpoint.Checkpoint
}

// ScrapeAccount downloads the archived images of one account. The returned
// error is non-nil only for setup failures and cancellation.
func (s *Scraper) ScrapeAccount(ctx context.Context, account string) (*metadata.Summary, error) {
	if err := config.ValidateAccount(account); err != nil {
		return nil, err
	}

	run, cleanup, err := s.prepare(account)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	log := run.log
	log.InfoWithFields("Starting account", map[string]interface{}{
		"output_dir": run.store.Dir(),
		"known_urls": run.seen.Downloaded(),
		"resume":     run.cp != nil && len(run.cp.ProcessedSnapshots) > 0,
	})

	snapshots, err := s.archive.Snapshots(ctx, account)
	if err != nil {
		if ctx.Err() != nil {
			return s.finish(run, ctx.Err())
		}
		s.metrics.IncError(err)
		subject := profileSubject(s.config.Archive.ProfileURL, account)
		reason := fmt.Sprintf("snapshot lookup failed: %v", err)
		if errors.IsNotFound(err) {
			reason = "no snapshots found"
			log.Warn("Archive holds no snapshots for account")
		} else {
			log.WithError(err).Error("Failed to list snapshots")
		}
		s.recordSnapshotFailure(run, subject, reason)
		return s.finish(run, nil)
	}

	run.summary.Counts.Snapshots = len(snapshots)
	log.InfoWithFields("Snapshots located", map[string]interface{}{
		"snapshots": len(snapshots),
	})

	s.progress.Start(account, len(snapshots))
	defer s.progress.Finish()

	for _, snap := range snapshots {
		if err := ctx.Err(); err != nil {
			return s.finish(run, err)
		}

		if s.skip(run, snap) {
			run.summary.Counts.SnapshotsSkipped++
			s.metrics.IncSnapshot(metrics.ResultSkipped)
			s.progress.Increment()
			continue
		}

		downloaded, err := s.processSnapshot(ctx, run, snap)
		if err != nil {
			return s.finish(run, err)
		}

		if run.cp != nil {
			if err := run.cpMgr.MarkSnapshot(run.cp, snap, downloaded); err != nil {
				log.WithError(err).Warn("Failed to update checkpoint")
			}
		}
		s.progress.Increment()
	}

	return s.finish(run, nil)
}

// prepare creates the account directory and opens its ledger and failure logs
func (s *Scraper) prepare(account string) (*accountRun, func(), error) {
	log := s.logger.WithFields(map[string]interface{}{
		"account": account,
		"run_id":  s.runID,
	})
	dir := s.config.AccountDir(account)

	store, err := storage.NewManager(dir, account)
	if err != nil {
		return nil, nil, errors.Wrap(errors.ErrorTypeIO, err, "prepare output directory "+dir)
	}

	ledger := storage.NewLedger(filepath.Join(dir, s.config.Output.LedgerFile))
	persisted, err := ledger.Load()
	if err != nil {
		return nil, nil, errors.Wrap(errors.ErrorTypeIO, err, "load ledger")
	}

	imageFails, err := storage.OpenFailureLog(filepath.Join(dir, s.config.Output.ImageFailureFile), storage.FailureImage, s.runID)
	if err != nil {
		return nil, nil, errors.Wrap(errors.ErrorTypeIO, err, "open image failure log")
	}
	snapFails, err := storage.OpenFailureLog(filepath.Join(dir, s.config.Output.SnapshotFailFile), storage.FailureSnapshot, s.runID)
	if err != nil {
		imageFails.Close()
		return nil, nil, errors.Wrap(errors.ErrorTypeIO, err, "open snapshot failure log")
	}

	cpMgr := checkpoint.NewManager(dir, log)
	var cp *checkpoint.Checkpoint
	if s.resume {
		cp, err = cpMgr.Resume(account, s.runID)
	} else {
		cp, err = cpMgr.Create(account, s.runID)
	}
	if err != nil {
		log.WithError(err).Warn("Failed to set up checkpoint, continuing without one")
		cp = nil
	}

	run := &accountRun{
		account:   account,
		log:       log,
		store:     store,
		seen:      dedup.New(persisted, store, ledger, log),
		snapFails: snapFails,
		summary:   metadata.NewSummary(account, s.runID, dir),
		cpMgr:     cpMgr,
		cp:        cp,
		download: downloader.New(s.archive, store, ledger, imageFails, downloader.Options{
			Account:     account,
			WebURL:      s.archive.WebURL(),
			RawFallback: s.config.Download.RawFallback,
		}, log),
	}

	cleanup := func() {
		if err := imageFails.Close(); err != nil {
			log.WithError(err).Warn("Failed to close image failure log")
		}
		if err := snapFails.Close(); err != nil {
			log.WithError(err).Warn("Failed to close snapshot failure log")
		}
	}
	return run, cleanup, nil
}

// skip reports whether snap was completed by an earlier run or has the same
// content as a capture already processed in this one
func (s *Scraper) skip(run *accountRun, snap wayback.Snapshot) bool {
	if run.cp != nil && run.cp.IsProcessed(snap) {
		run.log.WithField("timestamp", snap.Timestamp).Debug("Snapshot already processed, skipping")
		return true
	}
	if s.digests != nil && snap.Digest != "" {
		if _, ok := s.digests.Get(run.account + "|" + snap.Digest); ok {
			run.log.WithFields(map[string]interface{}{
				"timestamp": snap.Timestamp,
				"digest":    snap.Digest,
			}).Debug("Snapshot content already seen, skipping")
			return true
		}
	}
	return false
}

// processSnapshot fetches and parses one capture and downloads its new
// images. It returns the number of images saved; an error means the run was
// cancelled.
func (s *Scraper) processSnapshot(ctx context.Context, run *accountRun, snap wayback.Snapshot) (int, error) {
	subject := wayback.ArchiveURL(s.archive.WebURL(), snap.Timestamp, snap.Original)

	page, err := s.archive.FetchSnapshot(ctx, snap)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		s.snapshotFailed(run, snap, subject, fmt.Sprintf("fetch failed: %v", err), err)
		return 0, nil
	}
	if s.digests != nil && snap.Digest != "" {
		s.digests.Add(run.account+"|"+snap.Digest, struct{}{})
	}

	result, err := s.extractor.ExtractPage(page, run.account)
	if err != nil {
		s.snapshotFailed(run, snap, subject, fmt.Sprintf("parse failed: %v", err), err)
		return 0, nil
	}
	run.summary.Counts.ImagesFound += len(result.Images)
	logger.LogSnapshot(run.log, run.account, snap.Timestamp, len(result.Images), nil)

	downloaded := 0
	for _, ref := range result.Images {
		if err := ctx.Err(); err != nil {
			return downloaded, err
		}

		switch run.seen.Check(ref) {
		case dedup.Duplicate:
			run.summary.Counts.Duplicates++
			s.metrics.IncImage(metrics.ResultDuplicate)
			continue
		case dedup.AlreadyDownloaded, dedup.OnDisk:
			run.summary.Counts.AlreadyPresent++
			s.metrics.IncImage(metrics.ResultPresent)
			continue
		}

		res := run.download.Download(ctx, ref)
		if !res.Success {
			if ctx.Err() != nil {
				return downloaded, ctx.Err()
			}
			run.summary.Counts.Failed++
			s.metrics.IncImage(metrics.ResultFailed)
			s.metrics.IncError(res.Err)
			continue
		}

		run.seen.MarkDownloaded(ref)
		run.summary.AddFile(metadata.FileEntry{
			File:         res.FileName,
			URL:          ref.Key(),
			Snapshot:     ref.Snapshot,
			CapturedAt:   snap.Time(),
			Size:         res.Size,
			UsedFallback: res.UsedFallback,
		})
		s.metrics.IncImage(metrics.ResultDownloaded)
		s.metrics.AddBytes(res.Size)
		downloaded++
	}

	s.metrics.IncSnapshot(metrics.ResultProcessed)
	return downloaded, nil
}

func (s *Scraper) snapshotFailed(run *accountRun, snap wayback.Snapshot, subject, reason string, err error) {
	run.summary.Counts.SnapshotsFailed++
	s.metrics.IncSnapshot(metrics.ResultFailed)
	s.metrics.IncError(err)
	logger.LogSnapshot(run.log, run.account, snap.Timestamp, 0, err)
	s.recordSnapshotFailure(run, subject, reason)
}

func (s *Scraper) recordSnapshotFailure(run *accountRun, subject, reason string) {
	if err := run.snapFails.Record(subject, reason); err != nil {
		run.log.WithError(err).Error("Failed to write snapshot failure log")
	}
}

// finish stamps and saves the summary. The checkpoint is removed when the
// account completed and kept when it was interrupted.
func (s *Scraper) finish(run *accountRun, err error) (*metadata.Summary, error) {
	run.summary.Finish(err)

	if saveErr := run.summary.Save(run.store.Dir()); saveErr != nil {
		run.log.WithError(saveErr).Warn("Failed to save summary")
	}

	fields := map[string]interface{}{
		"unique":     run.seen.Len(),
		"downloaded": run.summary.Counts.Downloaded,
		"duplicates": run.summary.Counts.Duplicates,
		"present":    run.summary.Counts.AlreadyPresent,
		"failed":     run.summary.Counts.Failed,
		"duration":   run.summary.Duration().Round(time.Millisecond),
	}

	if err != nil {
		if run.cp != nil {
			fields["checkpoint"] = run.cpMgr.Path()
		}
		if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
			run.log.WarnWithFields("Account interrupted", fields)
		} else {
			run.log.WithError(err).ErrorWithFields("Account aborted", fields)
		}
		return run.summary, err
	}

	if run.cp != nil {
		if delErr := run.cpMgr.Delete(); delErr != nil {
			run.log.WithError(delErr).Warn("Failed to delete checkpoint")
		}
	}
	run.log.InfoWithFields("Account completed", fields)
	return run.summary, nil
}

// profileSubject is the captured URL pattern a failed lookup is recorded under
func profileSubject(profileURL, account string) string {
	if profileURL == "" {
		profileURL = wayback.DefaultProfileURL
	}
	return fmt.Sprintf(profileURL, account)
}
