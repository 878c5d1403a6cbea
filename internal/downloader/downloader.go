package downloader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"waybackscraper/pkg/errors"
	"waybackscraper/pkg/extractor"
	"waybackscraper/pkg/logger"
	"waybackscraper/pkg/wayback"
)

// ImageFetcher retrieves the bytes behind a URL
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// ImageStorage stores image files under deterministic names
type ImageStorage interface {
	FileName(imageURL string) string
	Save(r io.Reader, filename string) (int64, error)
}

// Ledger records URLs that were stored successfully
type Ledger interface {
	Append(url string) error
}

// FailureRecorder appends one line per failed image
type FailureRecorder interface {
	Record(url, reason string) error
}

// Result represents the outcome of one download
type Result struct {
	Ref          extractor.ImageRef
	FileName     string
	Size         int64
	Success      bool
	UsedFallback bool
	Err          error
	Duration     time.Duration
}

// Options configures a Downloader
type Options struct {
	Account string

	// WebURL is the replay prefix used to build archived-copy URLs
	WebURL string

	// RawFallback enables the second attempt through the archive when the
	// image host fails
	RawFallback bool
}

// Downloader fetches images one at a time and stores them
type Downloader struct {
	client   ImageFetcher
	storage  ImageStorage
	ledger   Ledger
	failures FailureRecorder
	opts     Options
	logger   logger.Logger
}

// New creates a Downloader
func New(client ImageFetcher, storage ImageStorage, ledger Ledger, failures FailureRecorder, opts Options, log logger.Logger) *Downloader {
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.WebURL == "" {
		opts.WebURL = wayback.DefaultWebURL
	}
	return &Downloader{
		client:   client,
		storage:  storage,
		ledger:   ledger,
		failures: failures,
		opts:     opts,
		logger:   log,
	}
}

// Download fetches ref, falling back once to the archived original, and
// writes it to storage. Every failure other than cancellation is appended
// to the failure log exactly once; the error is returned in the Result and
// never stops the caller.
func (d *Downloader) Download(ctx context.Context, ref extractor.ImageRef) Result {
	start := time.Now()
	result := Result{Ref: ref, FileName: d.storage.FileName(ref.URL)}

	body, usedFallback, err := d.fetch(ctx, ref)
	if err == nil && len(body) == 0 {
		err = errors.New(errors.ErrorTypeHTTPStatus, "empty response body")
	}
	if err != nil {
		result.Err = err
		result.Duration = time.Since(start)
		if ctx.Err() == nil {
			d.recordFailure(ref, fmt.Sprintf("download failed: %v", err))
		}
		logger.LogDownload(d.logger, d.opts.Account, ref.URL, "", 0, err)
		return result
	}
	result.UsedFallback = usedFallback

	size, err := d.storage.Save(bytes.NewReader(body), result.FileName)
	if err != nil {
		result.Err = errors.Wrap(errors.ErrorTypeIO, err, "save "+result.FileName)
		result.Duration = time.Since(start)
		d.recordFailure(ref, fmt.Sprintf("save failed: %v", err))
		logger.LogDownload(d.logger, d.opts.Account, ref.URL, "", 0, result.Err)
		return result
	}

	if d.ledger != nil {
		if err := d.ledger.Append(ref.Key()); err != nil {
			d.logger.WithError(err).WithField("url", ref.Key()).Warn("Failed to append to ledger")
		}
	}

	result.Success = true
	result.Size = size
	result.Duration = time.Since(start)
	logger.LogDownload(d.logger, d.opts.Account, ref.URL, result.FileName, size, nil)

	return result
}

// fetch tries the image URL and then, when enabled, the raw archived copy
func (d *Downloader) fetch(ctx context.Context, ref extractor.ImageRef) ([]byte, bool, error) {
	body, err := d.client.Fetch(ctx, ref.URL)
	if err == nil || ctx.Err() != nil || !d.opts.RawFallback {
		return body, false, err
	}

	rawURL, ok := wayback.RawImageURL(d.opts.WebURL, ref.Snapshot, ref.URL)
	if !ok {
		return nil, false, err
	}

	d.logger.WithFields(map[string]interface{}{
		"url":      ref.URL,
		"fallback": rawURL,
	}).WithError(err).Debug("Primary image fetch failed, trying archived original")

	body, fallbackErr := d.client.Fetch(ctx, rawURL)
	if fallbackErr != nil {
		return nil, false, fmt.Errorf("%w; archived copy: %v", err, fallbackErr)
	}
	return body, true, nil
}

func (d *Downloader) recordFailure(ref extractor.ImageRef, reason string) {
	if d.failures == nil {
		return
	}
	if err := d.failures.Record(ref.URL, reason); err != nil {
		d.logger.WithError(err).WithField("url", ref.URL).Error("Failed to write image failure log")
	}
}
