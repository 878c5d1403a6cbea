package wayback

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"waybackscraper/pkg/config"
	"waybackscraper/pkg/errors"
	"waybackscraper/pkg/logger"
)

// DefaultMaxBodySize caps how much of a single response is read into memory
const DefaultMaxBodySize = 64 << 20

// Request phases reported to a RequestObserver
const (
	PhaseCDX      = "cdx"
	PhaseSnapshot = "snapshot"
	PhaseImage    = "image"
)

// RequestObserver is notified after every HTTP request the client issues
type RequestObserver interface {
	ObserveRequest(phase string, d time.Duration, err error)
}

// Options configures a Client
type Options struct {
	CDXURL     string
	WebURL     string
	ProfileURL string
	UserAgent  string

	From         string
	To           string
	PageSize     int
	OnlyOKStatus bool

	// SnapshotTimeout bounds CDX and snapshot requests, DownloadTimeout
	// bounds image requests
	SnapshotTimeout time.Duration
	DownloadTimeout time.Duration

	// MaxBodySize is the largest response accepted; longer bodies fail
	MaxBodySize int64
}

// Client talks to the Wayback Machine CDX index and replay endpoints
type Client struct {
	httpClient *http.Client
	opts       Options
	headers    map[string]string
	logger     logger.Logger
	observer   RequestObserver
}

// NewClient creates a new archive client
func NewClient(opts Options, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.CDXURL == "" {
		opts.CDXURL = DefaultCDXURL
	}
	if opts.WebURL == "" {
		opts.WebURL = DefaultWebURL
	}
	if opts.ProfileURL == "" {
		opts.ProfileURL = DefaultProfileURL
	}
	if opts.SnapshotTimeout <= 0 {
		opts.SnapshotTimeout = 30 * time.Second
	}
	if opts.DownloadTimeout <= 0 {
		opts.DownloadTimeout = 60 * time.Second
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = DefaultMaxBodySize
	}

	headers := map[string]string{
		"Accept":          "text/html,application/xhtml+xml,application/json;q=0.9,image/avif,image/webp,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.9",
	}
	if opts.UserAgent != "" {
		headers["User-Agent"] = opts.UserAgent
	}

	return &Client{
		httpClient: &http.Client{},
		opts:       opts,
		headers:    headers,
		logger:     log,
	}
}

// NewClientFromConfig creates a client from the archive and download sections
func NewClientFromConfig(cfg *config.Config, log logger.Logger) *Client {
	return NewClient(Options{
		CDXURL:          cfg.Archive.CDXURL,
		WebURL:          cfg.Archive.WebURL,
		ProfileURL:      cfg.Archive.ProfileURL,
		UserAgent:       cfg.Archive.UserAgent,
		From:            cfg.Archive.From,
		To:              cfg.Archive.To,
		PageSize:        cfg.Archive.PageSize,
		OnlyOKStatus:    cfg.Archive.OnlyOKStatus,
		SnapshotTimeout: cfg.Download.SnapshotTimeout,
		DownloadTimeout: cfg.Download.Timeout,
	}, log)
}

// SetTransport replaces the HTTP transport, mainly for tests
func (c *Client) SetTransport(rt http.RoundTripper) {
	c.httpClient.Transport = rt
}

// SetObserver registers o to be notified of every request
func (c *Client) SetObserver(o RequestObserver) {
	c.observer = o
}

// WebURL returns the replay prefix the client was configured with
func (c *Client) WebURL() string {
	return c.opts.WebURL
}

// Snapshots lists every capture of the account's pages, oldest first.
// Captures are fetched page by page through the CDX resume key; a capture
// appearing on several pages is reported once.
func (c *Client) Snapshots(ctx context.Context, account string) ([]Snapshot, error) {
	q := Query{
		Account:      account,
		From:         c.opts.From,
		To:           c.opts.To,
		Limit:        c.opts.PageSize,
		OnlyOKStatus: c.opts.OnlyOKStatus,
	}

	seen := make(map[[2]string]struct{})
	usedKeys := make(map[string]struct{})
	var snapshots []Snapshot

	for page := 1; ; page++ {
		queryURL := CDXQueryURL(c.opts.CDXURL, c.opts.ProfileURL, q)
		body, _, err := c.get(ctx, PhaseCDX, queryURL, c.opts.SnapshotTimeout)
		if err != nil {
			if errors.IsNotFound(err) && page == 1 {
				return nil, errors.NotFound(fmt.Sprintf("archive has no captures of %s", account))
			}
			return nil, fmt.Errorf("cdx query for %s: %w", account, err)
		}

		rows, resumeKey, err := parseCDX(body)
		if err != nil {
			return nil, err
		}

		for _, s := range rows {
			if !belongsTo(s.Original, account) {
				continue
			}
			key := [2]string{s.Timestamp, s.Original}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			snapshots = append(snapshots, s)
		}

		c.logger.DebugWithFields("CDX page fetched", map[string]interface{}{
			"account":  account,
			"page":     page,
			"rows":     len(rows),
			"has_more": resumeKey != "",
		})

		if resumeKey == "" {
			break
		}
		if _, loop := usedKeys[resumeKey]; loop {
			c.logger.WarnWithFields("CDX resume key repeated, stopping pagination", map[string]interface{}{
				"account": account,
				"page":    page,
			})
			break
		}
		usedKeys[resumeKey] = struct{}{}
		q.ResumeKey = resumeKey
	}

	if len(snapshots) == 0 {
		return nil, errors.NotFound(fmt.Sprintf("archive has no captures of %s", account))
	}

	sort.SliceStable(snapshots, func(i, j int) bool {
		if snapshots[i].Timestamp != snapshots[j].Timestamp {
			return snapshots[i].Timestamp < snapshots[j].Timestamp
		}
		return snapshots[i].Original < snapshots[j].Original
	})

	return snapshots, nil
}

// FetchSnapshot downloads the replayed body of one capture
func (c *Client) FetchSnapshot(ctx context.Context, s Snapshot) (*Page, error) {
	pageURL := ArchiveURL(c.opts.WebURL, s.Timestamp, s.Original)
	body, contentType, err := c.get(ctx, PhaseSnapshot, pageURL, c.opts.SnapshotTimeout)
	if err != nil {
		return nil, err
	}
	return &Page{
		Snapshot:    s,
		URL:         pageURL,
		ContentType: contentType,
		Body:        body,
	}, nil
}

// Fetch downloads an arbitrary resource, typically an image, using the
// download timeout
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	body, _, err := c.get(ctx, PhaseImage, rawURL, c.opts.DownloadTimeout)
	return body, err
}

// get performs one GET with the configured headers and classifies failures
func (c *Client) get(ctx context.Context, phase, rawURL string, timeout time.Duration) ([]byte, string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", errors.Wrap(errors.ErrorTypeHTTPStatus, err, "invalid request URL")
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	body, contentType, err := c.do(req)
	duration := time.Since(start)

	if c.observer != nil {
		c.observer.ObserveRequest(phase, duration, err)
	}

	fields := map[string]interface{}{
		"phase":    phase,
		"url":      rawURL,
		"duration": duration,
	}
	if err != nil {
		c.logger.WithError(err).DebugWithFields("HTTP request failed", fields)
		return nil, "", err
	}
	fields["bytes"] = len(body)
	c.logger.DebugWithFields("HTTP request completed", fields)

	return body, contentType, nil
}

func (c *Client) do(req *http.Request) ([]byte, string, error) {
	target := req.URL.String()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", errors.Classify(err, target)
	}
	defer resp.Body.Close()

	if statusErr := errors.FromStatus(resp.StatusCode, target); statusErr != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, "", statusErr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.opts.MaxBodySize+1))
	if err != nil {
		return nil, "", errors.Classify(err, target)
	}
	if int64(len(body)) > c.opts.MaxBodySize {
		return nil, "", errors.New(errors.ErrorTypeHTTPStatus,
			fmt.Sprintf("response body too large for %s: over %d bytes", target, c.opts.MaxBodySize))
	}

	return body, resp.Header.Get("Content-Type"), nil
}

// parseCDX decodes a JSON CDX response. The first row names the columns; a
// trailing single-element row, usually after an empty separator row, holds
// the resume key.
func parseCDX(body []byte) ([]Snapshot, string, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil, "", nil
	}

	var rows [][]string
	if err := json.Unmarshal([]byte(trimmed), &rows); err != nil {
		return nil, "", errors.Parse(err, "malformed CDX response")
	}
	if len(rows) == 0 {
		return nil, "", nil
	}

	columns := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		columns[name] = i
	}
	tsCol, okTS := columns["timestamp"]
	origCol, okOrig := columns["original"]
	if !okTS || !okOrig {
		return nil, "", errors.Parse(nil, "CDX response lacks timestamp or original column")
	}

	field := func(row []string, name string) string {
		if i, ok := columns[name]; ok && i < len(row) {
			return row[i]
		}
		return ""
	}

	var (
		snapshots []Snapshot
		resumeKey string
	)
	for _, row := range rows[1:] {
		switch {
		case len(row) == 0:
			continue
		case len(row) == 1:
			resumeKey = row[0]
			continue
		case tsCol >= len(row) || origCol >= len(row):
			continue
		}
		snapshots = append(snapshots, Snapshot{
			Timestamp:  row[tsCol],
			Original:   row[origCol],
			StatusCode: field(row, "statuscode"),
			MimeType:   field(row, "mimetype"),
			Digest:     field(row, "digest"),
		})
	}

	return snapshots, resumeKey, nil
}

// belongsTo reports whether the captured URL is one of the account's own
// pages, comparing the first path segment case-insensitively
func belongsTo(original, account string) bool {
	raw := original
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	segment := strings.TrimPrefix(u.Path, "/")
	if i := strings.Index(segment, "/"); i >= 0 {
		segment = segment[:i]
	}
	return strings.EqualFold(segment, account)
}
