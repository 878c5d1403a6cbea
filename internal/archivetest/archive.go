// Package archivetest provides an in-memory Wayback Machine for tests. It
// answers CDX queries, snapshot replays, raw archived images and the image
// host through an httpmock transport, so no request leaves the process.
package archivetest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/jarcoal/httpmock"

	"waybackscraper/pkg/logger"
	"waybackscraper/pkg/wayback"
)

const (
	cdxPrefix = "https://web.archive.org/cdx/search/cdx"
	webPrefix = "https://web.archive.org/web/"
)

// Archive is a fake archive holding snapshots and images
type Archive struct {
	Transport *httpmock.MockTransport

	mu          sync.Mutex
	snapshots   map[string][]wayback.Snapshot
	pages       map[string]string
	pageStatus  map[string]int
	images      map[string][]byte
	imageStatus map[string]int
	raw         map[string][]byte
	cdxStatus   int
	hits        map[string]int
}

// New creates an empty archive with its responders registered
func New() *Archive {
	a := &Archive{
		Transport:   httpmock.NewMockTransport(),
		snapshots:   make(map[string][]wayback.Snapshot),
		pages:       make(map[string]string),
		pageStatus:  make(map[string]int),
		images:      make(map[string][]byte),
		imageStatus: make(map[string]int),
		raw:         make(map[string][]byte),
		hits:        make(map[string]int),
	}

	a.Transport.RegisterRegexpResponder(http.MethodGet,
		regexp.MustCompile(`^`+regexp.QuoteMeta(cdxPrefix)), a.handleCDX)
	a.Transport.RegisterRegexpResponder(http.MethodGet,
		regexp.MustCompile(`^`+regexp.QuoteMeta(webPrefix)), a.handleReplay)
	a.Transport.RegisterRegexpResponder(http.MethodGet,
		regexp.MustCompile(`^https://pbs\.twimg\.com/media/`), a.handleImage)

	return a
}

// Client returns a wayback client wired to the fake archive
func (a *Archive) Client(log logger.Logger) *wayback.Client {
	c := wayback.NewClient(wayback.Options{}, log)
	c.SetTransport(a.Transport)
	return c
}

// AddSnapshot registers a capture of account and the body it replays
func (a *Archive) AddSnapshot(account, timestamp, original, body string) wayback.Snapshot {
	s := wayback.Snapshot{
		Timestamp:  timestamp,
		Original:   original,
		StatusCode: "200",
		MimeType:   "text/html",
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	key := strings.ToLower(account)
	a.snapshots[key] = append(a.snapshots[key], s)
	a.pages[timestamp+"/"+original] = body
	return s
}

// AddSnapshotWithDigest is AddSnapshot with a CDX content digest
func (a *Archive) AddSnapshotWithDigest(account, timestamp, original, digest, body string) wayback.Snapshot {
	a.AddSnapshot(account, timestamp, original, body)
	a.mu.Lock()
	defer a.mu.Unlock()
	list := a.snapshots[strings.ToLower(account)]
	list[len(list)-1].Digest = digest
	return list[len(list)-1]
}

// FailSnapshot makes the replay of a capture answer with status
func (a *Archive) FailSnapshot(timestamp, original string, status int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pageStatus[timestamp+"/"+original] = status
}

// FailCDX makes every CDX query answer with status
func (a *Archive) FailCDX(status int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cdxStatus = status
}

// AddImage serves body for an image URL on the image host
func (a *Archive) AddImage(imageURL string, body []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.images[stripQuery(imageURL)] = body
}

// FailImage makes the image host answer with status for imageURL
func (a *Archive) FailImage(imageURL string, status int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.imageStatus[stripQuery(imageURL)] = status
}

// AddRawImage serves body for the archived original of imageURL
func (a *Archive) AddRawImage(imageURL string, body []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.raw[rawKey(imageURL)] = body
}

// Hits returns how many requests were made for exactly rawURL
func (a *Archive) Hits(rawURL string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hits[rawURL]
}

// HitsWithPrefix returns how many requests began with prefix
func (a *Archive) HitsWithPrefix(prefix string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	total := 0
	for u, n := range a.hits {
		if strings.HasPrefix(u, prefix) {
			total += n
		}
	}
	return total
}

func (a *Archive) count(req *http.Request) {
	a.mu.Lock()
	a.hits[req.URL.String()]++
	a.mu.Unlock()
}

func (a *Archive) handleCDX(req *http.Request) (*http.Response, error) {
	a.count(req)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cdxStatus != 0 {
		return httpmock.NewStringResponse(a.cdxStatus, ""), nil
	}

	target := req.URL.Query().Get("url")
	account := strings.ToLower(target[strings.LastIndex(target, "/")+1:])
	list := append([]wayback.Snapshot(nil), a.snapshots[account]...)
	if len(list) == 0 {
		return httpmock.NewStringResponse(http.StatusOK, "[]"), nil
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Timestamp < list[j].Timestamp })

	rows := [][]string{{"timestamp", "original", "statuscode", "mimetype", "digest"}}
	for _, s := range list {
		rows = append(rows, []string{s.Timestamp, s.Original, s.StatusCode, s.MimeType, s.Digest})
	}
	body, err := json.Marshal(rows)
	if err != nil {
		return nil, err
	}
	resp := httpmock.NewBytesResponse(http.StatusOK, body)
	resp.Header.Set("Content-Type", "application/json")
	return resp, nil
}

// handleReplay serves /web/<ts>/<original> and /web/<ts>if_/<image>
func (a *Archive) handleReplay(req *http.Request) (*http.Response, error) {
	a.count(req)

	rest := strings.TrimPrefix(req.URL.String(), webPrefix)
	slash := strings.Index(rest, "/")
	if slash < 0 {
		return httpmock.NewStringResponse(http.StatusNotFound, ""), nil
	}
	stamp, target := rest[:slash], rest[slash+1:]

	a.mu.Lock()
	defer a.mu.Unlock()

	if strings.HasSuffix(stamp, "if_") {
		if body, ok := a.raw[stripQuery(target)]; ok {
			return httpmock.NewBytesResponse(http.StatusOK, body), nil
		}
		return httpmock.NewStringResponse(http.StatusNotFound, ""), nil
	}

	key := stamp + "/" + target
	if status, ok := a.pageStatus[key]; ok {
		return httpmock.NewStringResponse(status, ""), nil
	}
	body, ok := a.pages[key]
	if !ok {
		return httpmock.NewStringResponse(http.StatusNotFound, ""), nil
	}
	resp := httpmock.NewStringResponse(http.StatusOK, body)
	resp.Header.Set("Content-Type", "text/html; charset=utf-8")
	return resp, nil
}

func (a *Archive) handleImage(req *http.Request) (*http.Response, error) {
	a.count(req)

	key := stripQuery(req.URL.String())
	a.mu.Lock()
	defer a.mu.Unlock()
	if status, ok := a.imageStatus[key]; ok {
		return httpmock.NewStringResponse(status, ""), nil
	}
	body, ok := a.images[key]
	if !ok {
		return httpmock.NewStringResponse(http.StatusNotFound, ""), nil
	}
	return httpmock.NewBytesResponse(http.StatusOK, body), nil
}

func stripQuery(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		return u[:i]
	}
	return u
}

// rawKey is the image URL as it appears after if_/ in a fallback request
func rawKey(imageURL string) string {
	u := stripQuery(imageURL)
	if parsed, err := url.Parse(u); err == nil {
		if dot := strings.LastIndex(parsed.Path, "."); dot > strings.LastIndex(parsed.Path, "/") {
			return strings.TrimSuffix(u, parsed.Path[dot:])
		}
	}
	return u
}

// ModernPage renders a 2022-style profile page with one post per entry of
// posts. Each post is attributed to account and carries the given images.
func ModernPage(account string, posts ...[]string) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html><html><body><main>\n")
	for i, images := range posts {
		fmt.Fprintf(&b, "<article data-testid=\"tweet\">\n  <a href=\"/%s/status/%d\">post</a>\n", account, 1000+i)
		for _, img := range images {
			fmt.Fprintf(&b, "  <div data-testid=\"tweetPhoto\"><img src=\"%s\"></div>\n", img)
		}
		b.WriteString("</article>\n")
	}
	b.WriteString("</main></body></html>\n")
	return b.String()
}
