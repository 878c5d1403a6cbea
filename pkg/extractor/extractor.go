package extractor

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"waybackscraper/pkg/errors"
	"waybackscraper/pkg/logger"
	"waybackscraper/pkg/wayback"
)

// Layout names the page structure the images were found in
type Layout string

const (
	LayoutNone   Layout = "none"
	LayoutModern Layout = "modern"
	LayoutLegacy Layout = "legacy"
	LayoutJSON   Layout = "json"
)

// ImageRef is one image discovered in a snapshot
type ImageRef struct {
	URL string `json:"url"`

	// Snapshot is the capture timestamp the image was found in
	Snapshot string `json:"snapshot,omitempty"`
}

// Key is the identity used for deduplication
func (r ImageRef) Key() string {
	return NormalizeURL(r.URL)
}

// Result holds the images attributed to one account on one page
type Result struct {
	Images []ImageRef
	Layout Layout

	// Posts counts the account's own posts found, with or without images
	Posts int
}

// Extractor finds the images an account posted in archived pages
type Extractor struct {
	logger logger.Logger
}

// New creates an Extractor
func New(log logger.Logger) *Extractor {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Extractor{logger: log}
}

// Extract parses page and returns the images of posts attributed to account.
// The React markup is tried first, then the legacy timeline markup, then
// the body is read as a v2 API JSON payload. A body that yields no post and
// is not JSON produces an empty result and a parsing error.
func (e *Extractor) Extract(page []byte, account string) (Result, error) {
	return e.extract(page, account, "")
}

// ExtractPage is Extract for a fetched snapshot; each ImageRef remembers
// the capture it came from
func (e *Extractor) ExtractPage(p *wayback.Page, account string) (Result, error) {
	return e.extract(p.Body, account, p.Snapshot.Timestamp)
}

func (e *Extractor) extract(page []byte, account, snapshot string) (Result, error) {
	doc, htmlErr := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if htmlErr == nil {
		if urls, posts := modernImages(doc, account); posts > 0 {
			return buildResult(urls, snapshot, LayoutModern, posts), nil
		}
		if urls, posts := legacyImages(doc, account); posts > 0 {
			return buildResult(urls, snapshot, LayoutLegacy, posts), nil
		}
	} else {
		e.logger.WithError(htmlErr).Debug("HTML parse failed, trying JSON")
	}

	urls, found, err := extractJSON(page, account)
	if err != nil {
		return Result{Layout: LayoutNone}, errors.Parse(err, fmt.Sprintf("no posts by %s in markup and body is not JSON", account))
	}
	if !found {
		e.logger.WithField("account", account).Debug("Account not present in JSON payload")
		return Result{Layout: LayoutNone}, nil
	}

	return buildResult(urls, snapshot, LayoutJSON, len(urls)), nil
}

// modernImages handles the React markup used since 2022
func modernImages(doc *goquery.Document, account string) ([]string, int) {
	statusLink := regexp.MustCompile(`(?i)/` + regexp.QuoteMeta(account) + `/status/`)

	var (
		urls  []string
		posts int
	)
	doc.Find(`article[data-testid="tweet"]`).Each(func(_ int, article *goquery.Selection) {
		own := article.Find("a[href]").FilterFunction(func(_ int, a *goquery.Selection) bool {
			href, _ := a.Attr("href")
			return statusLink.MatchString(href)
		})
		if own.Length() == 0 {
			return
		}
		posts++

		thumbs := article.Find(`meta[itemprop="thumbnailUrl"][content]`)
		if thumbs.Length() > 0 {
			thumbs.Each(func(_ int, m *goquery.Selection) {
				if content := m.AttrOr("content", ""); IsMediaURL(content) {
					urls = append(urls, content)
				}
			})
			return
		}

		article.Find(`div[data-testid="tweetPhoto"] img[src]`).Each(func(_ int, img *goquery.Selection) {
			if src := img.AttrOr("src", ""); IsMediaURL(src) {
				urls = append(urls, src)
			}
		})
	})

	return urls, posts
}

// legacyImages handles the timeline markup used before 2022
func legacyImages(doc *goquery.Document, account string) ([]string, int) {
	var (
		urls  []string
		posts int
	)
	doc.Find("div.tweet[data-screen-name]").Each(func(_ int, tweet *goquery.Selection) {
		if !strings.EqualFold(tweet.AttrOr("data-screen-name", ""), account) {
			return
		}
		posts++

		tweet.Find("div[data-image-url]").Each(func(_ int, div *goquery.Selection) {
			if u := div.AttrOr("data-image-url", ""); u != "" {
				urls = append(urls, u)
			}
		})
		tweet.Find(`meta[property="og:image"][content]`).Each(func(_ int, m *goquery.Selection) {
			if content := m.AttrOr("content", ""); IsMediaURL(content) {
				urls = append(urls, content)
			}
		})
	})

	return urls, posts
}

func buildResult(raw []string, snapshot string, layout Layout, posts int) Result {
	seen := make(map[string]struct{}, len(raw))
	images := make([]ImageRef, 0, len(raw))
	for _, u := range raw {
		norm := NormalizeURL(u)
		if norm == "" {
			continue
		}
		if _, dup := seen[norm]; dup {
			continue
		}
		seen[norm] = struct{}{}
		images = append(images, ImageRef{URL: norm, Snapshot: snapshot})
	}
	sort.Slice(images, func(i, j int) bool { return images[i].URL < images[j].URL })

	return Result{Images: images, Layout: layout, Posts: posts}
}
