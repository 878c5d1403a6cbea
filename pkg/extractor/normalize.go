package extractor

import (
	"path"
	"regexp"
	"strings"

	"waybackscraper/pkg/wayback"
)

// mediaHost marks the URLs of uploaded post photos
const mediaHost = "pbs.twimg.com/media/"

var sizeSuffix = regexp.MustCompile(`:(large|medium|small|thumb|orig)$`)

// NormalizeURL reduces an image URL to its canonical form: archive rewrite
// prefixes, query string and size suffix are removed and ".jpg" is added
// when the file name has no extension. It is idempotent.
func NormalizeURL(raw string) string {
	u := strings.TrimSpace(raw)
	if u == "" {
		return ""
	}

	if i := strings.LastIndex(u, "im_/"); i >= 0 {
		u = u[i+len("im_/"):]
	} else if _, original, ok := wayback.SplitArchiveURL(u); ok {
		u = original
	}
	if strings.HasPrefix(u, "//") {
		u = "https:" + u
	}
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	u = sizeSuffix.ReplaceAllString(u, "")

	if strings.Contains(u, mediaHost) && path.Ext(lastSegment(u)) == "" {
		u += ".jpg"
	}
	return u
}

// IsMediaURL reports whether u points at an uploaded photo
func IsMediaURL(u string) bool {
	return strings.Contains(u, mediaHost)
}

func lastSegment(u string) string {
	u = strings.TrimRight(u, "/")
	if i := strings.LastIndex(u, "/"); i >= 0 {
		return u[i+1:]
	}
	return u
}
