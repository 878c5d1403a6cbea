package wayback

import (
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"
)

const (
	// DefaultCDXURL is the CDX search endpoint of the Wayback Machine
	DefaultCDXURL = "https://web.archive.org/cdx/search/cdx"

	// DefaultWebURL is the prefix of replay URLs
	DefaultWebURL = "https://web.archive.org/web"

	// DefaultProfileURL is the URL pattern searched for an account
	DefaultProfileURL = "twitter.com/%s"

	// cdxFields is the column order requested from the CDX server
	cdxFields = "timestamp,original,statuscode,mimetype,digest"
)

// Query describes one CDX page request
type Query struct {
	Account      string
	From         string
	To           string
	Limit        int
	OnlyOKStatus bool
	ResumeKey    string
}

// CDXQueryURL builds the CDX search URL for q
func CDXQueryURL(cdxURL, profileURL string, q Query) string {
	params := url.Values{}
	params.Set("url", fmt.Sprintf(profileURL, q.Account))
	params.Set("matchType", "prefix")
	params.Set("output", "json")
	params.Set("fl", cdxFields)
	if q.From != "" {
		params.Set("from", q.From)
	}
	if q.To != "" {
		params.Set("to", q.To)
	}
	if q.OnlyOKStatus {
		params.Set("filter", "statuscode:200")
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
		params.Set("showResumeKey", "true")
	}
	if q.ResumeKey != "" {
		params.Set("resumeKey", q.ResumeKey)
	}

	return cdxURL + "?" + params.Encode()
}

// ArchiveURL returns the replay URL of original captured at timestamp
func ArchiveURL(webURL, timestamp, original string) string {
	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(webURL, "/"), timestamp, original)
}

// SplitArchiveURL extracts the timestamp and original URL from a replay
// URL. Modifier suffixes such as "im_" or "if_" are dropped from the
// timestamp.
func SplitArchiveURL(archiveURL string) (timestamp, original string, ok bool) {
	idx := strings.Index(archiveURL, "/web/")
	if idx < 0 {
		return "", "", false
	}
	rest := archiveURL[idx+len("/web/"):]
	slash := strings.Index(rest, "/")
	if slash <= 0 || slash == len(rest)-1 {
		return "", "", false
	}

	timestamp = strings.TrimRight(rest[:slash], "abcdefghijklmnopqrstuvwxyz_")
	if timestamp == "" {
		return "", "", false
	}
	for _, r := range timestamp {
		if r < '0' || r > '9' {
			return "", "", false
		}
	}
	return timestamp, rest[slash+1:], true
}

// RawImageURL returns the raw-content replay URL asking the archive for the
// original resolution of imageURL as captured at timestamp. The file
// extension is replaced by the format=jpg&name=orig query.
func RawImageURL(webURL, timestamp, imageURL string) (string, bool) {
	if imageURL == "" {
		return "", false
	}
	if ts, original, ok := SplitArchiveURL(imageURL); ok {
		timestamp, imageURL = ts, original
	}
	if timestamp == "" {
		return "", false
	}

	base := imageURL
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base = base[:i]
	}
	if ext := path.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}

	return fmt.Sprintf("%s/%sif_/%s?format=jpg&name=orig", strings.TrimRight(webURL, "/"), timestamp, base), true
}
