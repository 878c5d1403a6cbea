package wayback

import "time"

// TimestampLayout is the 14 digit capture time format used by the archive
const TimestampLayout = "20060102150405"

// Snapshot is one capture listed by the CDX index
type Snapshot struct {
	Timestamp  string `json:"timestamp"`
	Original   string `json:"original"`
	StatusCode string `json:"status_code,omitempty"`
	MimeType   string `json:"mime_type,omitempty"`
	Digest     string `json:"digest,omitempty"`
}

// Time parses the capture timestamp. Captures with a malformed timestamp
// return the zero time.
func (s Snapshot) Time() time.Time {
	t, err := time.Parse(TimestampLayout, s.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Page is the fetched body of a snapshot
type Page struct {
	Snapshot    Snapshot
	URL         string
	ContentType string
	Body        []byte
}
