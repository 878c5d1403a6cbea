package extractor

import (
	"bytes"
	"encoding/json"
	"strings"
)

// apiResponse is the subset of a v2 API payload that carries photos
type apiResponse struct {
	Data     json.RawMessage `json:"data"`
	Includes struct {
		Users  []apiUser  `json:"users"`
		Media  []apiMedia `json:"media"`
		Tweets []apiTweet `json:"tweets"`
	} `json:"includes"`
}

type apiUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type apiMedia struct {
	MediaKey string `json:"media_key"`
	Type     string `json:"type"`
	URL      string `json:"url"`
}

type apiTweet struct {
	ID          string `json:"id"`
	AuthorID    string `json:"author_id"`
	Attachments struct {
		MediaKeys []string `json:"media_keys"`
	} `json:"attachments"`
}

// tweets returns the primary data, which may be a single object or a list,
// followed by the included tweets
func (r *apiResponse) tweets() []apiTweet {
	var out []apiTweet

	data := bytes.TrimSpace(r.Data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
	case data[0] == '[':
		var list []apiTweet
		if err := json.Unmarshal(data, &list); err == nil {
			out = append(out, list...)
		}
	case data[0] == '{':
		var single apiTweet
		if err := json.Unmarshal(data, &single); err == nil {
			out = append(out, single)
		}
	}

	return append(out, r.Includes.Tweets...)
}

// extractJSON returns the photo URLs attached to tweets authored by account,
// and whether the account appeared in the payload at all
func extractJSON(body []byte, account string) ([]string, bool, error) {
	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, false, err
	}

	var userID string
	for _, u := range resp.Includes.Users {
		if strings.EqualFold(u.Username, account) {
			userID = u.ID
			break
		}
	}
	if userID == "" {
		return nil, false, nil
	}

	photos := make(map[string]string, len(resp.Includes.Media))
	for _, m := range resp.Includes.Media {
		if m.Type == "photo" && m.URL != "" {
			photos[m.MediaKey] = m.URL
		}
	}

	var urls []string
	for _, t := range resp.tweets() {
		if t.AuthorID != userID {
			continue
		}
		for _, key := range t.Attachments.MediaKeys {
			if u, ok := photos[key]; ok {
				urls = append(urls, u)
			}
		}
	}

	return urls, true, nil
}
