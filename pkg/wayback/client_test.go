package wayback

import (
	"context"
	stderrors "errors"
	"net/http"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waybackscraper/pkg/errors"
	"waybackscraper/pkg/logger"
)

var cdxPattern = regexp.MustCompile(`^https://web\.archive\.org/cdx/search/cdx`)

const cdxHeader = `["timestamp","original","statuscode","mimetype","digest"]`

type recordingObserver struct {
	mu     sync.Mutex
	phases []string
	errs   int
}

func (o *recordingObserver) ObserveRequest(phase string, d time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.phases = append(o.phases, phase)
	if err != nil {
		o.errs++
	}
}

func newTestClient(t *testing.T, opts Options) (*Client, *httpmock.MockTransport) {
	t.Helper()
	transport := httpmock.NewMockTransport()
	if opts.UserAgent == "" {
		opts.UserAgent = "waybackscraper-test"
	}
	c := NewClient(opts, logger.NewNopLogger())
	c.SetTransport(transport)
	return c, transport
}

func TestSnapshotsPaginatesAndFilters(t *testing.T) {
	c, transport := newTestClient(t, Options{PageSize: 2, From: "2015", OnlyOKStatus: true})

	var queries []map[string][]string
	transport.RegisterRegexpResponder(http.MethodGet, cdxPattern, func(req *http.Request) (*http.Response, error) {
		q := req.URL.Query()
		queries = append(queries, q)
		assert.Equal(t, "waybackscraper-test", req.Header.Get("User-Agent"))

		if q.Get("resumeKey") == "" {
			return httpmock.NewStringResponse(200, `[`+cdxHeader+`,
				["20200301000000","https://twitter.com/nasa/status/2","200","text/html","DIG2"],
				["20190101000000","https://twitter.com/NASA","200","text/html","DIG1"],
				[],
				["page-two"]]`), nil
		}
		return httpmock.NewStringResponse(200, `[`+cdxHeader+`,
			["20200301000000","https://twitter.com/nasa/status/2","200","text/html","DIG2"],
			["20180101000000","https://twitter.com/nasajpl","200","text/html","DIG3"],
			["20170101000000","https://twitter.com/nasa/media","200","text/html","DIG4"]]`), nil
	})

	snapshots, err := c.Snapshots(context.Background(), "nasa")
	require.NoError(t, err)

	require.Len(t, snapshots, 3)
	assert.Equal(t, "20170101000000", snapshots[0].Timestamp)
	assert.Equal(t, "20190101000000", snapshots[1].Timestamp)
	assert.Equal(t, "https://twitter.com/NASA", snapshots[1].Original)
	assert.Equal(t, "20200301000000", snapshots[2].Timestamp)
	assert.Equal(t, "DIG2", snapshots[2].Digest)

	require.Len(t, queries, 2)
	assert.Equal(t, "twitter.com/nasa", queries[0]["url"][0])
	assert.Equal(t, "prefix", queries[0]["matchType"][0])
	assert.Equal(t, "2015", queries[0]["from"][0])
	assert.Equal(t, "statuscode:200", queries[0]["filter"][0])
	assert.Equal(t, "page-two", queries[1]["resumeKey"][0])
}

func TestSnapshotsNoCaptures(t *testing.T) {
	tests := []struct {
		name      string
		responder httpmock.Responder
	}{
		{"empty array", httpmock.NewStringResponder(200, `[]`)},
		{"empty body", httpmock.NewStringResponder(200, ``)},
		{"header only", httpmock.NewStringResponder(200, `[`+cdxHeader+`]`)},
		{"not found status", httpmock.NewStringResponder(404, `not found`)},
		{"only other accounts", httpmock.NewStringResponder(200, `[`+cdxHeader+`,["20200101000000","https://twitter.com/nasajpl","200","text/html","X"]]`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, transport := newTestClient(t, Options{})
			transport.RegisterRegexpResponder(http.MethodGet, cdxPattern, tt.responder)

			snapshots, err := c.Snapshots(context.Background(), "nasa")
			assert.Empty(t, snapshots)
			assert.True(t, errors.IsNotFound(err), "got %v", err)
		})
	}
}

func TestSnapshotsMalformedResponse(t *testing.T) {
	c, transport := newTestClient(t, Options{})
	transport.RegisterRegexpResponder(http.MethodGet, cdxPattern, httpmock.NewStringResponder(200, `<html>maintenance</html>`))

	_, err := c.Snapshots(context.Background(), "nasa")
	assert.True(t, errors.IsParse(err), "got %v", err)
}

func TestSnapshotsServerError(t *testing.T) {
	c, transport := newTestClient(t, Options{})
	transport.RegisterRegexpResponder(http.MethodGet, cdxPattern, httpmock.NewStringResponder(503, `busy`))

	_, err := c.Snapshots(context.Background(), "nasa")
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeServerError, errors.TypeOf(err))
	assert.True(t, errors.IsFetch(err))
}

func TestSnapshotsStopsOnRepeatedResumeKey(t *testing.T) {
	c, transport := newTestClient(t, Options{PageSize: 1})
	calls := 0
	transport.RegisterRegexpResponder(http.MethodGet, cdxPattern, func(req *http.Request) (*http.Response, error) {
		calls++
		return httpmock.NewStringResponse(200, `[`+cdxHeader+`,["20200101000000","https://twitter.com/nasa","200","text/html","X"],[],["same"]]`), nil
	})

	snapshots, err := c.Snapshots(context.Background(), "nasa")
	require.NoError(t, err)
	assert.Len(t, snapshots, 1)
	assert.Equal(t, 2, calls)
}

func TestFetchSnapshot(t *testing.T) {
	c, transport := newTestClient(t, Options{})
	observer := &recordingObserver{}
	c.SetObserver(observer)

	s := Snapshot{Timestamp: "20200101000000", Original: "https://twitter.com/nasa"}
	resp := httpmock.NewStringResponse(200, "<html><body>ok</body></html>")
	resp.Header.Set("Content-Type", "text/html; charset=utf-8")
	transport.RegisterResponder(http.MethodGet, ArchiveURL(DefaultWebURL, s.Timestamp, s.Original), httpmock.ResponderFromResponse(resp))

	page, err := c.FetchSnapshot(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "https://web.archive.org/web/20200101000000/https://twitter.com/nasa", page.URL)
	assert.Equal(t, "text/html; charset=utf-8", page.ContentType)
	assert.Contains(t, string(page.Body), "ok")
	assert.Equal(t, s, page.Snapshot)

	assert.Equal(t, []string{PhaseSnapshot}, observer.phases)
	assert.Zero(t, observer.errs)
}

func TestFetchSnapshotFailures(t *testing.T) {
	s := Snapshot{Timestamp: "20200101000000", Original: "https://twitter.com/nasa"}

	tests := []struct {
		name      string
		responder httpmock.Responder
		want      errors.ErrorType
	}{
		{"network", httpmock.NewErrorResponder(stderrors.New("connection reset by peer")), errors.ErrorTypeNetwork},
		{"deadline", httpmock.NewErrorResponder(context.DeadlineExceeded), errors.ErrorTypeTimeout},
		{"gone", httpmock.NewStringResponder(404, ""), errors.ErrorTypeNotFound},
		{"forbidden", httpmock.NewStringResponder(403, ""), errors.ErrorTypeHTTPStatus},
		{"throttled", httpmock.NewStringResponder(429, ""), errors.ErrorTypeRateLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, transport := newTestClient(t, Options{})
			observer := &recordingObserver{}
			c.SetObserver(observer)
			transport.RegisterResponder(http.MethodGet, ArchiveURL(DefaultWebURL, s.Timestamp, s.Original), tt.responder)

			page, err := c.FetchSnapshot(context.Background(), s)
			assert.Nil(t, page)
			require.Error(t, err)
			assert.Equal(t, tt.want, errors.TypeOf(err))
			assert.True(t, errors.IsFetch(err))
			assert.Equal(t, 1, observer.errs)
		})
	}
}

func TestFetchImage(t *testing.T) {
	c, transport := newTestClient(t, Options{})
	transport.RegisterResponder(http.MethodGet, "https://pbs.twimg.com/media/a.jpg", httpmock.NewStringResponder(200, "img-bytes"))

	body, err := c.Fetch(context.Background(), "https://pbs.twimg.com/media/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "img-bytes", string(body))
}

func TestFetchRejectsOversizedBody(t *testing.T) {
	c, transport := newTestClient(t, Options{MaxBodySize: 8})
	transport.RegisterResponder(http.MethodGet, "https://pbs.twimg.com/media/exact.jpg", httpmock.NewStringResponder(200, "12345678"))
	transport.RegisterResponder(http.MethodGet, "https://pbs.twimg.com/media/big.jpg", httpmock.NewStringResponder(200, "123456789"))

	body, err := c.Fetch(context.Background(), "https://pbs.twimg.com/media/exact.jpg")
	require.NoError(t, err)
	assert.Equal(t, "12345678", string(body))

	body, err = c.Fetch(context.Background(), "https://pbs.twimg.com/media/big.jpg")
	assert.Nil(t, body)
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeHTTPStatus, errors.TypeOf(err))
	assert.True(t, errors.IsFetch(err))
	assert.Contains(t, err.Error(), "too large")
}

func TestDefaultMaxBodySize(t *testing.T) {
	c := NewClient(Options{}, logger.NewNopLogger())
	assert.Equal(t, int64(DefaultMaxBodySize), c.opts.MaxBodySize)
}

func TestParseCDXRequiresColumns(t *testing.T) {
	_, _, err := parseCDX([]byte(`[["urlkey","length"],["a","1"]]`))
	assert.True(t, errors.IsParse(err))
}

func TestBelongsTo(t *testing.T) {
	tests := []struct {
		original string
		want     bool
	}{
		{"https://twitter.com/nasa", true},
		{"http://twitter.com/NASA/status/123", true},
		{"https://twitter.com/nasa?lang=en", true},
		{"twitter.com/nasa/media", true},
		{"https://twitter.com/nasajpl", false},
		{"https://twitter.com/i/nasa", false},
		{"https://twitter.com/", false},
	}

	for _, tt := range tests {
		t.Run(tt.original, func(t *testing.T) {
			assert.Equal(t, tt.want, belongsTo(tt.original, "nasa"))
		})
	}
}
