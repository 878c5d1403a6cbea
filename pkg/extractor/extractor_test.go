package extractor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waybackscraper/pkg/errors"
	"waybackscraper/pkg/logger"
	"waybackscraper/pkg/wayback"
)

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return data
}

func urls(refs []ImageRef) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.URL
	}
	return out
}

func TestExtractModernLayout(t *testing.T) {
	e := New(logger.NewNopLogger())

	result, err := e.Extract(loadFixture(t, "modern.html"), "nasa")
	require.NoError(t, err)

	assert.Equal(t, LayoutModern, result.Layout)
	assert.Equal(t, 3, result.Posts)
	assert.Equal(t, []string{
		"https://pbs.twimg.com/media/AAA1.jpg",
		"https://pbs.twimg.com/media/AAA2.jpg",
		"https://pbs.twimg.com/media/BBB1.jpg",
	}, urls(result.Images))
}

func TestExtractLegacyLayout(t *testing.T) {
	e := New(logger.NewNopLogger())

	result, err := e.Extract(loadFixture(t, "legacy.html"), "NASA")
	require.NoError(t, err)

	assert.Equal(t, LayoutLegacy, result.Layout)
	assert.Equal(t, 1, result.Posts)
	assert.Equal(t, []string{
		"https://pbs.twimg.com/media/LLL1.jpg",
		"https://pbs.twimg.com/media/LLL2.png",
		"https://pbs.twimg.com/media/LLL3.jpg",
	}, urls(result.Images))
}

func TestExtractJSONFallback(t *testing.T) {
	e := New(logger.NewNopLogger())

	result, err := e.Extract(loadFixture(t, "api.json"), "nasa")
	require.NoError(t, err)

	assert.Equal(t, LayoutJSON, result.Layout)
	assert.Equal(t, []string{
		"https://pbs.twimg.com/media/JJJ1.jpg",
		"https://pbs.twimg.com/media/JJJ4.jpg",
	}, urls(result.Images))
}

func TestExtractJSONSingleObject(t *testing.T) {
	body := []byte(`{
		"data": {"id": "1", "author_id": "11", "attachments": {"media_keys": ["k"]}},
		"includes": {
			"users": [{"id": "11", "username": "nasa"}],
			"media": [{"media_key": "k", "type": "photo", "url": "https://pbs.twimg.com/media/ONE.jpg"}]
		}
	}`)

	result, err := New(logger.NewNopLogger()).Extract(body, "NASA")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://pbs.twimg.com/media/ONE.jpg"}, urls(result.Images))
}

func TestExtractJSONWithoutAccount(t *testing.T) {
	body := []byte(`{"data": [], "includes": {"users": [{"id": "22", "username": "spacex"}]}}`)

	result, err := New(logger.NewNopLogger()).Extract(body, "nasa")
	require.NoError(t, err)
	assert.Empty(t, result.Images)
	assert.Equal(t, LayoutNone, result.Layout)
}

func TestExtractOnlyOtherAccounts(t *testing.T) {
	e := New(logger.NewNopLogger())

	result, err := e.Extract(loadFixture(t, "modern.html"), "nasajpl")
	assert.Empty(t, result.Images)
	assert.True(t, errors.IsParse(err), "got %v", err)
}

func TestExtractUnparseableBody(t *testing.T) {
	e := New(logger.NewNopLogger())

	for name, body := range map[string]string{
		"login wall": `<html><body><p>Log in to Twitter</p></body></html>`,
		"empty":      ``,
		"binary":     "\x89PNG\r\n\x1a\n\x00\x00",
	} {
		t.Run(name, func(t *testing.T) {
			result, err := e.Extract([]byte(body), "nasa")
			assert.Empty(t, result.Images)
			assert.Equal(t, LayoutNone, result.Layout)
			assert.True(t, errors.IsParse(err), "got %v", err)
		})
	}
}

func TestExtractPageCarriesSnapshot(t *testing.T) {
	e := New(logger.NewNopLogger())
	page := &wayback.Page{
		Snapshot: wayback.Snapshot{Timestamp: "20220301000000", Original: "https://twitter.com/nasa"},
		Body:     loadFixture(t, "modern.html"),
	}

	result, err := e.ExtractPage(page, "nasa")
	require.NoError(t, err)
	require.NotEmpty(t, result.Images)
	for _, ref := range result.Images {
		assert.Equal(t, "20220301000000", ref.Snapshot)
	}
}

func TestExtractTextOnlyPostIsNotAnError(t *testing.T) {
	body := []byte(`<html><body><article data-testid="tweet"><a href="/nasa/status/1">x</a><p>hello</p></article></body></html>`)

	result, err := New(logger.NewNopLogger()).Extract(body, "nasa")
	require.NoError(t, err)
	assert.Equal(t, LayoutModern, result.Layout)
	assert.Equal(t, 1, result.Posts)
	assert.Empty(t, result.Images)
}
