package metrics

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waybackscraper/pkg/errors"
)

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.ObserveRequest("cdx", 20*time.Millisecond, nil)
	m.ObserveRequest("image", time.Millisecond, errors.FromStatus(503, "https://pbs.twimg.com/media/A.jpg"))
	m.ObserveRequest("image", time.Millisecond, errors.Classify(context.DeadlineExceeded, "u"))
	m.IncSnapshot(ResultProcessed)
	m.IncImage(ResultDownloaded)
	m.IncImage(ResultDuplicate)
	m.AddBytes(1024)
	m.AddBytes(-5)

	path := filepath.Join(t.TempDir(), "waybackscraper.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)

	assert.Contains(t, out, `waybackscraper_requests_total{phase="cdx"} 1`)
	assert.Contains(t, out, `waybackscraper_requests_total{phase="image"} 2`)
	assert.Contains(t, out, `waybackscraper_errors_total{error_type="server_error"} 1`)
	assert.Contains(t, out, `waybackscraper_errors_total{error_type="timeout"} 1`)
	assert.Contains(t, out, `waybackscraper_snapshots_total{result="processed"} 1`)
	assert.Contains(t, out, `waybackscraper_images_total{result="duplicate"} 1`)
	assert.Contains(t, out, "waybackscraper_bytes_written_total 1024")
	assert.Contains(t, out, `waybackscraper_request_duration_seconds_count{phase="cdx"} 1`)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRequest("cdx", time.Second, nil)
		m.IncSnapshot(ResultFailed)
		m.IncImage(ResultPresent)
		m.AddBytes(10)
		m.IncError(errors.New(errors.ErrorTypeIO, "disk"))
	})
	assert.NoError(t, m.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
}

func TestWriteTextfileWithoutPath(t *testing.T) {
	assert.NoError(t, New().WriteTextfile(""))
}
