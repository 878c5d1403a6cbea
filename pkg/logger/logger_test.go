package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waybackscraper/pkg/config"
)

func newJSONLogger(t *testing.T, level string) (Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	l, err := New(&config.LoggingConfig{Level: level, Format: "json"}, WithOutput(&buf))
	require.NoError(t, err)
	return l, &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zerolog.Level
		wantErr bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"INFO", zerolog.InfoLevel, false},
		{"", zerolog.InfoLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"disabled", zerolog.Disabled, false},
		{"chatty", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseLogLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(&config.LoggingConfig{Level: "chatty"})
	assert.Error(t, err)
}

func TestLevelFiltering(t *testing.T) {
	l, buf := newJSONLogger(t, "warn")

	l.Debug("hidden debug")
	l.Info("hidden info")
	l.Warn("visible warn")
	l.Error("visible error")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "visible warn", lines[0]["message"])
	assert.Equal(t, "error", lines[1]["level"])
}

func TestWithFieldsAreCopied(t *testing.T) {
	l, buf := newJSONLogger(t, "debug")

	base := l.WithField("account", "nasa")
	child := base.WithFields(map[string]interface{}{"images": 3, "ok": true})
	base.Info("from base")
	child.InfoWithFields("from child", map[string]interface{}{"timestamp": "20200101000000"})

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "nasa", lines[0]["account"])
	assert.NotContains(t, lines[0], "images")

	assert.Equal(t, "nasa", lines[1]["account"])
	assert.Equal(t, float64(3), lines[1]["images"])
	assert.Equal(t, true, lines[1]["ok"])
	assert.Equal(t, "20200101000000", lines[1]["timestamp"])
	assert.Equal(t, "waybackscraper", lines[1]["app"])
}

func TestWithError(t *testing.T) {
	l, buf := newJSONLogger(t, "info")

	assert.Same(t, l, l.WithError(nil))

	l.WithError(errors.New("connection reset")).Error("fetch failed")
	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "connection reset", lines[0]["error"])
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&config.LoggingConfig{Level: "info"}, WithOutput(&buf), WithoutColor())
	require.NoError(t, err)

	l.WithField("account", "nasa").Info("Component started")
	out := buf.String()
	assert.Contains(t, out, "| Component started")
	assert.Contains(t, out, "account=nasa")
	assert.NotContains(t, out, "\033[")
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "run.log")
	var console bytes.Buffer
	l, err := New(&config.LoggingConfig{Level: "info", Format: "json", File: path, MaxSize: 1}, WithOutput(&console))
	require.NoError(t, err)

	l.Info("written twice")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written twice")
	assert.Contains(t, console.String(), "written twice")
}

func TestHelpers(t *testing.T) {
	tl := NewTestLogger()

	LogDownload(tl, "nasa", "https://pbs.twimg.com/media/a.jpg", "nasa_a.jpg", 10, nil)
	LogDownload(tl, "nasa", "https://pbs.twimg.com/media/b.jpg", "", 0, errors.New("timeout"))
	LogSnapshot(tl, "nasa", "20200101000000", 2, nil)
	LogComponentStart(tl, "scraper", map[string]interface{}{"accounts": 1})
	LogComponentStop(tl, "scraper", "completed")

	assert.True(t, tl.HasMessage("Image saved"))
	warns := tl.GetMessagesByLevel("WARN")
	require.Len(t, warns, 1)
	assert.Equal(t, "timeout", warns[0].Fields["error"])
	assert.Equal(t, "nasa", warns[0].Fields["account"])
	assert.Len(t, tl.GetMessagesByLevel("DEBUG"), 1)

	tl.Clear()
	assert.Empty(t, tl.GetMessages())
}

func TestTestLoggerSharesCapture(t *testing.T) {
	tl := NewTestLogger()
	tl.WithField("account", "nasa").Info("child message")

	msgs := tl.GetMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "nasa", msgs[0].Fields["account"])
	assert.Contains(t, tl.String(), "child message")
}

func TestGlobalLogger(t *testing.T) {
	prev := globalLogger
	t.Cleanup(func() { globalLogger = prev })

	tl := NewTestLogger()
	SetLogger(tl)
	WithField("k", "v").Info("global")
	Warn("warned")

	assert.Same(t, tl, GetLogger())
	assert.True(t, tl.HasMessage("global"))
	assert.True(t, tl.HasMessage("warned"))
}
