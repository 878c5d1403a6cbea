package ui

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"waybackscraper/pkg/metadata"
)

func TestPrinterWithoutColor(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, false, false)

	p.PrintInfo("Account", "nasa")
	p.PrintWarning("slow", "archive")
	p.PrintError("failed", "boom")

	assert.Equal(t, "Account: nasa\nslow: archive\nfailed: boom\n", buf.String())
}

func TestPrinterColor(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, true, false)
	p.PrintSuccess("ok")
	assert.Equal(t, "\033[32mok\033[0m\n", buf.String())
}

func TestQuietPrinterOnlyPrintsErrors(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, false, true)

	p.PrintBanner()
	p.PrintInfo("Account", "nasa")
	p.PrintSuccess("ok")
	p.PrintHighlight("hi")
	p.PrintSummary(metadata.NewRunReport("run"))
	assert.Empty(t, buf.String())

	p.PrintError("fatal")
	assert.Equal(t, "fatal\n", buf.String())
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, false, false)

	report := metadata.NewRunReport("run-1")
	s := metadata.NewSummary("nasa", "run-1", "twitter_images/nasa")
	s.Counts = metadata.Counts{Snapshots: 4, ImagesFound: 5, Downloaded: 3, Duplicates: 2, BytesWritten: 2048}
	s.Finish(nil)
	report.Add(s)
	failed := metadata.NewSummary("esa", "run-1", "twitter_images/esa")
	failed.Finish(assert.AnError)
	report.Add(failed)
	report.FinishedAt = report.StartedAt.Add(2 * time.Second)

	p.PrintSummary(report)
	out := buf.String()

	assert.Contains(t, out, "[RUN COMPLETE] run-1")
	assert.Contains(t, out, "done nasa: 3 new images in twitter_images/nasa")
	assert.Contains(t, out, "incomplete esa: 0 new images")
	assert.Contains(t, out, "duplicates 2")
	assert.Contains(t, out, "[TOTAL] 3 new images, 0 failed, 2.0 KiB written in 2s")
	assert.Contains(t, out, "[INCOMPLETE]: esa")
}

func TestPrintSummaryWithoutIncompleteAccounts(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, false, false)

	report := metadata.NewRunReport("run-2")
	s := metadata.NewSummary("nasa", "run-2", "twitter_images/nasa")
	s.Finish(nil)
	report.Add(s)

	p.PrintSummary(report)
	assert.NotContains(t, buf.String(), "[INCOMPLETE]")
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KiB", formatBytes(1536))
	assert.Equal(t, "3.0 MiB", formatBytes(3<<20))
}

func TestProgressBar(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, true)

	p.Start("nasa", 2)
	p.Increment()
	p.Increment()
	p.Finish()
	p.Finish()

	assert.Contains(t, buf.String(), "nasa")
}

func TestDisabledProgressWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, false)

	p.Start("nasa", 2)
	p.Increment()
	p.Finish()

	assert.Empty(t, buf.String())
	assert.IsType(t, nopProgress{}, NewProgress(nil, true))
}
