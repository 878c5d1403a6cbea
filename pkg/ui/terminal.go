package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"waybackscraper/pkg/metadata"
)

// Banner printed at the start of an interactive run
const Banner = `
    ╔════════════════════════════════════════════╗
    ║   WAYBACK SCRAPER  ·  archived tweet media ║
    ╚════════════════════════════════════════════╝
`

const (
	cyan    = "\033[36m%s\033[0m"
	yellow  = "\033[33m%s\033[0m"
	red     = "\033[31m%s\033[0m"
	green   = "\033[32m%s\033[0m"
	magenta = "\033[35m%s\033[0m"
	dim     = "\033[2m%s\033[0m"
)

// Printer writes user-facing messages. A quiet printer only writes errors.
type Printer struct {
	out   io.Writer
	color bool
	quiet bool
}

// NewPrinter returns a printer writing to out, or to stdout when out is nil
func NewPrinter(out io.Writer, color, quiet bool) *Printer {
	if out == nil {
		out = os.Stdout
	}
	return &Printer{out: out, color: color, quiet: quiet}
}

// Writer returns the underlying writer
func (p *Printer) Writer() io.Writer {
	return p.out
}

// Quiet reports whether non-error output is suppressed
func (p *Printer) Quiet() bool {
	return p.quiet
}

func (p *Printer) paint(format, text string) string {
	if !p.color {
		return text
	}
	return fmt.Sprintf(format, text)
}

// Cyan and friends colorize text when the printer has color enabled
func (p *Printer) Cyan(text string) string    { return p.paint(cyan, text) }
func (p *Printer) Yellow(text string) string  { return p.paint(yellow, text) }
func (p *Printer) Red(text string) string     { return p.paint(red, text) }
func (p *Printer) Green(text string) string   { return p.paint(green, text) }
func (p *Printer) Magenta(text string) string { return p.paint(magenta, text) }
func (p *Printer) Dim(text string) string     { return p.paint(dim, text) }

// PrintBanner prints the banner
func (p *Printer) PrintBanner() {
	if p.quiet {
		return
	}
	fmt.Fprint(p.out, p.Cyan(Banner))
}

// PrintError prints an error message in red, even when quiet
func (p *Printer) PrintError(msg string, args ...interface{}) {
	if len(args) > 0 {
		fmt.Fprintln(p.out, p.Red(msg+": "+fmt.Sprintf("%v", args[0])))
	} else {
		fmt.Fprintln(p.out, p.Red(msg))
	}
}

// PrintSuccess prints a success message in green
func (p *Printer) PrintSuccess(msg string) {
	if p.quiet {
		return
	}
	fmt.Fprintln(p.out, p.Green(msg))
}

// PrintInfo prints a label and value
func (p *Printer) PrintInfo(label string, value string) {
	if p.quiet {
		return
	}
	fmt.Fprintf(p.out, "%s: %s\n", p.Cyan(label), p.Yellow(value))
}

// PrintWarning prints a warning message in yellow
func (p *Printer) PrintWarning(msg string, args ...interface{}) {
	if p.quiet {
		return
	}
	if len(args) > 0 {
		fmt.Fprintln(p.out, p.Yellow(msg+": "+fmt.Sprintf("%v", args[0])))
	} else {
		fmt.Fprintln(p.out, p.Yellow(msg))
	}
}

// PrintHighlight prints a highlighted message in magenta
func (p *Printer) PrintHighlight(msg string) {
	if p.quiet {
		return
	}
	fmt.Fprintln(p.out, p.Magenta(msg))
}

// PrintSummary prints the end-of-run report: new images per account,
// where they were written and what was skipped or failed
func (p *Printer) PrintSummary(report *metadata.RunReport) {
	if p.quiet || report == nil {
		return
	}

	fmt.Fprintln(p.out)
	p.PrintHighlight("[RUN COMPLETE] " + report.RunID)
	for _, s := range report.Accounts {
		status := p.Green("done")
		if !s.Completed {
			status = p.Red("incomplete")
		}
		fmt.Fprintf(p.out, "  %s %s: %s new images in %s\n",
			status, p.Cyan(s.Account), p.Yellow(fmt.Sprintf("%d", s.Counts.Downloaded)), s.OutputDir)
		fmt.Fprintln(p.out, p.Dim(fmt.Sprintf("      snapshots %d (skipped %d, failed %d) | images found %d | duplicates %d | already saved %d | failed %d",
			s.Counts.Snapshots, s.Counts.SnapshotsSkipped, s.Counts.SnapshotsFailed,
			s.Counts.ImagesFound, s.Counts.Duplicates, s.Counts.AlreadyPresent, s.Counts.Failed)))
	}

	t := report.Totals
	fmt.Fprintf(p.out, "%s %d new images, %d failed, %s written in %s\n",
		p.Green("[TOTAL]"), t.Downloaded, t.Failed, formatBytes(t.BytesWritten),
		report.FinishedAt.Sub(report.StartedAt).Round(1e6))

	if incomplete := report.Incomplete(); len(incomplete) > 0 {
		p.PrintWarning("[INCOMPLETE]", strings.Join(incomplete, ", "))
	}
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
