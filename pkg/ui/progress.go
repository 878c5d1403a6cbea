package ui

import (
	"io"

	"github.com/schollz/progressbar/v3"
)

// Progress tracks snapshots handled for the current account
type Progress interface {
	Start(account string, total int)
	Increment()
	Finish()
}

// NewProgress returns a progress bar writing to out, or a no-op tracker
// when disabled
func NewProgress(out io.Writer, enabled bool) Progress {
	if !enabled || out == nil {
		return nopProgress{}
	}
	return &barProgress{out: out}
}

type barProgress struct {
	out io.Writer
	bar *progressbar.ProgressBar
}

func (p *barProgress) Start(account string, total int) {
	p.Finish()
	p.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(p.out),
		progressbar.OptionSetDescription(account),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("snapshots"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

func (p *barProgress) Increment() {
	if p.bar == nil {
		return
	}
	_ = p.bar.Add(1)
}

func (p *barProgress) Finish() {
	if p.bar == nil {
		return
	}
	_ = p.bar.Finish()
	_, _ = io.WriteString(p.out, "\n")
	p.bar = nil
}

type nopProgress struct{}

func (nopProgress) Start(string, int) {}
func (nopProgress) Increment()        {}
func (nopProgress) Finish()           {}
