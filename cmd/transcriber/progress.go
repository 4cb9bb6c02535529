package main

import (
	"fmt"
	"io"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/Kat4X/video-transcriber/internal/api"
)

// progressView renders job events while a command follows a job.
type progressView interface {
	Update(event api.Event)
	Finish()
}

// newProgressView draws a live bar on terminals and one line per change
// elsewhere.
func newProgressView(out io.Writer, label string) progressView {
	if !isTerminal(out) {
		return &lineView{out: out, label: label}
	}
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription(label),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(out) }),
	)
	return &barView{bar: bar, out: out, label: label}
}

type barView struct {
	bar   *progressbar.ProgressBar
	out   io.Writer
	label string
}

func (v *barView) Update(event api.Event) {
	v.bar.Describe(fmt.Sprintf("%s %-12s", v.label, stateLabel(event.Status)))
	_ = v.bar.Set(clampPercent(event.Progress))
}

func (v *barView) Finish() {
	// A failed job leaves the bar short of 100; end its line so later
	// output starts clean.
	if !v.bar.IsFinished() {
		fmt.Fprintln(v.out)
	}
}

type lineView struct {
	out   io.Writer
	label string
	last  api.Event
	seen  bool
}

func (v *lineView) Update(event api.Event) {
	if v.seen && v.last.Status == event.Status && v.last.Progress == event.Progress && v.last.Message == event.Message {
		return
	}
	v.last = event
	v.seen = true
	line := fmt.Sprintf("%s [%s] %3d%%", v.label, stateLabel(event.Status), clampPercent(event.Progress))
	if event.Message != "" {
		line += " " + event.Message
	}
	fmt.Fprintln(v.out, line)
}

func (v *lineView) Finish() {}

func clampPercent(value int) int {
	switch {
	case value < 0:
		return 0
	case value > 100:
		return 100
	default:
		return value
	}
}
