package stageexec

import (
	"strings"
	"sync"
)

// band is the slice of overall job progress a stage owns.
type band struct {
	lo, hi int
}

var (
	bandDownloading  = band{0, 20}
	bandExtracting   = band{20, 25}
	bandTranscribing = band{25, 90}
	bandFormatting   = band{90, 99}
)

// scale maps collaborator-relative percent into the band.
func (b band) scale(percent int) int {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return b.lo + percent*(b.hi-b.lo)/100
}

// stageReporter maps collaborator reports into one stage band and forwards
// only changes. Reports after close are ignored so a collaborator goroutine
// that outlives its stage cannot move the job.
type stageReporter struct {
	mu          sync.Mutex
	band        band
	lastPercent int
	lastMessage string
	closed      bool
	emit        func(percent int, message string)
}

func newStageReporter(b band, message string, emit func(int, string)) *stageReporter {
	return &stageReporter{band: b, lastPercent: b.lo, lastMessage: message, emit: emit}
}

// Report implements Reporter.
func (r *stageReporter) Report(percent int, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	overall := r.band.scale(percent)
	if overall < r.lastPercent {
		overall = r.lastPercent
	}
	message = strings.TrimSpace(message)
	if message == "" {
		message = r.lastMessage
	}
	if overall == r.lastPercent && message == r.lastMessage {
		return
	}
	r.lastPercent = overall
	r.lastMessage = message
	r.emit(overall, message)
}

func (r *stageReporter) close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}
