package testsupport

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/Kat4X/video-transcriber/internal/jobs"
	"github.com/Kat4X/video-transcriber/internal/stageexec"
)

// Stubs implements every pipeline collaborator with scripted behaviour. Set
// fields before the first job runs; they are read concurrently afterwards.
type Stubs struct {
	DownloadTitle string
	DownloadErr   error
	ExtractErr    error
	RecognizeErr  error
	ReformatErr   error
	ReformatText  string
	Transcript    stageexec.Transcript

	// RecognizeReports are relayed to the reporter, in order, before the
	// recognizer blocks on RecognizeGate.
	RecognizeReports []int
	// RecognizeGate, when set, blocks recognition until closed or the
	// context ends.
	RecognizeGate chan struct{}
	// ReformatGate does the same for reformatting.
	ReformatGate chan struct{}
	// DownloadGate does the same for downloads.
	DownloadGate chan struct{}
	// RecognizeStarted, when set, receives the audio path as each
	// recognition begins.
	RecognizeStarted chan string
	// RecognizeIgnoresCancel makes the recognizer wait for RecognizeGate
	// even after its context ends, then succeed.
	RecognizeIgnoresCancel bool

	mu    sync.Mutex
	calls map[string]int
}

// NewStubs returns stubs that succeed with a two segment English transcript.
func NewStubs() *Stubs {
	return &Stubs{
		Transcript: stageexec.Transcript{
			Text: "hello world.",
			Segments: []jobs.Segment{
				{Start: 0, End: 1.5, Text: "hello"},
				{Start: 1.5, End: 3, Text: "world."},
			},
			Language: "en",
		},
		ReformatText: "Hello world.",
		calls:        make(map[string]int),
	}
}

// Collaborators returns the stubs wired as every collaborator.
func (s *Stubs) Collaborators() stageexec.Collaborators {
	return stageexec.Collaborators{
		Downloader:  s,
		Extractor:   s,
		Recognizer:  s,
		Reformatter: s,
	}
}

// Calls reports how many times the named collaborator ran.
func (s *Stubs) Calls(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

func (s *Stubs) record(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[name]++
}

// Download implements stageexec.Downloader.
func (s *Stubs) Download(ctx context.Context, _ string, destDir string, r stageexec.Reporter) (stageexec.Media, error) {
	s.record("download")
	if err := wait(ctx, s.DownloadGate); err != nil {
		return stageexec.Media{}, err
	}
	if s.DownloadErr != nil {
		return stageexec.Media{}, s.DownloadErr
	}
	path := filepath.Join(destDir, "download.m4a")
	if err := os.WriteFile(path, []byte("media"), 0o644); err != nil {
		return stageexec.Media{}, err
	}
	r.Report(50, "Downloading media")
	r.Report(100, "Downloading media")
	return stageexec.Media{Path: path, Title: s.DownloadTitle, DurationSeconds: 3}, ctx.Err()
}

// Extract implements stageexec.Extractor.
func (s *Stubs) Extract(ctx context.Context, _ string, destDir string, r stageexec.Reporter) (stageexec.Audio, error) {
	s.record("extract")
	if s.ExtractErr != nil {
		return stageexec.Audio{}, s.ExtractErr
	}
	path := filepath.Join(destDir, "audio.wav")
	if err := os.WriteFile(path, []byte("wav"), 0o644); err != nil {
		return stageexec.Audio{}, err
	}
	r.Report(100, "Extracting audio")
	return stageexec.Audio{Path: path, DurationSeconds: 3}, ctx.Err()
}

// Recognize implements stageexec.Recognizer.
func (s *Stubs) Recognize(ctx context.Context, audioPath string, _ stageexec.RecognizeOptions, r stageexec.Reporter) (stageexec.Transcript, error) {
	s.record("recognize")
	if s.RecognizeStarted != nil {
		s.RecognizeStarted <- audioPath
	}
	for _, pct := range s.RecognizeReports {
		r.Report(pct, "Transcribing audio")
	}
	gateCtx := ctx
	if s.RecognizeIgnoresCancel {
		gateCtx = context.WithoutCancel(ctx)
	}
	if err := wait(gateCtx, s.RecognizeGate); err != nil {
		return stageexec.Transcript{}, err
	}
	if s.RecognizeErr != nil {
		return stageexec.Transcript{}, s.RecognizeErr
	}
	return s.Transcript, nil
}

// Reformat implements stageexec.Reformatter.
func (s *Stubs) Reformat(ctx context.Context, _ string, _ string) (string, error) {
	s.record("reformat")
	if err := wait(ctx, s.ReformatGate); err != nil {
		return "", err
	}
	if s.ReformatErr != nil {
		return "", s.ReformatErr
	}
	return s.ReformatText, nil
}

func wait(ctx context.Context, gate chan struct{}) error {
	if gate == nil {
		return ctx.Err()
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
