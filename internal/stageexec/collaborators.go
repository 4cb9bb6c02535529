package stageexec

import (
	"context"

	"github.com/Kat4X/video-transcriber/internal/jobs"
)

// Reporter receives collaborator progress. Percent is relative to the
// collaborator's own work (0-100).
type Reporter interface {
	Report(percent int, message string)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(percent int, message string)

// Report implements Reporter.
func (f ReporterFunc) Report(percent int, message string) {
	if f != nil {
		f(percent, message)
	}
}

// Discard is a Reporter that ignores every report.
var Discard Reporter = ReporterFunc(nil)

// Media is a downloaded source file.
type Media struct {
	Path            string
	Title           string
	DurationSeconds float64
}

// Audio is an extracted, recognition-ready audio file.
type Audio struct {
	Path            string
	DurationSeconds float64
}

// RecognizeOptions carries the per-job recognition settings.
type RecognizeOptions struct {
	Model      string
	Language   string
	Timestamps bool
}

// Transcript is the recognizer output.
type Transcript struct {
	Text     string
	Segments []jobs.Segment
	// Language is the detected or requested language code.
	Language string
}

// Downloader fetches remote media into destDir.
type Downloader interface {
	Download(ctx context.Context, url, destDir string, r Reporter) (Media, error)
}

// Extractor converts media into audio suitable for recognition.
type Extractor interface {
	Extract(ctx context.Context, mediaPath, destDir string, r Reporter) (Audio, error)
}

// Recognizer turns audio into text.
type Recognizer interface {
	Recognize(ctx context.Context, audioPath string, opts RecognizeOptions, r Reporter) (Transcript, error)
}

// Reformatter rewrites raw recognizer text (punctuation, paragraphs).
type Reformatter interface {
	Reformat(ctx context.Context, text, language string) (string, error)
}

// Collaborators groups the stage implementations. Downloader and Reformatter
// may be nil; remote jobs then fail to acquire and reformat requests degrade
// to unformatted text.
type Collaborators struct {
	Downloader  Downloader
	Extractor   Extractor
	Recognizer  Recognizer
	Reformatter Reformatter
}
