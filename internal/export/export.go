package export

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Kat4X/video-transcriber/internal/jobs"
	"github.com/Kat4X/video-transcriber/internal/textutil"
)

// Format names an output representation.
type Format string

const (
	FormatMarkdown Format = "md"
	FormatSRT      Format = "srt"
	FormatText     Format = "txt"
)

var (
	// ErrUnknownFormat is returned for formats other than md, srt and txt.
	ErrUnknownFormat = errors.New("unknown export format")
	// ErrNotReady is returned when the job has no result to render.
	ErrNotReady = errors.New("job has no result")
	// ErrNoSegments is returned when subtitles are requested for a result
	// recorded without timed segments.
	ErrNoSegments = errors.New("result has no timed segments")
)

// ParseFormat normalizes a user-supplied format name. Empty input selects Markdown.
func ParseFormat(value string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "md", "markdown":
		return FormatMarkdown, nil
	case "srt", "subtitles":
		return FormatSRT, nil
	case "txt", "text", "plain":
		return FormatText, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, value)
	}
}

// ContentType returns the MIME type served for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatSRT:
		return "application/x-subrip; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Document is a rendered export.
type Document struct {
	Format   Format
	Filename string
	Body     string
}

// Render produces the requested representation of a completed job.
func Render(format Format, job *jobs.Job) (Document, error) {
	if job == nil || job.State != jobs.StateCompleted || job.Result == nil {
		return Document{}, ErrNotReady
	}
	result := job.Result
	title := result.SourceName
	if title == "" {
		title = job.Source.DisplayName()
	}
	doc := Document{Format: format, Filename: Filename(title, format)}
	switch format {
	case FormatMarkdown:
		doc.Body = Markdown(result, title, job.Options.IncludeTimestamps)
	case FormatSRT:
		if len(result.Segments) == 0 {
			return Document{}, ErrNoSegments
		}
		doc.Body = result.Subtitles
		if doc.Body == "" {
			doc.Body = SRT(result.Segments)
		}
	case FormatText:
		doc.Body = Plain(result)
	default:
		return Document{}, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	return doc, nil
}

// Filename derives a download name from the source name: the media extension
// is replaced by the export format's.
func Filename(sourceName string, format Format) string {
	base := strings.TrimSuffix(sourceName, filepath.Ext(sourceName))
	base = textutil.SanitizeFileName(base)
	if base == "" {
		base = "transcript"
	}
	return base + "." + string(format)
}

// Markdown renders the result under a "# title" heading. With timestamps each
// segment becomes a "**[MM:SS]** text" line; otherwise segments are joined
// into paragraphs that break after sentence-ending punctuation. Reformatted
// text already carries its own paragraphs and is used as is.
func Markdown(result *jobs.Result, title string, timestamps bool) string {
	if result == nil {
		return ""
	}
	var blocks []string
	if title = strings.TrimSpace(title); title != "" {
		blocks = append(blocks, "# "+title)
	}
	switch {
	case timestamps && len(result.Segments) > 0:
		for _, seg := range result.Segments {
			blocks = append(blocks, fmt.Sprintf("**[%s]** %s", Clock(seg.Start), strings.TrimSpace(seg.Text)))
		}
	case result.Reformatted || len(result.Segments) == 0:
		if text := strings.TrimSpace(result.Text); text != "" {
			blocks = append(blocks, text)
		}
	default:
		blocks = append(blocks, paragraphs(result.Segments)...)
	}
	return strings.Join(blocks, "\n\n")
}

func paragraphs(segments []jobs.Segment) []string {
	var out, current []string
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		current = append(current, text)
		if endsSentence(text) {
			out = append(out, strings.Join(current, " "))
			current = current[:0]
		}
	}
	if len(current) > 0 {
		out = append(out, strings.Join(current, " "))
	}
	return out
}

func endsSentence(text string) bool {
	for _, suffix := range []string{".", "!", "?", "…", "。"} {
		if strings.HasSuffix(text, suffix) {
			return true
		}
	}
	return false
}

// SRT renders segments as numbered subtitle cues.
func SRT(segments []jobs.Segment) string {
	var b strings.Builder
	for idx, seg := range segments {
		b.WriteString(strconv.Itoa(idx + 1))
		b.WriteByte('\n')
		b.WriteString(SRTTimestamp(seg.Start))
		b.WriteString(" --> ")
		b.WriteString(SRTTimestamp(seg.End))
		b.WriteByte('\n')
		b.WriteString(strings.TrimSpace(seg.Text))
		b.WriteString("\n\n")
	}
	return b.String()
}

// Plain returns the transcript text.
func Plain(result *jobs.Result) string {
	if result == nil {
		return ""
	}
	if text := strings.TrimSpace(result.Text); text != "" {
		return text
	}
	parts := make([]string, 0, len(result.Segments))
	for _, seg := range result.Segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}
