package export

import (
	"errors"
	"strings"
	"testing"

	"github.com/Kat4X/video-transcriber/internal/jobs"
)

func sampleSegments() []jobs.Segment {
	return []jobs.Segment{
		{Start: 0, End: 2.5, Text: "Hello, this is a test."},
		{Start: 2.5, End: 5, Text: "This is the second"},
		{Start: 5, End: 8, Text: "segment, and the third one!"},
	}
}

func TestClock(t *testing.T) {
	tests := map[float64]string{
		0:    "00:00",
		45:   "00:45",
		125:  "02:05",
		3725: "01:02:05",
		-3:   "00:00",
	}
	for in, want := range tests {
		if got := Clock(in); got != want {
			t.Errorf("Clock(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestSRTTimestamp(t *testing.T) {
	tests := map[float64]string{
		0:        "00:00:00,000",
		2.5:      "00:00:02,500",
		3725.5:   "01:02:05,500",
		59.9996:  "00:01:00,000",
		3599.999: "00:59:59,999",
	}
	for in, want := range tests {
		if got := SRTTimestamp(in); got != want {
			t.Errorf("SRTTimestamp(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestMarkdownParagraphs(t *testing.T) {
	result := &jobs.Result{Text: "ignored", Segments: sampleSegments()}
	got := Markdown(result, "Lecture", false)
	want := "# Lecture\n\nHello, this is a test.\n\nThis is the second segment, and the third one!"
	if got != want {
		t.Fatalf("unexpected markdown:\n%s", got)
	}
}

func TestMarkdownTimestamps(t *testing.T) {
	result := &jobs.Result{Segments: sampleSegments()}
	got := Markdown(result, "", true)
	for _, line := range []string{"**[00:00]** Hello, this is a test.", "**[00:02]** This is the second", "**[00:05]**"} {
		if !strings.Contains(got, line) {
			t.Fatalf("expected %q in markdown:\n%s", line, got)
		}
	}
	if strings.HasPrefix(got, "#") {
		t.Fatal("expected no heading without a title")
	}
}

func TestMarkdownPrefersReformattedText(t *testing.T) {
	result := &jobs.Result{
		Text:        "First paragraph.\n\nSecond paragraph.",
		Segments:    sampleSegments(),
		Reformatted: true,
	}
	got := Markdown(result, "Talk", false)
	if got != "# Talk\n\nFirst paragraph.\n\nSecond paragraph." {
		t.Fatalf("unexpected markdown:\n%s", got)
	}
}

func TestSRT(t *testing.T) {
	got := SRT(sampleSegments())
	lines := strings.Split(got, "\n")
	if lines[0] != "1" || lines[1] != "00:00:00,000 --> 00:00:02,500" || lines[2] != "Hello, this is a test." {
		t.Fatalf("unexpected first cue: %q", lines[:3])
	}
	if !strings.Contains(got, "2\n00:00:02,500 --> 00:00:05,000\n") {
		t.Fatalf("missing second cue:\n%s", got)
	}
	if SRT(nil) != "" {
		t.Fatal("expected empty output for no segments")
	}
}

func TestPlainFallsBackToSegments(t *testing.T) {
	if got := Plain(&jobs.Result{Segments: sampleSegments()}); got != "Hello, this is a test. This is the second segment, and the third one!" {
		t.Fatalf("unexpected plain text %q", got)
	}
	if got := Plain(&jobs.Result{Text: " body "}); got != "body" {
		t.Fatalf("unexpected plain text %q", got)
	}
}

func TestRender(t *testing.T) {
	job := jobs.New("job-1", jobs.Source{Kind: jobs.SourceLocalFile, Path: "/media/lecture.mp4"}, jobs.Options{})
	if _, err := Render(FormatMarkdown, job); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady for pending job, got %v", err)
	}

	job.Complete(jobs.Result{Text: "Hello.", SourceName: "lecture.mp4"})
	doc, err := Render(FormatMarkdown, job)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if doc.Filename != "lecture.md" || doc.Body != "# lecture.mp4\n\nHello." {
		t.Fatalf("unexpected document %+v", doc)
	}
	if _, err := Render(FormatSRT, job); !errors.Is(err, ErrNoSegments) {
		t.Fatalf("expected ErrNoSegments, got %v", err)
	}

	job.Result.Segments = sampleSegments()
	doc, err = Render(FormatSRT, job)
	if err != nil || doc.Filename != "lecture.srt" || !strings.HasPrefix(doc.Body, "1\n") {
		t.Fatalf("unexpected srt document %+v err=%v", doc, err)
	}
	doc, err = Render(FormatText, job)
	if err != nil || doc.Body != "Hello." || doc.Filename != "lecture.txt" {
		t.Fatalf("unexpected text document %+v err=%v", doc, err)
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatMarkdown, "MD": FormatMarkdown, "srt": FormatSRT, "text": FormatText} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("pdf"); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("expected ErrUnknownFormat, got %v", err)
	}
}
