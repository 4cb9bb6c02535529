package ffprobe

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestResultSummaries(t *testing.T) {
	res := Result{
		Streams: []Stream{{CodecType: "video"}, {CodecType: "audio"}, {CodecType: "Audio"}},
		Format:  Format{Duration: "123.45", Size: "1000"},
	}
	if got := res.AudioStreamCount(); got != 2 {
		t.Fatalf("audio streams = %d, want 2", got)
	}
	if got := res.DurationSeconds(); got != 123.45 {
		t.Fatalf("duration = %v", got)
	}
	if got := res.SizeBytes(); got != 1000 {
		t.Fatalf("size = %d", got)
	}
}

func TestDurationUsesLongestAudioStream(t *testing.T) {
	res := Result{
		Streams: []Stream{
			{CodecType: "audio", Duration: "12.5"},
			{CodecType: "audio", Duration: "bad"},
			{CodecType: "video", Duration: "99"},
		},
		Format: Format{Duration: "N/A", Size: "-1"},
	}
	if got := res.DurationSeconds(); got != 12.5 {
		t.Fatalf("duration = %v, want audio stream fallback 12.5", got)
	}
	if got := res.SizeBytes(); got != 0 {
		t.Fatalf("size = %d, want 0 for negative report", got)
	}
}

func TestInspectRunsBinary(t *testing.T) {
	script := filepath.Join(t.TempDir(), "ffprobe")
	body := "#!/bin/sh\necho '{\"streams\":[{\"index\":0,\"codec_type\":\"audio\"}],\"format\":{\"duration\":\"42.0\"}}'\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
	res, err := Inspect(context.Background(), script, "input.mp4")
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if res.AudioStreamCount() != 1 || res.DurationSeconds() != 42 {
		t.Fatalf("unexpected result %+v", res)
	}
	if _, err := Inspect(context.Background(), script, " "); err == nil {
		t.Fatal("expected error for blank path")
	}
}

func TestInspectReportsStderr(t *testing.T) {
	script := filepath.Join(t.TempDir(), "ffprobe")
	body := "#!/bin/sh\necho 'Invalid data found' >&2\nexit 1\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
	_, err := Inspect(context.Background(), script, "broken.mp4")
	if err == nil {
		t.Fatal("expected failure")
	}
	if got := err.Error(); !strings.Contains(got, "Invalid data found") {
		t.Fatalf("error %q lacks stderr", got)
	}
}

