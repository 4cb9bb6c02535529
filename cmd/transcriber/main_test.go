package main

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Kat4X/video-transcriber/internal/api"
	"github.com/Kat4X/video-transcriber/internal/config"
	"github.com/Kat4X/video-transcriber/internal/daemonrun"
)

func TestSubmitFollowExportAndDelete(t *testing.T) {
	env := setupCLITestEnv(t, true)
	media := env.mediaFile(t, "clip.mp4")

	out, _, err := env.run(t, "submit", media, "--follow", "--model", "base")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	requireContains(t, out, "(clip.mp4)")
	requireContains(t, out, "[Completed] 100%")
	id := queuedJobID(t, out)

	out, _, err = env.run(t, "export", id)
	if err != nil {
		t.Fatalf("export md: %v", err)
	}
	requireContains(t, out, "# clip.mp4")
	requireContains(t, out, "hello world.")

	dir := t.TempDir()
	out, _, err = env.run(t, "export", id, "--format", "srt", "-o", dir)
	if err != nil {
		t.Fatalf("export srt: %v", err)
	}
	requireContains(t, out, "Wrote")
	data, err := os.ReadFile(filepath.Join(dir, "clip.srt"))
	if err != nil {
		t.Fatalf("read srt: %v", err)
	}
	requireContains(t, string(data), "00:00:00,000 --> 00:00:01,500")

	out, _, err = env.run(t, "show", id, "--transcript")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	requireContains(t, out, "Completed (100%)")
	requireContains(t, out, "Model:")
	requireContains(t, out, "hello world.")

	out, _, err = env.run(t, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	requireContains(t, out, id)

	out, _, err = env.run(t, "list", "--status", "failed")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	requireContains(t, out, "No jobs")

	out, _, err = env.run(t, "delete", id)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	requireContains(t, out, "Deleted job "+id)

	if _, _, err := env.run(t, "show", id); err == nil {
		t.Fatal("expected show of a deleted job to fail")
	}
}

func TestSubmitUploadStreamsFile(t *testing.T) {
	env := setupCLITestEnv(t, true)
	media := env.mediaFile(t, "talk.mp4")

	out, _, err := env.run(t, "submit", media, "--upload", "--follow")
	if err != nil {
		t.Fatalf("submit --upload: %v", err)
	}
	id := queuedJobID(t, out)
	out, _, err = env.run(t, "show", id, "--json")
	if err != nil {
		t.Fatalf("show --json: %v", err)
	}
	requireContains(t, out, `"status": "completed"`)
	if strings.Contains(out, `"path"`) {
		t.Fatalf("expected staged upload path hidden, got:\n%s", out)
	}
}

func TestSubmitFollowReportsFailure(t *testing.T) {
	env := setupCLITestEnv(t, true)
	env.stubs.RecognizeErr = errors.New("decoder exploded")
	media := env.mediaFile(t, "broken.mp4")

	_, _, err := env.run(t, "submit", media, "--follow")
	if err == nil {
		t.Fatal("expected follow of a failed job to return an error")
	}
	requireContains(t, err.Error(), "failed")
}

func TestSubmitRejectsMissingFile(t *testing.T) {
	env := setupCLITestEnv(t, true)
	_, _, err := env.run(t, "submit", filepath.Join(t.TempDir(), "missing.mp4"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	requireContains(t, err.Error(), "file does not exist")
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	env := setupCLITestEnv(t, true)
	if _, _, err := env.run(t, "export", "some-id", "--format", "docx"); err == nil {
		t.Fatal("expected unknown format error")
	}
}

func TestStatusCommand(t *testing.T) {
	env := setupCLITestEnv(t, true)

	out, _, err := env.run(t, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Running (pid")
	requireContains(t, out, "== Models ==")
	requireContains(t, out, "base")
	requireContains(t, out, "Queue is empty")

	out, _, err = env.run(t, "status", "--json")
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	requireContains(t, out, `"running": true`)
}

func TestCommandsWithoutDaemon(t *testing.T) {
	env := setupCLITestEnv(t, false)
	server := httptest.NewServer(http.NotFoundHandler())
	env.apiURL = server.URL
	server.Close()

	_, _, err := env.run(t, "list")
	if err == nil {
		t.Fatal("expected list to fail without a daemon")
	}
	requireContains(t, err.Error(), "transcriber start")

	out, _, err := env.run(t, "status")
	if err != nil {
		t.Fatalf("offline status: %v", err)
	}
	requireContains(t, out, "Not running")

	out, _, err = env.run(t, "stop")
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	requireContains(t, out, "Daemon is not running")
}

func TestTestNotifyWithoutTopic(t *testing.T) {
	env := setupCLITestEnv(t, true)
	out, _, err := env.run(t, "test-notify")
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "ntfy topic not configured")
}

func TestTranscribeWritesTranscripts(t *testing.T) {
	env := setupCLITestEnv(t, false)
	original := oneShotEngineOptions
	oneShotEngineOptions = func(*config.Config) []daemonrun.EngineOption {
		return []daemonrun.EngineOption{daemonrun.WithCollaborators(env.stubs.Collaborators())}
	}
	t.Cleanup(func() { oneShotEngineOptions = original })

	media := env.mediaFile(t, "lecture.mp4")
	outDir := filepath.Join(t.TempDir(), "out")
	out, _, err := env.run(t, "transcribe", media, "-o", outDir, "--srt", "--timestamps")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	requireContains(t, out, "[Completed] 100%")

	md, err := os.ReadFile(filepath.Join(outDir, "lecture.md"))
	if err != nil {
		t.Fatalf("read markdown: %v", err)
	}
	requireContains(t, string(md), "# lecture.mp4")
	requireContains(t, string(md), "**[00:00]** hello")
	if _, err := os.Stat(filepath.Join(outDir, "lecture.srt")); err != nil {
		t.Fatalf("expected srt output: %v", err)
	}

	entries, err := os.ReadDir(env.cfg.Paths.DataDir)
	if err != nil {
		t.Fatalf("read data dir: %v", err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), "oneshot-") {
			t.Fatalf("expected scratch store removed, found %s", entry.Name())
		}
	}
}

func TestTranscribeReportsFailure(t *testing.T) {
	env := setupCLITestEnv(t, false)
	env.stubs.ExtractErr = errors.New("no audio stream")
	original := oneShotEngineOptions
	oneShotEngineOptions = func(*config.Config) []daemonrun.EngineOption {
		return []daemonrun.EngineOption{daemonrun.WithCollaborators(env.stubs.Collaborators())}
	}
	t.Cleanup(func() { oneShotEngineOptions = original })

	_, _, err := env.run(t, "transcribe", env.mediaFile(t, "silent.mp4"), "-o", t.TempDir())
	if err == nil {
		t.Fatal("expected transcription failure")
	}
	requireContains(t, err.Error(), "transcription failed")
}

func TestConfigCommands(t *testing.T) {
	env := setupCLITestEnv(t, false)

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err := runCLI(t, []string{"config", "init", "--path", target})
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}); err == nil {
		t.Fatal("expected init to refuse overwriting")
	}

	out, _, err = env.run(t, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")

	t.Setenv("TRANSCRIBER_LLM_API_KEY", "secret-key")
	out, _, err = env.run(t, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, redacted)
	if strings.Contains(out, "secret-key") {
		t.Fatalf("expected api key redacted, got:\n%s", out)
	}
}

func TestRenderHelpers(t *testing.T) {
	if got := stateLabel("transcribing"); got != "Transcribing" {
		t.Fatalf("stateLabel = %q", got)
	}
	rows := buildQueueStatusRows(map[string]int{"failed": 1, "pending": 2, "completed": 0})
	if len(rows) != 2 || rows[0][0] != "Pending" || rows[1][0] != "Failed" {
		t.Fatalf("unexpected queue rows %v", rows)
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if got := relativeTime("2026-03-01T11:00:00.000Z", now); got != "1 hour ago" {
		t.Fatalf("relativeTime = %q", got)
	}
	if got := formatDuration(0); got != "-" {
		t.Fatalf("formatDuration(0) = %q", got)
	}
	jobRows := buildJobRows([]api.JobSummary{{ID: "abc", SourceName: "clip.mp4", Status: "failed", ErrorKind: "cancelled"}}, now)
	if jobRows[0][2] != "Failed (cancelled)" {
		t.Fatalf("unexpected status cell %q", jobRows[0][2])
	}
}

func TestLogsCommandPrintsTrailingLines(t *testing.T) {
	env := setupCLITestEnv(t, false)

	out, _, err := env.run(t, "logs")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	requireContains(t, out, "No log entries")

	content := "first\nsecond\nthird\n"
	if err := os.WriteFile(env.cfg.LogPath(), []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	out, _, err = env.run(t, "logs", "-n", "2")
	if err != nil {
		t.Fatalf("logs -n 2: %v", err)
	}
	if out != "second\nthird\n" {
		t.Fatalf("unexpected logs output %q", out)
	}
}
