package api_test

import (
	"testing"
	"time"

	"github.com/Kat4X/video-transcriber/internal/api"
	"github.com/Kat4X/video-transcriber/internal/jobs"
	"github.com/Kat4X/video-transcriber/internal/progress"
	"github.com/Kat4X/video-transcriber/internal/workflow"
)

func TestFromJobHidesManagedUploadPath(t *testing.T) {
	job := jobs.New("job-1", jobs.Source{
		Kind:    jobs.SourceLocalFile,
		Path:    "/var/lib/transcriber/uploads/abc_talk.mp4",
		Name:    "talk.mp4",
		Managed: true,
	}, jobs.Options{Model: "small", Language: "auto", IncludeTimestamps: true})
	job.Complete(jobs.Result{
		Text:             "hello",
		Segments:         []jobs.Segment{{Start: 0, End: 1.25, Text: "hello"}},
		DurationSeconds:  1.25,
		SourceName:       "talk.mp4",
		DetectedLanguage: "en",
	})

	dto := api.FromJob(job)
	if dto.Source.Path != "" {
		t.Fatalf("expected managed path hidden, got %q", dto.Source.Path)
	}
	if dto.Source.Name != "talk.mp4" || dto.Source.Kind != "local_file" {
		t.Fatalf("unexpected source %+v", dto.Source)
	}
	if dto.Status != "completed" || dto.Progress != 100 {
		t.Fatalf("unexpected status %q progress %d", dto.Status, dto.Progress)
	}
	if dto.Result == nil || len(dto.Result.Segments) != 1 || dto.Result.Segments[0].End != 1.25 {
		t.Fatalf("unexpected result %+v", dto.Result)
	}
	if dto.Result.DetectedLanguage != "en" || !dto.Options.IncludeTimestamps {
		t.Fatalf("expected language and options carried, got %+v / %+v", dto.Result, dto.Options)
	}
	if _, err := time.Parse(time.RFC3339, dto.CreatedAt); err != nil {
		t.Fatalf("expected RFC3339 created_at, got %q: %v", dto.CreatedAt, err)
	}
}

func TestFromJobKeepsLocalPathAndFailure(t *testing.T) {
	job := jobs.New("job-2", jobs.Source{Kind: jobs.SourceLocalFile, Path: "/media/clip.mkv"}, jobs.Options{Model: "base"})
	job.Fail(jobs.KindExtractFailed, "file has no audio stream")

	dto := api.FromJob(job)
	if dto.Source.Path != "/media/clip.mkv" || dto.Source.Name != "clip.mkv" {
		t.Fatalf("unexpected source %+v", dto.Source)
	}
	if dto.Error == nil || dto.Error.Kind != "extract_failed" {
		t.Fatalf("expected failure carried, got %+v", dto.Error)
	}
	if dto.Result != nil {
		t.Fatalf("expected no result on failed job")
	}
}

func TestFromEventTerminal(t *testing.T) {
	event := api.FromEvent(progress.Event{Seq: 4, JobID: "job-3", State: jobs.StateTranscribing, Progress: 40})
	if event.Terminal() || event.Timestamp != "" {
		t.Fatalf("unexpected event %+v", event)
	}
	done := api.FromEvent(progress.Event{JobID: "job-3", State: jobs.StateFailed, Error: &jobs.Failure{Kind: jobs.KindCancelled}})
	if !done.Terminal() || done.Error == nil || done.Error.Kind != "cancelled" {
		t.Fatalf("unexpected terminal event %+v", done)
	}
}

func TestFromStatusSummaryFillsEveryState(t *testing.T) {
	status := api.FromStatusSummary(workflow.StatusSummary{
		Running: true,
		Counts:  map[jobs.State]int{jobs.StatePending: 2},
		Limit:   1,
	})
	if len(status.Counts) != len(jobs.AllStates()) {
		t.Fatalf("expected every state counted, got %v", status.Counts)
	}
	if status.Counts["pending"] != 2 || status.Counts["completed"] != 0 {
		t.Fatalf("unexpected counts %v", status.Counts)
	}
	if status.Queued == nil || status.InFlight == nil {
		t.Fatal("expected empty slices rather than nil")
	}
	if status.StartedAt != "" {
		t.Fatalf("expected zero start time omitted, got %q", status.StartedAt)
	}
}

func TestModelStatuses(t *testing.T) {
	models := api.ModelStatuses([]string{"small"}, "small")
	var found bool
	for _, model := range models {
		if model.ID == "small" {
			found = true
			if !model.Installed || !model.Default {
				t.Fatalf("unexpected small model status %+v", model)
			}
		} else if model.Installed || model.Default {
			t.Fatalf("unexpected status for %s: %+v", model.ID, model)
		}
	}
	if !found {
		t.Fatal("expected small in catalog")
	}
}
