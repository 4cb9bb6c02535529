package api

import (
	"slices"
	"time"

	"github.com/Kat4X/video-transcriber/internal/jobs"
	"github.com/Kat4X/video-transcriber/internal/preflight"
	"github.com/Kat4X/video-transcriber/internal/progress"
	"github.com/Kat4X/video-transcriber/internal/services/whisper"
	"github.com/Kat4X/video-transcriber/internal/workflow"
)

// FromJob converts a job record to its API representation. Server-side paths
// of managed uploads are not exposed.
func FromJob(job *jobs.Job) Job {
	if job == nil {
		return Job{}
	}
	dto := Job{
		ID:       job.ID,
		Status:   string(job.State),
		Progress: job.Progress,
		Message:  job.Message,
		Source: Source{
			Kind: string(job.Source.Kind),
			Name: job.Source.DisplayName(),
			URL:  job.Source.URL,
		},
		Options: Options{
			Model:             job.Options.Model,
			Language:          job.Options.Language,
			IncludeTimestamps: job.Options.IncludeTimestamps,
			Reformat:          job.Options.Reformat,
		},
		Error:     fromFailure(job.Error),
		CreatedAt: formatTime(job.CreatedAt),
		UpdatedAt: formatTime(job.UpdatedAt),
	}
	if !job.Source.Managed {
		dto.Source.Path = job.Source.Path
	}
	if res := job.Result; res != nil {
		out := &Result{
			Text:             res.Text,
			DurationSeconds:  res.DurationSeconds,
			SourceName:       res.SourceName,
			DetectedLanguage: res.DetectedLanguage,
			Reformatted:      res.Reformatted,
			ReformatError:    res.ReformatError,
		}
		if len(res.Segments) > 0 {
			out.Segments = make([]Segment, len(res.Segments))
			for i, seg := range res.Segments {
				out.Segments[i] = Segment{Start: seg.Start, End: seg.End, Text: seg.Text}
			}
		}
		dto.Result = out
	}
	return dto
}

// FromSummary converts a list projection.
func FromSummary(summary jobs.Summary) JobSummary {
	return JobSummary{
		ID:              summary.ID,
		SourceName:      summary.SourceName,
		SourceKind:      string(summary.SourceKind),
		Status:          string(summary.State),
		Progress:        summary.Progress,
		Message:         summary.Message,
		DurationSeconds: summary.DurationSeconds,
		ErrorKind:       string(summary.ErrorKind),
		CreatedAt:       formatTime(summary.CreatedAt),
		UpdatedAt:       formatTime(summary.UpdatedAt),
	}
}

// FromSummaries converts a list, never returning nil.
func FromSummaries(summaries []jobs.Summary) []JobSummary {
	out := make([]JobSummary, 0, len(summaries))
	for _, summary := range summaries {
		out = append(out, FromSummary(summary))
	}
	return out
}

// FromEvent converts a bus event.
func FromEvent(event progress.Event) Event {
	return Event{
		Seq:       event.Seq,
		JobID:     event.JobID,
		Status:    string(event.State),
		Progress:  event.Progress,
		Message:   event.Message,
		Error:     fromFailure(event.Error),
		Timestamp: formatTime(event.Timestamp),
	}
}

// FromStatusSummary converts workflow diagnostics. Counts carry every known
// state so consumers can render a stable table.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	counts := make(map[string]int, len(jobs.AllStates()))
	for _, state := range jobs.AllStates() {
		counts[string(state)] = summary.Counts[state]
	}
	return WorkflowStatus{
		Running:   summary.Running,
		StartedAt: formatTime(summary.StartedAt),
		Counts:    counts,
		Queued:    nonNil(summary.Queued),
		InFlight:  nonNil(summary.InFlight),
		Active:    summary.Active,
		Limit:     summary.Limit,
	}
}

// FromBinaryStatuses converts dependency checks.
func FromBinaryStatuses(statuses []preflight.BinaryStatus) []DependencyStatus {
	out := make([]DependencyStatus, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, DependencyStatus{
			Name:        status.Name,
			Command:     status.Command,
			Description: status.Description,
			Optional:    status.Optional,
			Available:   status.Available,
			Detail:      status.Detail,
		})
	}
	return out
}

// FromCheckResults converts preflight results.
func FromCheckResults(results []preflight.Result) []CheckResult {
	if len(results) == 0 {
		return nil
	}
	out := make([]CheckResult, 0, len(results))
	for _, result := range results {
		out = append(out, CheckResult{Name: result.Name, Passed: result.Passed, Detail: result.Detail})
	}
	return out
}

// ModelStatuses reports every catalog model in catalog order.
func ModelStatuses(installed []string, defaultModel string) []ModelStatus {
	out := make([]ModelStatus, 0, len(whisper.Catalog))
	for _, model := range whisper.Catalog {
		out = append(out, ModelStatus{
			ID:          model.ID,
			Description: model.Description,
			SizeMiB:     model.SizeMiB,
			Installed:   slices.Contains(installed, model.ID),
			Default:     model.ID == defaultModel,
		})
	}
	return out
}

func fromFailure(failure *jobs.Failure) *Failure {
	if failure == nil {
		return nil
	}
	return &Failure{Kind: string(failure.Kind), Message: failure.Message}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
