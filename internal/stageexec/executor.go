package stageexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Kat4X/video-transcriber/internal/export"
	"github.com/Kat4X/video-transcriber/internal/jobs"
	"github.com/Kat4X/video-transcriber/internal/logging"
	"github.com/Kat4X/video-transcriber/internal/progress"
	"github.com/Kat4X/video-transcriber/internal/scheduler"
	"github.com/Kat4X/video-transcriber/internal/services"
)

// errJobDeadline is the cancellation cause of the optional per-job deadline.
var errJobDeadline = errors.New("job deadline exceeded")

// Options configures an Executor.
type Options struct {
	Store         *jobs.Store
	Bus           *progress.Bus
	Collaborators Collaborators
	// JobsDir is the parent of per-job working directories.
	JobsDir string
	// JobTimeout bounds a whole run; zero disables the deadline.
	JobTimeout time.Duration
	Logger     *slog.Logger
}

// Executor runs admitted jobs through the pipeline stages.
type Executor struct {
	store   *jobs.Store
	bus     *progress.Bus
	collab  Collaborators
	jobsDir string
	timeout time.Duration
	logger  *slog.Logger
}

// New validates the options and constructs an Executor.
func New(opts Options) (*Executor, error) {
	switch {
	case opts.Store == nil:
		return nil, errors.New("stageexec: store is required")
	case opts.Bus == nil:
		return nil, errors.New("stageexec: progress bus is required")
	case opts.Collaborators.Extractor == nil:
		return nil, errors.New("stageexec: extractor is required")
	case opts.Collaborators.Recognizer == nil:
		return nil, errors.New("stageexec: recognizer is required")
	case strings.TrimSpace(opts.JobsDir) == "":
		return nil, errors.New("stageexec: jobs directory is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Executor{
		store:   opts.Store,
		bus:     opts.Bus,
		collab:  opts.Collaborators,
		jobsDir: opts.JobsDir,
		timeout: opts.JobTimeout,
		logger:  logging.NewComponentLogger(logger, "executor"),
	}, nil
}

// Run executes the ticket's job to a terminal state. Pipeline failures are
// recorded on the job and do not produce an error; the returned error reports
// store failures that left the record behind the run. The ticket is finished
// when Run returns.
func (e *Executor) Run(ctx context.Context, ticket *scheduler.Ticket) error {
	defer ticket.Done()

	jobID := ticket.JobID
	persistCtx := services.WithJobID(context.WithoutCancel(ctx), jobID)
	logger := logging.WithContext(persistCtx, e.logger)

	job, err := e.store.Get(persistCtx, jobID)
	if err != nil {
		logging.ErrorWithContext(logger, "load job failed", "job_load_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the job database"),
		)
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	if job.State != jobs.StatePending {
		logger.Info("job no longer pending; skipping run",
			logging.String("state", string(job.State)),
			logging.String(logging.FieldEventType, "job_skipped"),
		)
		return nil
	}

	runCtx := ticket.Context()
	if e.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeoutCause(runCtx, e.timeout, errJobDeadline)
		defer cancel()
	}

	r := &run{
		exec:       e,
		ticket:     ticket,
		job:        job,
		ctx:        services.WithJobID(runCtx, jobID),
		persistCtx: persistCtx,
		workDir:    filepath.Join(e.jobsDir, jobID),
		logger:     logger,
		sampler:    logging.NewProgressSampler(10),
	}
	defer r.cleanup()

	started := time.Now()
	logger.Info("job started",
		logging.String(logging.FieldEventType, "job_start"),
		logging.String("source", job.Source.DisplayName()),
		logging.String("model", job.Options.Model),
	)
	result, err := r.execute()
	if err != nil {
		return r.fail(err)
	}
	return r.complete(result, time.Since(started))
}

// run carries the state of one job execution.
type run struct {
	exec       *Executor
	ticket     *scheduler.Ticket
	job        *jobs.Job
	ctx        context.Context
	persistCtx context.Context
	workDir    string
	logger     *slog.Logger
	sampler    *logging.ProgressSampler
	persistErr error
}

// stageError tags a pipeline failure with the stage it happened in.
type stageError struct {
	stage jobs.State
	err   error
}

func (e *stageError) Error() string { return e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

// persistError marks failures writing the job record.
type persistError struct {
	err error
}

func (e *persistError) Error() string { return "persist job: " + e.err.Error() }
func (e *persistError) Unwrap() error { return e.err }

func (r *run) execute() (jobs.Result, error) {
	if err := os.MkdirAll(r.workDir, 0o755); err != nil {
		return jobs.Result{}, &stageError{stage: jobs.StatePending, err: services.Wrap(services.ErrAcquire, "acquire", "create work directory", r.workDir, err)}
	}
	media, err := r.acquire()
	if err != nil {
		return jobs.Result{}, err
	}
	if err := r.claimSlot(); err != nil {
		return jobs.Result{}, err
	}
	audio, err := r.extract(media)
	if err != nil {
		return jobs.Result{}, err
	}
	transcript, err := r.recognize(audio)
	if err != nil {
		return jobs.Result{}, err
	}

	result := jobs.Result{
		Text:            transcriptText(transcript),
		Segments:        transcript.Segments,
		DurationSeconds: firstPositive(audio.DurationSeconds, media.DurationSeconds, lastSegmentEnd(transcript.Segments)),
		SourceName:      r.job.Source.DisplayName(),
	}
	if len(result.Segments) > 0 {
		result.Subtitles = export.SRT(result.Segments)
	}
	if strings.EqualFold(r.job.Options.Language, "auto") || r.job.Options.Language == "" {
		result.DetectedLanguage = transcript.Language
	}
	if r.job.Options.Reformat {
		if err := r.reformat(&result, transcript.Language); err != nil {
			return jobs.Result{}, err
		}
	}
	// A collaborator may finish after ignoring cancellation; its output is
	// discarded.
	if err := r.checkpoint(r.job.State); err != nil {
		return jobs.Result{}, err
	}
	return result, nil
}

func (r *run) acquire() (Media, error) {
	source := r.job.Source
	if source.Kind == jobs.SourceLocalFile {
		if err := r.checkpoint(jobs.StatePending); err != nil {
			return Media{}, err
		}
		info, err := os.Stat(source.Path)
		if err != nil {
			return Media{}, &stageError{stage: jobs.StatePending, err: services.Wrap(services.ErrAcquire, "acquire", "stat source", source.Path, err)}
		}
		if !info.Mode().IsRegular() {
			return Media{}, &stageError{stage: jobs.StatePending, err: services.Wrap(services.ErrAcquire, "acquire", "stat source", "not a regular file: "+source.Path, nil)}
		}
		return Media{Path: source.Path}, nil
	}

	downloader := r.exec.collab.Downloader
	if downloader == nil {
		return Media{}, &stageError{stage: jobs.StatePending, err: services.Wrap(services.ErrAcquire, "acquire", "download", "remote downloads are not configured", nil)}
	}
	var media Media
	err := r.runStage(jobs.StateDownloading, bandDownloading, "Downloading media", nil, func(ctx context.Context, rep Reporter) error {
		var err error
		media, err = downloader.Download(ctx, source.URL, r.workDir, rep)
		return err
	})
	return media, err
}

// claimSlot waits for a heavy-stage slot if the job was admitted without
// one. The job keeps its current state while it waits.
func (r *run) claimSlot() error {
	if r.ticket.HoldsSlot() {
		return nil
	}
	r.progress(r.job.Progress, "Waiting for a transcription slot")
	if r.persistErr != nil {
		return &stageError{stage: r.job.State, err: r.persistErr}
	}
	if err := r.ticket.AcquireSlot(r.ctx); err != nil {
		return &stageError{stage: r.job.State, err: err}
	}
	return nil
}

func (r *run) extract(media Media) (Audio, error) {
	var rename func(*jobs.Job)
	if title := strings.TrimSpace(media.Title); title != "" {
		rename = func(j *jobs.Job) {
			if strings.TrimSpace(j.Source.Name) == "" {
				j.Source.Name = title
			}
		}
	}
	var audio Audio
	err := r.runStage(jobs.StateExtracting, bandExtracting, "Extracting audio", rename, func(ctx context.Context, rep Reporter) error {
		var err error
		audio, err = r.exec.collab.Extractor.Extract(ctx, media.Path, r.workDir, rep)
		return err
	})
	return audio, err
}

func (r *run) recognize(audio Audio) (Transcript, error) {
	opts := RecognizeOptions{
		Model:      r.job.Options.Model,
		Language:   r.job.Options.Language,
		Timestamps: r.job.Options.IncludeTimestamps,
	}
	var transcript Transcript
	err := r.runStage(jobs.StateTranscribing, bandTranscribing, "Transcribing audio", nil, func(ctx context.Context, rep Reporter) error {
		defer r.ticket.ReleaseSlot()
		var err error
		transcript, err = r.exec.collab.Recognizer.Recognize(ctx, audio.Path, opts, rep)
		return err
	})
	return transcript, err
}

// reformat rewrites result.Text in place. Only cancellation and store
// failures are returned; anything else degrades to the unformatted text.
func (r *run) reformat(result *jobs.Result, language string) error {
	reformatter := r.exec.collab.Reformatter
	if reformatter == nil {
		result.ReformatError = "reformatting unavailable: no LLM endpoint configured"
		logging.WarnWithContext(r.logger, "reformat skipped", "reformat_unavailable",
			logging.String(logging.FieldErrorKind, string(jobs.KindReformatFailed)),
			logging.String(logging.FieldErrorHint, "set llm.api_key to enable reformatting"),
			logging.String(logging.FieldImpact, "transcript delivered without reformatting"),
		)
		return nil
	}
	var formatted string
	err := r.runStage(jobs.StateFormatting, bandFormatting, "Reformatting text", nil, func(ctx context.Context, _ Reporter) error {
		var err error
		formatted, err = reformatter.Reformat(ctx, result.Text, language)
		if err == nil && strings.TrimSpace(formatted) == "" {
			err = services.Wrap(services.ErrReformat, "formatting", "reformat", "empty response", nil)
		}
		return err
	})
	if err == nil {
		result.Text = strings.TrimSpace(formatted)
		result.Reformatted = true
		return nil
	}
	var perr *persistError
	if r.ctx.Err() != nil || errors.As(err, &perr) {
		return err
	}
	result.ReformatError = err.Error()
	logging.WarnWithContext(r.logger, "reformat failed; keeping unformatted text", "reformat_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorKind, string(jobs.KindReformatFailed)),
		logging.String(logging.FieldErrorHint, "check llm connectivity and credentials"),
		logging.String(logging.FieldImpact, "transcript delivered without reformatting"),
	)
	return nil
}

// runStage persists the transition into state, runs fn with a band reporter,
// and logs the stage boundaries.
func (r *run) runStage(state jobs.State, b band, message string, mutate func(*jobs.Job), fn func(context.Context, Reporter) error) error {
	if err := r.checkpoint(state); err != nil {
		return err
	}
	if err := r.transition(state, b.lo, message, mutate); err != nil {
		return &stageError{stage: state, err: err}
	}

	stageCtx := services.WithStage(r.ctx, string(state))
	logger := logging.WithContext(stageCtx, r.exec.logger)
	logger.Info("stage started", logging.String(logging.FieldEventType, "stage_start"))

	rep := newStageReporter(b, message, r.progress)
	started := time.Now()
	err := fn(stageCtx, rep)
	rep.close()
	if err != nil {
		return &stageError{stage: state, err: err}
	}
	if r.persistErr != nil {
		return &stageError{stage: state, err: r.persistErr}
	}
	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("stage_duration", time.Since(started)),
	)
	return nil
}

// checkpoint is the cooperative cancellation point between stages.
func (r *run) checkpoint(next jobs.State) error {
	if err := r.ctx.Err(); err != nil {
		return &stageError{stage: next, err: err}
	}
	return nil
}

func (r *run) transition(state jobs.State, percent int, message string, mutate func(*jobs.Job)) error {
	updated, err := r.exec.store.Update(r.persistCtx, r.job.ID, func(j *jobs.Job) error {
		j.Advance(state, percent, message)
		j.WorkDir = r.workDir
		if mutate != nil {
			mutate(j)
		}
		return nil
	})
	if err != nil {
		logging.ErrorWithContext(r.logger, "persist stage transition failed", "job_persist_failed",
			logging.String(logging.FieldStage, string(state)),
			logging.Error(err),
		)
		return &persistError{err: err}
	}
	r.job = updated
	r.exec.bus.Publish(progress.EventFromJob(updated))
	return nil
}

// progress persists then publishes an in-stage update. It runs under the
// stage reporter's lock, so updates for one job are applied in order.
func (r *run) progress(percent int, message string) {
	updated, err := r.exec.store.Update(r.persistCtx, r.job.ID, func(j *jobs.Job) error {
		j.SetProgress(percent, message)
		return nil
	})
	if err != nil {
		if r.persistErr == nil {
			r.persistErr = &persistError{err: err}
		}
		logging.WarnWithContext(r.logger, "persist progress failed", "progress_persist_failed",
			logging.Error(err),
			logging.Int(logging.FieldProgressPercent, percent),
			logging.String(logging.FieldImpact, "observers see stale progress"),
		)
		return
	}
	r.job = updated
	r.exec.bus.Publish(progress.EventFromJob(updated))
	if r.sampler.ShouldLog(percent, string(updated.State)) {
		r.logger.Info("job progress",
			logging.String(logging.FieldEventType, "job_progress"),
			logging.String(logging.FieldStage, string(updated.State)),
			logging.Int(logging.FieldProgressPercent, percent),
			logging.String(logging.FieldProgressMessage, updated.Message),
		)
	}
}

func (r *run) complete(result jobs.Result, elapsed time.Duration) error {
	updated, err := r.exec.store.Update(r.persistCtx, r.job.ID, func(j *jobs.Job) error {
		j.Complete(result)
		return nil
	})
	if err != nil {
		logging.ErrorWithContext(r.logger, "persist completion failed", "job_persist_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "job result was lost"),
		)
		return r.fail(&stageError{stage: r.job.State, err: &persistError{err: err}})
	}
	r.job = updated
	r.exec.bus.Publish(progress.EventFromJob(updated))
	r.logger.Info("job completed",
		logging.String(logging.FieldEventType, "job_complete"),
		logging.Duration("job_duration", elapsed),
		logging.Float64("media_seconds", result.DurationSeconds),
		logging.Int("segments", len(result.Segments)),
		logging.Bool("reformatted", result.Reformatted),
	)
	return nil
}

// fail records the terminal failure. It returns an error only when the
// failure itself could not be recorded or was caused by a store failure.
func (r *run) fail(cause error) error {
	stage := r.job.State
	var serr *stageError
	if errors.As(cause, &serr) {
		stage = serr.stage
	}
	kind, message := r.classify(stage, cause)

	attrs := []logging.Attr{
		logging.String(logging.FieldStage, string(stage)),
		logging.String(logging.FieldErrorKind, string(kind)),
		logging.Error(cause),
		logging.String(logging.FieldErrorHint, hintFor(kind)),
	}
	if kind == jobs.KindCancelled {
		r.logger.Info("job cancelled", logging.Args(append(attrs, logging.String(logging.FieldEventType, "job_cancelled"))...)...)
	} else {
		logging.ErrorWithContext(r.logger, "stage failed", "stage_failure", attrs...)
	}

	updated, err := r.exec.store.Update(r.persistCtx, r.job.ID, func(j *jobs.Job) error {
		j.Fail(kind, message)
		return nil
	})
	if err != nil {
		logging.ErrorWithContext(r.logger, "persist failure state failed", "job_persist_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "job stays in a non-terminal state until restart recovery"),
		)
		return errors.Join(cause, err)
	}
	r.job = updated
	r.exec.bus.Publish(progress.EventFromJob(updated))

	var perr *persistError
	if errors.As(cause, &perr) {
		return cause
	}
	return nil
}

// classify picks the job error kind for a stage failure. Run-level
// cancellation and the job deadline take precedence over whatever the
// collaborator returned.
func (r *run) classify(stage jobs.State, err error) (jobs.ErrorKind, string) {
	if r.ctx.Err() != nil {
		cause := context.Cause(r.ctx)
		switch {
		case errors.Is(cause, errJobDeadline):
			return jobs.KindTimeout, fmt.Sprintf("job exceeded its %s deadline", r.exec.timeout)
		case errors.Is(cause, scheduler.ErrCancelRequested), errors.Is(cause, scheduler.ErrShutdown):
			return jobs.KindCancelled, cause.Error()
		default:
			return jobs.KindCancelled, "cancelled"
		}
	}
	message := err.Error()
	switch kind := services.Classify(err); kind {
	case jobs.KindResourceExhausted, jobs.KindAcquireFailed, jobs.KindExtractFailed, jobs.KindRecognitionFailed:
		return kind, message
	case jobs.KindCancelled:
		return kind, message
	}
	return stageKind(stage), message
}

func stageKind(stage jobs.State) jobs.ErrorKind {
	switch stage {
	case jobs.StatePending, jobs.StateDownloading:
		return jobs.KindAcquireFailed
	case jobs.StateExtracting:
		return jobs.KindExtractFailed
	case jobs.StateFormatting:
		return jobs.KindReformatFailed
	default:
		return jobs.KindRecognitionFailed
	}
}

func hintFor(kind jobs.ErrorKind) string {
	switch kind {
	case jobs.KindAcquireFailed:
		return "check that the source file exists or the URL is reachable"
	case jobs.KindExtractFailed:
		return "check that ffmpeg is installed and the media has an audio track"
	case jobs.KindRecognitionFailed:
		return "check the whisper binary and model files"
	case jobs.KindResourceExhausted:
		return "use a smaller model or lower transcription.max_concurrent"
	case jobs.KindTimeout:
		return "raise transcription.job_timeout_minutes for long media"
	case jobs.KindCancelled:
		return "resubmit the job if the cancellation was unintended"
	default:
		return "check logs for details"
	}
}

func (r *run) cleanup() {
	if err := os.RemoveAll(r.workDir); err != nil {
		logging.WarnWithContext(r.logger, "remove work directory failed", "cleanup_failed",
			logging.String("path", r.workDir),
			logging.Error(err),
			logging.String(logging.FieldImpact, "intermediate artifacts stay on disk until the job is deleted"),
		)
	}
}

func transcriptText(t Transcript) string {
	if text := strings.TrimSpace(t.Text); text != "" {
		return text
	}
	parts := make([]string, 0, len(t.Segments))
	for _, seg := range t.Segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

func lastSegmentEnd(segments []jobs.Segment) float64 {
	if len(segments) == 0 {
		return 0
	}
	return segments[len(segments)-1].End
}

func firstPositive(values ...float64) float64 {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
