package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/Kat4X/video-transcriber/internal/fileutil"
	"github.com/Kat4X/video-transcriber/internal/jobs"
	"github.com/Kat4X/video-transcriber/internal/language"
	"github.com/Kat4X/video-transcriber/internal/logging"
	"github.com/Kat4X/video-transcriber/internal/preflight"
	"github.com/Kat4X/video-transcriber/internal/progress"
	"github.com/Kat4X/video-transcriber/internal/scheduler"
	"github.com/Kat4X/video-transcriber/internal/services"
	"github.com/Kat4X/video-transcriber/internal/textutil"
)

const cancelledMessage = "cancelled by request"

var errAlreadyTerminal = errors.New("job already finished")

// Request is a transcription submission.
type Request struct {
	Source  jobs.Source
	Options jobs.Options
}

// Submit validates the request, records a pending job and queues it for
// admission. Rejected requests create no record; a managed upload named by a
// rejected request is removed.
func (m *Manager) Submit(ctx context.Context, req Request) (string, error) {
	source, opts, err := m.validate(req)
	if err != nil {
		if req.Source.Managed && req.Source.Path != "" {
			_ = os.Remove(req.Source.Path)
		}
		return "", err
	}

	job := jobs.New(uuid.NewString(), source, opts)
	if err := m.store.Create(ctx, job); err != nil {
		if source.Managed {
			_ = os.Remove(source.Path)
		}
		return "", fmt.Errorf("record job: %w", err)
	}
	m.bus.Publish(progress.EventFromJob(job))
	m.enqueue(job)

	logging.WithContext(services.WithJobID(ctx, job.ID), m.logger).Info("job submitted",
		logging.String(logging.FieldEventType, "job_submitted"),
		logging.String("source_kind", string(source.Kind)),
		logging.String("source", source.DisplayName()),
		logging.String("model", opts.Model),
		logging.String("language", opts.Language),
		logging.Bool("reformat", opts.Reformat),
	)
	return job.ID, nil
}

// enqueue hands a pending job to the controller. Remote jobs download
// without holding a slot.
func (m *Manager) enqueue(job *jobs.Job) {
	if job.Source.Kind == jobs.SourceRemoteURL {
		m.ctrl.EnqueueDeferred(job.ID)
		return
	}
	m.ctrl.Enqueue(job.ID)
}

func (m *Manager) validate(req Request) (jobs.Source, jobs.Options, error) {
	opts := req.Options
	opts.Model = strings.ToLower(strings.TrimSpace(opts.Model))
	if opts.Model == "" {
		opts.Model = m.cfg.Transcription.DefaultModel
	}
	if !m.models(opts.Model) {
		return jobs.Source{}, jobs.Options{}, invalid("unknown model %q", opts.Model)
	}
	requested := strings.TrimSpace(opts.Language)
	if requested == "" {
		requested = m.cfg.Transcription.DefaultLanguage
	}
	lang, err := language.Normalize(requested)
	if err != nil {
		return jobs.Source{}, jobs.Options{}, invalid("unsupported language %q", requested)
	}
	opts.Language = lang

	source := req.Source
	switch source.Kind {
	case jobs.SourceLocalFile:
		if err := checkLocalFile(&source); err != nil {
			return jobs.Source{}, jobs.Options{}, err
		}
	case jobs.SourceRemoteURL:
		if err := checkRemoteURL(&source); err != nil {
			return jobs.Source{}, jobs.Options{}, err
		}
	default:
		return jobs.Source{}, jobs.Options{}, invalid("a file or a URL is required")
	}
	return source, opts, nil
}

func checkLocalFile(source *jobs.Source) error {
	path := strings.TrimSpace(source.Path)
	if path == "" {
		return invalid("file path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return invalid("file path %q: %v", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return invalid("file %q is not accessible", path)
	}
	if !info.Mode().IsRegular() {
		return invalid("%q is not a regular file", path)
	}
	f, err := os.Open(abs)
	if err != nil {
		return invalid("file %q is not readable", path)
	}
	_ = f.Close()
	source.Path = abs
	source.URL = ""
	if strings.TrimSpace(source.Name) == "" {
		source.Name = filepath.Base(abs)
	}
	return nil
}

func checkRemoteURL(source *jobs.Source) error {
	raw := strings.TrimSpace(source.URL)
	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return invalid("%q is not an absolute http(s) URL", raw)
	}
	source.URL = raw
	source.Path = ""
	source.Managed = false
	return nil
}

func invalid(format string, args ...any) error {
	return services.Wrap(services.ErrValidation, "submit", "validate request", fmt.Sprintf(format, args...), nil)
}

// StageUpload copies an uploaded file into the uploads directory and returns
// its path. The caller submits it as a managed local source.
func (m *Manager) StageUpload(name string, r io.Reader) (string, error) {
	dir := m.cfg.UploadsDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("ensure uploads dir: %w", err)
	}
	if err := preflight.EnsureFreeSpace(dir, m.cfg.Workflow.MinFreeSpaceMiB, 0); err != nil {
		return "", err
	}
	clean := textutil.SanitizeFileName(filepath.Base(name))
	if clean == "" || clean == "." {
		clean = "upload"
	}
	dest := filepath.Join(dir, uuid.NewString()+"_"+clean)
	size, digest, err := fileutil.WriteAtomic(dest, r, 0o644)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "submit", "stage upload", "", err)
	}
	if size == 0 {
		_ = os.Remove(dest)
		return "", invalid("uploaded file %q is empty", name)
	}
	m.logger.Info("upload staged",
		logging.String(logging.FieldEventType, "upload_staged"),
		logging.String("path", dest),
		logging.Int64("size_bytes", size),
		logging.String("sha256", digest),
	)
	return dest, nil
}

// Get returns the full job record.
func (m *Manager) Get(ctx context.Context, id string) (*jobs.Job, error) {
	return m.store.Get(ctx, id)
}

// List returns job summaries newest first. A zero limit uses the configured default.
func (m *Manager) List(ctx context.Context, filter jobs.Filter) ([]jobs.Summary, error) {
	if filter.Limit <= 0 {
		filter.Limit = m.cfg.Workflow.ListLimit
	}
	return m.store.List(ctx, filter)
}

// Delete cancels an unfinished job or removes a finished one. Pending jobs
// are failed as cancelled without running; running jobs are signalled and
// the executor records the cancellation. Finished jobs lose their record
// and artifacts.
func (m *Manager) Delete(ctx context.Context, id string) error {
	job, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	logger := logging.WithContext(services.WithJobID(ctx, id), m.logger)
	if job.State.Terminal() {
		if err := m.store.Delete(ctx, id); err != nil {
			return err
		}
		logger.Info("job deleted", logging.String(logging.FieldEventType, "job_deleted"))
		return nil
	}

	outcome := m.ctrl.Cancel(id)
	logger.Info("job cancellation requested",
		logging.String(logging.FieldEventType, "job_cancel_requested"),
		logging.String("outcome", outcome.String()),
		logging.String("state", string(job.State)),
	)
	if outcome == scheduler.Signalled {
		return nil
	}
	updated, err := m.store.Update(ctx, id, func(j *jobs.Job) error {
		if j.State.Terminal() {
			return errAlreadyTerminal
		}
		j.Fail(jobs.KindCancelled, cancelledMessage)
		return nil
	})
	if errors.Is(err, errAlreadyTerminal) {
		return nil
	}
	if err != nil {
		return err
	}
	m.bus.Publish(progress.EventFromJob(updated))
	return nil
}
