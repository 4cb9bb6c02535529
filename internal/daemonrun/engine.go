package daemonrun

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/Kat4X/video-transcriber/internal/config"
	"github.com/Kat4X/video-transcriber/internal/jobs"
	"github.com/Kat4X/video-transcriber/internal/logging"
	"github.com/Kat4X/video-transcriber/internal/notifications"
	"github.com/Kat4X/video-transcriber/internal/progress"
	"github.com/Kat4X/video-transcriber/internal/scheduler"
	"github.com/Kat4X/video-transcriber/internal/services/ffmpeg"
	"github.com/Kat4X/video-transcriber/internal/services/llm"
	"github.com/Kat4X/video-transcriber/internal/services/whisper"
	"github.com/Kat4X/video-transcriber/internal/services/youtube"
	"github.com/Kat4X/video-transcriber/internal/stageexec"
	"github.com/Kat4X/video-transcriber/internal/workflow"
)

// Engine bundles the job pipeline shared by the daemon and one-shot runs.
type Engine struct {
	Store    *jobs.Store
	Bus      *progress.Bus
	Workflow *workflow.Manager
}

// EngineOption customizes engine construction.
type EngineOption func(*engineOptions)

type engineOptions struct {
	collaborators *stageexec.Collaborators
	notifier      notifications.Service
}

// WithCollaborators replaces the external tool integrations.
func WithCollaborators(collab stageexec.Collaborators) EngineOption {
	return func(o *engineOptions) { o.collaborators = &collab }
}

// WithNotifier overrides the notifier built from configuration.
func WithNotifier(notifier notifications.Service) EngineOption {
	return func(o *engineOptions) { o.notifier = notifier }
}

// NewEngine opens the job store and wires the scheduler, executor and
// workflow manager around the configured collaborators.
func NewEngine(cfg *config.Config, logger *slog.Logger, opts ...EngineOption) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	options := engineOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	collab := Collaborators(cfg, logger)
	if options.collaborators != nil {
		collab = *options.collaborators
	}
	notifier := options.notifier
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	store, err := jobs.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}
	bus := progress.NewBus(cfg.Workflow.SubscriberBuffer)
	exec, err := stageexec.New(stageexec.Options{
		Store:         store,
		Bus:           bus,
		Collaborators: collab,
		JobsDir:       cfg.JobsDir(),
		JobTimeout:    cfg.JobTimeout(),
		Logger:        logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("build executor: %w", err)
	}
	ctrl := scheduler.New(cfg.Transcription.MaxConcurrent)
	mgr := workflow.NewManager(cfg, store, bus, ctrl, exec, logger,
		workflow.WithModelCatalog(whisper.Known),
		workflow.WithNotifier(notifier),
	)
	return &Engine{Store: store, Bus: bus, Workflow: mgr}, nil
}

// Close stops scheduling and closes the job store.
func (e *Engine) Close() error {
	e.Workflow.Stop()
	e.Bus.Shutdown()
	return e.Store.Close()
}

// Collaborators builds the production stage implementations: yt download,
// ffmpeg extraction, whisper.cpp recognition and, when an API key is
// configured, LLM reformatting.
func Collaborators(cfg *config.Config, logger *slog.Logger) stageexec.Collaborators {
	collab := stageexec.Collaborators{
		Downloader: youtube.NewDownloader(logger),
		Extractor: ffmpeg.NewService(ffmpeg.Config{
			FFmpeg:  cfg.Tools.FFmpeg,
			FFprobe: cfg.Tools.FFprobe,
		}, logger),
		Recognizer: whisper.NewService(whisper.Config{
			Binary:    cfg.Tools.Whisper,
			ModelsDir: cfg.Paths.ModelsDir,
			Threads:   cfg.Tools.WhisperThreads,
		}, logger),
	}
	if cfg.ReformatAvailable() {
		client := llm.NewClient(llm.FromConfig(cfg.LLM))
		collab.Reformatter = llm.NewFormatter(client, 0)
	}
	return collab
}
