package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"github.com/Kat4X/video-transcriber/internal/config"
	"github.com/Kat4X/video-transcriber/internal/jobs"
	"github.com/Kat4X/video-transcriber/internal/logging"
	"github.com/Kat4X/video-transcriber/internal/notifications"
	"github.com/Kat4X/video-transcriber/internal/preflight"
	"github.com/Kat4X/video-transcriber/internal/progress"
	"github.com/Kat4X/video-transcriber/internal/services/whisper"
	"github.com/Kat4X/video-transcriber/internal/staging"
	"github.com/Kat4X/video-transcriber/internal/workflow"
)

// stagingMinAge keeps the startup sweep away from entries a concurrent
// process may still be writing.
const stagingMinAge = 10 * time.Minute

// Daemon coordinates the background processing services and enforces
// single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *jobs.Store
	bus      *progress.Bus
	workflow *workflow.Manager

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running atomic.Bool

	checksMu sync.RWMutex
	checks   []preflight.Result
}

// Status represents daemon runtime information.
type Status struct {
	Running           bool
	PID               int
	Workflow          workflow.StatusSummary
	DatabasePath      string
	LockFilePath      string
	Dependencies      []preflight.BinaryStatus
	Checks            []preflight.Result
	InstalledModels   []string
	DefaultModel      string
	ReformatAvailable bool
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *jobs.Store, bus *progress.Bus, wf *workflow.Manager, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || bus == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, progress bus, and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		bus:      bus,
		workflow: wf,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, recovers unfinished jobs, starts
// scheduling and opens the API listener.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := d.cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another transcriber daemon instance is already running")
	}

	d.sweepStaging(ctx)
	if err := d.workflow.Start(ctx); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.api.start(ctx); err != nil {
		d.workflow.Stop()
		_ = d.lock.Unlock()
		return err
	}

	go d.runPreflight(ctx)
	d.running.Store(true)
	d.logger.Info("transcriber daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("api_bind", d.api.address()),
		logging.Int("max_concurrent", d.cfg.Transcription.MaxConcurrent),
	)
	return nil
}

// Stop cancels in-flight jobs, closes open progress streams, shuts the API
// listener down and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Swap(false) {
		return
	}
	d.workflow.Stop()
	d.bus.Shutdown()
	d.api.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_lock_release_failed"),
			logging.String(logging.FieldErrorHint, "remove the lock file if no daemon is running"),
		)
	}
	d.logger.Info("transcriber daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Handler returns the HTTP handler serving the daemon API.
func (d *Daemon) Handler() http.Handler {
	return d.api.handler
}

// Address reports the address the API listens on, once started.
func (d *Daemon) Address() string {
	return d.api.address()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	d.checksMu.RLock()
	checks := append([]preflight.Result(nil), d.checks...)
	d.checksMu.RUnlock()
	return Status{
		Running:           d.running.Load(),
		PID:               os.Getpid(),
		Workflow:          d.workflow.Status(ctx),
		DatabasePath:      d.store.Path(),
		LockFilePath:      d.lockPath,
		Dependencies:      preflight.CheckSystemDeps(d.cfg),
		Checks:            checks,
		InstalledModels:   whisper.Installed(d.cfg.Paths.ModelsDir),
		DefaultModel:      d.cfg.Transcription.DefaultModel,
		ReformatAvailable: d.cfg.ReformatAvailable(),
	}
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if d.cfg.Notifications.NtfyTopic == "" {
		return false, "ntfy topic not configured", nil
	}
	notifier := notifications.NewService(d.cfg)
	if err := notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// sweepStaging removes job work directories and uploads no record references.
// It runs before recovery and before the API accepts uploads.
func (d *Daemon) sweepStaging(ctx context.Context) {
	referenced, err := d.store.ReferencedPaths(ctx)
	if err != nil {
		logging.WarnWithContext(d.logger, "staging sweep skipped", "staging_cleanup_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "orphaned work files stay on disk"),
		)
		return
	}
	var removed int
	var reclaimed int64
	for _, dir := range []string{d.cfg.JobsDir(), d.cfg.UploadsDir()} {
		result := staging.Sweep(ctx, dir, referenced, stagingMinAge, d.logger)
		removed += len(result.Removed)
		reclaimed += result.Bytes
	}
	if removed > 0 {
		d.logger.Info("staging sweep complete",
			logging.String(logging.FieldEventType, "staging_cleanup_complete"),
			logging.Int("removed", removed),
			logging.Int64("bytes", reclaimed),
		)
	}
}

func (d *Daemon) runPreflight(ctx context.Context) {
	results := preflight.RunAll(ctx, d.cfg, true)
	d.checksMu.Lock()
	d.checks = results
	d.checksMu.Unlock()
	for _, result := range results {
		if result.Passed {
			continue
		}
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldErrorHint, "fix the reported problem; affected jobs will fail until then"),
			logging.String(logging.FieldImpact, "jobs may fail"),
		)
	}
	for _, dep := range preflight.CheckSystemDeps(d.cfg) {
		if dep.Available || dep.Optional {
			continue
		}
		logging.WarnWithContext(d.logger, "required tool missing", "dependency_missing",
			logging.String("dependency", dep.Name),
			logging.String("command", dep.Command),
			logging.String("detail", dep.Detail),
			logging.String(logging.FieldErrorHint, "install the tool or set its path in [tools]"),
			logging.String(logging.FieldImpact, "jobs will fail at the stage that needs it"),
		)
	}
}
