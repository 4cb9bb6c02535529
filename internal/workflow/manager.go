package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Kat4X/video-transcriber/internal/config"
	"github.com/Kat4X/video-transcriber/internal/jobs"
	"github.com/Kat4X/video-transcriber/internal/logging"
	"github.com/Kat4X/video-transcriber/internal/notifications"
	"github.com/Kat4X/video-transcriber/internal/progress"
	"github.com/Kat4X/video-transcriber/internal/scheduler"
)

// Runner executes one admitted job to a terminal state.
type Runner interface {
	Run(ctx context.Context, ticket *scheduler.Ticket) error
}

// Manager coordinates submission, admission and execution of jobs.
type Manager struct {
	cfg      *config.Config
	store    *jobs.Store
	bus      *progress.Bus
	ctrl     *scheduler.Controller
	exec     Runner
	logger   *slog.Logger
	notifier notifications.Service
	models   func(string) bool

	mu      sync.Mutex
	running bool
	started time.Time
	cancel  context.CancelCauseFunc
	stopped chan struct{} // closed when dispatch returns
	wg      sync.WaitGroup
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithModelCatalog sets the predicate used to validate requested model names.
// Without it every non-empty model name is accepted.
func WithModelCatalog(known func(string) bool) ManagerOption {
	return func(m *Manager) {
		m.models = known
	}
}

// WithNotifier replaces the notification service built from the config.
func WithNotifier(notifier notifications.Service) ManagerOption {
	return func(m *Manager) {
		if notifier != nil {
			m.notifier = notifier
		}
	}
}

// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, store *jobs.Store, bus *progress.Bus, ctrl *scheduler.Controller, exec Runner, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		cfg:      cfg,
		store:    store,
		bus:      bus,
		ctrl:     ctrl,
		exec:     exec,
		logger:   logging.NewComponentLogger(logger, "workflow"),
		notifier: notifications.NewService(cfg),
		models:   func(id string) bool { return id != "" },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}
