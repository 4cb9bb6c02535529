package workflow

import (
	"context"
	"time"

	"github.com/Kat4X/video-transcriber/internal/jobs"
	"github.com/Kat4X/video-transcriber/internal/logging"
	"github.com/Kat4X/video-transcriber/internal/progress"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running   bool               `json:"running"`
	StartedAt time.Time          `json:"started_at,omitzero"`
	Counts    map[jobs.State]int `json:"counts"`
	Queued    []string           `json:"queued"`
	Active    int                `json:"active"`
	Limit     int                `json:"limit"`
	InFlight  []string           `json:"in_flight"`
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.Lock()
	running := m.running
	started := m.started
	m.mu.Unlock()

	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read job stats", logging.Error(err))
	}
	queued, active, limit := m.ctrl.Snapshot()
	summary := StatusSummary{
		Running:  running,
		Counts:   stats,
		Queued:   queued,
		Active:   active,
		Limit:    limit,
		InFlight: m.ctrl.Running(),
	}
	if running {
		summary.StartedAt = started
	}
	return summary
}

// Subscribe attaches to the job's live events and returns the stored record
// read after subscribing, so no transition between the two is missed. When
// the job is already finished the subscription is closed and the snapshot is
// the whole story.
func (m *Manager) Subscribe(ctx context.Context, id string) (*progress.Subscription, *jobs.Job, error) {
	sub := m.bus.Subscribe(id)
	job, err := m.store.Get(ctx, id)
	if err != nil {
		sub.Close()
		return nil, nil, err
	}
	if job.State.Terminal() {
		sub.Close()
	}
	return sub, job, nil
}

// Wait blocks until the job reaches a terminal state and returns its final
// record. onEvent, when set, sees the initial snapshot and every live event.
// Polling at the configured interval covers events the bus dropped or never
// delivered.
func (m *Manager) Wait(ctx context.Context, id string, onEvent func(progress.Event)) (*jobs.Job, error) {
	if onEvent == nil {
		onEvent = func(progress.Event) {}
	}
	sub, job, err := m.Subscribe(ctx, id)
	if err != nil {
		return nil, err
	}
	defer sub.Close()
	onEvent(progress.EventFromJob(job))
	if job.State.Terminal() {
		return job, nil
	}

	ticker := time.NewTicker(m.cfg.PollInterval())
	defer ticker.Stop()
	events := sub.Events()
	lastUpdate := job.UpdatedAt
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			onEvent(event)
			if event.Terminal() {
				return m.store.Get(ctx, id)
			}
		case <-ticker.C:
			current, err := m.store.Get(ctx, id)
			if err != nil {
				return nil, err
			}
			if events == nil && current.UpdatedAt.After(lastUpdate) {
				onEvent(progress.EventFromJob(current))
			}
			lastUpdate = current.UpdatedAt
			if current.State.Terminal() {
				return current, nil
			}
		}
	}
}
