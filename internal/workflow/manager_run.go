package workflow

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/Kat4X/video-transcriber/internal/jobs"
	"github.com/Kat4X/video-transcriber/internal/logging"
	"github.com/Kat4X/video-transcriber/internal/progress"
	"github.com/Kat4X/video-transcriber/internal/scheduler"
	"github.com/Kat4X/video-transcriber/internal/services"
)

const interruptedMessage = "interrupted: daemon stopped before the job finished"

// Start recovers unfinished jobs and begins dispatching admitted tickets.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	m.running = true
	m.started = time.Now()
	runCtx, cancel := context.WithCancelCause(ctx)
	m.cancel = cancel
	m.mu.Unlock()

	if err := m.recover(ctx); err != nil {
		m.Stop()
		return err
	}

	stopped := make(chan struct{})
	m.mu.Lock()
	m.stopped = stopped
	m.mu.Unlock()
	m.wg.Add(1)
	go m.dispatch(runCtx, stopped)
	return nil
}

// Stop cancels running jobs, stops dispatching and waits for every executor
// goroutine to record its job's outcome.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel, stopped := m.cancel, m.stopped
	m.running = false
	m.cancel, m.stopped = nil, nil
	m.mu.Unlock()

	// Tickets do not inherit the dispatch context, so dispatch must be gone
	// before the sweep or it could admit a job the sweep misses.
	cancel(scheduler.ErrShutdown)
	if stopped != nil {
		<-stopped
	}
	m.ctrl.CancelAll(scheduler.ErrShutdown)
	m.wg.Wait()
}

// recover re-enqueues pending jobs oldest first and fails jobs a previous
// process left mid-pipeline; their stages cannot be resumed.
func (m *Manager) recover(ctx context.Context) error {
	unfinished, err := m.store.ListUnfinished(ctx)
	if err != nil {
		return services.Wrap(services.ErrTransient, "recovery", "list unfinished jobs", "", err)
	}
	requeued, interrupted := 0, 0
	for _, job := range unfinished {
		if job.State == jobs.StatePending {
			m.enqueue(job)
			requeued++
			continue
		}
		updated, err := m.store.Update(ctx, job.ID, func(j *jobs.Job) error {
			if j.State.Terminal() {
				return errAlreadyTerminal
			}
			j.Fail(jobs.KindCancelled, interruptedMessage)
			return nil
		})
		if errors.Is(err, errAlreadyTerminal) || errors.Is(err, jobs.ErrNotFound) {
			continue
		}
		if err != nil {
			return services.Wrap(services.ErrTransient, "recovery", "fail interrupted job", job.ID, err)
		}
		if job.WorkDir != "" {
			if err := os.RemoveAll(job.WorkDir); err != nil {
				m.logger.Warn("failed to remove interrupted work dir",
					logging.String("job_id", job.ID),
					logging.Error(err),
				)
			}
		}
		m.bus.Publish(progress.EventFromJob(updated))
		interrupted++
	}
	if requeued > 0 || interrupted > 0 {
		m.logger.Info("recovered unfinished jobs",
			logging.String(logging.FieldEventType, "recovery_complete"),
			logging.Int("requeued", requeued),
			logging.Int("interrupted", interrupted),
		)
	}
	return nil
}

func (m *Manager) dispatch(ctx context.Context, stopped chan<- struct{}) {
	defer m.wg.Done()
	defer close(stopped)
	for {
		ticket, err := m.ctrl.Next(ctx)
		if err != nil {
			return
		}
		m.wg.Add(1)
		go m.runTicket(ctx, ticket)
	}
}

func (m *Manager) runTicket(ctx context.Context, ticket *scheduler.Ticket) {
	defer m.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			ticket.Done()
			logging.ErrorWithContext(m.logger, "executor panicked", "executor_panic",
				logging.String("job_id", ticket.JobID),
				logging.Any("panic", r),
				logging.String(logging.FieldImpact, "job left in its last recorded state until restart"),
			)
		}
	}()

	if err := m.exec.Run(ctx, ticket); err != nil {
		logging.ErrorWithContext(m.logger, "job run failed", "job_run_failed",
			logging.String("job_id", ticket.JobID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check database health and disk space"),
		)
		return
	}
	m.notifyFinished(context.WithoutCancel(ctx), ticket.JobID)
}

func (m *Manager) notifyFinished(ctx context.Context, jobID string) {
	job, err := m.store.Get(ctx, jobID)
	if err != nil || !job.State.Terminal() {
		return
	}
	if err := m.notifier.NotifyJobFinished(ctx, job); err != nil {
		m.logger.Warn("job notification failed",
			logging.String("job_id", jobID),
			logging.Error(err),
			logging.String(logging.FieldEventType, "notification_failed"),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
		)
	}
}
