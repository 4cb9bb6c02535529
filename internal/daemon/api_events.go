package daemon

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Kat4X/video-transcriber/internal/api"
	"github.com/Kat4X/video-transcriber/internal/logging"
	"github.com/Kat4X/video-transcriber/internal/progress"
)

const keepaliveInterval = 15 * time.Second

// SSE event names.
const (
	EventSnapshot = "snapshot"
	EventProgress = "progress"
)

// handleEvents streams a job's progress as Server-Sent Events: a snapshot of
// the stored record, then live events until the terminal one. When the live
// stream ends early (daemon shutdown) the current stored state is sent
// instead and the connection closes; the retry hint tells clients how often
// to poll from then on.
func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	sub, job, err := s.daemon.workflow.Subscribe(ctx, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	defer sub.Close()

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})
	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	logger := logging.WithContext(ctx, s.logger)
	send := func(name string, event progress.Event) bool {
		if err := writeSSE(w, name, api.FromEvent(event)); err != nil {
			logger.Debug("event stream write failed", logging.Error(err), logging.String("job_id", id))
			return false
		}
		return rc.Flush() == nil
	}

	if _, err := fmt.Fprintf(w, "retry: %d\n\n", s.cfg.PollInterval().Milliseconds()); err != nil {
		return
	}
	if !send(EventSnapshot, progress.EventFromJob(job)) || job.State.Terminal() {
		return
	}

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()
	events := sub.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				current, err := s.daemon.workflow.Get(ctx, id)
				if err == nil {
					send(EventSnapshot, progress.EventFromJob(current))
				}
				return
			}
			if !send(EventProgress, event) || event.Terminal() {
				return
			}
		case <-keepalive.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			if rc.Flush() != nil {
				return
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, name string, event api.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if event.Seq > 0 {
		if _, err := fmt.Fprintf(w, "id: %d\n", event.Seq); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}
