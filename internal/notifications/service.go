package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Kat4X/video-transcriber/internal/config"
	"github.com/Kat4X/video-transcriber/internal/jobs"
)

const userAgent = "video-transcriber/0.1.0"

// Service defines the notification surface exposed to the workflow.
type Service interface {
	NotifyJobFinished(ctx context.Context, job *jobs.Job) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

// NotifyJobFinished announces a completed or failed job. Cancelled jobs were
// stopped by the user and are not announced.
func (n *ntfyService) NotifyJobFinished(ctx context.Context, job *jobs.Job) error {
	data, ok := payloadFor(job)
	if !ok {
		return nil
	}
	return n.send(ctx, data)
}

func payloadFor(job *jobs.Job) (payload, bool) {
	if job == nil {
		return payload{}, false
	}
	name := job.Source.DisplayName()
	switch job.State {
	case jobs.StateCompleted:
		var builder strings.Builder
		fmt.Fprintf(&builder, "Transcribed: %s", name)
		if job.Result != nil && job.Result.DurationSeconds > 0 {
			duration := time.Duration(job.Result.DurationSeconds * float64(time.Second)).Round(time.Second)
			fmt.Fprintf(&builder, "\nDuration: %s", duration)
		}
		fmt.Fprintf(&builder, "\nSubmitted %s", humanize.Time(job.CreatedAt))
		return payload{
			title:   "Transcriber - Completed",
			message: builder.String(),
			tags:    []string{"transcriber", "completed"},
		}, true
	case jobs.StateFailed:
		if job.Error == nil || job.Error.Kind == jobs.KindCancelled {
			return payload{}, false
		}
		return payload{
			title:    "Transcriber - Failed",
			message:  fmt.Sprintf("Failed: %s\n%s: %s", name, job.Error.Kind, job.Error.Message),
			tags:     []string{"transcriber", "error", string(job.Error.Kind)},
			priority: "high",
		}, true
	default:
		return payload{}, false
	}
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Transcriber - Test",
		message:  "Notification system test",
		tags:     []string{"transcriber", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyJobFinished(context.Context, *jobs.Job) error { return nil }
func (noopService) TestNotification(context.Context) error             { return nil }
