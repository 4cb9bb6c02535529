package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Kat4X/video-transcriber/internal/api"
)

const maxEventLine = 1 << 20

// Events reads the job's Server-Sent Events stream, calling fn for each
// event, until the daemon closes it or ctx ends. It returns the retry hint
// the daemon sent, or zero.
func (c *Client) Events(ctx context.Context, id string, fn func(api.Event)) (time.Duration, error) {
	resp, err := c.do(ctx, c.stream, http.MethodGet, jobPath(id)+"/events", "", nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if mediaType := resp.Header.Get("Content-Type"); !strings.HasPrefix(mediaType, "text/event-stream") {
		return 0, fmt.Errorf("unexpected events content type %q", mediaType)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64<<10), maxEventLine)
	var (
		retry time.Duration
		data  strings.Builder
	)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() == 0 {
				continue
			}
			var event api.Event
			if err := json.Unmarshal([]byte(data.String()), &event); err != nil {
				return retry, fmt.Errorf("decode event: %w", err)
			}
			data.Reset()
			fn(event)
		case strings.HasPrefix(line, ":"):
		default:
			field, value, _ := strings.Cut(line, ":")
			value = strings.TrimPrefix(value, " ")
			switch field {
			case "data":
				if data.Len() > 0 {
					data.WriteByte('\n')
				}
				data.WriteString(value)
			case "retry":
				if ms, err := strconv.Atoi(value); err == nil && ms > 0 {
					retry = time.Duration(ms) * time.Millisecond
				}
			}
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return retry, fmt.Errorf("read events: %w", err)
	}
	return retry, ctx.Err()
}

// Follow reports the job's progress through fn until it finishes and returns
// the final record. It prefers the events stream and polls the job record at
// the retry interval when the stream is unavailable or ends early. Polling
// reports a change only when status, progress or message moved.
func (c *Client) Follow(ctx context.Context, id string, fn func(api.Event)) (api.Job, error) {
	if fn == nil {
		fn = func(api.Event) {}
	}
	var (
		last     api.Event
		seen     bool
		finished bool
	)
	emit := func(event api.Event) {
		if seen && sameProgress(last, event) {
			return
		}
		last, seen = event, true
		fn(event)
		if event.Terminal() {
			finished = true
		}
	}

	interval := c.pollInterval
	retry, err := c.Events(ctx, id, emit)
	switch {
	case ctx.Err() != nil:
		return api.Job{}, ctx.Err()
	case IsNotFound(err):
		return api.Job{}, err
	}
	if retry > 0 {
		interval = retry
	}
	if finished {
		return c.Get(ctx, id)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		job, err := c.Get(ctx, id)
		if err != nil {
			return api.Job{}, err
		}
		emit(eventFromJob(job))
		if finished {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return api.Job{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func eventFromJob(job api.Job) api.Event {
	return api.Event{
		JobID:     job.ID,
		Status:    job.Status,
		Progress:  job.Progress,
		Message:   job.Message,
		Error:     job.Error,
		Timestamp: job.UpdatedAt,
	}
}

func sameProgress(a, b api.Event) bool {
	return a.Status == b.Status && a.Progress == b.Progress && a.Message == b.Message
}
