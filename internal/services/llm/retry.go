package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type statusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *statusError) Error() string {
	return fmt.Sprintf("llm request: http %d: %s", e.StatusCode, summarize(e.Body))
}

type emptyReplyError struct {
	FinishReason string
	Snippet      string
}

func (e *emptyReplyError) Error() string {
	return fmt.Sprintf("llm request: empty reply (finish_reason=%q, response=%s)", e.FinishReason, e.Snippet)
}

func (c *Client) completeWithRetry(ctx context.Context, payload chatRequest, op string) (string, error) {
	attempts := max(c.retryMaxAttempts, 1)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		text, err := c.sendOnce(ctx, payload)
		if err == nil {
			return text, nil
		}
		lastErr = err
		delay, retry := c.retryDelay(ctx, err, attempt, attempts)
		if !retry {
			break
		}
		if err := c.sleep(ctx, delay); err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
	}
	return "", fmt.Errorf("%s: %w", op, lastErr)
}

// retryDelay decides whether attempt may be followed by another one and how
// long to wait first. Server supplied Retry-After wins over backoff.
func (c *Client) retryDelay(ctx context.Context, err error, attempt, maxAttempts int) (time.Duration, bool) {
	if attempt >= maxAttempts || ctx.Err() != nil || !retryable(err) {
		return 0, false
	}
	var status *statusError
	if errors.As(err, &status) && status.RetryAfter > 0 {
		return c.capDelay(status.RetryAfter), true
	}
	return c.backoffDelay(attempt), true
}

// retryable covers empty completions, network timeouts, 408, 429 and 5xx.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var empty *emptyReplyError
	var status *statusError
	var netErr net.Error
	switch {
	case errors.As(err, &empty):
		return true
	case errors.As(err, &status):
		code := status.StatusCode
		return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
	case errors.As(err, &netErr):
		return netErr.Timeout()
	}
	return false
}

// backoffDelay is base * 2^(attempt-1), capped at the configured maximum.
func (c *Client) backoffDelay(attempt int) time.Duration {
	if c.retryBaseDelay <= 0 || attempt < 1 {
		return 0
	}
	shift := min(attempt-1, 30)
	return c.capDelay(c.retryBaseDelay << shift)
}

func (c *Client) capDelay(delay time.Duration) time.Duration {
	limit := c.retryMaxDelay
	if limit <= 0 {
		limit = defaultRetryMaxDelay
	}
	// Large shifts overflow to negative durations.
	if delay < 0 || delay > limit {
		return limit
	}
	return delay
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	if c.sleeper != nil {
		c.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second, n >= 0
	}
	when, err := http.ParseTime(value)
	if err != nil {
		return 0, false
	}
	d := time.Until(when)
	return d, d > 0
}
