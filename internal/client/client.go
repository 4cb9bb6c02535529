package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Kat4X/video-transcriber/internal/api"
	"github.com/Kat4X/video-transcriber/internal/config"
)

const defaultRequestTimeout = 30 * time.Second

// ErrUnavailable reports that the daemon could not be reached.
var ErrUnavailable = errors.New("daemon not reachable")

// APIError is a non-2xx reply from the daemon.
type APIError struct {
	StatusCode int
	Message    string
	Kind       string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon returned %d", e.StatusCode)
	}
	return e.Message
}

// IsNotFound reports whether err is a 404 from the daemon.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client provides HTTP access to the daemon.
type Client struct {
	baseURL      *url.URL
	http         *http.Client
	stream       *http.Client
	pollInterval time.Duration
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the client used for request/response calls.
// Streams and uploads use its transport without a timeout.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.http = httpClient
			c.stream = &http.Client{Transport: httpClient.Transport}
		}
	}
}

// WithPollInterval sets the polling fallback interval used until the daemon
// supplies its own retry hint.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Client) {
		if interval > 0 {
			c.pollInterval = interval
		}
	}
}

// New builds a client for the daemon at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, fmt.Errorf("invalid daemon url %q", baseURL)
	}
	c := &Client{
		baseURL:      parsed,
		http:         &http.Client{Timeout: defaultRequestTimeout},
		stream:       &http.Client{},
		pollInterval: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FromConfig builds a client for the configured bind address. Wildcard
// hosts are dialled on loopback.
func FromConfig(cfg *config.Config, opts ...Option) (*Client, error) {
	host, port, err := net.SplitHostPort(cfg.Paths.APIBind)
	if err != nil {
		return nil, fmt.Errorf("paths.api_bind %q: %w", cfg.Paths.APIBind, err)
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	opts = append([]Option{WithPollInterval(cfg.PollInterval())}, opts...)
	return New("http://"+net.JoinHostPort(host, port), opts...)
}

// BaseURL returns the daemon address.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Submit sends a JSON submission for a URL or a path readable by the daemon.
func (c *Client) Submit(ctx context.Context, req api.SubmitRequest) (api.SubmitResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return api.SubmitResponse{}, err
	}
	var out api.SubmitResponse
	err = c.doJSON(ctx, c.http, http.MethodPost, "/api/jobs", "application/json", bytes.NewReader(body), &out)
	return out, err
}

// Upload streams a local file to the daemon as a multipart submission.
func (c *Client) Upload(ctx context.Context, path string, req api.SubmitRequest) (api.SubmitResponse, error) {
	file, err := os.Open(path)
	if err != nil {
		return api.SubmitResponse{}, fmt.Errorf("open upload: %w", err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUpload(writer, file, filepath.Base(path), req))
	}()

	var out api.SubmitResponse
	err = c.doJSON(ctx, c.stream, http.MethodPost, "/api/jobs", writer.FormDataContentType(), pr, &out)
	_ = pr.Close()
	return out, err
}

func writeUpload(writer *multipart.Writer, file io.Reader, name string, req api.SubmitRequest) error {
	fields := [][2]string{
		{"name", req.Name},
		{"model", req.Model},
		{"language", req.Language},
		{"include_timestamps", strconv.FormatBool(req.IncludeTimestamps)},
		{"reformat", strconv.FormatBool(req.Reformat)},
	}
	for _, field := range fields {
		if field[1] == "" {
			continue
		}
		if err := writer.WriteField(field[0], field[1]); err != nil {
			return err
		}
	}
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return err
	}
	return writer.Close()
}

// List returns job summaries, newest first. Zero limit uses the daemon default.
func (c *Client) List(ctx context.Context, statuses []string, limit int) ([]api.JobSummary, error) {
	query := url.Values{}
	if len(statuses) > 0 {
		query.Set("status", strings.Join(statuses, ","))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/jobs"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var out api.JobListResponse
	if err := c.doJSON(ctx, c.http, http.MethodGet, path, "", nil, &out); err != nil {
		return nil, err
	}
	return out.Jobs, nil
}

// Get returns the full job record.
func (c *Client) Get(ctx context.Context, id string) (api.Job, error) {
	var out api.Job
	err := c.doJSON(ctx, c.http, http.MethodGet, jobPath(id), "", nil, &out)
	return out, err
}

// Delete removes a finished job or cancels an unfinished one.
func (c *Client) Delete(ctx context.Context, id string) (api.DeleteResponse, error) {
	var out api.DeleteResponse
	err := c.doJSON(ctx, c.http, http.MethodDelete, jobPath(id), "", nil, &out)
	return out, err
}

// Status returns daemon diagnostics.
func (c *Client) Status(ctx context.Context) (api.DaemonStatus, error) {
	var out api.DaemonStatus
	err := c.doJSON(ctx, c.http, http.MethodGet, "/api/status", "", nil, &out)
	return out, err
}

// TestNotification asks the daemon to send a test notification.
func (c *Client) TestNotification(ctx context.Context) (api.NotificationResponse, error) {
	var out api.NotificationResponse
	err := c.doJSON(ctx, c.http, http.MethodPost, "/api/notifications/test", "", nil, &out)
	return out, err
}

// Document is a downloaded transcript.
type Document struct {
	Filename    string
	ContentType string
	Body        []byte
}

// Download fetches a completed job's transcript in the given format.
func (c *Client) Download(ctx context.Context, id, format string) (Document, error) {
	path := jobPath(id) + "/download"
	if format != "" {
		path += "?format=" + url.QueryEscape(format)
	}
	resp, err := c.do(ctx, c.http, http.MethodGet, path, "", nil)
	if err != nil {
		return Document{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Document{}, fmt.Errorf("read transcript: %w", err)
	}
	doc := Document{ContentType: resp.Header.Get("Content-Type"), Body: body}
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		doc.Filename = filepath.Base(params["filename"])
	}
	return doc, nil
}

func jobPath(id string) string {
	return "/api/jobs/" + url.PathEscape(id)
}

func (c *Client) doJSON(ctx context.Context, httpClient *http.Client, method, path, contentType string, body io.Reader, out any) error {
	resp, err := c.do(ctx, httpClient, method, path, contentType, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// do sends the request and converts non-2xx replies into *APIError.
func (c *Client) do(ctx context.Context, httpClient *http.Client, method, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var netErr *net.OpError
		if errors.As(err, &netErr) {
			return nil, fmt.Errorf("%w at %s: %w", ErrUnavailable, c.baseURL, err)
		}
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var payload api.ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&payload); err == nil {
		apiErr.Message = payload.Error
		apiErr.Kind = payload.Kind
	}
	return nil, apiErr
}
