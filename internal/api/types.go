package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// SubmitRequest is the JSON body accepted by POST /api/jobs. Exactly one of
// URL or Path names the source.
type SubmitRequest struct {
	URL               string `json:"url,omitempty"`
	Path              string `json:"path,omitempty"`
	Name              string `json:"name,omitempty"`
	Model             string `json:"model,omitempty"`
	Language          string `json:"language,omitempty"`
	IncludeTimestamps bool   `json:"include_timestamps"`
	Reformat          bool   `json:"reformat"`
}

// SubmitResponse acknowledges an accepted submission.
type SubmitResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// DeleteResponse reports what a delete request did: "deleted" for finished
// jobs, "cancelling" for jobs still being processed.
type DeleteResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// Source describes the media a job transcribes.
type Source struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
	Path string `json:"path,omitempty"`
	URL  string `json:"url,omitempty"`
}

// Options mirrors the recognition settings captured at submission.
type Options struct {
	Model             string `json:"model"`
	Language          string `json:"language"`
	IncludeTimestamps bool   `json:"include_timestamps"`
	Reformat          bool   `json:"reformat"`
}

// Segment is one timed span of recognized speech.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Result carries the transcript of a completed job.
type Result struct {
	Text             string    `json:"text"`
	Segments         []Segment `json:"segments,omitempty"`
	DurationSeconds  float64   `json:"duration_seconds"`
	SourceName       string    `json:"source_name"`
	DetectedLanguage string    `json:"detected_language,omitempty"`
	Reformatted      bool      `json:"reformatted"`
	ReformatError    string    `json:"reformat_error,omitempty"`
}

// Failure is the terminal error of a failed job.
type Failure struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Job is the transport representation of a job record.
type Job struct {
	ID        string   `json:"id"`
	Status    string   `json:"status"`
	Progress  int      `json:"progress"`
	Message   string   `json:"message,omitempty"`
	Source    Source   `json:"source"`
	Options   Options  `json:"options"`
	Result    *Result  `json:"result,omitempty"`
	Error     *Failure `json:"error,omitempty"`
	CreatedAt string   `json:"created_at,omitempty"`
	UpdatedAt string   `json:"updated_at,omitempty"`
}

// JobSummary is the list projection of a job.
type JobSummary struct {
	ID              string  `json:"id"`
	SourceName      string  `json:"source_name"`
	SourceKind      string  `json:"source_kind"`
	Status          string  `json:"status"`
	Progress        int     `json:"progress"`
	Message         string  `json:"message,omitempty"`
	DurationSeconds float64 `json:"duration_seconds"`
	ErrorKind       string  `json:"error_kind,omitempty"`
	CreatedAt       string  `json:"created_at,omitempty"`
	UpdatedAt       string  `json:"updated_at,omitempty"`
}

// JobListResponse wraps a collection of summaries, newest first.
type JobListResponse struct {
	Jobs []JobSummary `json:"jobs"`
}

// Event is one progress update on a job's events stream.
type Event struct {
	Seq       int64    `json:"seq"`
	JobID     string   `json:"job_id"`
	Status    string   `json:"status"`
	Progress  int      `json:"progress"`
	Message   string   `json:"message,omitempty"`
	Error     *Failure `json:"error,omitempty"`
	Timestamp string   `json:"timestamp,omitempty"`
}

// Terminal reports whether the event ends the job's stream.
func (e Event) Terminal() bool {
	return e.Status == "completed" || e.Status == "failed"
}

// WorkflowStatus summarizes scheduling state.
type WorkflowStatus struct {
	Running   bool           `json:"running"`
	StartedAt string         `json:"started_at,omitempty"`
	Counts    map[string]int `json:"counts"`
	Queued    []string       `json:"queued"`
	InFlight  []string       `json:"in_flight"`
	Active    int            `json:"active"`
	Limit     int            `json:"limit"`
}

// DependencyStatus captures availability of an external executable.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// CheckResult reports one preflight check.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// ModelStatus reports whether a recognition model is installed.
type ModelStatus struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	SizeMiB     int    `json:"size_mib"`
	Installed   bool   `json:"installed"`
	Default     bool   `json:"default"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running           bool               `json:"running"`
	PID               int                `json:"pid"`
	DatabasePath      string             `json:"database_path"`
	LockFilePath      string             `json:"lock_file_path"`
	ReformatAvailable bool               `json:"reformat_available"`
	Workflow          WorkflowStatus     `json:"workflow"`
	Dependencies      []DependencyStatus `json:"dependencies"`
	Checks            []CheckResult      `json:"checks,omitempty"`
	Models            []ModelStatus      `json:"models"`
}

// NotificationResponse reports the outcome of a test notification.
type NotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
