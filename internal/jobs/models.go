package jobs

import (
	"path/filepath"
	"strings"
	"time"
)

// State represents the lifecycle of a transcription job.
type State string

const (
	StatePending      State = "pending"
	StateDownloading  State = "downloading"
	StateExtracting   State = "extracting"
	StateTranscribing State = "transcribing"
	StateFormatting   State = "formatting"
	StateCompleted    State = "completed"
	StateFailed       State = "failed"
)

var stateOrder = []State{
	StatePending,
	StateDownloading,
	StateExtracting,
	StateTranscribing,
	StateFormatting,
	StateCompleted,
	StateFailed,
}

var stateRank = func() map[State]int {
	ranks := make(map[State]int, len(stateOrder))
	for idx, state := range stateOrder {
		ranks[state] = idx
	}
	return ranks
}()

// AllStates returns every known state in stage order.
func AllStates() []State {
	out := make([]State, len(stateOrder))
	copy(out, stateOrder)
	return out
}

// ParseState converts user input into a State.
func ParseState(value string) (State, bool) {
	state := State(strings.ToLower(strings.TrimSpace(value)))
	_, ok := stateRank[state]
	return state, ok
}

// Valid reports whether the state is one of the known states.
func (s State) Valid() bool {
	_, ok := stateRank[s]
	return ok
}

// Terminal reports whether no further transitions are permitted.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Rank returns the position of the state in stage order. Unknown states rank -1.
func (s State) Rank() int {
	if rank, ok := stateRank[s]; ok {
		return rank
	}
	return -1
}

// CanTransition reports whether a job may move from one state to another.
// Staying in the same non-terminal state is allowed (progress updates); stages
// may be skipped but never revisited, and failed is reachable from any
// non-terminal state.
func CanTransition(from, to State) bool {
	if !from.Valid() || !to.Valid() || from.Terminal() {
		return false
	}
	if to == StateFailed || to == from {
		return true
	}
	return to.Rank() > from.Rank()
}

// ErrorKind classifies why a job failed or a request was rejected.
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindAcquireFailed     ErrorKind = "acquire_failed"
	KindExtractFailed     ErrorKind = "extract_failed"
	KindRecognitionFailed ErrorKind = "recognition_failed"
	KindReformatFailed    ErrorKind = "reformat_failed"
	KindResourceExhausted ErrorKind = "resource_exhausted"
	KindCancelled         ErrorKind = "cancelled"
	KindTimeout           ErrorKind = "timeout"
	KindNotFound          ErrorKind = "not_found"
)

// Failure is the terminal error recorded on a failed job.
type Failure struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// SourceKind distinguishes local media from remote URLs.
type SourceKind string

const (
	SourceLocalFile SourceKind = "local_file"
	SourceRemoteURL SourceKind = "remote_url"
)

// Source identifies the media a job transcribes.
type Source struct {
	Kind SourceKind `json:"kind"`
	Path string     `json:"path,omitempty"`
	URL  string     `json:"url,omitempty"`
	Name string     `json:"name,omitempty"`
	// Managed marks a file staged by the daemon (an HTTP upload). Managed
	// files belong to the job and are removed when the job is deleted.
	Managed bool `json:"managed,omitempty"`
}

// DisplayName returns a human readable label for the source.
func (s Source) DisplayName() string {
	if name := strings.TrimSpace(s.Name); name != "" {
		return name
	}
	if s.Kind == SourceLocalFile && s.Path != "" {
		return filepath.Base(s.Path)
	}
	return s.URL
}

// Options is the immutable snapshot of recognition settings taken at submission.
type Options struct {
	Model             string `json:"model"`
	Language          string `json:"language"`
	IncludeTimestamps bool   `json:"include_timestamps"`
	Reformat          bool   `json:"reformat"`
}

// Segment is one timed span of recognized speech. Times are seconds.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Result is recorded on completed jobs only.
type Result struct {
	Text             string    `json:"text"`
	Segments         []Segment `json:"segments,omitempty"`
	Subtitles        string    `json:"subtitles,omitempty"`
	DurationSeconds  float64   `json:"duration_seconds"`
	SourceName       string    `json:"source_name"`
	DetectedLanguage string    `json:"detected_language,omitempty"`
	Reformatted      bool      `json:"reformatted"`
	ReformatError    string    `json:"reformat_error,omitempty"`
}

// Job is the central lifecycle record of one transcription request.
type Job struct {
	ID        string    `json:"id"`
	Source    Source    `json:"source"`
	Options   Options   `json:"options"`
	State     State     `json:"status"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message,omitempty"`
	Result    *Result   `json:"result,omitempty"`
	Error     *Failure  `json:"error,omitempty"`
	WorkDir   string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Summary is the list projection of a job; it omits the transcript body.
type Summary struct {
	ID              string     `json:"id"`
	SourceName      string     `json:"source_name"`
	SourceKind      SourceKind `json:"source_kind"`
	State           State      `json:"status"`
	Progress        int        `json:"progress"`
	Message         string     `json:"message,omitempty"`
	DurationSeconds float64    `json:"duration_seconds"`
	ErrorKind       ErrorKind  `json:"error_kind,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Filter narrows List results.
type Filter struct {
	States []State
	// Limit caps the number of summaries returned; zero means unlimited.
	Limit int
}

// New builds a pending job for the provided source and options.
func New(id string, source Source, opts Options) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:        id,
		Source:    source,
		Options:   opts,
		State:     StatePending,
		Message:   "Queued",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy of the job.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	out := *j
	if j.Result != nil {
		res := *j.Result
		if len(j.Result.Segments) > 0 {
			res.Segments = append([]Segment(nil), j.Result.Segments...)
		}
		out.Result = &res
	}
	if j.Error != nil {
		failure := *j.Error
		out.Error = &failure
	}
	return &out
}

// Advance moves the job into a new stage and resets progress to the stage start.
func (j *Job) Advance(state State, percent int, message string) {
	j.State = state
	j.Progress = clampPercent(percent)
	j.Message = message
}

// SetProgress updates progress within the current stage.
func (j *Job) SetProgress(percent int, message string) {
	j.Progress = clampPercent(percent)
	if message != "" {
		j.Message = message
	}
}

// Fail moves the job into the failed terminal state.
func (j *Job) Fail(kind ErrorKind, message string) {
	j.State = StateFailed
	j.Result = nil
	j.Error = &Failure{Kind: kind, Message: message}
	j.Message = message
}

// Complete moves the job into the completed terminal state.
func (j *Job) Complete(result Result) {
	j.State = StateCompleted
	j.Progress = 100
	j.Error = nil
	j.Result = &result
	j.Message = "Completed"
}

// Summary projects the job into its list form.
func (j *Job) Summary() Summary {
	summary := Summary{
		ID:         j.ID,
		SourceName: j.Source.DisplayName(),
		SourceKind: j.Source.Kind,
		State:      j.State,
		Progress:   j.Progress,
		Message:    j.Message,
		CreatedAt:  j.CreatedAt,
		UpdatedAt:  j.UpdatedAt,
	}
	if j.Result != nil {
		summary.DurationSeconds = j.Result.DurationSeconds
	}
	if j.Error != nil {
		summary.ErrorKind = j.Error.Kind
	}
	return summary
}

func clampPercent(percent int) int {
	switch {
	case percent < 0:
		return 0
	case percent > 100:
		return 100
	default:
		return percent
	}
}
