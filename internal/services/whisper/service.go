package whisper

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/Kat4X/video-transcriber/internal/jobs"
	"github.com/Kat4X/video-transcriber/internal/logging"
	"github.com/Kat4X/video-transcriber/internal/services"
	"github.com/Kat4X/video-transcriber/internal/stageexec"
)

// DefaultBinary is the whisper.cpp CLI name used when none is configured.
const DefaultBinary = "whisper-cli"

const stderrTailLines = 20

var progressPattern = regexp.MustCompile(`progress\s*=\s*(\d{1,3})\s*%`)

var oomMarkers = []string{
	"out of memory",
	"failed to allocate",
	"not enough space",
	"std::bad_alloc",
	"cannot allocate memory",
}

// Config captures runtime settings for recognition.
type Config struct {
	// Binary is the whisper.cpp CLI executable.
	Binary string
	// ModelsDir holds the ggml-<id>.bin model files.
	ModelsDir string
	// Threads passed with -t; zero lets whisper.cpp decide.
	Threads int
}

// Service runs recognition through the whisper.cpp CLI.
type Service struct {
	cfg    Config
	logger *slog.Logger
}

// NewService creates a recognizer with the given configuration.
func NewService(cfg Config, logger *slog.Logger) *Service {
	if strings.TrimSpace(cfg.Binary) == "" {
		cfg.Binary = DefaultBinary
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{cfg: cfg, logger: logging.NewComponentLogger(logger, "whisper")}
}

// Recognize implements stageexec.Recognizer.
func (s *Service) Recognize(ctx context.Context, audioPath string, opts stageexec.RecognizeOptions, r stageexec.Reporter) (stageexec.Transcript, error) {
	if r == nil {
		r = stageexec.Discard
	}
	modelPath, err := Resolve(s.cfg.ModelsDir, opts.Model)
	if err != nil {
		return stageexec.Transcript{}, err
	}
	prefix := strings.TrimSuffix(audioPath, filepath.Ext(audioPath))
	args := buildArgs(modelPath, audioPath, prefix, opts.Language, s.cfg.Threads)

	logger := logging.WithContext(ctx, s.logger)
	logger.Debug("whisper command", logging.String("binary", s.cfg.Binary), logging.String("args", strings.Join(args, " ")))

	cmd := exec.CommandContext(ctx, s.cfg.Binary, args...) //nolint:gosec
	cmd.Stdout = io.Discard
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return stageexec.Transcript{}, services.Wrap(services.ErrRecognition, "transcribing", "open stderr", "", err)
	}
	if err := cmd.Start(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return stageexec.Transcript{}, ctxErr
		}
		return stageexec.Transcript{}, services.Wrap(services.ErrRecognition, "transcribing", "start whisper",
			fmt.Sprintf("binary %q", s.cfg.Binary), err)
	}
	tail := scanProgress(stderr, r)
	waitErr := cmd.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return stageexec.Transcript{}, ctxErr
	}
	if waitErr != nil {
		detail := strings.Join(tail, "\n")
		marker := services.ErrRecognition
		if isOutOfMemory(detail) {
			marker = services.ErrResourceExhausted
		}
		return stageexec.Transcript{}, services.Wrap(marker, "transcribing", "run whisper", lastLine(tail), waitErr)
	}

	transcript, err := loadTranscript(prefix + ".json")
	if err != nil {
		return stageexec.Transcript{}, services.Wrap(services.ErrRecognition, "transcribing", "parse output", "", err)
	}
	if transcript.Language == "" && opts.Language != "" && opts.Language != "auto" {
		transcript.Language = opts.Language
	}
	r.Report(100, "Transcribing audio")
	logger.Debug("whisper finished",
		logging.Int("segment_count", len(transcript.Segments)),
		logging.String("language", transcript.Language),
	)
	return transcript, nil
}

func buildArgs(modelPath, audioPath, prefix, language string, threads int) []string {
	language = strings.TrimSpace(language)
	if language == "" {
		language = "auto"
	}
	args := []string{
		"-m", modelPath,
		"-f", audioPath,
		"-l", language,
		"-oj",
		"-of", prefix,
		"-pp",
	}
	if threads > 0 {
		args = append(args, "-t", strconv.Itoa(threads))
	}
	return args
}

// scanProgress relays progress lines and returns the last stderr lines.
func scanProgress(stderr io.Reader, r stageexec.Reporter) []string {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	tail := make([]string, 0, stderrTailLines)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if m := progressPattern.FindStringSubmatch(line); m != nil {
			if pct, err := strconv.Atoi(m[1]); err == nil {
				r.Report(pct, "Transcribing audio")
			}
			continue
		}
		if len(tail) == stderrTailLines {
			tail = tail[1:]
		}
		tail = append(tail, line)
	}
	// Drain whatever remains so the process never blocks on a full pipe.
	_, _ = io.Copy(io.Discard, stderr)
	return tail
}

func isOutOfMemory(output string) bool {
	lower := strings.ToLower(output)
	for _, marker := range oomMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func lastLine(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}

type outputPayload struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

func loadTranscript(path string) (stageexec.Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return stageexec.Transcript{}, err
	}
	return parseOutput(data)
}

func parseOutput(data []byte) (stageexec.Transcript, error) {
	var payload outputPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return stageexec.Transcript{}, fmt.Errorf("decode whisper json: %w", err)
	}
	if payload.Transcription == nil {
		return stageexec.Transcript{}, errors.New("whisper json has no transcription")
	}
	segments := make([]jobs.Segment, 0, len(payload.Transcription))
	parts := make([]string, 0, len(payload.Transcription))
	for _, item := range payload.Transcription {
		text := strings.TrimSpace(item.Text)
		if text == "" {
			continue
		}
		segments = append(segments, jobs.Segment{
			Start: float64(item.Offsets.From) / 1000,
			End:   float64(item.Offsets.To) / 1000,
			Text:  text,
		})
		parts = append(parts, text)
	}
	return stageexec.Transcript{
		Text:     strings.Join(parts, " "),
		Segments: segments,
		Language: strings.ToLower(strings.TrimSpace(payload.Result.Language)),
	}, nil
}
