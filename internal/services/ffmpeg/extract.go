package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Kat4X/video-transcriber/internal/logging"
	"github.com/Kat4X/video-transcriber/internal/media/ffprobe"
	"github.com/Kat4X/video-transcriber/internal/services"
	"github.com/Kat4X/video-transcriber/internal/stageexec"
)

// AudioFileName is the name of the extracted audio inside the job work directory.
const AudioFileName = "audio.wav"

const stageName = "extracting"

// Config names the ffmpeg and ffprobe executables.
type Config struct {
	FFmpeg  string
	FFprobe string
}

// Service converts media to recognition-ready WAV audio.
type Service struct {
	cfg    Config
	logger *slog.Logger
}

// NewService creates an extractor with the given binaries.
func NewService(cfg Config, logger *slog.Logger) *Service {
	if strings.TrimSpace(cfg.FFmpeg) == "" {
		cfg.FFmpeg = "ffmpeg"
	}
	if strings.TrimSpace(cfg.FFprobe) == "" {
		cfg.FFprobe = "ffprobe"
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{cfg: cfg, logger: logging.NewComponentLogger(logger, "ffmpeg")}
}

// Extract implements stageexec.Extractor.
func (s *Service) Extract(ctx context.Context, mediaPath, destDir string, r stageexec.Reporter) (stageexec.Audio, error) {
	if r == nil {
		r = stageexec.Discard
	}
	probe, err := ffprobe.Inspect(ctx, s.cfg.FFprobe, mediaPath)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return stageexec.Audio{}, ctxErr
		}
		return stageexec.Audio{}, services.Wrap(services.ErrExtract, stageName, "probe media",
			"file is not readable media", err)
	}
	if probe.AudioStreamCount() == 0 {
		return stageexec.Audio{}, services.Wrap(services.ErrExtract, stageName, "probe media",
			"file has no audio stream", nil)
	}
	duration := probe.DurationSeconds()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return stageexec.Audio{}, services.Wrap(services.ErrExtract, stageName, "ensure work dir", destDir, err)
	}
	dest := filepath.Join(destDir, AudioFileName)
	args := buildArgs(mediaPath, dest)

	logger := logging.WithContext(ctx, s.logger)
	logger.Debug("ffmpeg command",
		logging.String("binary", s.cfg.FFmpeg),
		logging.String("args", strings.Join(args, " ")),
		logging.Float64("duration_seconds", duration),
	)

	cmd := exec.CommandContext(ctx, s.cfg.FFmpeg, args...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return stageexec.Audio{}, services.Wrap(services.ErrExtract, stageName, "open stdout", "", err)
	}
	if err := cmd.Start(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return stageexec.Audio{}, ctxErr
		}
		return stageexec.Audio{}, services.Wrap(services.ErrExtract, stageName, "start ffmpeg",
			fmt.Sprintf("binary %q", s.cfg.FFmpeg), err)
	}
	scanProgress(stdout, duration, r)
	waitErr := cmd.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return stageexec.Audio{}, ctxErr
	}
	if waitErr != nil {
		return stageexec.Audio{}, services.Wrap(services.ErrExtract, stageName, "run ffmpeg",
			lastLine(stderr.String()), waitErr)
	}
	if info, err := os.Stat(dest); err != nil || info.Size() == 0 {
		return stageexec.Audio{}, services.Wrap(services.ErrExtract, stageName, "verify output",
			"ffmpeg produced no audio", err)
	}
	r.Report(100, "Extracting audio")
	return stageexec.Audio{Path: dest, DurationSeconds: duration}, nil
}

func buildArgs(source, dest string) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-nostdin",
		"-loglevel", "error",
		"-i", source,
		"-map", "0:a:0",
		"-vn",
		"-sn",
		"-dn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		"-progress", "pipe:1",
		"-nostats",
		dest,
	}
}

// scanProgress reads ffmpeg -progress key=value blocks. out_time_ms is in
// microseconds despite its name.
func scanProgress(stdout io.Reader, duration float64, r stageexec.Reporter) {
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "out_time_ms", "out_time_us":
			if duration <= 0 {
				continue
			}
			micros, err := strconv.ParseInt(value, 10, 64)
			if err != nil || micros < 0 {
				continue
			}
			pct := int(float64(micros) / 1e6 / duration * 100)
			r.Report(min(pct, 99), "Extracting audio")
		case "progress":
			if value == "end" {
				r.Report(100, "Extracting audio")
			}
		}
	}
	_, _ = io.Copy(io.Discard, stdout)
}

func lastLine(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
