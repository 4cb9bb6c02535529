package youtube

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/kkdai/youtube/v2"

	"github.com/Kat4X/video-transcriber/internal/logging"
	"github.com/Kat4X/video-transcriber/internal/services"
	"github.com/Kat4X/video-transcriber/internal/stageexec"
)

const stageName = "downloading"

var allowedHosts = map[string]bool{
	"youtube.com":       true,
	"www.youtube.com":   true,
	"m.youtube.com":     true,
	"music.youtube.com": true,
	"youtu.be":          true,
}

// VideoClient is the subset of the YouTube client the downloader uses.
type VideoClient interface {
	GetVideoContext(ctx context.Context, url string) (*youtube.Video, error)
	GetStreamContext(ctx context.Context, video *youtube.Video, format *youtube.Format) (io.ReadCloser, int64, error)
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithClient replaces the YouTube client.
func WithClient(client VideoClient) Option {
	return func(d *Downloader) {
		if client != nil {
			d.client = client
		}
	}
}

// Downloader implements stageexec.Downloader for YouTube URLs.
type Downloader struct {
	client VideoClient
	logger *slog.Logger
}

// NewDownloader creates a downloader backed by the public YouTube client.
func NewDownloader(logger *slog.Logger, opts ...Option) *Downloader {
	if logger == nil {
		logger = logging.NewNop()
	}
	d := &Downloader{
		client: &youtube.Client{},
		logger: logging.NewComponentLogger(logger, "youtube"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Supports reports whether rawURL is a YouTube link the downloader accepts.
func Supports(rawURL string) bool {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	if !allowedHosts[strings.ToLower(parsed.Hostname())] {
		return false
	}
	_, err = youtube.ExtractVideoID(rawURL)
	return err == nil
}

// Download implements stageexec.Downloader.
func (d *Downloader) Download(ctx context.Context, rawURL, destDir string, r stageexec.Reporter) (stageexec.Media, error) {
	if r == nil {
		r = stageexec.Discard
	}
	if !Supports(rawURL) {
		return stageexec.Media{}, services.Wrap(services.ErrAcquire, stageName, "check url",
			fmt.Sprintf("unsupported video url %q", rawURL), nil)
	}
	video, err := d.client.GetVideoContext(ctx, rawURL)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return stageexec.Media{}, ctxErr
		}
		return stageexec.Media{}, services.Wrap(services.ErrAcquire, stageName, "fetch video info",
			"video unavailable", err)
	}
	format := pickAudioFormat(video.Formats)
	if format == nil {
		return stageexec.Media{}, services.Wrap(services.ErrAcquire, stageName, "select format",
			"video has no audio stream", nil)
	}

	logger := logging.WithContext(ctx, d.logger)
	logger.Info("youtube download started",
		logging.String("video_id", video.ID),
		logging.String("title", video.Title),
		logging.String("mime_type", format.MimeType),
		logging.Int("bitrate", format.Bitrate),
	)

	stream, size, err := d.client.GetStreamContext(ctx, video, format)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return stageexec.Media{}, ctxErr
		}
		return stageexec.Media{}, services.Wrap(services.ErrAcquire, stageName, "open stream", "", err)
	}
	defer stream.Close()
	if size <= 0 {
		size = format.ContentLength
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return stageexec.Media{}, services.Wrap(services.ErrAcquire, stageName, "ensure work dir", destDir, err)
	}
	dest := filepath.Join(destDir, "source"+extensionFor(format.MimeType))
	if err := copyWithProgress(dest, stream, size, r); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return stageexec.Media{}, ctxErr
		}
		return stageexec.Media{}, services.Wrap(services.ErrAcquire, stageName, "download stream", "", err)
	}
	r.Report(100, "Downloading media")
	return stageexec.Media{
		Path:            dest,
		Title:           strings.TrimSpace(video.Title),
		DurationSeconds: video.Duration.Seconds(),
	}, nil
}

func copyWithProgress(dest string, src io.Reader, size int64, r stageexec.Reporter) (err error) {
	file, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()
	counter := &progressWriter{size: size, report: r}
	written, err := io.Copy(io.MultiWriter(file, counter), src)
	if err != nil {
		return err
	}
	if written == 0 {
		return errors.New("stream was empty")
	}
	return nil
}

type progressWriter struct {
	size    int64
	written int64
	report  stageexec.Reporter
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.written += int64(len(b))
	if p.size > 0 {
		pct := int(p.written * 100 / p.size)
		p.report.Report(min(pct, 99), "Downloading media")
	}
	return len(b), nil
}

// pickAudioFormat prefers audio-only streams by bitrate, mp4 winning ties.
func pickAudioFormat(formats youtube.FormatList) *youtube.Format {
	var best *youtube.Format
	bestAudioOnly := false
	for i := range formats {
		f := &formats[i]
		if f.AudioChannels <= 0 && !strings.HasPrefix(f.MimeType, "audio/") {
			continue
		}
		audioOnly := strings.HasPrefix(f.MimeType, "audio/")
		switch {
		case best == nil:
		case audioOnly != bestAudioOnly:
			if !audioOnly {
				continue
			}
		case f.Bitrate < best.Bitrate:
			continue
		case f.Bitrate == best.Bitrate && !(strings.Contains(f.MimeType, "mp4") && !strings.Contains(best.MimeType, "mp4")):
			continue
		}
		best = f
		bestAudioOnly = audioOnly
	}
	return best
}

func extensionFor(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	switch strings.TrimSpace(base) {
	case "audio/mp4":
		return ".m4a"
	case "audio/webm", "video/webm":
		return ".webm"
	case "video/mp4":
		return ".mp4"
	case "video/3gpp":
		return ".3gp"
	default:
		return ".bin"
	}
}
