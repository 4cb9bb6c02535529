package youtube_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kkdai/youtube/v2"

	"github.com/Kat4X/video-transcriber/internal/services"
	ytdl "github.com/Kat4X/video-transcriber/internal/services/youtube"
	"github.com/Kat4X/video-transcriber/internal/stageexec"
)

type fakeClient struct {
	video    *youtube.Video
	videoErr error
	payload  []byte
	picked   *youtube.Format
}

func (f *fakeClient) GetVideoContext(context.Context, string) (*youtube.Video, error) {
	return f.video, f.videoErr
}

func (f *fakeClient) GetStreamContext(_ context.Context, _ *youtube.Video, format *youtube.Format) (io.ReadCloser, int64, error) {
	f.picked = format
	return io.NopCloser(bytes.NewReader(f.payload)), int64(len(f.payload)), nil
}

const watchURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

func TestSupports(t *testing.T) {
	cases := map[string]bool{
		watchURL:                       true,
		"https://youtu.be/dQw4w9WgXcQ": true,
		"https://vimeo.com/12345":      false,
		"ftp://www.youtube.com/watch?v=dQw4w9WgXcQ": false,
		"not a url": false,
	}
	for raw, want := range cases {
		if got := ytdl.Supports(raw); got != want {
			t.Errorf("Supports(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestDownloadPicksBestAudioStream(t *testing.T) {
	client := &fakeClient{
		video: &youtube.Video{
			ID:       "dQw4w9WgXcQ",
			Title:    "  Lecture One ",
			Duration: 90 * time.Second,
			Formats: youtube.FormatList{
				{ItagNo: 18, MimeType: `video/mp4; codecs="avc1"`, Bitrate: 500000, AudioChannels: 2},
				{ItagNo: 251, MimeType: `audio/webm; codecs="opus"`, Bitrate: 130000, AudioChannels: 2},
				{ItagNo: 140, MimeType: `audio/mp4; codecs="mp4a.40.2"`, Bitrate: 130000, AudioChannels: 2},
				{ItagNo: 249, MimeType: `audio/webm; codecs="opus"`, Bitrate: 50000, AudioChannels: 2},
				{ItagNo: 137, MimeType: `video/mp4; codecs="avc1"`, Bitrate: 4000000},
			},
		},
		payload: bytes.Repeat([]byte("a"), 4096),
	}
	d := ytdl.NewDownloader(nil, ytdl.WithClient(client))
	dest := t.TempDir()
	var last int
	media, err := d.Download(context.Background(), watchURL, dest, stageexec.ReporterFunc(func(p int, _ string) { last = p }))
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if client.picked == nil || client.picked.ItagNo != 140 {
		t.Fatalf("expected itag 140, got %+v", client.picked)
	}
	if media.Title != "Lecture One" || media.DurationSeconds != 90 {
		t.Fatalf("unexpected media %+v", media)
	}
	if media.Path != filepath.Join(dest, "source.m4a") {
		t.Fatalf("unexpected path %q", media.Path)
	}
	if info, err := os.Stat(media.Path); err != nil || info.Size() != 4096 {
		t.Fatalf("expected downloaded file, err=%v", err)
	}
	if last != 100 {
		t.Fatalf("expected final report 100, got %d", last)
	}
}

func TestDownloadFallsBackToMuxedStream(t *testing.T) {
	client := &fakeClient{
		video: &youtube.Video{
			Formats: youtube.FormatList{
				{ItagNo: 137, MimeType: "video/mp4", Bitrate: 4000000},
				{ItagNo: 18, MimeType: "video/mp4", Bitrate: 500000, AudioChannels: 2},
			},
		},
		payload: []byte("muxed"),
	}
	d := ytdl.NewDownloader(nil, ytdl.WithClient(client))
	media, err := d.Download(context.Background(), watchURL, t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if client.picked.ItagNo != 18 || filepath.Ext(media.Path) != ".mp4" {
		t.Fatalf("expected muxed itag 18, got %+v (%s)", client.picked, media.Path)
	}
}

func TestDownloadFailures(t *testing.T) {
	cases := []struct {
		name   string
		url    string
		client *fakeClient
	}{
		{"unsupported host", "https://example.com/video.mp4", &fakeClient{}},
		{"unavailable", watchURL, &fakeClient{videoErr: errors.New("video is private")}},
		{"no audio", watchURL, &fakeClient{video: &youtube.Video{Formats: youtube.FormatList{{MimeType: "video/mp4"}}}}},
		{"empty stream", watchURL, &fakeClient{video: &youtube.Video{Formats: youtube.FormatList{{MimeType: "audio/mp4", AudioChannels: 2}}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := ytdl.NewDownloader(nil, ytdl.WithClient(tc.client))
			_, err := d.Download(context.Background(), tc.url, t.TempDir(), nil)
			if !errors.Is(err, services.ErrAcquire) {
				t.Fatalf("expected acquire error, got %v", err)
			}
		})
	}
}
