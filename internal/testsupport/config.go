package testsupport

import (
	"path/filepath"
	"testing"

	"github.com/Kat4X/video-transcriber/internal/config"
)

// ConfigOption tweaks the config produced by NewConfig before its
// directories are created.
type ConfigOption func(testing.TB, *config.Config)

// NewConfig returns defaults rooted in a fresh t.TempDir: data, logs and
// models live side by side, the API binds an ephemeral loopback port,
// reformatting is off and the scheduler polls every 20ms.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()
	root := t.TempDir()

	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(root, "data")
	cfg.Paths.LogDir = filepath.Join(root, "logs")
	cfg.Paths.ModelsDir = filepath.Join(root, "models")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.LLM.APIKey = ""
	cfg.Workflow.PollIntervalMillis = 20
	cfg.Workflow.MinFreeSpaceMiB = 0

	for _, opt := range opts {
		opt(t, &cfg)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("test config directories: %v", err)
	}
	return &cfg
}

// WithMaxConcurrent sets transcription.max_concurrent.
func WithMaxConcurrent(limit int) ConfigOption {
	return func(_ testing.TB, cfg *config.Config) { cfg.Transcription.MaxConcurrent = limit }
}

// WithModels installs placeholder ggml-<id>.bin files so the model catalog
// reports those ids as present.
func WithModels(ids ...string) ConfigOption {
	return func(t testing.TB, cfg *config.Config) {
		for _, id := range ids {
			WriteFile(t, filepath.Join(cfg.Paths.ModelsDir, "ggml-"+id+".bin"), 16)
		}
	}
}

// BaseDir is the temp root NewConfig placed cfg under.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
