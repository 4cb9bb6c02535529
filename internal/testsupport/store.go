package testsupport

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/Kat4X/video-transcriber/internal/config"
	"github.com/Kat4X/video-transcriber/internal/jobs"
)

// MustOpenStore opens a jobs.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *jobs.Store {
	t.Helper()

	store, err := jobs.Open(cfg)
	if err != nil {
		t.Fatalf("jobs.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewLocalJob creates a pending job for a media file written under the test
// base directory.
func NewLocalJob(t testing.TB, store *jobs.Store, cfg *config.Config, name string, opts jobs.Options) *jobs.Job {
	t.Helper()

	path := filepath.Join(BaseDir(cfg), "media", name)
	WriteFile(t, path, 1024)
	job := jobs.New(uuid.NewString(), jobs.Source{Kind: jobs.SourceLocalFile, Path: path, Name: name}, opts)
	if err := store.Create(context.Background(), job); err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return job
}

// NewRemoteJob creates a pending job for a remote URL.
func NewRemoteJob(t testing.TB, store *jobs.Store, rawURL string, opts jobs.Options) *jobs.Job {
	t.Helper()

	job := jobs.New(uuid.NewString(), jobs.Source{Kind: jobs.SourceRemoteURL, URL: rawURL}, opts)
	if err := store.Create(context.Background(), job); err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return job
}
