package jobs_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Kat4X/video-transcriber/internal/jobs"
	"github.com/Kat4X/video-transcriber/internal/testsupport"
)

func TestCreateGetRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	opts := jobs.Options{Model: "small", Language: "ru", IncludeTimestamps: true}
	job := testsupport.NewLocalJob(t, store, cfg, "lecture.mp4", opts)

	fetched, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if fetched.State != jobs.StatePending || fetched.Options != opts {
		t.Fatalf("unexpected fetched job: %#v", fetched)
	}
	if fetched.Source.Path != job.Source.Path || fetched.Source.Kind != jobs.SourceLocalFile {
		t.Fatalf("unexpected source: %#v", fetched.Source)
	}
	if fetched.CreatedAt.IsZero() {
		t.Fatal("expected created_at to round-trip")
	}

	if err := store.Create(ctx, job); !errors.Is(err, jobs.ErrDuplicate) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, jobs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.Update(context.Background(), "missing", func(*jobs.Job) error { return nil }); !errors.Is(err, jobs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from Update, got %v", err)
	}
	if err := store.Delete(context.Background(), "missing"); !errors.Is(err, jobs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from Delete, got %v", err)
	}
}

func TestUpdateRejectsIllegalTransitions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	job := testsupport.NewLocalJob(t, store, cfg, "a.mp4", jobs.Options{Model: "base"})

	if _, err := store.Update(ctx, job.ID, func(j *jobs.Job) error {
		j.Advance(jobs.StateTranscribing, 25, "Transcribing")
		return nil
	}); err != nil {
		t.Fatalf("advance: %v", err)
	}

	if _, err := store.Update(ctx, job.ID, func(j *jobs.Job) error {
		j.Advance(jobs.StateDownloading, 0, "back")
		return nil
	}); !errors.Is(err, jobs.ErrInvalidTransition) {
		t.Fatalf("expected backward transition to be rejected, got %v", err)
	}

	if _, err := store.Update(ctx, job.ID, func(j *jobs.Job) error {
		j.SetProgress(10, "")
		return nil
	}); !errors.Is(err, jobs.ErrInvalidTransition) {
		t.Fatalf("expected progress regression to be rejected, got %v", err)
	}

	if _, err := store.Update(ctx, job.ID, func(j *jobs.Job) error {
		j.Options.Model = "large-v3"
		return nil
	}); !errors.Is(err, jobs.ErrInvalidJob) {
		t.Fatalf("expected options mutation to be rejected, got %v", err)
	}

	fetched, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if fetched.State != jobs.StateTranscribing || fetched.Progress != 25 || fetched.Options.Model != "base" {
		t.Fatalf("rejected updates must not be visible, got %#v", fetched)
	}
}

func TestUpdateMutationErrorRollsBack(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	job := testsupport.NewLocalJob(t, store, cfg, "a.mp4", jobs.Options{Model: "base"})

	boom := errors.New("boom")
	_, err := store.Update(ctx, job.ID, func(j *jobs.Job) error {
		j.Advance(jobs.StateExtracting, 20, "half applied")
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected mutation error, got %v", err)
	}
	fetched, _ := store.Get(ctx, job.ID)
	if fetched.State != jobs.StatePending {
		t.Fatalf("expected no partial write, got state %s", fetched.State)
	}
}

func TestTerminalJobsAreImmutable(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	job := testsupport.NewLocalJob(t, store, cfg, "a.mp4", jobs.Options{Model: "base"})

	completed, err := store.Update(ctx, job.ID, func(j *jobs.Job) error {
		j.Complete(jobs.Result{
			Text:            "hello world",
			Segments:        []jobs.Segment{{Start: 0, End: 1.5, Text: "hello world"}},
			DurationSeconds: 1.5,
			SourceName:      "a.mp4",
		})
		return nil
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !completed.UpdatedAt.After(job.UpdatedAt) && !completed.UpdatedAt.Equal(job.UpdatedAt) {
		t.Fatalf("expected updated_at to move forward")
	}

	if _, err := store.Update(ctx, job.ID, func(j *jobs.Job) error {
		j.Fail(jobs.KindCancelled, "late cancel")
		return nil
	}); !errors.Is(err, jobs.ErrInvalidTransition) {
		t.Fatalf("expected terminal job to reject failure, got %v", err)
	}

	fetched, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if fetched.Result == nil || fetched.Error != nil {
		t.Fatalf("expected result only, got %#v", fetched)
	}
	if len(fetched.Result.Segments) != 1 || fetched.Result.Segments[0].End != 1.5 {
		t.Fatalf("unexpected segments: %#v", fetched.Result.Segments)
	}
}

func TestListOrdersNewestFirstAndOmitsBody(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first := testsupport.NewLocalJob(t, store, cfg, "first.mp4", jobs.Options{Model: "base"})
	time.Sleep(2 * time.Millisecond)
	second := testsupport.NewRemoteJob(t, store, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", jobs.Options{Model: "base"})
	time.Sleep(2 * time.Millisecond)
	third := testsupport.NewLocalJob(t, store, cfg, "third.mp4", jobs.Options{Model: "base"})

	if _, err := store.Update(ctx, first.ID, func(j *jobs.Job) error {
		j.Complete(jobs.Result{Text: "body", DurationSeconds: 42})
		return nil
	}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	summaries, err := store.List(ctx, jobs.Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(summaries) != 3 {
		t.Fatalf("expected 3 summaries, got %d", len(summaries))
	}
	want := []string{third.ID, second.ID, first.ID}
	for i, id := range want {
		if summaries[i].ID != id {
			t.Fatalf("position %d: got %s want %s", i, summaries[i].ID, id)
		}
	}
	if summaries[2].DurationSeconds != 42 || summaries[2].SourceName != "first.mp4" {
		t.Fatalf("unexpected completed summary: %#v", summaries[2])
	}

	limited, err := store.List(ctx, jobs.Filter{Limit: 1})
	if err != nil || len(limited) != 1 || limited[0].ID != third.ID {
		t.Fatalf("unexpected limited list: %#v err=%v", limited, err)
	}

	pending, err := store.List(ctx, jobs.Filter{States: []jobs.State{jobs.StatePending}})
	if err != nil {
		t.Fatalf("List pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending summaries, got %d", len(pending))
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[jobs.StatePending] != 2 || stats[jobs.StateCompleted] != 1 {
		t.Fatalf("unexpected stats: %#v", stats)
	}

	unfinished, err := store.ListUnfinished(ctx)
	if err != nil {
		t.Fatalf("ListUnfinished: %v", err)
	}
	if len(unfinished) != 2 || unfinished[0].ID != second.ID || unfinished[1].ID != third.ID {
		t.Fatalf("unexpected unfinished ordering: %#v", unfinished)
	}
}

func TestDeleteRemovesArtifacts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	upload := filepath.Join(cfg.UploadsDir(), "upload.mp4")
	testsupport.WriteFile(t, upload, 64)
	managed := jobs.New("managed-1", jobs.Source{Kind: jobs.SourceLocalFile, Path: upload, Managed: true}, jobs.Options{Model: "base"})
	managed.WorkDir = filepath.Join(cfg.JobsDir(), managed.ID)
	testsupport.WriteFile(t, filepath.Join(managed.WorkDir, "audio.wav"), 64)
	if err := store.Create(ctx, managed); err != nil {
		t.Fatalf("Create: %v", err)
	}

	userFile := filepath.Join(testsupport.BaseDir(cfg), "mine.mp4")
	testsupport.WriteFile(t, userFile, 64)
	owned := jobs.New("owned-1", jobs.Source{Kind: jobs.SourceLocalFile, Path: userFile}, jobs.Options{Model: "base"})
	if err := store.Create(ctx, owned); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := store.Delete(ctx, managed.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(upload); !os.IsNotExist(err) {
		t.Fatalf("expected managed upload removed, stat err=%v", err)
	}
	if _, err := os.Stat(managed.WorkDir); !os.IsNotExist(err) {
		t.Fatalf("expected work dir removed, stat err=%v", err)
	}
	if err := store.Delete(ctx, managed.ID); !errors.Is(err, jobs.ErrNotFound) {
		t.Fatalf("expected second delete to report not found, got %v", err)
	}

	if err := store.Delete(ctx, owned.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(userFile); err != nil {
		t.Fatalf("expected caller-owned file to survive deletion: %v", err)
	}
}

func TestConcurrentUpdatesSerialize(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	job := testsupport.NewLocalJob(t, store, cfg, "a.mp4", jobs.Options{Model: "base"})
	if _, err := store.Update(ctx, job.ID, func(j *jobs.Job) error {
		j.Advance(jobs.StateTranscribing, 25, "Transcribing")
		return nil
	}); err != nil {
		t.Fatalf("advance: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.Update(ctx, job.ID, func(j *jobs.Job) error {
				j.SetProgress(j.Progress+1, "")
				return nil
			})
		}()
	}
	wg.Wait()

	fetched, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if fetched.Progress <= 25 || fetched.Progress > 33 {
		t.Fatalf("unexpected progress after concurrent increments: %d", fetched.Progress)
	}
}

func TestReopenPreservesRecords(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := jobs.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	job := testsupport.NewLocalJob(t, store, cfg, "a.mp4", jobs.Options{Model: "base"})
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := testsupport.MustOpenStore(t, cfg)
	if _, err := reopened.Get(context.Background(), job.ID); err != nil {
		t.Fatalf("expected job to survive reopen: %v", err)
	}
	if reopened.Path() != cfg.DatabasePath() {
		t.Fatalf("unexpected path %q", reopened.Path())
	}
}

func TestReferencedPathsCoversWorkDirsAndUploads(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	local := testsupport.NewLocalJob(t, store, cfg, "local.mp4", jobs.Options{Model: "base"})
	workDir := filepath.Join(cfg.JobsDir(), local.ID)
	if _, err := store.Update(ctx, local.ID, func(j *jobs.Job) error {
		j.Advance(jobs.StateDownloading, 0, "Preparing")
		j.WorkDir = workDir
		return nil
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	upload := filepath.Join(cfg.UploadsDir(), "abc_talk.mp4")
	testsupport.WriteFile(t, upload, 64)
	managed := jobs.New("managed-job", jobs.Source{Kind: jobs.SourceLocalFile, Path: upload, Managed: true}, jobs.Options{Model: "base"})
	if err := store.Create(ctx, managed); err != nil {
		t.Fatalf("Create: %v", err)
	}

	paths, err := store.ReferencedPaths(ctx)
	if err != nil {
		t.Fatalf("ReferencedPaths: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("expected work dir and upload only, got %v", paths)
	}
	for _, want := range []string{workDir, upload} {
		if _, ok := paths[want]; !ok {
			t.Fatalf("expected %s referenced, got %v", want, paths)
		}
	}
	if _, ok := paths[local.Source.Path]; ok {
		t.Fatal("caller-owned media must not be reported")
	}
}
