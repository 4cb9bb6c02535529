package daemonctl_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/Kat4X/video-transcriber/internal/api"
	"github.com/Kat4X/video-transcriber/internal/client"
	"github.com/Kat4X/video-transcriber/internal/daemonctl"
	"github.com/Kat4X/video-transcriber/internal/jobs"
	"github.com/Kat4X/video-transcriber/internal/testsupport"
)

func unreachableClient(t *testing.T) *client.Client {
	t.Helper()
	server := httptest.NewServer(http.NotFoundHandler())
	address := server.URL
	server.Close()
	c, err := client.New(address)
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	return c
}

func TestBuildStatusSnapshotOffline(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithModels("base"))
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.NewLocalJob(t, store, cfg, "clip.mp4", jobs.Options{Model: "base", Language: "auto"})

	status, reachable, err := daemonctl.BuildStatusSnapshot(context.Background(), unreachableClient(t), cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if reachable || status.Running {
		t.Fatalf("expected offline snapshot, got %+v", status)
	}
	if status.Workflow.Counts["pending"] != 1 {
		t.Fatalf("expected pending job counted from store, got %v", status.Workflow.Counts)
	}
	if len(status.Dependencies) != 3 {
		t.Fatalf("expected local dependency checks, got %+v", status.Dependencies)
	}
	var installed int
	for _, model := range status.Models {
		if model.Installed {
			installed++
		}
	}
	if installed != 1 {
		t.Fatalf("expected one installed model, got %+v", status.Models)
	}
}

func TestBuildStatusSnapshotPrefersDaemon(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(api.DaemonStatus{Running: true, PID: 4242})
	}))
	t.Cleanup(server.Close)
	c, _ := client.New(server.URL)

	status, reachable, err := daemonctl.BuildStatusSnapshot(context.Background(), c, testsupport.NewConfig(t))
	if err != nil || !reachable || status.PID != 4242 {
		t.Fatalf("expected daemon status, got %+v reachable=%v err=%v", status, reachable, err)
	}

	result, err := daemonctl.EnsureStarted(context.Background(), c, "/nonexistent", daemonctl.LaunchOptions{}, 0)
	if err != nil || result.State != daemonctl.StartStateAlreadyRunning || result.PID != 4242 {
		t.Fatalf("expected already running, got %+v err=%v", result, err)
	}
}

func TestStopWhenNotRunning(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := daemonctl.Stop(context.Background(), unreachableClient(t), cfg, 0); err != daemonctl.ErrDaemonNotRunning {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}

func TestReadPIDAndForceKillGuards(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, "transcriber.pid")
	if _, err := daemonctl.ReadPID(pidPath); err == nil {
		t.Fatal("expected error for missing pid file")
	}
	if err := os.WriteFile(pidPath, []byte("garbage\n"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	if _, err := daemonctl.ReadPID(pidPath); err == nil {
		t.Fatal("expected error for malformed pid file")
	}

	self := strconv.Itoa(os.Getpid())
	if err := os.WriteFile(pidPath, []byte(self+"\n"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	pid, err := daemonctl.ReadPID(pidPath)
	if err != nil || pid != os.Getpid() {
		t.Fatalf("expected own pid, got %d err=%v", pid, err)
	}
	if _, err := daemonctl.ForceKillProcess(pidPath, "", 0); err == nil {
		t.Fatal("expected refusal to kill the current process")
	}
	if _, err := os.Stat(pidPath); err != nil {
		t.Fatalf("expected pid file kept after refusal: %v", err)
	}
}
