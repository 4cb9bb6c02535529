package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"github.com/Kat4X/video-transcriber/internal/config"
	"github.com/Kat4X/video-transcriber/internal/daemon"
	"github.com/Kat4X/video-transcriber/internal/daemonrun"
	"github.com/Kat4X/video-transcriber/internal/logging"
	"github.com/Kat4X/video-transcriber/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	stubs      *testsupport.Stubs
	daemon     *daemon.Daemon
	apiURL     string
	configPath string
}

// setupCLITestEnv writes a config file and, when withDaemon is set, runs a
// daemon over stub collaborators on an ephemeral port.
func setupCLITestEnv(t *testing.T, withDaemon bool) *cliTestEnv {
	t.Helper()

	t.Setenv("HOME", t.TempDir())
	t.Setenv("TRANSCRIBER_LLM_API_KEY", "")
	t.Setenv("TRANSCRIBER_DATA_DIR", "")
	cfg := testsupport.NewConfig(t, testsupport.WithModels("base"))

	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	env := &cliTestEnv{
		cfg:        cfg,
		stubs:      testsupport.NewStubs(),
		configPath: configPath,
	}
	if !withDaemon {
		return env
	}

	logger := logging.NewNop()
	engine, err := daemonrun.NewEngine(cfg, logger, daemonrun.WithCollaborators(env.stubs.Collaborators()))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	d, err := daemon.New(cfg, engine.Store, engine.Bus, engine.Workflow, logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon start: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	env.daemon = d
	env.apiURL = "http://" + d.Address()
	return env
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(*cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func (e *cliTestEnv) mediaFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(testsupport.BaseDir(e.cfg), "media", name)
	testsupport.WriteFile(t, path, 2048)
	return path
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	flags := []string{"--config", e.configPath}
	if e.apiURL != "" {
		flags = append(flags, "--api", e.apiURL)
	}
	return runCLI(t, append(flags, args...))
}

func runCLI(t *testing.T, args []string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q, got:\n%s", needle, haystack)
	}
}

// queuedJobID extracts the id from "Queued job <id> (...)".
func queuedJobID(t *testing.T, output string) string {
	t.Helper()
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 3 && fields[0] == "Queued" && fields[1] == "job" {
			return fields[2]
		}
	}
	t.Fatalf("no queued job id in output:\n%s", output)
	return ""
}
