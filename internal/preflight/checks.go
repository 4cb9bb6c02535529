package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"github.com/Kat4X/video-transcriber/internal/config"
	"github.com/Kat4X/video-transcriber/internal/services"
	"github.com/Kat4X/video-transcriber/internal/services/llm"
)

const mib = 1 << 20

// CheckLLM verifies that the LLM API is reachable and the key is valid.
// It uses a 30-second timeout and a single attempt (no retries).
func CheckLLM(ctx context.Context, name string, section config.LLM) Result {
	if section.APIKey == "" {
		return Result{Name: name, Detail: "API key missing"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client := llm.NewClient(llm.FromConfig(section), llm.WithRetryMaxAttempts(1))
	if err := client.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeLLMError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable"}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckModelsDir reports how many whisper.cpp model files are installed.
func CheckModelsDir(name, path string) Result {
	matches, err := filepath.Glob(filepath.Join(path, "ggml-*.bin"))
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	if len(matches) == 0 {
		return Result{Name: name, Detail: fmt.Sprintf("%s (no ggml-*.bin models installed)", path)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d models)", path, len(matches))}
}

// FreeBytes returns the space available to unprivileged users on the
// filesystem holding path.
func FreeBytes(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}

// CheckFreeSpace passes when at least minMiB MiB are free (zero disables the floor).
func CheckFreeSpace(name, path string, minMiB int) Result {
	free, err := FreeBytes(path)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	detail := fmt.Sprintf("%s free on %s", humanize.IBytes(free), path)
	if minMiB > 0 && free < uint64(minMiB)*mib {
		return Result{Name: name, Detail: detail + fmt.Sprintf(" (below the %s floor)", humanize.IBytes(uint64(minMiB)*mib))}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// EnsureFreeSpace returns a resource-exhausted error when fewer than minMiB
// MiB plus incoming bytes are available under path.
func EnsureFreeSpace(path string, minMiB int, incoming int64) error {
	if minMiB <= 0 && incoming <= 0 {
		return nil
	}
	free, err := FreeBytes(path)
	if err != nil {
		return err
	}
	need := uint64(max(minMiB, 0)) * mib
	if incoming > 0 {
		need += uint64(incoming)
	}
	if free < need {
		return services.Wrap(services.ErrResourceExhausted, "submit", "check free space",
			fmt.Sprintf("%s free under %s, need %s", humanize.IBytes(free), path, humanize.IBytes(need)), nil)
	}
	return nil
}

func summarizeLLMError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (LLM API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (LLM API unreachable)"
	}
	return err.Error()
}
