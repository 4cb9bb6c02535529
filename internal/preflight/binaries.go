package preflight

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/Kat4X/video-transcriber/internal/config"
)

// Requirement defines an external executable the pipeline relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// BinaryStatus reports the availability of a requirement.
type BinaryStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Path        string `json:"path,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// CheckBinaries resolves each requirement on PATH (or as given, when it is a path).
func CheckBinaries(requirements []Requirement) []BinaryStatus {
	results := make([]BinaryStatus, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := BinaryStatus{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		switch resolved, err := exec.LookPath(cmd); {
		case cmd == "":
			status.Detail = "command not configured"
		case err != nil:
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
		default:
			status.Available = true
			status.Path = resolved
		}
		results = append(results, status)
	}
	return results
}

// CheckSystemDeps evaluates the external tools named in the [tools] section.
func CheckSystemDeps(cfg *config.Config) []BinaryStatus {
	return CheckBinaries([]Requirement{
		{Name: "FFmpeg", Command: cfg.Tools.FFmpeg, Description: "Required for audio extraction"},
		{Name: "FFprobe", Command: cfg.Tools.FFprobe, Description: "Required for media duration probing"},
		{Name: "whisper.cpp", Command: cfg.Tools.Whisper, Description: "Required for speech recognition"},
	})
}

// Ready reports whether every required (non-optional) binary is available.
func Ready(statuses []BinaryStatus) bool {
	for _, s := range statuses {
		if !s.Available && !s.Optional {
			return false
		}
	}
	return true
}
