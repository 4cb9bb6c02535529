package preflight

import (
	"context"

	"github.com/Kat4X/video-transcriber/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes the filesystem checks and, when an API key is configured
// and checkLLM is set, the reformatting endpoint check.
func RunAll(ctx context.Context, cfg *config.Config, checkLLM bool) []Result {
	if cfg == nil {
		return nil
	}
	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Uploads directory", cfg.UploadsDir()),
		CheckDirectoryAccess("Jobs directory", cfg.JobsDir()),
		CheckFreeSpace("Free space", cfg.Paths.DataDir, cfg.Workflow.MinFreeSpaceMiB),
		CheckModelsDir("Models directory", cfg.Paths.ModelsDir),
	}
	if checkLLM && cfg.ReformatAvailable() {
		results = append(results, CheckLLM(ctx, "Reformatting LLM", cfg.LLM))
	}
	return results
}
