package whisper

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Kat4X/video-transcriber/internal/services"
)

// Model describes a recognition model the daemon knows how to load.
type Model struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	// SizeMiB is the approximate size of the ggml file on disk.
	SizeMiB int `json:"size_mib"`
}

// Catalog lists the supported models, smallest first.
var Catalog = []Model{
	{ID: "tiny", Description: "fastest, lowest accuracy", SizeMiB: 75},
	{ID: "base", Description: "fast, basic accuracy", SizeMiB: 142},
	{ID: "small", Description: "balanced speed and accuracy", SizeMiB: 466},
	{ID: "medium", Description: "good accuracy, slower", SizeMiB: 1500},
	{ID: "large-v3", Description: "best accuracy, slowest", SizeMiB: 2900},
	{ID: "large-v3-turbo", Description: "near large-v3 accuracy, much faster", SizeMiB: 1500},
}

// Known reports whether id names a catalog model.
func Known(id string) bool {
	return slices.ContainsFunc(Catalog, func(m Model) bool { return m.ID == id })
}

// IDs returns the catalog identifiers in catalog order.
func IDs() []string {
	ids := make([]string, 0, len(Catalog))
	for _, m := range Catalog {
		ids = append(ids, m.ID)
	}
	return ids
}

// ModelFile returns the ggml file name for a model identifier.
func ModelFile(id string) string {
	return "ggml-" + id + ".bin"
}

// Resolve maps a model identifier to its file under modelsDir. The file must exist.
func Resolve(modelsDir, id string) (string, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if !Known(id) {
		return "", services.Wrap(services.ErrValidation, "transcribing", "resolve model",
			fmt.Sprintf("unknown model %q (available: %s)", id, strings.Join(IDs(), ", ")), nil)
	}
	path := filepath.Join(modelsDir, ModelFile(id))
	info, err := os.Stat(path)
	if err != nil {
		return "", services.Wrap(services.ErrRecognition, "transcribing", "resolve model",
			fmt.Sprintf("model %s is not installed at %s", id, path), err)
	}
	if info.IsDir() {
		return "", services.Wrap(services.ErrRecognition, "transcribing", "resolve model",
			fmt.Sprintf("model path %s is a directory", path), nil)
	}
	return path, nil
}

// Installed returns the catalog identifiers whose model files exist in modelsDir.
func Installed(modelsDir string) []string {
	var ids []string
	for _, m := range Catalog {
		if info, err := os.Stat(filepath.Join(modelsDir, ModelFile(m.ID))); err == nil && !info.IsDir() {
			ids = append(ids, m.ID)
		}
	}
	return ids
}
