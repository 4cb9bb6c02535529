package staging

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Kat4X/video-transcriber/internal/logging"
)

// Result lists what a sweep removed and what it failed to remove.
type Result struct {
	Removed []string
	Bytes   int64
	Errors  []CleanupError
}

// CleanupError pairs a path with its removal error.
type CleanupError struct {
	Path string
	Err  error
}

// Sweep removes the direct children of dir that are absent from referenced
// and were last modified more than minAge ago. Referenced paths must be
// cleaned absolute paths. A missing dir is not an error.
func Sweep(ctx context.Context, dir string, referenced map[string]struct{}, minAge time.Duration, logger *slog.Logger) Result {
	result := Result{}
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return result
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: dir, Err: err})
		}
		return result
	}

	cutoff := time.Now().Add(-minAge)
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		path := filepath.Join(dir, entry.Name())
		if _, ok := referenced[path]; ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: path, Err: err})
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		size := pathSize(path, entry)
		if err := os.RemoveAll(path); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: path, Err: err})
			logging.WarnWithContext(logger, "failed to remove unreferenced staging entry", "staging_cleanup_failed",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check data_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, path)
		result.Bytes += size
		logger.Info("removed unreferenced staging entry",
			logging.String(logging.FieldEventType, "staging_cleanup"),
			logging.String("path", path),
			logging.Int64("bytes", size),
			logging.Duration("age", time.Since(info.ModTime())),
		)
	}
	return result
}

// pathSize is best effort; unreadable children count as zero.
func pathSize(path string, entry fs.DirEntry) int64 {
	if !entry.IsDir() {
		if info, err := entry.Info(); err == nil {
			return info.Size()
		}
		return 0
	}
	var size int64
	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			if info, err := d.Info(); err == nil {
				size += info.Size()
			}
		}
		return nil
	})
	return size
}
