package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Kat4X/video-transcriber/internal/jobs"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrConfiguration     = errors.New("configuration error")
	ErrExternalTool      = errors.New("external tool error")
	ErrAcquire           = errors.New("acquire failed")
	ErrExtract           = errors.New("extract failed")
	ErrRecognition       = errors.New("recognition failed")
	ErrReformat          = errors.New("reformat failed")
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrCancelled         = errors.New("cancelled")
	ErrTimeout           = errors.New("timeout")
	ErrTransient         = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify maps an error onto the job error kind it represents. Markers that
// carry no stage meaning (external tool, transient) classify as the empty
// kind so the caller can apply the kind of the stage that failed.
func Classify(err error) jobs.ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return jobs.KindCancelled
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return jobs.KindTimeout
	case errors.Is(err, ErrResourceExhausted):
		return jobs.KindResourceExhausted
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConfiguration):
		return jobs.KindValidation
	case errors.Is(err, jobs.ErrNotFound):
		return jobs.KindNotFound
	case errors.Is(err, ErrAcquire):
		return jobs.KindAcquireFailed
	case errors.Is(err, ErrExtract):
		return jobs.KindExtractFailed
	case errors.Is(err, ErrRecognition):
		return jobs.KindRecognitionFailed
	case errors.Is(err, ErrReformat):
		return jobs.KindReformatFailed
	default:
		return ""
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
