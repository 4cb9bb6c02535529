package logging

import (
	"context"
	"log/slog"

	"github.com/Kat4X/video-transcriber/internal/services"
)

// Structured field names shared by every component.
const (
	FieldComponent     = "component"
	FieldJobID         = "job_id"
	FieldStage         = "stage"
	FieldCorrelationID = "correlation_id"
	// FieldEventType classifies the line, e.g. "job_failed".
	FieldEventType = "event_type"
	// FieldErrorHint is the operator's next step.
	FieldErrorHint = "error_hint"
	// FieldImpact describes what the user loses because of a warning.
	FieldImpact          = "impact"
	FieldErrorKind       = "error_kind"
	FieldProgressPercent = "progress_percent"
	FieldProgressMessage = "progress_message"
)

// ContextFields returns job, stage and request attributes carried by ctx.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var fields []slog.Attr
	add := func(key string, get func(context.Context) (string, bool)) {
		if v, ok := get(ctx); ok {
			fields = append(fields, slog.String(key, v))
		}
	}
	add(FieldJobID, services.JobIDFromContext)
	add(FieldStage, services.StageFromContext)
	add(FieldCorrelationID, services.RequestIDFromContext)
	return fields
}

// WithContext decorates logger with ContextFields(ctx).
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	if fields := ContextFields(ctx); len(fields) > 0 {
		return logger.With(Args(fields...)...)
	}
	return logger
}
