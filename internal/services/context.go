package services

import (
	"context"
	"strings"
)

type metaKey int

const (
	jobIDKey metaKey = iota
	stageKey
	requestIDKey
)

func withMeta(ctx context.Context, key metaKey, value string) context.Context {
	value = strings.TrimSpace(value)
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func metaFrom(ctx context.Context, key metaKey) (string, bool) {
	value, _ := ctx.Value(key).(string)
	return value, value != ""
}

// WithJobID tags ctx with the transcription job it works on.
func WithJobID(ctx context.Context, id string) context.Context {
	return withMeta(ctx, jobIDKey, id)
}

// JobIDFromContext returns the job tagged by WithJobID.
func JobIDFromContext(ctx context.Context) (string, bool) { return metaFrom(ctx, jobIDKey) }

// WithStage tags ctx with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	return withMeta(ctx, stageKey, stage)
}

// StageFromContext returns the stage tagged by WithStage.
func StageFromContext(ctx context.Context) (string, bool) { return metaFrom(ctx, stageKey) }

// WithRequestID tags ctx with an API request correlation id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withMeta(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the id tagged by WithRequestID.
func RequestIDFromContext(ctx context.Context) (string, bool) { return metaFrom(ctx, requestIDKey) }
