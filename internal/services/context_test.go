package services_test

import (
	"context"
	"testing"

	"github.com/Kat4X/video-transcriber/internal/services"
)

func TestContextCarriesJobMetadata(t *testing.T) {
	ctx := services.WithRequestID(
		services.WithStage(
			services.WithJobID(context.Background(), "0b7c1c2e"),
			"transcribing"),
		"req-123")

	checks := []struct {
		name string
		get  func(context.Context) (string, bool)
		want string
	}{
		{"job", services.JobIDFromContext, "0b7c1c2e"},
		{"stage", services.StageFromContext, "transcribing"},
		{"request", services.RequestIDFromContext, "req-123"},
	}
	for _, c := range checks {
		got, ok := c.get(ctx)
		if !ok || got != c.want {
			t.Errorf("%s: got %q (present=%v), want %q", c.name, got, ok, c.want)
		}
	}
}

func TestEmptyMetadataIsIgnored(t *testing.T) {
	ctx := services.WithJobID(services.WithStage(context.Background(), "  "), "")
	if stage, ok := services.StageFromContext(ctx); ok {
		t.Fatalf("blank stage stored as %q", stage)
	}
	if id, ok := services.JobIDFromContext(ctx); ok {
		t.Fatalf("blank job id stored as %q", id)
	}
}
