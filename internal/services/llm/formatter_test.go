package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Kat4X/video-transcriber/internal/services"
)

type fakeCompleter struct {
	prompts []string
	err     error
}

func (f *fakeCompleter) CompleteText(_ context.Context, _ string, user string) (string, error) {
	f.prompts = append(f.prompts, user)
	if f.err != nil {
		return "", f.err
	}
	body := user[strings.Index(user, "Transcript:\n")+len("Transcript:\n"):]
	return strings.ToUpper(body[:1]) + body[1:], nil
}

func TestFormatterAddsLanguageHint(t *testing.T) {
	fake := &fakeCompleter{}
	got, err := NewFormatter(fake, 0).Reformat(context.Background(), "hello there.", "ru")
	if err != nil {
		t.Fatalf("Reformat: %v", err)
	}
	if got != "Hello there." {
		t.Fatalf("unexpected output %q", got)
	}
	if !strings.HasPrefix(fake.prompts[0], "The text is in Russian.") {
		t.Fatalf("expected language hint, got %q", fake.prompts[0])
	}

	fake = &fakeCompleter{}
	if _, err := NewFormatter(fake, 0).Reformat(context.Background(), "hi.", "auto"); err != nil {
		t.Fatalf("Reformat: %v", err)
	}
	if strings.HasPrefix(fake.prompts[0], "The text is in") {
		t.Fatalf("auto must not add a hint, got %q", fake.prompts[0])
	}
}

func TestFormatterChunksLongText(t *testing.T) {
	fake := &fakeCompleter{}
	text := strings.Repeat("one two three. ", 20)
	got, err := NewFormatter(fake, 50).Reformat(context.Background(), text, "en")
	if err != nil {
		t.Fatalf("Reformat: %v", err)
	}
	if len(fake.prompts) < 2 {
		t.Fatalf("expected several requests, got %d", len(fake.prompts))
	}
	if strings.Count(got, "\n\n") != len(fake.prompts)-1 {
		t.Fatalf("expected chunks joined as paragraphs, got %q", got)
	}
}

func TestFormatterWrapsFailures(t *testing.T) {
	_, err := NewFormatter(&fakeCompleter{err: errors.New("boom")}, 0).Reformat(context.Background(), "text", "en")
	if !errors.Is(err, services.ErrReformat) {
		t.Fatalf("expected ErrReformat marker, got %v", err)
	}
	_, err = NewFormatter(&fakeCompleter{err: context.Canceled}, 0).Reformat(context.Background(), "text", "en")
	if !errors.Is(err, context.Canceled) || errors.Is(err, services.ErrReformat) {
		t.Fatalf("expected bare cancellation, got %v", err)
	}
}

func TestSplitChunksBounds(t *testing.T) {
	text := "A short one. " + strings.Repeat("word ", 40) + "end."
	for _, chunk := range splitChunks(text, 30) {
		if n := len([]rune(chunk)); n > 30 {
			t.Fatalf("chunk of %d runes exceeds limit: %q", n, chunk)
		}
	}
	if got := splitChunks("tiny", 30); len(got) != 1 || got[0] != "tiny" {
		t.Fatalf("unexpected chunks %v", got)
	}
}
