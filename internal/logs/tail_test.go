package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/Kat4X/video-transcriber/internal/logs"
)

func writeLog(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
}

func appendLog(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("append log: %v", err)
	}
}

func TestLastReturnsTrailingCompleteLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcriber.log")
	writeLog(t, path, "one\ntwo\nthree\nfour\npartial")

	chunk, err := logs.Last(path, 2)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if !reflect.DeepEqual(chunk.Lines, []string{"three", "four"}) {
		t.Fatalf("unexpected lines %q", chunk.Lines)
	}
	if chunk.Offset != int64(len("one\ntwo\nthree\nfour\n")) {
		t.Fatalf("expected offset before the partial line, got %d", chunk.Offset)
	}

	appendLog(t, path, " done\nfive\n")
	next, err := logs.From(path, chunk.Offset)
	if err != nil {
		t.Fatalf("From: %v", err)
	}
	if !reflect.DeepEqual(next.Lines, []string{"partial done", "five"}) {
		t.Fatalf("unexpected follow-up lines %q", next.Lines)
	}
}

func TestMissingFileAndTruncation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcriber.log")
	chunk, err := logs.Last(path, 10)
	if err != nil || len(chunk.Lines) != 0 || chunk.Offset != 0 {
		t.Fatalf("expected empty chunk for missing file, got %+v err=%v", chunk, err)
	}

	writeLog(t, path, "fresh\n")
	next, err := logs.From(path, 4096)
	if err != nil {
		t.Fatalf("From: %v", err)
	}
	if !reflect.DeepEqual(next.Lines, []string{"fresh"}) {
		t.Fatalf("expected truncated file reread from start, got %q", next.Lines)
	}
}

func TestFollowDeliversAppendedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcriber.log")
	writeLog(t, path, "old\n")
	start, err := logs.Last(path, 0)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var (
		mu  sync.Mutex
		got []string
	)
	done := make(chan error, 1)
	go func() {
		done <- logs.Follow(ctx, path, start.Offset, 10*time.Millisecond, func(line string) {
			mu.Lock()
			got = append(got, line)
			if len(got) == 2 {
				cancel()
			}
			mu.Unlock()
		})
	}()

	appendLog(t, path, "new one\nnew two\n")
	if err := <-done; err != nil {
		t.Fatalf("Follow: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if !reflect.DeepEqual(got, []string{"new one", "new two"}) {
		t.Fatalf("unexpected followed lines %q", got)
	}
}
