package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Lines look like
//
//	2026-01-02 15:04:05 INFO [executor] Job 01234567 (extracting) - stage started
//	    - progress: 20
//
// INFO and above print at most maxInfoFields fields; DEBUG prints them all.
const (
	maxInfoFields   = 8
	consoleTimeForm = "2006-01-02 15:04:05"
)

type consoleHandler struct {
	out       *lockedWriter
	level     *slog.LevelVar
	preset    []field
	prefix    string
	addSource bool
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (lw *lockedWriter) write(p []byte) error {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	_, err := lw.w.Write(p)
	return err
}

type field struct {
	key   string
	value slog.Value
}

func newConsoleHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return &consoleHandler{out: &lockedWriter{w: w}, level: lvl, addSource: addSource}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.preset = appendFields(append([]field(nil), h.preset...), h.prefix, attrs)
	return &next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func (h *consoleHandler) Handle(_ context.Context, rec slog.Record) error {
	if !h.Enabled(context.Background(), rec.Level) {
		return nil
	}
	fields := append([]field(nil), h.preset...)
	rec.Attrs(func(a slog.Attr) bool {
		fields = appendFields(fields, h.prefix, []slog.Attr{a})
		return true
	})
	fields = lastWins(fields)

	var component, jobID, stage string
	body := fields[:0]
	for _, f := range fields {
		switch f.key {
		case FieldComponent:
			component = plain(f.value)
		case FieldJobID:
			jobID = plain(f.value)
		case FieldStage:
			stage = plain(f.value)
		default:
			body = append(body, f)
		}
	}

	ts := rec.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	var b strings.Builder
	b.WriteString(ts.Local().Format(consoleTimeForm))
	b.WriteString(" " + levelName(rec.Level))
	if component != "" {
		b.WriteString(" [" + component + "]")
	}
	if subject := jobSubject(jobID, stage); subject != "" {
		b.WriteString(" " + subject)
	}
	msg := strings.TrimSpace(rec.Message)
	if msg == "" {
		msg = "(no message)"
	}
	b.WriteString(" - " + msg)
	if src := rec.Source(); h.addSource && src != nil {
		fmt.Fprintf(&b, " [%s:%d]", filepath.Base(src.File), src.Line)
	}
	b.WriteByte('\n')

	shown := body
	if rec.Level >= slog.LevelInfo && len(shown) > maxInfoFields {
		shown = shown[:maxInfoFields]
	}
	for _, f := range shown {
		fmt.Fprintf(&b, "    - %s: %s\n", f.key, quoted(f.value))
	}
	if hidden := len(body) - len(shown); hidden > 0 {
		fmt.Fprintf(&b, "    + %d more hidden\n", hidden)
	}
	return h.out.write([]byte(b.String()))
}

// jobSubject renders "Job 3f2a9c1e (transcribing)" with the id cut to 8 chars.
func jobSubject(jobID, stage string) string {
	jobID, stage = strings.TrimSpace(jobID), strings.TrimSpace(stage)
	jobID = jobID[:min(len(jobID), 8)]
	switch {
	case jobID == "":
		return stage
	case stage == "":
		return "Job " + jobID
	default:
		return "Job " + jobID + " (" + stage + ")"
	}
}

// appendFields flattens groups into dotted keys.
func appendFields(dst []field, prefix string, attrs []slog.Attr) []field {
	for _, a := range attrs {
		if a.Equal(slog.Attr{}) {
			continue
		}
		v := a.Value.Resolve()
		if v.Kind() == slog.KindGroup {
			sub := prefix
			if a.Key != "" {
				sub += a.Key + "."
			}
			dst = appendFields(dst, sub, v.Group())
			continue
		}
		if a.Key == "" {
			continue
		}
		dst = append(dst, field{key: prefix + a.Key, value: v})
	}
	return dst
}

// lastWins keeps the first position of each key with its latest value.
func lastWins(fields []field) []field {
	index := make(map[string]int, len(fields))
	out := make([]field, 0, len(fields))
	for _, f := range fields {
		if i, ok := index[f.key]; ok {
			out[i].value = f.value
			continue
		}
		index[f.key] = len(out)
		out = append(out, f)
	}
	return out
}

func levelName(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	}
	return "DEBUG"
}

// plain renders v without quoting.
func plain(v slog.Value) string {
	switch v.Kind() {
	case slog.KindTime:
		return v.Time().Local().Format(consoleTimeForm)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	}
	return v.String()
}

// quoted is plain with strings quoted when empty or carrying control chars.
func quoted(v slog.Value) string {
	s := plain(v)
	if k := v.Kind(); k != slog.KindString && k != slog.KindAny {
		return s
	}
	if s == "" || strings.ContainsFunc(s, func(r rune) bool { return r < ' ' || r == '"' }) {
		return strconv.Quote(s)
	}
	return s
}
