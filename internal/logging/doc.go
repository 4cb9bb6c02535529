// Package logging assembles structured slog loggers for the transcriber.
//
// It owns the console and JSON handlers, the level and output plumbing, and
// the context helpers that tag log lines with job IDs, stages, and correlation
// IDs. NewNop returns a logger for tests and wiring code that cannot fail.
package logging
