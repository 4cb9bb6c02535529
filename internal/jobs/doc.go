// Package jobs defines the transcription job model and persists job records in
// SQLite.
//
// A Job moves forward through the stage order (pending, downloading,
// extracting, transcribing, formatting, completed) or drops into failed from
// any non-terminal state. The Store is the single source of truth for that
// lifecycle: every mutation goes through Update, which applies a caller
// supplied function inside one immediate transaction and rejects the write
// when the result would regress the state machine or break the
// result/error invariants.
//
// Deleting a record also releases the artifacts tied to it (the job's work
// directory and, for uploads the daemon staged itself, the source file).
package jobs
