// Package stageexec runs one job's pipeline: acquire, extract, recognize,
// optionally reformat, and finalize.
//
// Every state transition is written to the job store before the matching
// progress event is published, so a reader of the store never sees progress
// for a stage it has not been told about. Collaborators report progress
// through the narrow Reporter capability; the executor maps those reports
// into the stage's percent band, keeps them monotonic, and drops repeats.
//
// Failures are classified at the stage boundary and recorded as the job's
// terminal state. A failed reformat is the exception: the job completes with
// the unformatted text.
package stageexec
