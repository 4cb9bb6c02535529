// Package api defines the wire-format types shared by the daemon's HTTP
// handlers and the CLI client. It translates job records, progress events and
// workflow diagnostics into transport DTOs so neither side depends on storage
// details.
//
// # Key Types
//
// Job: full job record with options, progress, result and failure.
//
// JobSummary: list projection without the transcript body.
//
// Event: one progress update as carried by the events stream.
//
// DaemonStatus: runtime information, workflow counters, dependency and
// preflight results, and the installed recognition models.
//
// # Design Notes
//
// JSON tags use snake_case like the stored job JSON. Timestamps are RFC3339
// with milliseconds in UTC. Lifecycle states and error kinds are exposed as
// their lowercase string values.
package api
