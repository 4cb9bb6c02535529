// Package daemon coordinates the long-running transcriber process.
//
// It wires configuration, the job store, the progress bus and the workflow
// manager into a single lifecycle with flock-based locking to prevent multiple
// instances, and serves the HTTP API: job submission (JSON, form fields or a
// multipart upload), listing, inspection, deletion, a Server-Sent Events
// progress stream per job, transcript downloads and daemon status.
//
// Keep orchestration here: pipeline behaviour lives in workflow and
// stageexec, while the daemon handles startup, shutdown and transport.
package daemon
