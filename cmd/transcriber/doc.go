// Command transcriber runs the transcription daemon and talks to it over its
// HTTP API.
//
// The serve command runs the daemon in the foreground; start and stop manage
// a detached instance. Job commands (submit, list, show, delete, export) go
// through the API. transcribe runs a single job in-process against a private
// scratch store and writes the transcript next to the requested output
// directory, with no daemon involved.
package main
