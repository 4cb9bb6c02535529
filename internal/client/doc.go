// Package client talks to the transcriber daemon's HTTP API.
//
// Client wraps submission (JSON or streamed multipart upload), listing,
// inspection, deletion, transcript download and status. Follow consumes a
// job's Server-Sent Events stream and falls back to polling the job record
// when the stream cannot be opened or ends before the job finishes.
package client
