// Package logs reads the daemon's log file for the CLI: the last N lines,
// then, in follow mode, each complete line appended afterwards.
//
// Reads track a byte offset and only consume whole lines, so a line the
// daemon is still writing is returned once it ends. A file that shrank below
// the offset (truncated or replaced) is read again from the start.
package logs
