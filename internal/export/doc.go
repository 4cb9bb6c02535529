// Package export renders a completed job's stored result as Markdown, SRT
// subtitles, or plain text.
//
// Every representation is derived from the persisted Result; nothing is
// recomputed from media.
package export
