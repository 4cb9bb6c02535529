// Package youtube downloads the audio of remote videos for transcription.
//
// Only YouTube watch, short and share links are accepted. The downloader
// prefers an audio-only stream with the highest bitrate, falling back to a
// muxed stream when the video offers none, and reports byte progress.
package youtube
