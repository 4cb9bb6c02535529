// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Key types:
//   - Result: parsed ffprobe output containing streams and format metadata
//   - Stream: individual audio/video stream properties
//   - Format: container-level metadata (duration, size, bitrate)
//
// Inspect executes ffprobe and returns the parsed Result. The audio
// extractor uses it to reject inputs without an audio stream and to turn
// ffmpeg's elapsed-time output into a percentage.
package ffprobe
