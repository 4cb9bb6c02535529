// Package ffmpeg extracts recognition-ready audio from media files.
//
// The extractor probes the input with ffprobe, then converts the first audio
// stream to mono 16 kHz PCM WAV. Progress comes from ffmpeg's machine-readable
// -progress output measured against the probed duration.
package ffmpeg
