// Package services defines shared utilities consumed by the pipeline stages
// and the collaborator implementations under it.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper, and Classify which maps
//     a stage failure onto the error kind persisted with the job.
//
// Collaborators (youtube, ffmpeg, whisper, llm) live in sub-packages and only
// depend on this package for error tagging.
package services
