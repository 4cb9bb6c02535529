// Package whisper runs the whisper.cpp command line recognizer.
//
// The package handles:
//   - Model identifier resolution against the installed ggml model files
//   - Recognizer invocation with JSON output and progress printing enabled
//   - Progress parsing from stderr and segment parsing from the JSON output
//
// Service implements the pipeline's recognition collaborator. Out-of-memory
// failures are tagged as resource exhaustion so the job records the right kind.
package whisper
