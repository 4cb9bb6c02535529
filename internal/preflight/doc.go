// Package preflight provides readiness checks for the filesystem paths,
// external tools and optional services the transcriber depends on.
//
// These checks run in two contexts:
//   - The daemon reports them from the status endpoint and logs failures at
//     startup, without refusing to start: a missing whisper binary only
//     affects jobs that reach recognition.
//   - Upload staging calls CheckFreeSpace before accepting a file.
package preflight
