// Package workflow is the front door of the transcription engine.
//
// The Manager validates and records submissions, hands them to the
// scheduler, and runs one executor goroutine per admitted ticket. It also
// answers queries against the job store, routes deletion to cancellation
// or record removal depending on the job's state, and recovers jobs left
// behind by a previous process on Start.
//
// Observers follow a job through Subscribe (live events plus a store
// snapshot) or Wait, which falls back to polling the store when the live
// stream ends early.
package workflow
