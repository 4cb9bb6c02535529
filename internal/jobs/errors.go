package jobs

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no job exists for the requested identifier.
	ErrNotFound = errors.New("job not found")
	// ErrDuplicate is returned when Create is called with an identifier already in use.
	ErrDuplicate = errors.New("job already exists")
	// ErrInvalidTransition is returned when an update would move a job backward
	// or out of a terminal state.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrInvalidJob is returned when a job violates the record invariants.
	ErrInvalidJob = errors.New("invalid job record")
)

// Validate enforces the record invariants: known state, bounded progress, and
// exactly one of result/error populated, only in the matching terminal state.
func (j *Job) Validate() error {
	if j == nil {
		return fmt.Errorf("%w: nil job", ErrInvalidJob)
	}
	if j.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidJob)
	}
	if !j.State.Valid() {
		return fmt.Errorf("%w: unknown state %q", ErrInvalidJob, j.State)
	}
	if j.Progress < 0 || j.Progress > 100 {
		return fmt.Errorf("%w: progress %d out of range", ErrInvalidJob, j.Progress)
	}
	switch j.Source.Kind {
	case SourceLocalFile:
		if j.Source.Path == "" {
			return fmt.Errorf("%w: local source without path", ErrInvalidJob)
		}
	case SourceRemoteURL:
		if j.Source.URL == "" {
			return fmt.Errorf("%w: remote source without url", ErrInvalidJob)
		}
	default:
		return fmt.Errorf("%w: unknown source kind %q", ErrInvalidJob, j.Source.Kind)
	}
	switch j.State {
	case StateCompleted:
		if j.Result == nil || j.Error != nil {
			return fmt.Errorf("%w: completed job must carry a result and no error", ErrInvalidJob)
		}
	case StateFailed:
		if j.Error == nil || j.Result != nil {
			return fmt.Errorf("%w: failed job must carry an error and no result", ErrInvalidJob)
		}
		if j.Error.Kind == "" {
			return fmt.Errorf("%w: failed job without error kind", ErrInvalidJob)
		}
	default:
		if j.Result != nil || j.Error != nil {
			return fmt.Errorf("%w: %s job cannot carry a result or error", ErrInvalidJob, j.State)
		}
	}
	return nil
}

// checkUpdate validates a mutation of before into after.
func checkUpdate(before, after *Job) error {
	if after.ID != before.ID {
		return fmt.Errorf("%w: id is immutable", ErrInvalidJob)
	}
	if after.Options != before.Options {
		return fmt.Errorf("%w: options are immutable", ErrInvalidJob)
	}
	if after.Source.Kind != before.Source.Kind ||
		after.Source.Path != before.Source.Path ||
		after.Source.URL != before.Source.URL ||
		after.Source.Managed != before.Source.Managed {
		return fmt.Errorf("%w: source is immutable", ErrInvalidJob)
	}
	if !CanTransition(before.State, after.State) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, before.State, after.State)
	}
	if after.State == before.State && after.Progress < before.Progress {
		return fmt.Errorf("%w: progress %d -> %d regresses within %s", ErrInvalidTransition, before.Progress, after.Progress, before.State)
	}
	return after.Validate()
}
