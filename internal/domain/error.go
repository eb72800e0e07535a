package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid execution context")

	// Pipeline control
	ErrRunInProgress = errors.New("a generation run is already in progress")
	ErrNoActiveRun   = errors.New("no active generation run")
	ErrStoppedByUser = errors.New("generation stopped by user")
	ErrJobLocked     = errors.New("job is locked by another run")

	// Library / post-generation
	ErrJobNotReady     = errors.New("job has no generated script yet")
	ErrJobBusy         = errors.New("job is being generated")
	ErrNotArchived     = errors.New("only archived jobs can be deleted")
	ErrUnsupportedEdit = errors.New("model does not support image editing")
	ErrNoImageReturned = errors.New("image generation returned no image")
	ErrUnauthorized    = errors.New("unauthorized")
)

// ParseError is returned when an outline response yields no chapters.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	if e.Reason == "" {
		return "failed to parse script outlines from AI response"
	}
	return "failed to parse script outlines from AI response: " + e.Reason
}

// EmptyGenerationError reports a generation call that produced no usable text.
type EmptyGenerationError struct {
	Stage string
}

func (e *EmptyGenerationError) Error() string {
	return fmt.Sprintf("%s generation returned no text", e.Stage)
}

// BatchMismatchError is logged, never returned from a run: the pieces that did
// arrive are still kept.
type BatchMismatchError struct {
	Requested int
	Received  int
}

func (e *BatchMismatchError) Error() string {
	return fmt.Sprintf("chapter batch mismatch: requested %d, received %d", e.Requested, e.Received)
}

// IncompleteCompletionError means every stage ran but some chapters are missing.
type IncompleteCompletionError struct {
	Written  int
	Expected int
}

func (e *IncompleteCompletionError) Error() string {
	return fmt.Sprintf("generation finished but incomplete: %d of %d chapters written, resume to continue",
		e.Written, e.Expected)
}
