package queue

import "errors"

var (
	// ErrNotFound indicates no record exists for the requested topic.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateTopic indicates an Add for a topic that already has a record.
	ErrDuplicateTopic = errors.New("topic already queued")

	// ErrClaimConflict indicates another worker transitioned the record away
	// from Pending between read and commit. Expected control flow, not a
	// defect: callers move on to the next candidate.
	ErrClaimConflict = errors.New("claim conflict")

	// ErrInvalidTransition indicates a finalize or reset against a record
	// whose current status does not permit the transition, typically a
	// worker finalizing a job it no longer owns.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrStoreUnavailable indicates the retry budget for store access was
	// exhausted. Fatal to the current loop iteration, never to the process.
	ErrStoreUnavailable = errors.New("record store unavailable")
)
