package database

import "errors"

var (
	// ErrNotFound reports a missing room, event type or reservation.
	ErrNotFound = errors.New("not found")

	// ErrNotAvailable reports that the slot is taken by an active
	// reservation; callers may retry with a different interval.
	ErrNotAvailable = errors.New("slot is not available")

	// ErrConcurrentModification reports a lost compare-and-set race on a
	// status update; callers must re-read and retry the whole operation.
	ErrConcurrentModification = errors.New("reservation was modified concurrently")
)
