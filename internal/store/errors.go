package store

import "errors"

// Sentinel errors for the store package.
var (
	// ErrStaleCursor is returned when SetCursor is asked to move a cursor
	// backwards.
	ErrStaleCursor = errors.New("stale cursor")

	// ErrInvalidEvent is returned when an event fails validation.
	ErrInvalidEvent = errors.New("invalid event")
)
