package store

import "errors"

// Common errors returned by the store package.
var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrIntervalTooShort is returned when an operator configures an
	// interval below the minimum.
	ErrIntervalTooShort = errors.New("interval below minimum of 5 minutes")
)
