package domain

import "errors"

// Common errors returned by the domain package.
var (
	// ErrInvalidRecord is returned when a record is missing its external ID or title.
	ErrInvalidRecord = errors.New("invalid record: external id and title are required")
)
