package storage

import "errors"

// Common storage errors
var (
	// ErrRecordNotFound indicates that the record does not exist
	ErrRecordNotFound = errors.New("record not found")

	// ErrInvalidRecord indicates that record data is not a JSON object
	ErrInvalidRecord = errors.New("invalid record data")
)
