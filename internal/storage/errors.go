package storage

import "errors"

// Common storage errors
var (
	// ErrRecordNotFound indicates that conversation record was not found
	ErrRecordNotFound = errors.New("record not found")

	// ErrStorageClosed indicates that storage is closed
	ErrStorageClosed = errors.New("storage is closed")

	// ErrIDMismatch indicates that an update returned a record for another conversation
	ErrIDMismatch = errors.New("updated record has a different conversation id")
)
