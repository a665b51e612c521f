// Package storage holds definitions shared by the blob and book store backends.
package storage

import "errors"

// ErrNotFound is returned when a book or chapter does not exist.
var ErrNotFound = errors.New("not found")

// Backend names accepted by configuration.
const (
	BackendLocal  = "local"
	BackendMemory = "memory"
	BackendGCS    = "gcs"
)
