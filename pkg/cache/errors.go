package cache

import "errors"

var (
	// Cache operation errors
	ErrNotFound     = errors.New("key not found in cache")
	ErrInvalidQuery = errors.New("invalid query")
	ErrShuttingDown = errors.New("cache is shutting down")

	// Storage errors
	ErrStorageUnavailable = errors.New("storage backend unavailable")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
)
