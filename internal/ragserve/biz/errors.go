package biz

import "errors"

var (
	// ErrJobNotFound is returned when a job ID is not in the registry.
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidLimit is returned when a processing request carries a
	// non-positive document limit.
	ErrInvalidLimit = errors.New("limit must be at least 1")

	// ErrInvalidTopK is returned when a chat request asks for a result
	// count outside [1, 20].
	ErrInvalidTopK = errors.New("top_k must be between 1 and 20")
)
