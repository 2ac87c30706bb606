package artifact

import "errors"

var (
	// ErrNotFound is returned when the requested artifact does not exist.
	ErrNotFound = errors.New("artifact not found")

	// ErrInvalidID is returned when an id is not a 16-char lowercase hex
	// string.
	ErrInvalidID = errors.New("invalid artifact id")
)
