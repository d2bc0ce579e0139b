package session

import "errors"

// Error taxonomy for the session registry. Callers match with errors.Is;
// the concrete message carries the human-readable detail.
var (
	// ErrValidation covers malformed session configs (name/directory shape).
	ErrValidation = errors.New("invalid session config")

	// ErrPolicy means the requested working directory is outside every
	// allowed prefix and no wildcard is configured.
	ErrPolicy = errors.New("directory not allowed")

	// ErrCapacity means the configured session limit has been reached.
	ErrCapacity = errors.New("maximum session limit reached")

	// ErrNotFound means the session id is unknown, or the session no
	// longer has a live process handle.
	ErrNotFound = errors.New("session not found")
)
