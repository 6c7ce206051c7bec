package queue

import "errors"

// Classified error kinds. Engine operations wrap these with fmt.Errorf and
// %w so that surfaces can map them with errors.Is while still printing a
// descriptive message.
var (
	// ErrNotFound marks a named queue or message id that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists marks a queue-name collision on create.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalid marks rejected input: empty names, non-JSON payloads,
	// non-positive max_attempts.
	ErrInvalid = errors.New("invalid argument")

	// ErrDuplicate marks an enqueue whose (queue, idempotency_key) pair is
	// already present.
	ErrDuplicate = errors.New("duplicate idempotency key")
)
