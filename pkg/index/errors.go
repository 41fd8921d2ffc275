// Package index implements the shared master index and its locking primitives
package index

import "errors"

var (
	// ErrInvalidArgument indicates a malformed input to a primitive; never retryable
	ErrInvalidArgument = errors.New("index: invalid argument")

	// ErrLockTimeout indicates a mutex or virtual lock could not be acquired within budget
	ErrLockTimeout = errors.New("index: lock acquisition timed out")

	// ErrModificationConflict indicates a modification-token mismatch
	ErrModificationConflict = errors.New("index: modification conflict")

	// ErrUnknownCollection indicates an operation against a collection the index does not know
	ErrUnknownCollection = errors.New("index: unknown collection")
)
