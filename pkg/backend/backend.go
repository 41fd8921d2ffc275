// ABOUTME: Substrate interfaces for the shared key-value store, blob store, and platform mutex
// ABOUTME: Defines the contracts the coordination layer is built on

package backend

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a missing blob or key-value entry
	ErrNotFound = errors.New("backend: not found")

	// ErrQuotaExceeded indicates the underlying store rejected a write for capacity reasons
	ErrQuotaExceeded = errors.New("backend: storage quota exceeded")

	// ErrMutexTimeout indicates the platform mutex could not be acquired in time
	ErrMutexTimeout = errors.New("backend: mutex acquisition timed out")

	// ErrBadHandle indicates a release with a handle this mutex did not issue
	ErrBadHandle = errors.New("backend: invalid mutex handle")
)

// KVStore is the shared key-value substrate the master index persists onto
type KVStore interface {
	// Get returns the value for key and whether it exists
	Get(key string) (string, bool, error)
	// Set stores value under key, overwriting any previous value
	Set(key, value string) error
	// Delete removes key; deleting a missing key is not an error
	Delete(key string) error
}

// BlobStore is the plain file store backing collection documents
type BlobStore interface {
	// ReadFile returns the blob's contents or ErrNotFound
	ReadFile(id string) ([]byte, error)
	// WriteFile stores data under id, creating or replacing the blob
	WriteFile(id string, data []byte) error
	// DeleteFile removes the blob; missing blobs are not an error
	DeleteFile(id string) error
}

// Handle is an opaque token issued by a Mutex acquire and consumed by release
type Handle interface{}

// Mutex is the platform-provided mutual-exclusion primitive. Only one holder
// exists globally at any instant; a second Acquire blocks until release or
// its own timeout elapses, then fails with ErrMutexTimeout.
type Mutex interface {
	Acquire(timeout time.Duration) (Handle, error)
	Release(h Handle) error
}
